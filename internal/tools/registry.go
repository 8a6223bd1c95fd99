package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"agenthive/internal/approval"
	"agenthive/internal/brain"
	"agenthive/internal/core/domain"
	"agenthive/internal/core/ports"
	"agenthive/internal/logger"
	"agenthive/internal/metrics"
)

const (
	FetchTrendingPosts = "fetch_trending_posts"
	GetAvailableFlairs = "get_available_flairs"
	PostToReddit       = "post_to_reddit"
)

// FetchTrendingParams for reading a community listing.
type FetchTrendingParams struct {
	Subreddit string `json:"subreddit_name" jsonschema:"required,description=Subreddit name without the r/ prefix (e.g. 'technology')"`
	Limit     int    `json:"limit,omitempty" jsonschema:"description=Number of posts to return (max 5)"`
	Filter    string `json:"filter,omitempty" jsonschema:"enum=hot,enum=new,enum=top,enum=rising,description=Listing order (default hot). top covers the last day."`
}

// FlairsParams for listing post flairs.
type FlairsParams struct {
	Subreddit string `json:"subreddit_name" jsonschema:"required,description=Subreddit name without the r/ prefix"`
}

// PostParams for proposing a post. The post is published only after the
// human approves it.
type PostParams struct {
	Subreddit string `json:"subreddit_name" jsonschema:"required,description=Subreddit name without the r/ prefix"`
	Title     string `json:"title" jsonschema:"required,description=Post title"`
	Content   string `json:"content" jsonschema:"required,description=Post body for text posts or the URL for link posts"`
	PostType  string `json:"post_type,omitempty" jsonschema:"enum=text,enum=link,description=Submission type (default text)"`
	FlairType string `json:"flair_type,omitempty" jsonschema:"description=Flair text exactly as listed by get_available_flairs. Leave empty to let one be suggested."`
}

// Submitter hands a proposal to the human approval gate.
type Submitter interface {
	Submit(ctx context.Context, p domain.ProposedPost) (approval.Outcome, error)
}

// Registry exposes the community operations as LLM tools.
type Registry struct {
	community   ports.Community
	gate        Submitter
	definitions []brain.Tool
}

func NewRegistry(community ports.Community, gate Submitter) *Registry {
	r := &Registry{
		community: community,
		gate:      gate,
	}

	r.definitions = []brain.Tool{
		{
			Name: FetchTrendingPosts,
			Description: `Get trending posts from ONE subreddit. Use the subreddit name without the r/ prefix.

Examples:
  fetch_trending_posts(subreddit_name="LocalLLaMA")
  fetch_trending_posts(subreddit_name="technology", limit=3, filter="top")

Valid filters: hot, new, top, rising.`,
			Parameters: brain.GenerateSchemaFrom(FetchTrendingParams{}),
		},
		{
			Name:        GetAvailableFlairs,
			Description: "List the post flairs of a subreddit. Call this before post_to_reddit and pick one of the listed names.",
			Parameters:  brain.GenerateSchemaFrom(FlairsParams{}),
		},
		{
			Name: PostToReddit,
			Description: `Propose a post to a subreddit. The human reviews it and answers yes, no or modify.
Nothing is published without their approval. On "modify" revise the post with their feedback and call this again.`,
			Parameters: brain.GenerateSchemaFrom(PostParams{}),
		},
	}

	return r
}

// Definitions returns the tools with the given names, or all of them when
// no names are given.
func (r *Registry) Definitions(names ...string) []brain.Tool {
	if len(names) == 0 {
		return r.definitions
	}

	allowed := make(map[string]struct{}, len(names))
	for _, n := range names {
		allowed[n] = struct{}{}
	}
	var out []brain.Tool
	for _, d := range r.definitions {
		if _, ok := allowed[d.Name]; ok {
			out = append(out, d)
		}
	}
	return out
}

// Execute runs a tool by name and returns its text output. Errors are
// reserved for unknown tools, malformed arguments and a failed human
// channel; platform failures are reported in the text.
func (r *Registry) Execute(ctx context.Context, name, arguments string) (string, error) {
	var (
		out string
		err error
	)
	switch name {
	case FetchTrendingPosts:
		out, err = r.executeFetchTrending(ctx, arguments)
	case GetAvailableFlairs:
		out, err = r.executeFlairs(ctx, arguments)
	case PostToReddit:
		out, err = r.executePost(ctx, arguments)
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}

	metrics.ToolCallsTotal.WithLabelValues(name, metrics.StatusLabel(err == nil)).Inc()
	if err != nil {
		slog.WarnContext(ctx, "tool call failed", "tool", name, "error", err)
	}
	return out, err
}

func (r *Registry) executeFetchTrending(ctx context.Context, arguments string) (string, error) {
	params, err := brain.ParseToolArguments[FetchTrendingParams](arguments)
	if err != nil {
		return "", fmt.Errorf("parse %s params: %w", FetchTrendingPosts, err)
	}

	sub := normalizeSubreddit(params.Subreddit)
	if sub == "" {
		return "Error: subreddit_name is required", nil
	}
	filter := params.Filter
	if strings.TrimSpace(filter) == "" {
		filter = string(domain.OrderingHot)
	}

	ordering, err := domain.ParseOrdering(filter)
	if err != nil {
		return fmt.Sprintf("Error fetching posts from r/%s: %v", sub, err), nil
	}

	batch, err := r.community.FetchTrending(ctx, sub, params.Limit, ordering)
	if err != nil {
		return fmt.Sprintf("Error fetching posts from r/%s: %v", sub, err), nil
	}
	if len(batch.Items) == 0 {
		return fmt.Sprintf("No posts found for r/%s", sub), nil
	}
	return FormatTrending(sub, ordering, batch.Items), nil
}

func (r *Registry) executeFlairs(ctx context.Context, arguments string) (string, error) {
	params, err := brain.ParseToolArguments[FlairsParams](arguments)
	if err != nil {
		return "", fmt.Errorf("parse %s params: %w", GetAvailableFlairs, err)
	}

	sub := normalizeSubreddit(params.Subreddit)
	if sub == "" {
		return "Error: subreddit_name is required", nil
	}

	set := r.community.FetchTagOptions(ctx, sub)
	if len(set.Options) == 0 {
		return fmt.Sprintf("No flairs available for r/%s", sub), nil
	}
	return FormatFlairs(sub, set.Options), nil
}

func (r *Registry) executePost(ctx context.Context, arguments string) (string, error) {
	params, err := brain.ParseToolArguments[PostParams](arguments)
	if err != nil {
		return "", fmt.Errorf("parse %s params: %w", PostToReddit, err)
	}

	sub := normalizeSubreddit(params.Subreddit)
	switch {
	case sub == "":
		return "Error: subreddit_name is required", nil
	case strings.TrimSpace(params.Title) == "":
		return "Error: title is required", nil
	}

	kind, err := domain.ParsePostKind(params.PostType)
	if err != nil {
		return fmt.Sprintf("Failed to post to r/%s: %v", sub, err), nil
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{Subreddit: sub})
	outcome, err := r.gate.Submit(ctx, domain.ProposedPost{
		Subreddit: sub,
		Title:     params.Title,
		Content:   params.Content,
		Kind:      kind,
		TagName:   params.FlairType,
	})
	if err != nil {
		return "", fmt.Errorf("submit proposal: %w", err)
	}
	return FormatOutcome(outcome), nil
}

// FormatTrending renders a listing with one numbered block per post.
func FormatTrending(subreddit string, ordering domain.Ordering, items []domain.TrendingItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Trending posts from r/%s (%s):\n\n", subreddit, ordering)
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item.Title)
		fmt.Fprintf(&b, "   Score: %d | Comments: %d | Ratio: %s\n",
			item.Score, item.NumComments, strconv.FormatFloat(item.UpvoteRatio, 'f', -1, 64))
		if item.IsSelf() {
			fmt.Fprintf(&b, "   Body: %s\n", logger.Truncate(*item.Body, 500))
		} else {
			fmt.Fprintf(&b, "   Link: %s\n", item.URL)
		}
		fmt.Fprintf(&b, "   Author: %s\n\n", item.Author)
	}
	return b.String()
}

func FormatFlairs(subreddit string, options []domain.TagOption) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Available flairs for r/%s:\n", subreddit)
	for _, opt := range options {
		fmt.Fprintf(&b, "- '%s' (editable: %t)\n", opt.Text, opt.Editable)
	}
	return b.String()
}

// FormatOutcome tells the agent what became of its proposal.
func FormatOutcome(o approval.Outcome) string {
	sub := o.Proposal.Subreddit
	switch o.State {
	case approval.StatePosted:
		return fmt.Sprintf("Successfully posted to r/%s!\nPost URL: %s\nPost ID: %s\nMonitor engagement at: %s",
			sub, o.Result.URL, o.Result.PostID, o.Result.URL)
	case approval.StatePublishFailed:
		return fmt.Sprintf("Failed to post to r/%s: %s", sub, o.Result.Message)
	case approval.StateResolutionFailed:
		return o.Result.Message
	case approval.StateDeclined:
		return fmt.Sprintf("The human declined the post to r/%s. Nothing was published.", sub)
	case approval.StateModificationRequested:
		if o.Feedback == "" {
			return fmt.Sprintf("The human asked for changes to the post for r/%s. Nothing was published. Revise it and call %s again.", sub, PostToReddit)
		}
		return fmt.Sprintf("The human asked for changes to the post for r/%s: %s\nNothing was published. Revise it and call %s again.", sub, o.Feedback, PostToReddit)
	case approval.StateAlreadyDecided:
		return fmt.Sprintf("This post for r/%s was already reviewed (%s). It will not be submitted again.", sub, o.Previous)
	default:
		return fmt.Sprintf("Failed to post to r/%s: unexpected approval state %q", sub, o.State)
	}
}

func normalizeSubreddit(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "/")
	if strings.HasPrefix(strings.ToLower(s), "r/") {
		s = s[2:]
	}
	return strings.Trim(s, "/ ")
}

