package reddit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"agenthive/internal/core/domain"
	"agenthive/internal/core/ports"
	"agenthive/internal/logger"
	"agenthive/internal/metrics"

	"github.com/vartanbeno/go-reddit/v2/reddit"
)

var ErrMissingCredentials = errors.New("reddit API credentials not found")

// topTimeWindow is the window used for the "top" ordering.
const topTimeWindow = "day"

type listingAPI interface {
	HotPosts(ctx context.Context, subreddit string, opts *reddit.ListOptions) ([]*reddit.Post, *reddit.Response, error)
	NewPosts(ctx context.Context, subreddit string, opts *reddit.ListOptions) ([]*reddit.Post, *reddit.Response, error)
	RisingPosts(ctx context.Context, subreddit string, opts *reddit.ListOptions) ([]*reddit.Post, *reddit.Response, error)
	TopPosts(ctx context.Context, subreddit string, opts *reddit.ListPostOptions) ([]*reddit.Post, *reddit.Response, error)
}

type submitAPI interface {
	SubmitText(ctx context.Context, opts reddit.SubmitTextRequest) (*reddit.Submitted, *reddit.Response, error)
	SubmitLink(ctx context.Context, opts reddit.SubmitLinkRequest) (*reddit.Submitted, *reddit.Response, error)
}

type flairAPI interface {
	LinkFlairTemplates(ctx context.Context, subreddit string) ([]flairTemplate, error)
}

// Client reads and writes a Reddit account's view of communities.
// One instance is shared by every tool for the life of the process.
type Client struct {
	listings listingAPI
	submit   submitAPI
	flairs   flairAPI
}

// NewClient authenticates with the script-app credentials. A missing client
// ID or secret is a configuration error.
func NewClient(creds Credentials) (*Client, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, ErrMissingCredentials
	}

	rc, err := reddit.NewClient(reddit.Credentials{
		ID:       creds.ClientID,
		Secret:   creds.ClientSecret,
		Username: creds.Username,
		Password: creds.Password,
	}, reddit.WithUserAgent(creds.UserAgent))
	if err != nil {
		return nil, fmt.Errorf("create reddit client: %w", err)
	}

	if creds.Username == "" || creds.Password == "" {
		slog.Warn("reddit username or password not set, submissions will fail")
	}

	return newClient(rc.Subreddit, rc.Post, &flairEndpoint{client: rc}), nil
}

func newClient(listings listingAPI, submit submitAPI, flairs flairAPI) *Client {
	return &Client{listings: listings, submit: submit, flairs: flairs}
}

var (
	_ ports.Community = (*Client)(nil)
	_ ports.Publisher = (*Client)(nil)
)

// FetchTrending returns at most min(limit, 5) posts. Only an unknown ordering
// is returned as an error; platform failures come back as an empty batch
// with a reason.
func (c *Client) FetchTrending(ctx context.Context, subreddit string, limit int, ordering domain.Ordering) (domain.TrendingBatch, error) {
	ordering, err := domain.ParseOrdering(string(ordering))
	if err != nil {
		return domain.TrendingBatch{}, err
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "agenthive.reddit", Subreddit: subreddit})

	limit = domain.EffectiveLimit(limit)
	opts := &reddit.ListOptions{Limit: limit}

	var posts []*reddit.Post
	switch ordering {
	case domain.OrderingHot:
		posts, _, err = c.listings.HotPosts(ctx, subreddit, opts)
	case domain.OrderingNew:
		posts, _, err = c.listings.NewPosts(ctx, subreddit, opts)
	case domain.OrderingTop:
		posts, _, err = c.listings.TopPosts(ctx, subreddit, &reddit.ListPostOptions{ListOptions: *opts, Time: topTimeWindow})
	case domain.OrderingRising:
		posts, _, err = c.listings.RisingPosts(ctx, subreddit, opts)
	default:
		return domain.TrendingBatch{}, fmt.Errorf("%w: %q", domain.ErrInvalidOrdering, ordering)
	}

	metrics.RedditRequestsTotal.WithLabelValues("trending", metrics.StatusLabel(err == nil)).Inc()
	if err != nil {
		reason := fmt.Sprintf("Error fetching posts from r/%s: %v", subreddit, err)
		slog.WarnContext(ctx, "fetch trending posts failed", "ordering", ordering, "error", err)
		return domain.TrendingBatch{Reason: reason}, nil
	}

	items := make([]domain.TrendingItem, 0, len(posts))
	for _, p := range posts {
		if len(items) == limit {
			break
		}
		if p == nil {
			continue
		}
		items = append(items, toTrendingItem(p))
	}

	slog.DebugContext(ctx, "fetched trending posts", "ordering", ordering, "count", len(items))
	return domain.TrendingBatch{Items: items}, nil
}

// FetchTagOptions returns the user-selectable post flairs of a community.
func (c *Client) FetchTagOptions(ctx context.Context, subreddit string) domain.TagSet {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "agenthive.reddit", Subreddit: subreddit})

	templates, err := c.flairs.LinkFlairTemplates(ctx, subreddit)
	metrics.RedditRequestsTotal.WithLabelValues("flairs", metrics.StatusLabel(err == nil)).Inc()
	if err != nil {
		slog.WarnContext(ctx, "fetch flairs failed", "error", err)
		return domain.TagSet{Reason: fmt.Sprintf("Error fetching flairs from r/%s: %v", subreddit, err)}
	}

	options := make([]domain.TagOption, 0, len(templates))
	for _, t := range templates {
		if t.ModOnly {
			continue
		}
		options = append(options, domain.TagOption{ID: t.ID, Text: t.Text, Editable: t.TextEditable})
	}
	return domain.TagSet{Options: options}
}

// Publish submits one post. Failures are returned as an error result.
// Calling it twice with the same request creates two posts.
func (c *Client) Publish(ctx context.Context, req domain.PublishRequest) domain.PublishResult {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "agenthive.reddit", Subreddit: req.Subreddit})

	var (
		submitted *reddit.Submitted
		err       error
	)
	switch req.Kind {
	case domain.PostKindText:
		submitted, _, err = c.submit.SubmitText(ctx, reddit.SubmitTextRequest{
			Subreddit: req.Subreddit,
			Title:     req.Title,
			Text:      req.Content,
			FlairID:   req.TagID,
		})
	case domain.PostKindLink:
		submitted, _, err = c.submit.SubmitLink(ctx, reddit.SubmitLinkRequest{
			Subreddit: req.Subreddit,
			Title:     req.Title,
			URL:       req.Content,
			FlairID:   req.TagID,
			Resubmit:  true,
		})
	default:
		err = fmt.Errorf("%w: %q", domain.ErrInvalidPostKind, req.Kind)
	}
	if err == nil && submitted == nil {
		err = errors.New("empty submission response")
	}

	metrics.RedditRequestsTotal.WithLabelValues("publish", metrics.StatusLabel(err == nil)).Inc()
	if err != nil {
		slog.ErrorContext(ctx, "publish failed", "kind", req.Kind, "error", err)
		return domain.PublishResult{
			Status:  domain.PublishError,
			Message: fmt.Sprintf("Error posting to r/%s: %v", req.Subreddit, err),
		}
	}

	slog.InfoContext(ctx, "post published", "post_id", submitted.ID, "url", submitted.URL)
	return domain.PublishResult{
		Status:  domain.PublishSuccess,
		PostID:  submitted.ID,
		URL:     submitted.URL,
		Message: fmt.Sprintf("Successfully posted to r/%s", req.Subreddit),
	}
}

func toTrendingItem(p *reddit.Post) domain.TrendingItem {
	item := domain.TrendingItem{
		ID:          p.ID,
		Title:       p.Title,
		Score:       p.Score,
		UpvoteRatio: float64(p.UpvoteRatio),
		NumComments: p.NumberOfComments,
		URL:         p.URL,
		Subreddit:   p.SubredditName,
		Author:      p.Author,
	}
	if item.Author == "" {
		item.Author = domain.DeletedAuthor
	}
	if p.Created != nil {
		item.CreatedAt = p.Created.Time
	}
	if p.IsSelfPost {
		body := p.Body
		item.Body = &body
	}
	return item
}
