package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"agenthive/internal/core/domain"
	"agenthive/internal/core/ports"
	"agenthive/internal/flair"
	"agenthive/internal/id"
	"agenthive/internal/logger"
	"agenthive/internal/metrics"
)

// maxClarifications bounds how often an unclear reply is followed up before
// the proposal is treated as declined.
const maxClarifications = 3

// decisionChoices are offered as quick replies for yes/no/modify questions.
var decisionChoices = []string{"yes", "modify", "no"}

const (
	clarifyPrompt  = "Please answer yes, no, or modify."
	feedbackPrompt = "What would you like to change?"
)

// State is where an approval cycle ended.
type State string

const (
	StatePosted                State = "posted"
	StateDeclined              State = "declined"
	StateModificationRequested State = "modification_requested"
	StateResolutionFailed      State = "resolution_failed"
	StatePublishFailed         State = "publish_failed"
	StateAlreadyDecided        State = "already_decided"
)

// Terminal reports whether a proposal in this state can never be published
// by a later cycle. A modification request is not terminal: the revised
// proposal starts a new cycle.
func (s State) Terminal() bool {
	switch s {
	case StatePosted, StateDeclined, StateResolutionFailed, StatePublishFailed:
		return true
	default:
		return false
	}
}

// Outcome summarizes one Submit call.
type Outcome struct {
	State     State
	Proposal  domain.ProposedPost
	Intent    domain.Intent
	Result    domain.PublishResult // set when a publish was attempted
	Feedback  string               // the requested changes for StateModificationRequested
	Available []string             // valid flair names for StateResolutionFailed
	Previous  State                // the earlier decision for StateAlreadyDecided
}

type cycle struct {
	requested domain.ProposedPost // as submitted, before a flair was suggested
	proposal  domain.ProposedPost
	state     State
}

func (c cycle) covers(p domain.ProposedPost) bool {
	return c.state.Terminal() && (c.requested.SameContent(p) || c.proposal.SameContent(p))
}

// Gate publishes a proposed post only after a human explicitly approves it.
// Each proposal is presented once; the publisher is called at most once per
// proposal and only on the approval path.
type Gate struct {
	community ports.Community
	resolver  *flair.Resolver
	publisher ports.Publisher
	human     ports.Interaction
	ids       *id.Generator

	mu      sync.Mutex
	decided []cycle // every proposal that reached a terminal state this session
}

func NewGate(community ports.Community, publisher ports.Publisher, human ports.Interaction, ids *id.Generator) *Gate {
	return &Gate{
		community: community,
		resolver:  flair.NewResolver(community),
		publisher: publisher,
		human:     human,
		ids:       ids,
	}
}

// Submit presents a proposal to the human and acts on the reply. An error is
// returned only when the human channel fails or ctx ends while waiting.
func (g *Gate) Submit(ctx context.Context, p domain.ProposedPost) (Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p.TagName = strings.TrimSpace(p.TagName)
	if p.Kind == "" {
		p.Kind = domain.PostKindText
	}

	if prev, ok := g.previousDecision(p); ok {
		slog.InfoContext(ctx, "proposal already decided, not prompting again",
			"proposal_id", prev.proposal.ID, "state", prev.state)
		return Outcome{State: StateAlreadyDecided, Proposal: prev.proposal, Previous: prev.state}, nil
	}

	requested := p
	tags := g.community.FetchTagOptions(ctx, p.Subreddit)
	if p.TagName == "" {
		p.TagName = SelectTag(tags.Options, p)
	}

	p.ID = g.ids.New()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component:  "agenthive.approval",
		Subreddit:  p.Subreddit,
		ProposalID: logger.Ptr(p.ID),
	})

	intent, reply, err := g.askDecision(ctx, Presentation(p, tags))
	if err != nil {
		return Outcome{}, err
	}
	metrics.ApprovalDecisionsTotal.WithLabelValues(string(intent)).Inc()
	slog.InfoContext(ctx, "human decision received", "intent", intent, "flair", p.TagName)

	out := Outcome{Proposal: p, Intent: intent}
	switch intent {
	case domain.IntentApprove:
		out = g.publish(ctx, out)
	case domain.IntentModify:
		feedback, err := g.feedback(ctx, reply)
		if err != nil {
			return Outcome{}, err
		}
		out.State = StateModificationRequested
		out.Feedback = feedback
	default:
		out.State = StateDeclined
	}

	if out.State.Terminal() {
		g.decided = append(g.decided, cycle{requested: requested, proposal: p, state: out.State})
	}
	return out, nil
}

func (g *Gate) previousDecision(p domain.ProposedPost) (cycle, bool) {
	for _, c := range g.decided {
		if c.covers(p) {
			return c, true
		}
	}
	return cycle{}, false
}

func (g *Gate) askDecision(ctx context.Context, prompt string) (domain.Intent, string, error) {
	reply, err := g.human.Ask(ctx, prompt, decisionChoices...)
	if err != nil {
		return domain.IntentUnknown, "", fmt.Errorf("await approval: %w", err)
	}

	intent := Classify(reply)
	for i := 0; intent == domain.IntentUnknown && i < maxClarifications; i++ {
		slog.DebugContext(ctx, "unclear approval reply", "reply", logger.Truncate(reply, 80), "attempt", i+1)
		reply, err = g.human.Ask(ctx, clarifyPrompt, decisionChoices...)
		if err != nil {
			return domain.IntentUnknown, "", fmt.Errorf("await approval: %w", err)
		}
		intent = Classify(reply)
	}
	return intent, reply, nil
}

// feedback returns the requested changes, asking for them when the reply
// was only a bare "modify".
func (g *Gate) feedback(ctx context.Context, reply string) (string, error) {
	if len(tokenize(reply)) > 1 {
		return strings.TrimSpace(reply), nil
	}
	answer, err := g.human.Ask(ctx, feedbackPrompt)
	if err != nil {
		return "", fmt.Errorf("await modification: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

func (g *Gate) publish(ctx context.Context, out Outcome) Outcome {
	p := out.Proposal

	tagID, err := g.resolver.Resolve(ctx, p.Subreddit, p.TagName)
	if err != nil {
		var nf *flair.NotFoundError
		if errors.As(err, &nf) {
			out.Available = nf.Available
		}
		out.State = StateResolutionFailed
		out.Result = domain.PublishResult{
			Status:  domain.PublishError,
			Message: fmt.Sprintf("Failed to post to r/%s: %v", p.Subreddit, err),
		}
		slog.WarnContext(ctx, "flair resolution failed, not publishing", "flair", p.TagName)
		return out
	}

	out.Result = g.publisher.Publish(ctx, domain.PublishRequest{
		Subreddit: p.Subreddit,
		Title:     p.Title,
		Content:   p.Content,
		Kind:      p.Kind,
		TagID:     tagID,
	})
	metrics.PostsPublishedTotal.WithLabelValues(metrics.StatusLabel(out.Result.OK())).Inc()

	if out.Result.OK() {
		out.State = StatePosted
	} else {
		out.State = StatePublishFailed
	}
	return out
}

// Presentation renders a proposal and the approval question.
func Presentation(p domain.ProposedPost, tags domain.TagSet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Proposed post for r/%s\n\n", p.Subreddit)
	fmt.Fprintf(&b, "Title: %s\n", p.Title)
	fmt.Fprintf(&b, "Type: %s\n", p.Kind)
	if p.TagName != "" {
		fmt.Fprintf(&b, "Flair: %s\n", p.TagName)
	}
	fmt.Fprintf(&b, "\n%s\n\n", p.Content)
	if len(tags.Options) > 0 {
		fmt.Fprintf(&b, "Available flairs: %s\n\n", flair.FormatNames(tags.Texts()))
	}
	if p.TagName != "" {
		fmt.Fprintf(&b, "Should I post this to r/%s with flair '%s'? (yes/no/modify)", p.Subreddit, p.TagName)
	} else {
		fmt.Fprintf(&b, "Should I post this to r/%s without a flair? (yes/no/modify)", p.Subreddit)
	}
	return b.String()
}
