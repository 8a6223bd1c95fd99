package ports

import (
	"context"

	"agenthive/internal/core/domain"
)

// Community reads listings and flair templates from a community.
// Platform failures are reported in the returned value, not as errors.
type Community interface {
	FetchTrending(ctx context.Context, subreddit string, limit int, ordering domain.Ordering) (domain.TrendingBatch, error)
	FetchTagOptions(ctx context.Context, subreddit string) domain.TagSet
}

// Publisher submits posts. It is the only operation that mutates the platform.
type Publisher interface {
	Publish(ctx context.Context, req domain.PublishRequest) domain.PublishResult
}

// Interaction is the human participant. Ask shows a prompt and blocks until
// the human replies or ctx is done. Choices, when given, are the quick
// replies a channel may offer next to the prompt; free text is always
// accepted.
type Interaction interface {
	Ask(ctx context.Context, prompt string, choices ...string) (string, error)
}
