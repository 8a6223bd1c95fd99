package flair

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"agenthive/internal/core/ports"

	"golang.org/x/text/cases"
)

var ErrTagNotFound = errors.New("flair not found")

// NotFoundError lists the flairs a caller can choose from instead.
type NotFoundError struct {
	Name      string
	Available []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Flair '%s' not found. Available flairs: %s", e.Name, FormatNames(e.Available))
}

func (e *NotFoundError) Unwrap() error { return ErrTagNotFound }

// FormatNames renders names as ['A', 'B'].
func FormatNames(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + n + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// Equal compares two display texts with Unicode case folding.
func Equal(a, b string) bool {
	fold := cases.Fold()
	return fold.String(a) == fold.String(b)
}

// Resolver maps a flair display text to its template ID.
type Resolver struct {
	community ports.Community
}

func NewResolver(community ports.Community) *Resolver {
	return &Resolver{community: community}
}

// Resolve returns the ID of the first option whose text matches name.
// An empty name resolves to "" without touching the platform. A non-empty
// name that matches nothing, including against an empty set, is a
// *NotFoundError.
func (r *Resolver) Resolve(ctx context.Context, subreddit, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil
	}

	set := r.community.FetchTagOptions(ctx, subreddit)
	for _, opt := range set.Options {
		if Equal(opt.Text, name) {
			return opt.ID, nil
		}
	}

	slog.DebugContext(ctx, "flair not resolved", "flair", name, "available", len(set.Options), "fetch_failed", set.Failed())
	return "", &NotFoundError{Name: name, Available: set.Texts()}
}
