package approval

import (
	"agenthive/internal/core/domain"

	"golang.org/x/text/cases"
)

// genericTags are used when no flair shares a word with the post.
var genericTags = []string{"discussion", "general", "other", "misc"}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "this": {}, "that": {}, "you": {}, "are": {}, "from": {},
}

// SelectTag picks the flair that best fits the post: the option sharing the
// most words with its title and content, first one on ties. Without any
// overlap it falls back to a generic flair, and to "" when none exists.
func SelectTag(options []domain.TagOption, post domain.ProposedPost) string {
	if len(options) == 0 {
		return ""
	}

	fold := cases.Fold()
	words := make(map[string]struct{})
	for _, tok := range tokenize(fold.String(post.Title + " " + post.Content)) {
		words[tok] = struct{}{}
	}

	best, bestScore := "", 0
	for _, opt := range options {
		score := 0
		for _, tok := range tokenize(fold.String(opt.Text)) {
			if len(tok) < 3 {
				continue
			}
			if _, stop := stopwords[tok]; stop {
				continue
			}
			if _, ok := words[tok]; ok {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = opt.Text, score
		}
	}
	if best != "" {
		return best
	}

	for _, generic := range genericTags {
		for _, opt := range options {
			if fold.String(opt.Text) == generic {
				return opt.Text
			}
		}
	}
	return ""
}
