package approval

import (
	"strings"
	"unicode"

	"agenthive/internal/core/domain"
)

// Vocabularies are matched as whole tokens; multi-word phrases must appear as
// a contiguous run of tokens. "post" therefore matches "post it" but not
// "postpone".
var (
	modifyPhrases  = phrases("modify", "modified", "change", "changes", "edit", "revise", "tweak")
	declinePhrases = phrases("no", "n", "nope", "reject", "decline", "cancel", "don't", "dont", "do not", "stop")
	approvePhrases = phrases("yes", "y", "yep", "yeah", "approve", "approved", "post", "go ahead", "lgtm")
)

// Classify maps a free-text human reply to an intent.
// Precedence is modify, then decline, then approve: a reply that mentions a
// change or a refusal never counts as approval.
func Classify(reply string) domain.Intent {
	tokens := tokenize(reply)
	switch {
	case len(tokens) == 0:
		return domain.IntentUnknown
	case containsAny(tokens, modifyPhrases):
		return domain.IntentModify
	case containsAny(tokens, declinePhrases):
		return domain.IntentDecline
	case containsAny(tokens, approvePhrases):
		return domain.IntentApprove
	default:
		return domain.IntentUnknown
	}
}

func phrases(list ...string) [][]string {
	out := make([][]string, len(list))
	for i, p := range list {
		out[i] = strings.Fields(p)
	}
	return out
}

func tokenize(s string) []string {
	s = strings.ToLower(strings.ReplaceAll(s, "’", "'"))
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func containsAny(tokens []string, set [][]string) bool {
	for _, phrase := range set {
		if containsPhrase(tokens, phrase) {
			return true
		}
	}
	return false
}

func containsPhrase(tokens, phrase []string) bool {
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		match := true
		for j, word := range phrase {
			if tokens[i+j] != word {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
