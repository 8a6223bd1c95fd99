package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxTrendingLimit is the hard ceiling on items returned by one trending fetch.
const MaxTrendingLimit = 5

// DeletedAuthor stands in for an account that no longer exists.
const DeletedAuthor = "[deleted]"

var (
	ErrInvalidOrdering = errors.New("invalid ordering")
	ErrInvalidPostKind = errors.New("invalid post type")
)

// Ordering selects how a community listing is sorted.
type Ordering string

const (
	OrderingHot    Ordering = "hot"
	OrderingNew    Ordering = "new"
	OrderingTop    Ordering = "top" // over the last day
	OrderingRising Ordering = "rising"
)

// ParseOrdering validates a caller supplied ordering. "best" is not a
// supported listing and is rejected like any other unknown value.
func ParseOrdering(s string) (Ordering, error) {
	switch o := Ordering(strings.ToLower(strings.TrimSpace(s))); o {
	case OrderingHot, OrderingNew, OrderingTop, OrderingRising:
		return o, nil
	default:
		return "", fmt.Errorf("%w: %q (valid: hot, new, top, rising)", ErrInvalidOrdering, s)
	}
}

// EffectiveLimit clamps a requested limit to (0, MaxTrendingLimit].
func EffectiveLimit(limit int) int {
	if limit <= 0 || limit > MaxTrendingLimit {
		return MaxTrendingLimit
	}
	return limit
}

// PostKind is the submission type of a post.
type PostKind string

const (
	PostKindText PostKind = "text"
	PostKindLink PostKind = "link"
)

func ParsePostKind(s string) (PostKind, error) {
	switch k := PostKind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return PostKindText, nil
	case PostKindText, PostKindLink:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q (valid: text, link)", ErrInvalidPostKind, s)
	}
}

// TrendingItem is one post fetched from a community listing.
type TrendingItem struct {
	ID          string
	Title       string
	Score       int
	UpvoteRatio float64
	NumComments int
	URL         string
	Subreddit   string
	Author      string
	CreatedAt   time.Time
	Body        *string // set only for self posts
}

// IsSelf reports whether the item is a self-text post.
func (t TrendingItem) IsSelf() bool {
	return t.Body != nil
}

// TrendingBatch is the result of a trending fetch. Reason is set when the
// platform read failed, in which case Items is empty.
type TrendingBatch struct {
	Items  []TrendingItem
	Reason string
}

func (b TrendingBatch) Failed() bool { return b.Reason != "" }

// TagOption is a user-selectable post flair template.
type TagOption struct {
	ID       string
	Text     string
	Editable bool
}

// TagSet is the result of a flair fetch. Reason is set when the platform read failed.
type TagSet struct {
	Options []TagOption
	Reason  string
}

func (s TagSet) Failed() bool { return s.Reason != "" }

// Texts returns the display text of every option in order.
func (s TagSet) Texts() []string {
	texts := make([]string, 0, len(s.Options))
	for _, o := range s.Options {
		texts = append(texts, o.Text)
	}
	return texts
}

type PublishStatus string

const (
	PublishSuccess PublishStatus = "success"
	PublishError   PublishStatus = "error"
)

// PublishRequest describes one submission. Content is the body for text
// posts and the target URL for link posts.
type PublishRequest struct {
	Subreddit string
	Title     string
	Content   string
	Kind      PostKind
	TagID     string
}

// PublishResult is the outcome of one submission attempt.
type PublishResult struct {
	Status  PublishStatus
	PostID  string
	URL     string
	Message string
}

func (r PublishResult) OK() bool { return r.Status == PublishSuccess }

// ProposedPost is the unit a human approves or rejects.
type ProposedPost struct {
	ID        int64
	Subreddit string
	Title     string
	Content   string
	Kind      PostKind
	TagName   string
}

// SameContent reports whether two proposals would produce the same submission.
func (p ProposedPost) SameContent(o ProposedPost) bool {
	return p.Subreddit == o.Subreddit &&
		p.Title == o.Title &&
		p.Content == o.Content &&
		p.Kind == o.Kind &&
		strings.EqualFold(p.TagName, o.TagName)
}

// Intent is the classified meaning of a human reply to an approval prompt.
type Intent string

const (
	IntentApprove Intent = "approve"
	IntentDecline Intent = "decline"
	IntentModify  Intent = "modify"
	IntentUnknown Intent = "unknown"
)
