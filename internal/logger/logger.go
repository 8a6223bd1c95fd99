package logger

import (
	"context"
	"io"
	"log/slog"
	"unicode/utf8"
)

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields are attached to every record logged with a context carrying them.
type LogFields struct {
	Component  string
	Subreddit  string
	Speaker    string
	Round      *int
	ProposalID *int64
}

// WithLogFields merges fields into ctx. Non-empty values override existing ones.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	merged := GetLogFields(ctx)
	if fields.Component != "" {
		merged.Component = fields.Component
	}
	if fields.Subreddit != "" {
		merged.Subreddit = fields.Subreddit
	}
	if fields.Speaker != "" {
		merged.Speaker = fields.Speaker
	}
	if fields.Round != nil {
		merged.Round = fields.Round
	}
	if fields.ProposalID != nil {
		merged.ProposalID = fields.ProposalID
	}
	return context.WithValue(ctx, logFieldsKey, merged)
}

func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

// Setup installs the default slog logger. Development gets text at debug
// level, everything else JSON at info.
func Setup(w io.Writer, development bool) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler
	if development {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(NewContextHandler(handler)))
}

// ContextHandler adds LogFields from the record's context.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	fields := GetLogFields(ctx)
	if fields.Component != "" {
		r.AddAttrs(slog.String("component", fields.Component))
	}
	if fields.Subreddit != "" {
		r.AddAttrs(slog.String("subreddit", fields.Subreddit))
	}
	if fields.Speaker != "" {
		r.AddAttrs(slog.String("speaker", fields.Speaker))
	}
	if fields.Round != nil {
		r.AddAttrs(slog.Int("round", *fields.Round))
	}
	if fields.ProposalID != nil {
		r.AddAttrs(slog.Int64("proposal_id", *fields.ProposalID))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithGroup(name)}
}

// Ptr returns a pointer to v, for inline LogFields.
func Ptr[T any](v T) *T {
	return &v
}

// Truncate shortens s to at most maxLen bytes, appending "..." when cut.
// The cut never splits a UTF-8 sequence.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
