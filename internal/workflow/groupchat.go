package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"agenthive/internal/brain"
	"agenthive/internal/logger"
	"agenthive/internal/metrics"
)

const (
	// TerminationPhrase ends the session when any speaker says it.
	TerminationPhrase = "PROJECT COMPLETE!"

	DefaultMaxRounds = 20

	// maxToolIterations bounds the LLM calls within one speaker turn.
	maxToolIterations = 6
)

// Termination reasons.
const (
	ReasonComplete  = "complete"
	ReasonMaxRounds = "max_rounds"
)

// ToolExecutor runs the tools the speakers may call.
type ToolExecutor interface {
	Definitions(names ...string) []brain.Tool
	Execute(ctx context.Context, name, arguments string) (string, error)
}

// Entry is one message of the shared conversation. Tool is set when the
// entry holds the output of a tool the speaker called.
type Entry struct {
	Round   int
	Speaker string
	Tool    string
	Content string
}

type Transcript struct {
	Entries []Entry
	Rounds  int
	Reason  string
}

// GroupChat lets the roles speak in a fixed rotation until one of them says
// the termination phrase or the round budget is spent.
type GroupChat struct {
	llm       brain.AgentClient
	tools     ToolExecutor
	roles     Roles
	maxRounds int
	observe   func(Entry)
}

func NewGroupChat(llm brain.AgentClient, tools ToolExecutor, roles Roles, maxRounds int) (*GroupChat, error) {
	if len(roles.Roles) == 0 {
		return nil, fmt.Errorf("%w: no roles defined", ErrInvalidRoles)
	}
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	return &GroupChat{
		llm:       llm,
		tools:     tools,
		roles:     roles,
		maxRounds: maxRounds,
	}, nil
}

// Observe registers fn to be called with every entry as it is recorded.
func (g *GroupChat) Observe(fn func(Entry)) {
	g.observe = fn
}

func (g *GroupChat) record(t *Transcript, e Entry) {
	t.Entries = append(t.Entries, e)
	if g.observe != nil {
		g.observe(e)
	}
}

// Run opens the chat with brief, spoken by the first role, and rotates
// through the roles. The returned transcript is valid even when err is set.
func (g *GroupChat) Run(ctx context.Context, brief string) (*Transcript, error) {
	t := &Transcript{}
	opener := g.roles.Roles[0].Name

	t.Rounds = 1
	g.record(t, Entry{Round: 1, Speaker: opener, Content: brief})
	metrics.ChatRoundsTotal.WithLabelValues(opener).Inc()
	if isTermination(brief) {
		t.Reason = ReasonComplete
		return t, nil
	}

	n := len(g.roles.Roles)
	for round := 2; round <= g.maxRounds; round++ {
		role := g.roles.Roles[(round-1)%n]
		roundCtx := logger.WithLogFields(ctx, logger.LogFields{
			Speaker: role.Name,
			Round:   logger.Ptr(round),
		})

		t.Rounds = round
		metrics.ChatRoundsTotal.WithLabelValues(role.Name).Inc()
		slog.InfoContext(roundCtx, "speaker turn started")

		reply, err := g.turn(roundCtx, role, t)
		if err != nil {
			return t, fmt.Errorf("round %d (%s): %w", round, role.Name, err)
		}
		g.record(t, Entry{Round: round, Speaker: role.Name, Content: reply})
		slog.DebugContext(roundCtx, "speaker turn finished", "reply", logger.Truncate(reply, 200))

		if isTermination(reply) {
			t.Reason = ReasonComplete
			slog.InfoContext(roundCtx, "termination phrase received")
			return t, nil
		}
	}

	t.Reason = ReasonMaxRounds
	slog.InfoContext(ctx, "round budget exhausted", "rounds", t.Rounds)
	return t, nil
}

// turn lets one role respond, running its tool calls until it answers in
// text or the iteration budget is spent. Tool outputs are appended to the
// transcript as they happen.
func (g *GroupChat) turn(ctx context.Context, role Role, t *Transcript) (string, error) {
	var tools []brain.Tool
	if len(role.Tools) > 0 {
		tools = g.tools.Definitions(role.Tools...)
	}

	messages := g.history(role, t)
	var content string
	for i := 0; i < maxToolIterations; i++ {
		resp, err := g.llm.ChatWithTools(ctx, brain.AgentRequest{
			Messages: messages,
			Tools:    tools,
		})
		if err != nil {
			return "", fmt.Errorf("chat iteration %d: %w", i+1, err)
		}
		content = resp.Content

		if len(resp.ToolCalls) == 0 {
			break
		}

		messages = append(messages, brain.Message{
			Role:      brain.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			output, err := g.execute(ctx, role, call)
			if err != nil {
				return "", err
			}
			messages = append(messages, brain.Message{
				Role:       brain.RoleTool,
				Name:       call.Name,
				ToolCallID: call.ID,
				Content:    output,
			})
			g.record(t, Entry{Round: t.Rounds, Speaker: role.Name, Tool: call.Name, Content: output})
		}
	}

	if strings.TrimSpace(content) == "" {
		content = "(no response)"
	}
	return content, nil
}

// execute runs one tool call. Failures other than a cancelled context are
// returned to the model as text so it can correct itself.
func (g *GroupChat) execute(ctx context.Context, role Role, call brain.ToolCall) (string, error) {
	if !slices.Contains(role.Tools, call.Name) {
		slog.WarnContext(ctx, "role called a tool it does not have", "tool", call.Name)
		return fmt.Sprintf("Error: tool %s is not available to %s", call.Name, role.Name), nil
	}

	slog.DebugContext(ctx, "executing tool", "tool", call.Name, "call_id", call.ID)
	output, err := g.tools.Execute(ctx, call.Name, call.Arguments)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return "", fmt.Errorf("tool %s: %w", call.Name, err)
		}
		return fmt.Sprintf("Error: %v", err), nil
	}
	return output, nil
}

// history renders the shared transcript from the point of view of role:
// its own replies are assistant turns, everyone else speaks as a named user.
// The brief always opens as a user turn.
func (g *GroupChat) history(role Role, t *Transcript) []brain.Message {
	messages := make([]brain.Message, 0, len(t.Entries)+1)
	messages = append(messages, brain.Message{Role: brain.RoleSystem, Content: systemPrompt(role, g.roles)})

	for _, e := range t.Entries {
		switch {
		case e.Tool != "":
			messages = append(messages, brain.Message{
				Role:    brain.RoleUser,
				Name:    e.Speaker,
				Content: fmt.Sprintf("Result of %s:\n%s", e.Tool, e.Content),
			})
		case e.Speaker == role.Name && e.Round > 1:
			messages = append(messages, brain.Message{Role: brain.RoleAssistant, Content: e.Content})
		default:
			messages = append(messages, brain.Message{Role: brain.RoleUser, Name: e.Speaker, Content: e.Content})
		}
	}
	return messages
}

func systemPrompt(role Role, roles Roles) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(role.Prompt))
	b.WriteString("\n\nYou are ")
	b.WriteString(role.Name)
	b.WriteString(" in a group chat with:\n")
	for _, r := range roles.Roles {
		if r.Name == role.Name {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", r.Name, r.Description)
	}
	b.WriteString("Messages from others are prefixed with their name. Reply with your own contribution only.")
	return b.String()
}

func isTermination(content string) bool {
	return strings.Contains(strings.ToUpper(content), TerminationPhrase)
}
