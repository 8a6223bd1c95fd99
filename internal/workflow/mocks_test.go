package workflow_test

import (
	"context"
	"regexp"

	"agenthive/internal/brain"
)

var speakerPattern = regexp.MustCompile(`You are (\S+) in a group chat`)

func speakerOf(req brain.AgentRequest) string {
	if len(req.Messages) == 0 {
		return ""
	}
	m := speakerPattern.FindStringSubmatch(req.Messages[0].Content)
	if m == nil {
		return ""
	}
	return m[1]
}

type scriptedLLM struct {
	// respond decides the reply for a speaker; call counts that speaker's
	// LLM calls so far, starting at 0.
	respond  func(speaker string, call int, req brain.AgentRequest) (*brain.AgentResponse, error)
	calls    map[string]int
	requests []brain.AgentRequest
}

func (s *scriptedLLM) ChatWithTools(_ context.Context, req brain.AgentRequest) (*brain.AgentResponse, error) {
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	speaker := speakerOf(req)
	call := s.calls[speaker]
	s.calls[speaker]++
	s.requests = append(s.requests, req)
	return s.respond(speaker, call, req)
}

func (s *scriptedLLM) Model() string { return "scripted" }

func (s *scriptedLLM) requestsFor(speaker string) []brain.AgentRequest {
	var out []brain.AgentRequest
	for _, r := range s.requests {
		if speakerOf(r) == speaker {
			out = append(out, r)
		}
	}
	return out
}

type toolCall struct {
	name string
	args string
}

type fakeTools struct {
	executeFn func(ctx context.Context, name, args string) (string, error)
	executed  []toolCall
	requested [][]string
}

func (f *fakeTools) Definitions(names ...string) []brain.Tool {
	f.requested = append(f.requested, names)
	out := make([]brain.Tool, len(names))
	for i, n := range names {
		out[i] = brain.Tool{Name: n}
	}
	return out
}

func (f *fakeTools) Execute(ctx context.Context, name, args string) (string, error) {
	f.executed = append(f.executed, toolCall{name: name, args: args})
	if f.executeFn != nil {
		return f.executeFn(ctx, name, args)
	}
	return "result of " + name, nil
}

func text(s string) *brain.AgentResponse {
	return &brain.AgentResponse{Content: s}
}

func calls(tc ...brain.ToolCall) *brain.AgentResponse {
	return &brain.AgentResponse{ToolCalls: tc}
}
