package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"
)

const (
	geminiRoleUser  = "user"
	geminiRoleModel = "model"
)

type modelConfig struct {
	Name string
	RPM  int
	RPD  int
}

type generateFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// GeminiBrain calls Gemini models, moving on to the next configured model
// when one is rate limited or unavailable.
type GeminiBrain struct {
	Models []modelConfig

	generate generateFunc

	dailyCount   map[string]int
	minuteCount  map[string]int
	lastResetDay time.Time
	lastResetMin time.Time
	mu           sync.Mutex
}

var _ AgentClient = (*GeminiBrain)(nil)

func NewGeminiBrain(ctx context.Context, cfg Config) (*GeminiBrain, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GOOGLE_GEMINI_API_KEY is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	models := []modelConfig{
		{Name: "gemini-2.5-flash", RPM: 10, RPD: 250},
		{Name: "gemini-2.5-flash-lite", RPM: 15, RPD: 1000},
	}
	if cfg.Model != "" {
		models = append([]modelConfig{{Name: cfg.Model, RPM: 10, RPD: 250}}, models...)
	}

	return newGeminiBrain(client.Models.GenerateContent, models), nil
}

func newGeminiBrain(generate generateFunc, models []modelConfig) *GeminiBrain {
	now := time.Now()
	return &GeminiBrain{
		Models:       models,
		generate:     generate,
		dailyCount:   make(map[string]int),
		minuteCount:  make(map[string]int),
		lastResetDay: now,
		lastResetMin: now,
	}
}

func (b *GeminiBrain) Model() string {
	if len(b.Models) == 0 {
		return ""
	}
	return b.Models[0].Name
}

func (b *GeminiBrain) ChatWithTools(ctx context.Context, req AgentRequest) (*AgentResponse, error) {
	system, contents, err := geminiContents(req.Messages)
	if err != nil {
		return nil, err
	}

	config := &genai.GenerateContentConfig{SystemInstruction: system}
	if len(req.Tools) > 0 {
		config.Tools = []*genai.Tool{geminiTool(req.Tools)}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		config.Temperature = &t
	}

	var lastErr error
	for _, model := range b.Models {
		if !b.canUseModel(model) {
			continue
		}

		start := time.Now()
		result, err := b.generate(ctx, model.Name, contents, config)
		if err != nil {
			if isRetryable(err) {
				slog.WarnContext(ctx, "gemini model unavailable, trying next", "model", model.Name, "error", err)
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("gemini chat with tools: %w", err)
		}

		b.recordUsage(model)
		resp, err := agentResponse(result)
		if err != nil {
			return nil, err
		}
		slog.DebugContext(ctx, "agent chat completed",
			"model", model.Name,
			"duration_ms", time.Since(start).Milliseconds(),
			"prompt_tokens", resp.PromptTokens,
			"completion_tokens", resp.CompletionTokens,
			"tool_calls", len(resp.ToolCalls))
		return resp, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("rate limit reached for every model")
	}
	return nil, fmt.Errorf("all gemini models failed: %w", lastErr)
}

func isRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "rate limit", "exhausted", "404", "not found", "503", "unavailable"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// geminiContents splits off system messages into a system instruction and
// converts the rest. Named user messages are prefixed with the speaker so
// the model can tell participants apart.
func geminiContents(msgs []Message) (*genai.Content, []*genai.Content, error) {
	var systemParts []*genai.Part
	contents := make([]*genai.Content, 0, len(msgs))

	for _, msg := range msgs {
		switch msg.Role {
		case RoleSystem:
			systemParts = append(systemParts, &genai.Part{Text: msg.Content})

		case RoleUser:
			text := msg.Content
			if msg.Name != "" {
				text = fmt.Sprintf("[%s]: %s", msg.Name, msg.Content)
			}
			contents = append(contents, &genai.Content{
				Role:  geminiRoleUser,
				Parts: []*genai.Part{{Text: text}},
			})

		case RoleAssistant:
			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				args := map[string]any{}
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
						return nil, nil, fmt.Errorf("decode arguments of %s: %w", tc.Name, err)
					}
				}
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: args,
				}})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{Role: geminiRoleModel, Parts: parts})

		case RoleTool:
			contents = append(contents, &genai.Content{
				Role: geminiRoleUser,
				Parts: []*genai.Part{{FunctionResponse: &genai.FunctionResponse{
					ID:       msg.ToolCallID,
					Name:     msg.Name,
					Response: map[string]any{"output": msg.Content},
				}}},
			})
		}
	}

	var system *genai.Content
	if len(systemParts) > 0 {
		system = &genai.Content{Parts: systemParts}
	}
	return system, contents, nil
}

func geminiTool(tools []Tool) *genai.Tool {
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		decls[i] = &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: t.Parameters,
		}
	}
	return &genai.Tool{FunctionDeclarations: decls}
}

func agentResponse(result *genai.GenerateContentResponse) (*AgentResponse, error) {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no candidates in response")
	}

	candidate := result.Candidates[0]
	resp := &AgentResponse{FinishReason: string(candidate.FinishReason)}
	if result.UsageMetadata != nil {
		resp.PromptTokens = int(result.UsageMetadata.PromptTokenCount)
		resp.CompletionTokens = int(result.UsageMetadata.CandidatesTokenCount)
	}

	var text []string
	for _, part := range candidate.Content.Parts {
		if part == nil {
			continue
		}
		if part.FunctionCall != nil {
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				return nil, fmt.Errorf("encode arguments of %s: %w", part.FunctionCall.Name, err)
			}
			callID := part.FunctionCall.ID
			if callID == "" {
				callID = fmt.Sprintf("call_%d", len(resp.ToolCalls))
			}
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:        callID,
				Name:      part.FunctionCall.Name,
				Arguments: string(args),
			})
			continue
		}
		if part.Text != "" && !part.Thought {
			text = append(text, part.Text)
		}
	}
	resp.Content = strings.Join(text, "")
	return resp, nil
}

func (b *GeminiBrain) canUseModel(cfg modelConfig) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	if now.YearDay() != b.lastResetDay.YearDay() {
		b.dailyCount = make(map[string]int)
		b.lastResetDay = now
	}
	if now.Sub(b.lastResetMin) >= time.Minute {
		b.minuteCount = make(map[string]int)
		b.lastResetMin = now
	}
	if b.dailyCount[cfg.Name] >= cfg.RPD {
		return false
	}
	if b.minuteCount[cfg.Name] >= cfg.RPM {
		return false
	}
	return true
}

func (b *GeminiBrain) recordUsage(cfg modelConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dailyCount[cfg.Name]++
	b.minuteCount[cfg.Name]++
}
