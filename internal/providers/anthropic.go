package providers

import "strings"

const defaultAnthropicMaxTokens = 1024

var (
	anthropicPromptKeys     = []string{"prompt_tokens", "promptTokenCount", "input_tokens"}
	anthropicCompletionKeys = []string{"completion_tokens", "candidatesTokenCount", "output_tokens"}
)

// buildAnthropicPayload produces the Messages API body. System turns are
// lifted into the top-level system field and every other turn is flattened
// to text.
func buildAnthropicPayload(request LLMRequest) map[string]any {
	messages := make([]map[string]any, 0, len(request.Messages))
	for _, m := range request.Messages {
		if m.Role == RoleSystem {
			continue
		}
		role := string(RoleUser)
		if m.Role == RoleAssistant {
			role = string(RoleAssistant)
		}
		messages = append(messages, map[string]any{
			"role":    role,
			"content": m.Content.Flatten(),
		})
	}

	maxTokens := defaultAnthropicMaxTokens
	if request.MaxTokens != nil {
		maxTokens = *request.MaxTokens
	}

	payload := map[string]any{
		"model":      request.Model,
		"messages":   messages,
		"max_tokens": maxTokens,
		"stream":     request.Stream,
	}
	if hasSystem(request.Messages) {
		payload["system"] = systemPrompt(request.Messages)
	}
	if request.Temperature != nil {
		payload["temperature"] = *request.Temperature
	}
	if len(request.Tools) > 0 {
		tools := make([]map[string]any, 0, len(request.Tools))
		for _, t := range request.Tools {
			tools = append(tools, map[string]any{
				"name":         t.Name,
				"description":  t.Description,
				"input_schema": schemaOrEmpty(t.InputSchema),
			})
		}
		payload["tools"] = tools
	}
	return payload
}

func parseAnthropicResponse(raw map[string]any) ParsedResponse {
	var texts []string
	var calls []ToolCall
	for i, item := range asSlice(raw["content"]) {
		block := asMap(item)
		if text, ok := asString(block["text"]); ok {
			texts = append(texts, text)
		} else {
			texts = append(texts, "")
		}

		if t, _ := asString(block["type"]); t == "tool_use" {
			name, _ := asString(block["name"])
			if name == "" {
				continue
			}
			id, _ := asString(block["id"])
			if id == "" {
				id = toolCallID("toolu", i)
			}
			calls = append(calls, ToolCall{
				ID:        id,
				Name:      name,
				Arguments: decodeArguments(block["input"]),
			})
		}
	}

	return ParsedResponse{
		Content:   strings.TrimSpace(strings.Join(texts, "\n")),
		Usage:     readUsage(raw["usage"], anthropicPromptKeys, anthropicCompletionKeys),
		ToolCalls: calls,
	}
}

// anthropicStreamState accumulates usage across the event-typed stream,
// which reports input tokens on message_start and output tokens on
// message_delta.
type anthropicStreamState struct {
	usage Usage
}

// handle maps one SSE event to a delta. done is true once message_stop is
// seen; err is set for error events.
func (s *anthropicStreamState) handle(event string, raw map[string]any) (delta StreamDelta, emit, done bool, err error) {
	if event == "" {
		event, _ = asString(raw["type"])
	}

	switch event {
	case "message_start":
		u := readUsage(asMap(raw["message"])["usage"], anthropicPromptKeys, anthropicCompletionKeys)
		s.usage.PromptTokens = u.PromptTokens
		s.usage.CompletionTokens = u.CompletionTokens
	case "content_block_delta":
		d := asMap(raw["delta"])
		if t, _ := asString(d["type"]); t == "text_delta" || t == "" {
			delta.Content, _ = asString(d["text"])
			emit = delta.Content != ""
		}
	case "message_delta":
		if usage, ok := raw["usage"].(map[string]any); ok {
			u := readUsage(usage, anthropicPromptKeys, anthropicCompletionKeys)
			if u.PromptTokens > 0 {
				s.usage.PromptTokens = u.PromptTokens
			}
			s.usage.CompletionTokens = u.CompletionTokens
		}
		delta.FinishReason, _ = asString(asMap(raw["delta"])["stop_reason"])
		u := s.usage
		delta.Usage = &u
		emit = true
	case "message_stop":
		done = true
	case "error":
		e := asMap(raw["error"])
		msg, _ := asString(e["message"])
		typ, _ := asString(e["type"])
		err = &StreamError{Type: typ, Message: msg}
	}
	return delta, emit, done, err
}
