package providers

import "strings"

var (
	openAIPromptKeys     = []string{"prompt_tokens", "promptTokenCount"}
	openAICompletionKeys = []string{"completion_tokens", "candidatesTokenCount"}
)

// buildOpenAIPayload produces the chat/completions body. Message content is
// passed through as a string or a part list.
func buildOpenAIPayload(request LLMRequest) map[string]any {
	messages := make([]map[string]any, 0, len(request.Messages))
	for _, m := range request.Messages {
		messages = append(messages, map[string]any{
			"role":    string(m.Role),
			"content": m.Content.wire(),
		})
	}

	payload := map[string]any{
		"model":    request.Model,
		"messages": messages,
		"stream":   request.Stream,
	}
	if request.Temperature != nil {
		payload["temperature"] = *request.Temperature
	}
	if request.MaxTokens != nil {
		payload["max_tokens"] = *request.MaxTokens
	}
	if len(request.Tools) > 0 {
		tools := make([]map[string]any, 0, len(request.Tools))
		for _, t := range request.Tools {
			tools = append(tools, map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        t.Name,
					"description": t.Description,
					"parameters":  schemaOrEmpty(t.InputSchema),
				},
			})
		}
		payload["tools"] = tools
	}
	return payload
}

func parseOpenAIResponse(raw map[string]any) ParsedResponse {
	var first map[string]any
	if choices := asSlice(raw["choices"]); len(choices) > 0 {
		first = asMap(choices[0])
	}
	message := asMap(first["message"])

	content, _ := asString(message["content"])
	return ParsedResponse{
		Content:   content,
		Usage:     readUsage(raw["usage"], openAIPromptKeys, openAICompletionKeys),
		ToolCalls: parseOpenAIToolCalls(message["tool_calls"]),
	}
}

func parseOpenAIToolCalls(v any) []ToolCall {
	var calls []ToolCall
	for i, item := range asSlice(v) {
		call := asMap(item)
		fn := asMap(call["function"])
		name, _ := asString(fn["name"])
		if name == "" {
			continue
		}
		id, _ := asString(call["id"])
		if id == "" {
			id = toolCallID("call", i)
		}
		calls = append(calls, ToolCall{
			ID:        id,
			Name:      name,
			Arguments: decodeArguments(fn["arguments"]),
		})
	}
	return calls
}

// parseOpenAIChunk maps one streamed chat.completion.chunk to a delta. The
// boolean result is false for chunks that carry nothing worth emitting.
func parseOpenAIChunk(raw map[string]any) (StreamDelta, bool) {
	var delta StreamDelta
	if choices := asSlice(raw["choices"]); len(choices) > 0 {
		choice := asMap(choices[0])
		d := asMap(choice["delta"])
		delta.Content, _ = asString(d["content"])
		delta.FinishReason, _ = asString(choice["finish_reason"])
	}
	if usage, ok := raw["usage"].(map[string]any); ok {
		u := readUsage(usage, openAIPromptKeys, openAICompletionKeys)
		delta.Usage = &u
	}
	return delta, delta.Content != "" || delta.FinishReason != "" || delta.Usage != nil
}

func schemaOrEmpty(schema map[string]any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return schema
}

func isDoneMarker(data string) bool {
	return strings.TrimSpace(data) == "[DONE]"
}
