package providers

import "strings"

var (
	googlePromptKeys     = []string{"prompt_tokens", "promptTokenCount"}
	googleCompletionKeys = []string{"completion_tokens", "candidatesTokenCount"}
)

// buildGooglePayload produces the generateContent body. Assistant turns are
// sent with the "model" role; system turns follow policy.
func buildGooglePayload(request LLMRequest, policy GoogleSystemPolicy) map[string]any {
	contents := make([]map[string]any, 0, len(request.Messages))
	for _, m := range request.Messages {
		if m.Role == RoleSystem {
			continue
		}
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, map[string]any{
			"role":  role,
			"parts": []map[string]any{{"text": m.Content.Flatten()}},
		})
	}

	generationConfig := map[string]any{}
	if request.Temperature != nil {
		generationConfig["temperature"] = *request.Temperature
	}
	if request.MaxTokens != nil {
		generationConfig["maxOutputTokens"] = *request.MaxTokens
	}

	payload := map[string]any{
		"contents":         contents,
		"generationConfig": generationConfig,
	}
	if policy == GoogleSystemInstruction && hasSystem(request.Messages) {
		payload["systemInstruction"] = map[string]any{
			"parts": []map[string]any{{"text": systemPrompt(request.Messages)}},
		}
	}
	if len(request.Tools) > 0 {
		decls := make([]map[string]any, 0, len(request.Tools))
		for _, t := range request.Tools {
			decls = append(decls, map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  schemaOrEmpty(t.InputSchema),
			})
		}
		payload["tools"] = []map[string]any{{"functionDeclarations": decls}}
	}
	return payload
}

func parseGoogleResponse(raw map[string]any) ParsedResponse {
	texts, calls := googleParts(raw)
	return ParsedResponse{
		Content:   strings.TrimSpace(strings.Join(texts, "\n")),
		Usage:     readUsage(raw["usageMetadata"], googlePromptKeys, googleCompletionKeys),
		ToolCalls: calls,
	}
}

// googleParts returns the text of each part of the first candidate and any
// function calls it carries.
func googleParts(raw map[string]any) ([]string, []ToolCall) {
	var first map[string]any
	if candidates := asSlice(raw["candidates"]); len(candidates) > 0 {
		first = asMap(candidates[0])
	}
	content := asMap(first["content"])

	var texts []string
	var calls []ToolCall
	for i, item := range asSlice(content["parts"]) {
		part := asMap(item)
		text, _ := asString(part["text"])
		texts = append(texts, text)

		if fc, ok := part["functionCall"].(map[string]any); ok {
			name, _ := asString(fc["name"])
			if name == "" {
				continue
			}
			id, _ := asString(fc["id"])
			if id == "" {
				id = toolCallID(name, i)
			}
			calls = append(calls, ToolCall{
				ID:        id,
				Name:      name,
				Arguments: decodeArguments(fc["args"]),
			})
		}
	}
	return texts, calls
}

// parseGoogleChunk maps one streamed GenerateContentResponse to a delta.
func parseGoogleChunk(raw map[string]any) (StreamDelta, bool) {
	texts, _ := googleParts(raw)
	delta := StreamDelta{Content: strings.Join(texts, "")}

	if candidates := asSlice(raw["candidates"]); len(candidates) > 0 {
		delta.FinishReason, _ = asString(asMap(candidates[0])["finishReason"])
	}
	if usage, ok := raw["usageMetadata"].(map[string]any); ok {
		u := readUsage(usage, googlePromptKeys, googleCompletionKeys)
		delta.Usage = &u
	}
	return delta, delta.Content != "" || delta.FinishReason != "" || delta.Usage != nil
}
