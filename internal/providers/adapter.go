package providers

import (
	"bytes"
	"encoding/json"
	"fmt"

	"tutor_gateway/internal/models"
)

const anthropicVersion = "2023-06-01"

// GoogleSystemPolicy decides what happens to system turns sent to a
// google-genai provider.
type GoogleSystemPolicy string

const (
	// GoogleSystemDrop omits system turns from the payload.
	GoogleSystemDrop GoogleSystemPolicy = "drop"
	// GoogleSystemInstruction sends system turns as systemInstruction.
	GoogleSystemInstruction GoogleSystemPolicy = "instruction"
)

// ParseGoogleSystemPolicy maps a config value to a policy, defaulting to drop.
func ParseGoogleSystemPolicy(s string) GoogleSystemPolicy {
	if GoogleSystemPolicy(s) == GoogleSystemInstruction {
		return GoogleSystemInstruction
	}
	return GoogleSystemDrop
}

// Adapter translates between normalized chat requests and vendor wire
// formats. The zero value is ready to use.
type Adapter struct {
	GoogleSystemPolicy GoogleSystemPolicy
}

var defaultAdapter = Adapter{GoogleSystemPolicy: GoogleSystemDrop}

// BuildProviderRequest describes the HTTP call for request using the
// default adapter settings.
func BuildProviderRequest(provider models.Provider, request LLMRequest) ProviderRequestConfig {
	return defaultAdapter.BuildRequest(provider, request)
}

// ParseProviderResponse normalizes a raw provider body using the default
// adapter settings.
func ParseProviderResponse(provider models.Provider, body []byte) ParsedResponse {
	return defaultAdapter.ParseResponse(provider, body)
}

// BuildRequest resolves endpoint, headers and payload for provider's protocol.
func (a Adapter) BuildRequest(provider models.Provider, request LLMRequest) ProviderRequestConfig {
	p := provider.Normalize()
	headers := buildHeaders(p, request.Stream)

	switch p.Protocol {
	case models.ProtocolAnthropicMessages:
		headers["anthropic-version"] = anthropicVersion
		return ProviderRequestConfig{
			Endpoint: JoinEndpoint(p.BaseURL, resolveChatPath(p)),
			Headers:  headers,
			Payload:  buildAnthropicPayload(request),
		}
	case models.ProtocolGoogleGenAI:
		return ProviderRequestConfig{
			Endpoint: resolveGoogleEndpoint(p, request.Model),
			Headers:  headers,
			Payload:  buildGooglePayload(request, a.GoogleSystemPolicy),
		}
	default:
		return ProviderRequestConfig{
			Endpoint: JoinEndpoint(p.BaseURL, resolveChatPath(p)),
			Headers:  headers,
			Payload:  buildOpenAIPayload(request),
		}
	}
}

// ParseResponse extracts content, usage and tool calls from body. It never
// fails: anything it cannot read becomes empty content or zero usage.
func (a Adapter) ParseResponse(provider models.Provider, body []byte) ParsedResponse {
	return a.parseDecoded(provider, decodeBody(body))
}

func (a Adapter) parseDecoded(provider models.Provider, raw map[string]any) ParsedResponse {
	switch provider.Normalize().Protocol {
	case models.ProtocolAnthropicMessages:
		return parseAnthropicResponse(raw)
	case models.ProtocolGoogleGenAI:
		return parseGoogleResponse(raw)
	default:
		return parseOpenAIResponse(raw)
	}
}

func buildHeaders(p models.Provider, stream bool) map[string]string {
	headers := map[string]string{
		"Content-Type": "application/json",
	}
	NewHeaderAuth(p).Apply(headers)
	if stream {
		headers["Accept"] = "text/event-stream"
	}
	return headers
}

// decodeBody returns the top-level JSON object of body, or an empty map when
// body is not a JSON object.
func decodeBody(body []byte) map[string]any {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return map[string]any{}
	}
	if m, ok := raw.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// systemPrompt joins the flattened system turns with blank lines.
func systemPrompt(messages []LLMMessage) string {
	var buf bytes.Buffer
	first := true
	for _, m := range messages {
		if m.Role != RoleSystem {
			continue
		}
		if !first {
			buf.WriteString("\n\n")
		}
		buf.WriteString(m.Content.Flatten())
		first = false
	}
	return buf.String()
}

func hasSystem(messages []LLMMessage) bool {
	for _, m := range messages {
		if m.Role == RoleSystem {
			return true
		}
	}
	return false
}

// readUsage reads token counters from a usage object. Each counter takes the
// first present key from its list; missing or non-numeric values count as 0.
func readUsage(v any, promptKeys, completionKeys []string) Usage {
	obj, ok := v.(map[string]any)
	if !ok {
		return Usage{}
	}
	return Usage{
		PromptTokens:     coerceCount(firstPresent(obj, promptKeys)),
		CompletionTokens: coerceCount(firstPresent(obj, completionKeys)),
	}
}

func firstPresent(obj map[string]any, keys []string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func toolCallID(prefix string, i int) string {
	return fmt.Sprintf("%s_%d", prefix, i)
}
