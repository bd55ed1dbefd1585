package providers

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Role is the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Content part types.
const (
	PartTypeText     = "text"
	PartTypeImageURL = "image_url"
)

// ImageURL references an image attached to a message.
type ImageURL struct {
	URL string `json:"url"`
}

// ContentPart is one unit of multi-modal message content.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartTypeText, Text: text}
}

// ImagePart builds an image reference content part.
func ImagePart(url string) ContentPart {
	return ContentPart{Type: PartTypeImageURL, ImageURL: &ImageURL{URL: url}}
}

// Content is either plain text or an ordered list of parts. A non-nil Parts
// slice means the content is a part list; otherwise Text is used.
type Content struct {
	Text  string
	Parts []ContentPart
}

// TextContent wraps a plain string.
func TextContent(text string) Content {
	return Content{Text: text}
}

// PartsContent wraps an ordered list of parts.
func PartsContent(parts ...ContentPart) Content {
	if parts == nil {
		parts = []ContentPart{}
	}
	return Content{Parts: parts}
}

// IsParts reports whether the content is a part list.
func (c Content) IsParts() bool {
	return c.Parts != nil
}

// wire returns the value sent to OpenAI-shaped endpoints: the string itself
// or the part list unchanged.
func (c Content) wire() any {
	if c.IsParts() {
		return c.Parts
	}
	return c.Text
}

// Flatten renders the content as plain text. Text parts contribute their
// text, any other part contributes "[image]", joined by newlines.
func (c Content) Flatten() string {
	if !c.IsParts() {
		return c.Text
	}

	var buf bytes.Buffer
	for i, part := range c.Parts {
		if i > 0 {
			buf.WriteByte('\n')
		}
		if part.Type == PartTypeText {
			buf.WriteString(part.Text)
		} else {
			buf.WriteString("[image]")
		}
	}
	return buf.String()
}

// MarshalJSON encodes the content as a JSON string or array.
func (c Content) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.wire())
}

// UnmarshalJSON accepts a JSON string, an array of parts or null.
func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*c = Content{}
		return nil
	}

	switch trimmed[0] {
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
		*c = Content{Text: text}
		return nil
	case '[':
		var parts []ContentPart
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return err
		}
		*c = PartsContent(parts...)
		return nil
	default:
		return fmt.Errorf("content must be a string or an array of parts")
	}
}

// LLMMessage is one turn in a conversation.
type LLMMessage struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

// ToolDefinition describes a function the model may call.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// LLMRequest is a vendor-agnostic chat call.
type LLMRequest struct {
	Messages    []LLMMessage     `json:"messages"`
	Model       string           `json:"model"`
	Temperature *float64         `json:"temperature,omitempty"`
	MaxTokens   *int             `json:"max_tokens,omitempty"`
	Stream      bool             `json:"stream,omitempty"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
}

// Usage holds token counters reported by a provider.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// Total returns prompt plus completion tokens.
func (u Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ParsedResponse is the normalized body of a provider reply.
type ParsedResponse struct {
	Content   string     `json:"content"`
	Usage     Usage      `json:"usage"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
}

// LLMResponse is what callers of the dispatcher receive.
type LLMResponse struct {
	Content   string     `json:"content"`
	Usage     Usage      `json:"usage"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
	Model     string     `json:"model"`
}

// ProviderRequestConfig is the wire-level description of one chat call.
type ProviderRequestConfig struct {
	Endpoint string            `json:"endpoint"`
	Headers  map[string]string `json:"headers"`
	Payload  map[string]any    `json:"payload"`
}
