package providers

import (
	"bufio"
	"io"
	"strings"

	"tutor_gateway/internal/models"
)

// StreamDelta is one increment of a streamed reply. Usage is set on the
// delta that carries the provider's token counts.
type StreamDelta struct {
	Content      string `json:"content,omitempty"`
	FinishReason string `json:"finishReason,omitempty"`
	Usage        *Usage `json:"usage,omitempty"`
}

type sseEvent struct {
	Event string
	Data  string
}

type sseDecoder struct {
	r     *bufio.Reader
	event string
	data  []string
}

func newSSEDecoder(r io.Reader) *sseDecoder {
	return &sseDecoder{r: bufio.NewReader(r)}
}

// Next returns the next dispatched event, or io.EOF once the reader ends.
// Comment lines and unknown fields are skipped.
func (d *sseDecoder) Next() (sseEvent, error) {
	for {
		line, err := d.r.ReadString('\n')
		if err != nil && err != io.EOF {
			return sseEvent{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if ev, ok := d.flush(); ok {
				return ev, nil
			}
			if err == io.EOF {
				return sseEvent{}, io.EOF
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			d.data = append(d.data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, "event:"):
			d.event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		}

		if err == io.EOF {
			if ev, ok := d.flush(); ok {
				return ev, nil
			}
			return sseEvent{}, io.EOF
		}
	}
}

func (d *sseDecoder) flush() (sseEvent, bool) {
	if len(d.data) == 0 {
		d.event = ""
		return sseEvent{}, false
	}
	ev := sseEvent{Event: d.event, Data: strings.Join(d.data, "\n")}
	d.event = ""
	d.data = d.data[:0]
	return ev, true
}

// ChatStream reads incremental deltas from a streaming provider response.
// Callers must Close it when done.
type ChatStream struct {
	body     io.ReadCloser
	dec      *sseDecoder
	protocol models.Protocol
	model    string

	anthropic anthropicStreamState
	content   strings.Builder
	usage     Usage
	done      bool
}

func newChatStream(protocol models.Protocol, model string, body io.ReadCloser) *ChatStream {
	return &ChatStream{
		body:     body,
		dec:      newSSEDecoder(body),
		protocol: protocol,
		model:    model,
	}
}

// Recv returns the next delta. io.EOF marks a normal end of stream.
// Chunks that cannot be decoded are skipped.
func (s *ChatStream) Recv() (StreamDelta, error) {
	for {
		if s.done {
			return StreamDelta{}, io.EOF
		}

		ev, err := s.dec.Next()
		if err != nil {
			if err == io.EOF {
				s.done = true
			}
			return StreamDelta{}, err
		}

		if s.protocol != models.ProtocolAnthropicMessages && isDoneMarker(ev.Data) {
			s.done = true
			return StreamDelta{}, io.EOF
		}

		raw := decodeBody([]byte(ev.Data))
		var (
			delta StreamDelta
			emit  bool
		)
		switch s.protocol {
		case models.ProtocolAnthropicMessages:
			var done bool
			delta, emit, done, err = s.anthropic.handle(ev.Event, raw)
			if err != nil {
				return StreamDelta{}, err
			}
			if done {
				s.done = true
				return StreamDelta{}, io.EOF
			}
		case models.ProtocolGoogleGenAI:
			delta, emit = parseGoogleChunk(raw)
		default:
			delta, emit = parseOpenAIChunk(raw)
		}

		if !emit {
			continue
		}
		s.content.WriteString(delta.Content)
		if delta.Usage != nil {
			s.usage = *delta.Usage
		}
		return delta, nil
	}
}

// Response returns everything received so far as a normalized response.
func (s *ChatStream) Response() LLMResponse {
	return LLMResponse{
		Content: s.content.String(),
		Usage:   s.usage,
		Model:   s.model,
	}
}

// Close releases the underlying response body.
func (s *ChatStream) Close() error {
	s.done = true
	return s.body.Close()
}
