package logging

import (
	"context"
	"time"
)

// ChatLogRecord describes one chat exchange with a provider. Message
// content is never recorded; the API key appears only as a fingerprint.
type ChatLogRecord struct {
	Timestamp        time.Time `json:"timestamp"`
	RequestID        string    `json:"request_id"`
	ProviderID       string    `json:"provider_id"`
	ProviderType     string    `json:"provider_type"`
	Protocol         string    `json:"protocol"`
	ClientKind       string    `json:"client_kind"`
	Model            string    `json:"model"`
	Endpoint         string    `json:"endpoint"`
	Stream           bool      `json:"stream"`
	KeyFingerprint   string    `json:"key_fingerprint,omitempty"`
	LatencyMs        int64     `json:"latency_ms"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	StatusCode       int       `json:"status_code"`
	Error            string    `json:"error,omitempty"`
}

// Sink receives chat log records from the gateway.
type Sink interface {
	Enqueue(rec *ChatLogRecord) error
	Shutdown(ctx context.Context) error
}

// NoopSink discards records.
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (s *NoopSink) Enqueue(rec *ChatLogRecord) error {
	return nil
}

func (s *NoopSink) Shutdown(ctx context.Context) error {
	return nil
}

// MultiSink fans each record out to several sinks. Enqueue reports the
// first error but still offers the record to every sink.
type MultiSink []Sink

func (m MultiSink) Enqueue(rec *ChatLogRecord) error {
	var first error
	for _, s := range m {
		if err := s.Enqueue(rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m MultiSink) Shutdown(ctx context.Context) error {
	var first error
	for _, s := range m {
		if err := s.Shutdown(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
