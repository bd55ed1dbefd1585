package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"tutor_gateway/internal/logging"
	"tutor_gateway/internal/middleware"
	"tutor_gateway/internal/models"
	"tutor_gateway/internal/providers"
	"tutor_gateway/internal/storage"
	"tutor_gateway/internal/utils"
)

const maxChatBodyBytes = 4 << 20

// ChatRequest is the body of POST /v1/chat and /v1/chat/stream. Either
// ProviderID names a configured provider or Provider describes one inline.
type ChatRequest struct {
	ProviderID string           `json:"providerId,omitempty"`
	Provider   *models.Provider `json:"provider,omitempty"`
	providers.LLMRequest
}

// ChatResponse is returned by POST /v1/chat and as the final "done" event of a stream.
type ChatResponse struct {
	RequestID  string `json:"requestId"`
	ProviderID string `json:"providerId"`
	providers.LLMResponse
	ToolCallIssues []providers.ToolCallIssue `json:"toolCallIssues,omitempty"`
}

// exchange collects what is logged about one chat call.
type exchange struct {
	requestID string
	provider  *models.Provider
	request   providers.LLMRequest
	start     time.Time
	usage     providers.Usage
	err       error
}

// handleChat serves one non-streaming chat call.
//
// Flow:
//  1. Decode body and resolve the provider
//  2. Pick a model when none was given
//  3. Dispatch to the provider
//  4. Validate tool calls against the request's tool schemas
//  5. Log the exchange and enqueue usage
func (d *Dependencies) handleChat(w http.ResponseWriter, r *http.Request) {
	req, provider, ok := d.decodeChat(w, r)
	if !ok {
		return
	}

	ex := exchange{
		requestID: middleware.GetRequestID(r.Context()),
		provider:  provider,
		request:   req.LLMRequest,
		start:     time.Now(),
	}

	ctx := r.Context()
	if d.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.RequestTimeout)
		defer cancel()
	}

	resp, err := d.Dispatcher.RequestChat(ctx, req.LLMRequest, *provider)
	ex.err = err
	if resp != nil {
		ex.usage = resp.Usage
	}
	d.record(r.Context(), ex)

	if err != nil {
		respondChatError(w, err)
		return
	}

	out := ChatResponse{
		RequestID:   ex.requestID,
		ProviderID:  provider.ID,
		LLMResponse: *resp,
	}
	if len(req.Tools) > 0 && len(resp.ToolCalls) > 0 {
		issues, err := providers.ValidateToolCalls(req.Tools, resp.ToolCalls)
		if err != nil {
			d.logger.Warn("Tool schema did not compile", "request_id", ex.requestID, "error", err)
		}
		out.ToolCallIssues = issues
	}

	utils.RespondWithJSON(w, http.StatusOK, out)
}

// handleChatStream re-emits provider deltas as server-sent events. Each
// delta is a bare "data:" event; the stream ends with a "done" event carrying
// the accumulated response, or an "error" event.
func (d *Dependencies) handleChatStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondWithError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	req, provider, ok := d.decodeChat(w, r)
	if !ok {
		return
	}
	req.Stream = true

	ex := exchange{
		requestID: middleware.GetRequestID(r.Context()),
		provider:  provider,
		request:   req.LLMRequest,
		start:     time.Now(),
	}

	stream, err := d.Dispatcher.StreamChat(r.Context(), req.LLMRequest, *provider)
	if err != nil {
		ex.err = err
		d.record(r.Context(), ex)
		respondChatError(w, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			ex.err = err
			_ = writeSSE(w, "error", utils.ErrorResponse{Error: err.Error()})
			flusher.Flush()
			break
		}
		if err := writeSSE(w, "", delta); err != nil {
			// Client went away
			ex.err = err
			break
		}
		flusher.Flush()
	}

	final := stream.Response()
	ex.usage = final.Usage
	if ex.err == nil {
		_ = writeSSE(w, "done", ChatResponse{
			RequestID:   ex.requestID,
			ProviderID:  provider.ID,
			LLMResponse: final,
		})
		flusher.Flush()
	}
	d.record(r.Context(), ex)
}

// decodeChat parses the body and resolves the provider. It writes the error
// response itself and reports false when the request cannot proceed.
func (d *Dependencies) decodeChat(w http.ResponseWriter, r *http.Request) (*ChatRequest, *models.Provider, bool) {
	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes)).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return nil, nil, false
	}
	if len(req.Messages) == 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "At least one message is required")
		return nil, nil, false
	}

	var provider *models.Provider
	switch {
	case req.Provider != nil:
		p := *req.Provider
		p.ApplyDefaults()
		if err := p.Validate(); err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid provider: "+err.Error())
			return nil, nil, false
		}
		if p.ID == "" {
			p.ID = "inline-" + string(p.Type)
		}
		provider = &p
	case req.ProviderID != "":
		p, err := d.Registry.GetProvider(r.Context(), req.ProviderID)
		if err != nil {
			if errors.Is(err, providers.ErrUnknownProvider) {
				utils.RespondWithError(w, http.StatusNotFound, "Unknown or disabled provider")
				return nil, nil, false
			}
			d.logger.Error("Provider lookup failed", "provider", req.ProviderID, "error", err)
			utils.RespondWithError(w, http.StatusServiceUnavailable, "Provider registry unavailable")
			return nil, nil, false
		}
		provider = p
	default:
		utils.RespondWithError(w, http.StatusBadRequest, "providerId or provider is required")
		return nil, nil, false
	}

	if req.Model == "" {
		req.Model = d.defaultModel(r.Context(), provider)
	}
	if req.Model == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "model is required")
		return nil, nil, false
	}
	return &req, provider, true
}

// defaultModel picks the provider's first enabled chat model, falling back
// to the vendor default.
func (d *Dependencies) defaultModel(ctx context.Context, p *models.Provider) string {
	if d.Models != nil {
		m, err := d.Models.FirstEnabledChat(ctx, p.ID)
		if err == nil {
			return m.Name
		}
		if !errors.Is(err, storage.ErrManagedModelNotFound) {
			d.logger.Warn("Failed to look up default model", "provider", p.ID, "error", err)
		}
	}
	return models.DefaultChatModel(p.Type)
}

// record writes the chat log entry and enqueues the usage record. Both are
// best effort.
func (d *Dependencies) record(ctx context.Context, ex exchange) {
	ctx = context.WithoutCancel(ctx)
	p := ex.provider.Normalize()
	latency := time.Since(ex.start)

	status := http.StatusOK
	errMsg := ""
	if ex.err != nil {
		status = providers.StatusCode(ex.err)
		errMsg = ex.err.Error()
		if utils.IsRecoverableError(ex.err) {
			d.logger.Warn("Chat call failed (recoverable)", "request_id", ex.requestID, "provider", p.ID, "error", ex.err)
		} else {
			d.logger.Error("Chat call failed", "request_id", ex.requestID, "provider", p.ID, "error", ex.err)
		}
	}

	endpoint := d.Dispatcher.Adapter().BuildRequest(p, ex.request).Endpoint
	clientKind := string(providers.SelectClient(p.Type))

	if d.ChatLog != nil {
		rec := &logging.ChatLogRecord{
			Timestamp:        time.Now().UTC(),
			RequestID:        ex.requestID,
			ProviderID:       p.ID,
			ProviderType:     string(p.Type),
			Protocol:         string(p.Protocol),
			ClientKind:       clientKind,
			Model:            ex.request.Model,
			Endpoint:         endpoint,
			Stream:           ex.request.Stream,
			KeyFingerprint:   utils.Fingerprint(p.APIKey),
			LatencyMs:        latency.Milliseconds(),
			PromptTokens:     ex.usage.PromptTokens,
			CompletionTokens: ex.usage.CompletionTokens,
			StatusCode:       status,
			Error:            errMsg,
		}
		if err := d.ChatLog.Enqueue(rec); err != nil {
			d.logger.Warn("Failed to log chat", "request_id", ex.requestID, "error", err)
		}
	}

	if d.UsageRecorder != nil {
		requestID, err := uuid.Parse(ex.requestID)
		if err != nil {
			requestID = uuid.New()
		}
		usage := &models.UsageRecord{
			ID:               uuid.New(),
			RequestID:        requestID,
			ProviderID:       p.ID,
			ProviderType:     string(p.Type),
			Protocol:         string(p.Protocol),
			ClientKind:       clientKind,
			ModelName:        ex.request.Model,
			Endpoint:         endpoint,
			Stream:           ex.request.Stream,
			PromptTokens:     ex.usage.PromptTokens,
			CompletionTokens: ex.usage.CompletionTokens,
			ResponseTimeMS:   int(latency.Milliseconds()),
			StatusCode:       status,
			ErrorMessage:     errMsg,
			CreatedAt:        time.Now().UTC(),
		}
		if err := d.UsageRecorder.Enqueue(ctx, usage); err != nil {
			d.logger.Warn("Failed to enqueue usage", "request_id", ex.requestID, "error", err)
		}
	}
}

// respondChatError maps a dispatcher error to a gateway response.
func respondChatError(w http.ResponseWriter, err error) {
	if he, ok := providers.AsHTTPError(err); ok {
		utils.RespondWithUpstreamError(w, he.StatusCode, he.Error())
		return
	}
	if errors.Is(err, providers.ErrStreamingUnsupported) {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		utils.RespondWithError(w, http.StatusGatewayTimeout, "Provider request timed out")
		return
	}
	utils.RespondWithError(w, http.StatusBadGateway, "Provider request failed: "+err.Error())
}

func writeSSE(w io.Writer, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
