package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tutor_gateway/internal/httpapi"
	"tutor_gateway/internal/providers"
	"tutor_gateway/internal/utils"
)

type chatOptions struct {
	gateway     string
	providerID  string
	model       string
	system      string
	temperature float64
	maxTokens   int
	stream      bool
	timeout     time.Duration
}

func newChatCmd() *cobra.Command {
	opts := chatOptions{}

	cmd := &cobra.Command{
		Use:   "chat [message...]",
		Short: "Send a chat through a running gateway",
		Long:  "Send a single user message to a configured provider via the gateway and print the reply.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := buildChatRequest(opts, strings.Join(args, " "), cmd.Flags().Changed("temperature"))
			client := &gatewayClient{
				baseURL: strings.TrimRight(opts.gateway, "/"),
				http:    &http.Client{Timeout: opts.timeout},
			}
			out := cmd.OutOrStdout()
			if opts.stream {
				// Streams stay open as long as the provider keeps sending
				client.http.Timeout = 0
				resp, err := client.ChatStream(cmd.Context(), req, func(delta providers.StreamDelta) {
					fmt.Fprint(out, delta.Content)
				})
				if err != nil {
					return err
				}
				fmt.Fprintln(out)
				printUsage(cmd.ErrOrStderr(), resp)
				return nil
			}

			resp, err := client.Chat(cmd.Context(), req)
			if err != nil {
				return err
			}
			printChatResponse(out, resp)
			printUsage(cmd.ErrOrStderr(), resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.gateway, "gateway", "http://localhost:8080", "gateway base URL")
	cmd.Flags().StringVarP(&opts.providerID, "provider", "p", "", "provider ID (required)")
	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "model name (defaults to the provider's first enabled chat model)")
	cmd.Flags().StringVar(&opts.system, "system", "", "system prompt")
	cmd.Flags().Float64Var(&opts.temperature, "temperature", 0, "sampling temperature")
	cmd.Flags().IntVar(&opts.maxTokens, "max-tokens", 0, "completion token limit")
	cmd.Flags().BoolVarP(&opts.stream, "stream", "s", false, "stream the reply")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "request timeout")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}

func buildChatRequest(opts chatOptions, message string, withTemperature bool) httpapi.ChatRequest {
	req := httpapi.ChatRequest{ProviderID: opts.providerID}
	req.Model = opts.model
	if opts.system != "" {
		req.Messages = append(req.Messages, providers.LLMMessage{Role: providers.RoleSystem, Content: providers.TextContent(opts.system)})
	}
	req.Messages = append(req.Messages, providers.LLMMessage{Role: providers.RoleUser, Content: providers.TextContent(message)})
	if withTemperature {
		t := opts.temperature
		req.Temperature = &t
	}
	if opts.maxTokens > 0 {
		n := opts.maxTokens
		req.MaxTokens = &n
	}
	return req
}

func printChatResponse(w io.Writer, resp *httpapi.ChatResponse) {
	if resp.Content != "" {
		fmt.Fprintln(w, resp.Content)
	}
	for _, call := range resp.ToolCalls {
		args, _ := json.Marshal(call.Arguments)
		fmt.Fprintf(w, "%s %s(%s)\n", color.CyanString("tool call:"), call.Name, args)
	}
	for _, issue := range resp.ToolCallIssues {
		fmt.Fprintf(w, "%s %s: %s\n", color.YellowString("⚠"), issue.Name, strings.Join(issue.Errors, "; "))
	}
}

func printUsage(w io.Writer, resp *httpapi.ChatResponse) {
	fmt.Fprintf(w, "%s\n", color.HiBlackString("[%s · %s · %d prompt / %d completion tokens · request %s]",
		resp.ProviderID, resp.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.RequestID))
}

// gatewayClient calls the gateway's chat endpoints.
type gatewayClient struct {
	baseURL string
	http    *http.Client
}

func (c *gatewayClient) Chat(ctx context.Context, req httpapi.ChatRequest) (*httpapi.ChatResponse, error) {
	resp, err := c.post(ctx, "/v1/chat", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out httpapi.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding gateway response: %w", err)
	}
	return &out, nil
}

// ChatStream posts to the streaming endpoint, calls onDelta for every delta
// and returns the final accumulated response.
func (c *gatewayClient) ChatStream(ctx context.Context, req httpapi.ChatRequest, onDelta func(providers.StreamDelta)) (*httpapi.ChatResponse, error) {
	resp, err := c.post(ctx, "/v1/chat/stream", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	event := ""
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			event = ""
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := []byte(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			switch event {
			case "done":
				var out httpapi.ChatResponse
				if err := json.Unmarshal(data, &out); err != nil {
					return nil, fmt.Errorf("decoding final event: %w", err)
				}
				return &out, nil
			case "error":
				var e utils.ErrorResponse
				_ = json.Unmarshal(data, &e)
				return nil, fmt.Errorf("stream failed: %s", e.Error)
			default:
				var delta providers.StreamDelta
				if err := json.Unmarshal(data, &delta); err != nil {
					return nil, fmt.Errorf("decoding delta: %w", err)
				}
				onDelta(delta)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, errors.New("stream ended without a final event")
}

func (c *gatewayClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling gateway: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		var e utils.ErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, e.Error)
		}
		return nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return resp, nil
}
