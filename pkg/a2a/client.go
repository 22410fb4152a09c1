package a2a

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/kadirpekel/agentchat/pkg/httpclient"
)

// ============================================================================
// A2A CLIENT - HTTP+JSON Transport Client
// Implements the A2A client for calling external agents
// ============================================================================

// Client is an A2A protocol client bound to one agent.
type Client struct {
	httpClient   *http.Client
	streamClient *http.Client
	baseURL      string
	cardURL      string
	auth         *AuthCredentials
	card         *AgentCard
}

// AuthCredentials contains authentication information.
type AuthCredentials struct {
	Type         string // "bearer", "apiKey"
	Token        string
	APIKey       string
	APIKeyHeader string // Header name for API key (default: "X-API-Key")
}

// ClientConfig contains configuration for the A2A client.
type ClientConfig struct {
	// BaseURL is the agent's base URL. If empty it is resolved from the
	// agent card fetched at CardURL.
	BaseURL string

	// CardURL is the agent card location. Defaults to
	// BaseURL + "/.well-known/agent.json".
	CardURL string

	Timeout time.Duration
	Auth    *AuthCredentials
	TLS     *httpclient.TLSConfig
}

// NewClient creates a new A2A protocol client.
func NewClient(cfg *ClientConfig) (*Client, error) {
	if cfg == nil || (cfg.BaseURL == "" && cfg.CardURL == "") {
		return nil, fmt.Errorf("one of BaseURL or CardURL is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	var transport http.RoundTripper
	if cfg.TLS != nil && (cfg.TLS.InsecureSkipVerify || cfg.TLS.CACertificate != "") {
		t, err := httpclient.ConfigureTLS(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
		transport = t
	}

	cardURL := cfg.CardURL
	if cardURL == "" {
		cardURL = strings.TrimSuffix(cfg.BaseURL, "/") + "/.well-known/agent.json"
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		// SSE responses stay open for the lifetime of a task, so the
		// stream client carries no response timeout; cancellation comes
		// from the request context.
		streamClient: &http.Client{Transport: transport},
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		cardURL:      cardURL,
		auth:         cfg.Auth,
	}, nil
}

// AgentCard fetches and caches the agent's capability card (Section 5).
func (c *Client) AgentCard(ctx context.Context) (*AgentCard, error) {
	if c.card != nil {
		return c.card, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cardURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch agent card: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to get agent card: %s - %s", resp.Status, string(body))
	}

	var card AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, fmt.Errorf("failed to decode agent card: %w", err)
	}

	c.card = &card
	if c.baseURL == "" && card.URL != "" {
		c.baseURL = strings.TrimSuffix(card.URL, "/")
	}
	return c.card, nil
}

// ============================================================================
// MESSAGE SENDING (A2A Spec Section 7.1)
// ============================================================================

// SendMessage sends a message using message/send (non-streaming).
// POST {base}/message/send
func (c *Client) SendMessage(ctx context.Context, params MessageSendParams) (*Task, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/message/send", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("message send failed: %s - %s", resp.Status, string(body))
	}

	var task Task
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	return &task, nil
}

// ============================================================================
// STREAMING (Server-Sent Events - A2A Spec 7.2)
// ============================================================================

// SendMessageStream sends a message with SSE streaming (Section 7.2).
// POST {base}/message/stream
func (c *Client) SendMessageStream(ctx context.Context, params MessageSendParams) iter.Seq2[Event, error] {
	body, err := json.Marshal(params)
	if err != nil {
		return failedStream(fmt.Errorf("failed to marshal params: %w", err))
	}
	return c.openStream(ctx, c.baseURL+"/message/stream", body, "")
}

// ResubscribeTask resumes streaming for an existing task (Section 7.9).
// POST {base}/tasks/{taskId}/resubscribe
func (c *Client) ResubscribeTask(ctx context.Context, taskID string) iter.Seq2[Event, error] {
	body, err := json.Marshal(TaskResubscribeParams{TaskID: taskID})
	if err != nil {
		return failedStream(fmt.Errorf("failed to marshal params: %w", err))
	}
	return c.openStream(ctx, c.baseURL+"/tasks/"+taskID+"/resubscribe", body, taskID)
}

// openStream POSTs to an SSE endpoint and returns the parsed event sequence.
// Shared by SendMessageStream and ResubscribeTask so both paths go through
// the identical parser.
func (c *Client) openStream(ctx context.Context, url string, body []byte, taskID string) iter.Seq2[Event, error] {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return failedStream(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	c.setAuthHeaders(req)

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return failedStream(fmt.Errorf("failed to connect to SSE stream: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return failedStream(fmt.Errorf("streaming failed: %s - %s", resp.Status, string(bodyBytes)))
	}

	return c.parseSSEStream(ctx, resp, taskID)
}

// parseSSEStream parses SSE frames from an HTTP response body into events.
func (c *Client) parseSSEStream(ctx context.Context, resp *http.Response, taskID string) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

		var data strings.Builder
		flush := func() (Event, error, bool) {
			if data.Len() == 0 {
				return nil, nil, false
			}
			payload := data.String()
			data.Reset()
			ev, err := DecodeEvent([]byte(payload))
			return ev, err, true
		}

		for scanner.Scan() {
			line := scanner.Text()

			switch {
			case strings.HasPrefix(line, "data:"):
				if data.Len() > 0 {
					data.WriteByte('\n')
				}
				data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			case line == "":
				ev, err, ok := flush()
				if !ok {
					continue
				}
				if err != nil {
					yield(nil, err)
					return
				}
				if ev == nil {
					// unrecognized kind, skip
					continue
				}
				if !yield(ev, nil) {
					return
				}
				if su, ok := ev.(*StatusUpdateEvent); ok && su.Final && su.Status.State.Terminal() {
					return
				}
			default:
				// comment or field we don't consume (event:, id:, retry:)
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			id := taskID
			if id == "" {
				id = "unknown"
			}
			yield(nil, fmt.Errorf("Error during streaming for %s: %s (Code: -1) Data: null", id, err))
			return
		}

		// A trailing frame without a closing blank line still counts.
		if ev, err, ok := flush(); ok {
			if err != nil {
				yield(nil, err)
				return
			}
			if ev != nil {
				yield(ev, nil)
			}
		}
	}
}

func failedStream(err error) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		yield(nil, err)
	}
}

// ============================================================================
// TASK OPERATIONS (A2A Spec Sections 7.3-7.4)
// ============================================================================

// GetTask fetches the full state of a task, including history and artifacts.
// GET {base}/tasks/{taskId}
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tasks/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get task failed: %s - %s", resp.Status, string(body))
	}

	var task Task
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	return &task, nil
}

// CancelTask cancels a running task.
// POST {base}/tasks/{taskId}/cancel
func (c *Client) CancelTask(ctx context.Context, taskID, reason string) (*Task, error) {
	body, err := json.Marshal(TaskCancelParams{TaskID: taskID, Reason: reason})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tasks/"+taskID+"/cancel", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel task: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("cancel task failed: %s - %s", resp.Status, string(body))
	}

	var task Task
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	return &task, nil
}

// setAuthHeaders sets authentication headers on the request.
func (c *Client) setAuthHeaders(req *http.Request) {
	if c.auth == nil {
		return
	}

	switch c.auth.Type {
	case "bearer":
		if c.auth.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.auth.Token)
		}
	case "apiKey":
		header := c.auth.APIKeyHeader
		if header == "" {
			header = "X-API-Key"
		}
		if c.auth.APIKey != "" {
			req.Header.Set(header, c.auth.APIKey)
		}
	}
}
