package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"assistant-backend/internal/metrics"
)

// Client provides typed access to the voice-AI provider's web-call API. It
// only brokers the session handshake; the caller opens the audio stream
// directly against the provider with the returned token.
type Client struct {
	logger  *slog.Logger
	baseURL string
	apiKey  string
	http    *http.Client
	metrics *metrics.Metrics
}

// Config holds voice provider client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// New creates a new voice provider client.
func New(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.retellai.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		logger:  logger.With("component", "voice"),
		baseURL: base,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		metrics: m,
	}
}

// WebCallRequest describes a web-call session to open.
type WebCallRequest struct {
	AgentID       string         `json:"agent_id"`
	CustomerName  string         `json:"customer_name,omitempty"`
	CustomerEmail string         `json:"customer_email,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// WebCall is the ephemeral session handle returned by the provider.
type WebCall struct {
	CallID      string `json:"call_id"`
	AccessToken string `json:"access_token"`
	AgentID     string `json:"agent_id"`
}

// CreateWebCall requests an ephemeral call session. Non-2xx responses
// surface the provider's raw error text.
func (c *Client) CreateWebCall(ctx context.Context, req WebCallRequest) (*WebCall, error) {
	if req.AgentID == "" {
		return nil, errors.New("agent_id is required")
	}

	payload := map[string]any{
		"agent_id": req.AgentID,
	}
	meta := map[string]any{}
	for k, v := range req.Metadata {
		meta[k] = v
	}
	if req.CustomerName != "" {
		meta["customer_name"] = req.CustomerName
	}
	if req.CustomerEmail != "" {
		meta["customer_email"] = req.CustomerEmail
	}
	if len(meta) > 0 {
		payload["metadata"] = meta
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal web call request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/create-web-call", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build web call request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.VoiceCalls.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("voice provider request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.metrics.VoiceCalls.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("read voice provider response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.metrics.VoiceCalls.WithLabelValues("error").Inc()
		c.logger.Warn("voice provider rejected web call", "status", resp.StatusCode, "agent_id", req.AgentID)
		return nil, fmt.Errorf("voice provider error (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var call WebCall
	if err := json.Unmarshal(respBody, &call); err != nil {
		c.metrics.VoiceCalls.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("decode web call response: %w", err)
	}

	c.metrics.VoiceCalls.WithLabelValues("ok").Inc()
	c.logger.Info("web call created", "call_id", call.CallID, "agent_id", call.AgentID)
	return &call, nil
}
