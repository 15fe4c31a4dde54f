package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Sender sends outbound messages through the messaging provider.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
}

// Client talks to the Meta Cloud API for outbound messages.
type Client struct {
	baseURL       string
	accessToken   string
	phoneNumberID string
	http          *http.Client
	logger        *slog.Logger
}

// ClientConfig holds Cloud API settings.
type ClientConfig struct {
	BaseURL       string
	AccessToken   string
	PhoneNumberID string
}

// NewClient builds the Cloud API send client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://graph.facebook.com/v19.0"
	}
	return &Client{
		baseURL:       base,
		accessToken:   cfg.AccessToken,
		phoneNumberID: cfg.PhoneNumberID,
		http:          &http.Client{Timeout: 15 * time.Second},
		logger:        logger.With("component", "whatsapp_client"),
	}
}

type sendTextRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	Body string `json:"body"`
}

// SendText delivers one text message to a phone number.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(sendTextRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: body},
	})
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("messaging provider error (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}
