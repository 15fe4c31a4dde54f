package account

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// AdminClient calls the Supabase auth admin and RPC endpoints with the
// service role key.
type AdminClient struct {
	baseURL    string
	serviceKey string
	http       *http.Client
}

// NewAdminClient builds the admin API client.
func NewAdminClient(baseURL, serviceKey string) *AdminClient {
	return &AdminClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		http:       &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *AdminClient) do(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("apikey", c.serviceKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("supabase responded %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// DeleteAuthUser removes the user through the auth admin API.
func (c *AdminClient) DeleteAuthUser(ctx context.Context, userID string) error {
	url := fmt.Sprintf("%s/auth/v1/admin/users/%s", c.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("build admin delete request: %w", err)
	}
	if err := c.do(req); err != nil {
		return fmt.Errorf("admin delete user: %w", err)
	}
	return nil
}

// CallDeleteUserRPC invokes the delete_user database function.
func (c *AdminClient) CallDeleteUserRPC(ctx context.Context, userID string) error {
	payload, err := json.Marshal(map[string]string{"user_id": userID})
	if err != nil {
		return fmt.Errorf("marshal rpc payload: %w", err)
	}

	url := c.baseURL + "/rest/v1/rpc/delete_user"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.do(req); err != nil {
		return fmt.Errorf("delete_user rpc: %w", err)
	}
	return nil
}
