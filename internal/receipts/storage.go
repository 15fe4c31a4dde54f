package receipts

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

// ObjectStorage persists raw receipt images and supports the per-user prefix
// removal the account deletion orchestrator runs.
type ObjectStorage interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
	RemovePrefix(ctx context.Context, prefix string) error
}

// SupabaseStorage talks to the Supabase storage REST API with the service
// role key.
type SupabaseStorage struct {
	baseURL    string
	serviceKey string
	bucket     string
	http       *http.Client
	logger     *slog.Logger
}

// NewSupabaseStorage builds a storage client for one bucket.
func NewSupabaseStorage(baseURL, serviceKey, bucket string, logger *slog.Logger) *SupabaseStorage {
	return &SupabaseStorage{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		bucket:     bucket,
		http:       &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With("component", "storage"),
	}
}

func (s *SupabaseStorage) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("apikey", s.serviceKey)
}

// Upload stores an object and returns its public URL.
func (s *SupabaseStorage) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	s.authorize(req)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload object: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("storage upload failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, path), nil
}

// RemovePrefix lists the objects under a prefix and deletes them in one
// batch call.
func (s *SupabaseStorage) RemovePrefix(ctx context.Context, prefix string) error {
	names, err := s.list(ctx, prefix)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return nil
	}

	payload, err := json.Marshal(map[string][]string{"prefixes": names})
	if err != nil {
		return fmt.Errorf("marshal delete request: %w", err)
	}

	url := fmt.Sprintf("%s/storage/v1/object/%s", s.baseURL, s.bucket)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	s.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("delete objects: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("storage delete failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	s.logger.Info("storage prefix removed", "bucket", s.bucket, "prefix", prefix, "objects", len(names))
	return nil
}

func (s *SupabaseStorage) list(ctx context.Context, prefix string) ([]string, error) {
	payload, err := json.Marshal(map[string]any{"prefix": prefix, "limit": 1000})
	if err != nil {
		return nil, fmt.Errorf("marshal list request: %w", err)
	}

	url := fmt.Sprintf("%s/storage/v1/object/list/%s", s.baseURL, s.bucket)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build list request: %w", err)
	}
	s.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("storage list failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var entries []struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, prefix+"/"+e.Name)
	}
	return names, nil
}
