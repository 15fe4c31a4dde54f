package voice

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"assistant-backend/internal/metrics"
)

func newTestClient(baseURL string) *Client {
	return New(Config{BaseURL: baseURL, APIKey: "key_test"}, slog.Default(), metrics.Registry("test"))
}

func TestCreateWebCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/create-web-call" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key_test" {
			t.Errorf("authorization = %q", got)
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["agent_id"] != "agent_1" {
			t.Errorf("agent_id = %v", body["agent_id"])
		}
		meta, _ := body["metadata"].(map[string]any)
		if meta["customer_name"] != "Ada" {
			t.Errorf("metadata = %v", meta)
		}

		json.NewEncoder(w).Encode(WebCall{
			CallID:      "call_1",
			AccessToken: "tok_1",
			AgentID:     "agent_1",
		})
	}))
	defer srv.Close()

	call, err := newTestClient(srv.URL).CreateWebCall(context.Background(), WebCallRequest{
		AgentID:      "agent_1",
		CustomerName: "Ada",
	})
	if err != nil {
		t.Fatalf("create web call: %v", err)
	}
	if call.CallID != "call_1" || call.AccessToken != "tok_1" {
		t.Errorf("call = %+v", call)
	}
}

func TestCreateWebCallProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte("agent not found"))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).CreateWebCall(context.Background(), WebCallRequest{AgentID: "agent_x"})
	if err == nil {
		t.Fatal("expected provider error")
	}
	if !strings.Contains(err.Error(), "agent not found") {
		t.Errorf("err = %v, want provider text surfaced", err)
	}
}

func TestCreateWebCallRequiresAgentID(t *testing.T) {
	if _, err := newTestClient("http://unreachable.invalid").CreateWebCall(context.Background(), WebCallRequest{}); err == nil {
		t.Fatal("expected validation error")
	}
}
