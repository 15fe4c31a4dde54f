package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"assistant-backend/internal/account"
	"assistant-backend/internal/billing"
	"assistant-backend/internal/llm"
	"assistant-backend/internal/metrics"
	"assistant-backend/internal/notify"
	"assistant-backend/internal/receipts"
	"assistant-backend/internal/usage"
	"assistant-backend/internal/voice"
)

// Services groups the collaborators handlers dispatch into. Webhook handlers
// are mounted as-is since they manage their own verification.
type Services struct {
	Checkout        *billing.Checkout
	StripeWebhook   http.Handler
	Voice           *voice.Client
	Chat            *llm.Chat
	Categorizer     *llm.Categorizer
	Receipts        *receipts.Processor
	Usage           *usage.Tracker
	Notifier        *notify.Dispatcher
	WhatsAppWebhook http.Handler
	Deleter         *account.Deleter
}

// Server wraps an http.Server with the application routes.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	metrics    *metrics.Metrics
	services   Services
}

// New creates the HTTP server with all routes mounted.
func New(addr string, logger *slog.Logger, m *metrics.Metrics, services Services) *Server {
	server := &Server{
		logger:   logger.With("component", "http"),
		metrics:  m,
		services: services,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/checkout-session", server.handleCheckoutSession)
	mux.HandleFunc("/api/portal-session", server.handlePortalSession)
	mux.HandleFunc("/api/voice/web-call", server.handleWebCall)
	mux.HandleFunc("/api/chat", server.handleChat)
	mux.HandleFunc("/api/documents/categorize", server.handleCategorize)
	mux.HandleFunc("/api/receipts/process", server.handleReceipts)
	mux.HandleFunc("/api/usage", server.handleUsage)
	mux.HandleFunc("/api/notifications/send", server.handleNotify)
	mux.HandleFunc("/api/account/delete", server.handleAccountDelete)

	if services.StripeWebhook != nil {
		mux.Handle("/webhook/stripe", services.StripeWebhook)
	}
	if services.WhatsAppWebhook != nil {
		mux.Handle("/webhook/whatsapp", services.WhatsAppWebhook)
	}

	server.httpServer = &http.Server{
		Addr:              addr,
		Handler:           corsMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return server
}

// Start begins listening for incoming HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// corsMiddleware answers preflight requests and attaches permissive CORS
// headers to everything else.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Stripe-Signature")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode json", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
