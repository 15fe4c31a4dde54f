package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"assistant-backend/internal/account"
	"assistant-backend/internal/billing"
	"assistant-backend/internal/llm"
	"assistant-backend/internal/notify"
	"assistant-backend/internal/voice"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) handleCheckoutSession(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req billing.CheckoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sessionID, err := s.services.Checkout.CreateSession(r.Context(), req)
	if err != nil {
		s.logger.Error("checkout session failed", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": sessionID})
}

func (s *Server) handlePortalSession(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		UserID    string `json:"user_id"`
		ReturnURL string `json:"return_url"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	url, err := s.services.Checkout.CreatePortalSession(r.Context(), req.UserID, req.ReturnURL)
	if err != nil {
		s.logger.Error("portal session failed", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleWebCall(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req voice.WebCallRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	call, err := s.services.Voice.CreateWebCall(r.Context(), req)
	if err != nil {
		s.logger.Error("web call failed", "agent_id", req.AgentID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		Message        string `json:"message"`
		ConversationID string `json:"conversationId"`
		UserID         string `json:"userId"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	reply, err := s.services.Chat.Respond(r.Context(), req.UserID, req.ConversationID, req.Message)
	if err != nil {
		s.logger.Error("chat failed", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": reply, "success": true})
}

func (s *Server) handleCategorize(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		FileName string `json:"fileName"`
		FileType string `json:"fileType"`
		FileSize int64  `json:"fileSize"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	category, err := s.services.Categorizer.Categorize(r.Context(), req.FileName, req.FileType, req.FileSize)
	if err != nil {
		// Degrade-to-default: the fallback category still ships in the
		// error body so the caller has something usable.
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":    err.Error(),
			"category": llm.CategoryOther,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"category": category, "success": true})
}

func (s *Server) handleReceipts(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		UserID      string `json:"userId"`
		ImageBase64 string `json:"imageBase64"`
		FileName    string `json:"fileName"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := s.services.Receipts.Process(r.Context(), req.UserID, req.ImageBase64, req.FileName)
	if err != nil {
		s.logger.Error("receipt processing failed", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"expenses":      result.Expenses,
		"receiptUrl":    result.ReceiptURL,
		"confidence":    result.Confidence,
		"rawExtraction": result.Raw,
	})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	report, err := s.services.Usage.Snapshot(r.Context(), userID)
	if err != nil {
		s.logger.Error("usage snapshot failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req notify.Request
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := s.services.Notifier.Dispatch(r.Context(), req)
	if err != nil {
		s.logger.Error("notification dispatch failed", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]any{"success": true, "status": result.Status}
	if result.ScheduledFor != nil {
		resp["scheduled_for"] = result.ScheduledFor
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAccountDelete(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	auth := r.Header.Get("Authorization")
	token := strings.TrimPrefix(auth, "Bearer ")
	if auth == "" || token == auth {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	report, err := s.services.Deleter.Delete(r.Context(), token)
	if err != nil {
		if errors.Is(err, account.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	if !report.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, report)
}
