package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ikonnect/agency-chat/internal/chat"
	"github.com/ikonnect/agency-chat/internal/db"
	"github.com/ikonnect/agency-chat/internal/models"
	"go.uber.org/zap"
)

type Handler struct {
	chat   *chat.Service
	logger *zap.Logger
}

func NewHandler(chatService *chat.Service, logger *zap.Logger) *Handler {
	return &Handler{
		chat:   chatService,
		logger: logger,
	}
}

type ChatRequest struct {
	Message   string         `json:"message"`
	SessionID string         `json:"sessionId"`
	Context   map[string]any `json:"context,omitempty"`
}

type ChatResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversationId"`
}

type FeedbackRequest struct {
	ConversationID string `json:"conversationId"`
	Satisfaction   int    `json:"satisfaction"`
}

type FeedbackResponse struct {
	Success      bool                     `json:"success"`
	Conversation *models.ChatConversation `json:"conversation"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Routes registers the API on a fresh mux and wraps it with request logging
// and CORS.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", h.HandleChat)
	mux.HandleFunc("/api/chat/feedback", h.HandleFeedback)
	mux.HandleFunc("/api/chat/conversations", h.ListConversations)
	mux.HandleFunc("/healthz", h.Healthz)

	return chainMiddlewares(mux, withCORS, withLogging(h.logger))
}

func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	out, err := h.chat.Send(r.Context(), chat.SendInput{
		Message:   req.Message,
		SessionID: req.SessionID,
		Context:   req.Context,
	})
	switch {
	case errors.Is(err, chat.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, "Message and session ID are required")
		return
	case err != nil:
		h.logger.Error("Failed to process chat message",
			zap.Error(err),
			zap.String("sessionId", req.SessionID))
		h.writeError(w, http.StatusInternalServerError, "Failed to process chat message")
		return
	}

	h.writeJSON(w, http.StatusOK, ChatResponse{
		Response:       out.Response,
		ConversationID: out.ConversationID,
	})
}

func (h *Handler) HandleFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	conv, err := h.chat.Feedback(r.Context(), chat.FeedbackInput{
		ConversationID: req.ConversationID,
		Satisfaction:   req.Satisfaction,
	})
	switch {
	case errors.Is(err, chat.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, db.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "Conversation not found")
		return
	case err != nil:
		h.logger.Error("Failed to record feedback",
			zap.Error(err),
			zap.String("conversationId", req.ConversationID))
		h.writeError(w, http.StatusInternalServerError, "Failed to record feedback")
		return
	}

	h.writeJSON(w, http.StatusOK, FeedbackResponse{Success: true, Conversation: conv})
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if id := r.URL.Query().Get("id"); id != "" {
		h.getConversation(w, r, id)
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	conversations, err := h.chat.List(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("Failed to get conversations",
			zap.Error(err),
			zap.String("sessionId", sessionID))
		h.writeError(w, http.StatusInternalServerError, "Failed to fetch conversations")
		return
	}

	h.logger.Debug("Retrieved conversations",
		zap.Int("count", len(conversations)),
		zap.String("sessionId", sessionID))
	h.writeJSON(w, http.StatusOK, conversations)
}

func (h *Handler) getConversation(w http.ResponseWriter, r *http.Request, id string) {
	conv, err := h.chat.Get(r.Context(), id)
	switch {
	case errors.Is(err, db.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "Conversation not found")
		return
	case err != nil:
		h.logger.Error("Failed to get conversation",
			zap.Error(err),
			zap.String("conversationId", id))
		h.writeError(w, http.StatusInternalServerError, "Failed to fetch conversation")
		return
	}
	h.writeJSON(w, http.StatusOK, conv)
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Message: message})
}
