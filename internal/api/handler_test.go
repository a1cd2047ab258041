package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ikonnect/agency-chat/internal/api"
	"github.com/ikonnect/agency-chat/internal/chat"
	"github.com/ikonnect/agency-chat/internal/db"
	"github.com/ikonnect/agency-chat/internal/llm"
	"github.com/ikonnect/agency-chat/internal/models"
	"go.uber.org/zap/zaptest"
)

type stubGenerator struct {
	reply string
	err   error
	turns []int
}

func (g *stubGenerator) Generate(_ context.Context, turns []models.Turn, _ map[string]any) (string, error) {
	g.turns = append(g.turns, len(turns))
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func newTestServer(t *testing.T) (http.Handler, *db.MemoryStore, *stubGenerator) {
	t.Helper()

	store := db.NewMemory()
	gen := &stubGenerator{reply: "We can help with that."}
	logger := zaptest.NewLogger(t)
	handler := api.NewHandler(chat.NewService(store, gen, logger), logger)
	return handler.Routes(), store, gen
}

func do(t *testing.T, srv http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestChat(t *testing.T) {
	srv, store, gen := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/chat", map[string]any{
		"message":   "Can you scrape product prices?",
		"sessionId": "visit-1",
		"context":   map[string]any{"page": "/services/web-extraction"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", w.Code, w.Body.String())
	}
	resp := decode[api.ChatResponse](t, w)
	if resp.Response != "We can help with that." || resp.ConversationID == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	conv, err := store.Get(context.Background(), resp.ConversationID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if conv.UserQuery != "Can you scrape product prices?" {
		t.Fatalf("stored query %q", conv.UserQuery)
	}

	w = do(t, srv, http.MethodPost, "/api/chat", map[string]any{"message": "And PDFs?", "sessionId": "visit-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if gen.turns[1] != 3 {
		t.Fatalf("second call should see 3 turns, got %d", gen.turns[1])
	}
}

func TestChatMissingFields(t *testing.T) {
	srv, store, gen := newTestServer(t)

	for _, body := range []map[string]any{
		{"message": "hello"},
		{"sessionId": "visit-1"},
		{},
	} {
		w := do(t, srv, http.MethodPost, "/api/chat", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%v: expected 400, got %d", body, w.Code)
		}
		if msg := decode[map[string]string](t, w)["message"]; msg == "" {
			t.Fatalf("%v: expected error message", body)
		}
	}

	all, _ := store.ListAll(context.Background())
	if len(all) != 0 || len(gen.turns) != 0 {
		t.Fatalf("rejected requests had side effects: rows=%d calls=%d", len(all), len(gen.turns))
	}
}

func TestChatInvalidJSON(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestChatUpstreamFailure(t *testing.T) {
	srv, store, gen := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/chat", map[string]any{"message": "hi", "sessionId": "visit-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	gen.err = errors.Join(llm.ErrGenerationFailed, errors.New("dial tcp: connection refused"))
	w = do(t, srv, http.MethodPost, "/api/chat", map[string]any{"message": "again", "sessionId": "visit-1"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if msg := decode[map[string]string](t, w)["message"]; msg != "Failed to process chat message" {
		t.Fatalf("upstream detail leaked to client: %q", msg)
	}

	rows, _ := store.ListBySession(context.Background(), "visit-1")
	if len(rows) != 1 {
		t.Fatalf("expected 1 row after failed call, got %d", len(rows))
	}
}

func TestChatMethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/api/chat", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestFeedback(t *testing.T) {
	srv, store, _ := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/chat", map[string]any{"message": "hi", "sessionId": "visit-1"})
	id := decode[api.ChatResponse](t, w).ConversationID

	w = do(t, srv, http.MethodPost, "/api/chat/feedback", map[string]any{"conversationId": id, "satisfaction": 5})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", w.Code, w.Body.String())
	}
	resp := decode[api.FeedbackResponse](t, w)
	if !resp.Success || resp.Conversation == nil || *resp.Conversation.Satisfaction != 5 || !resp.Conversation.Resolved {
		t.Fatalf("unexpected feedback response: %+v", resp)
	}

	w = do(t, srv, http.MethodPost, "/api/chat/feedback", map[string]any{"conversationId": id, "satisfaction": 2})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	conv, _ := store.Get(context.Background(), id)
	if *conv.Satisfaction != 2 {
		t.Fatalf("expected last write to win, got %d", *conv.Satisfaction)
	}
}

func TestFeedbackErrors(t *testing.T) {
	srv, store, _ := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/chat", map[string]any{"message": "hi", "sessionId": "visit-1"})
	id := decode[api.ChatResponse](t, w).ConversationID

	tests := []struct {
		body map[string]any
		want int
	}{
		{map[string]any{"satisfaction": 4}, http.StatusBadRequest},
		{map[string]any{"conversationId": id}, http.StatusBadRequest},
		{map[string]any{"conversationId": id, "satisfaction": 9}, http.StatusBadRequest},
		{map[string]any{"conversationId": "does-not-exist", "satisfaction": 4}, http.StatusNotFound},
	}
	for _, tt := range tests {
		w := do(t, srv, http.MethodPost, "/api/chat/feedback", tt.body)
		if w.Code != tt.want {
			t.Fatalf("%v: expected %d, got %d", tt.body, tt.want, w.Code)
		}
	}

	conv, _ := store.Get(context.Background(), id)
	if conv.Resolved || conv.Satisfaction != nil {
		t.Fatalf("failed feedback changed the row: %+v", conv)
	}
}

func TestListConversations(t *testing.T) {
	srv, _, _ := newTestServer(t)

	for _, body := range []map[string]any{
		{"message": "a1", "sessionId": "a"},
		{"message": "b1", "sessionId": "b"},
		{"message": "a2", "sessionId": "a"},
	} {
		if w := do(t, srv, http.MethodPost, "/api/chat", body); w.Code != http.StatusOK {
			t.Fatalf("chat: %d", w.Code)
		}
	}

	w := do(t, srv, http.MethodGet, "/api/chat/conversations", nil)
	all := decode[[]models.ChatConversation](t, w)
	if len(all) != 3 || all[0].UserQuery != "a2" {
		t.Fatalf("unexpected listing: %+v", all)
	}

	w = do(t, srv, http.MethodGet, "/api/chat/conversations?sessionId=a", nil)
	session := decode[[]models.ChatConversation](t, w)
	if len(session) != 2 || session[0].UserQuery != "a1" || session[1].UserQuery != "a2" {
		t.Fatalf("unexpected session listing: %+v", session)
	}
}

func TestGetConversationByID(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/chat", map[string]any{"message": "Can you scrape product pages?", "sessionId": "s-7"})
	if w.Code != http.StatusOK {
		t.Fatalf("chat: %d", w.Code)
	}
	sent := decode[api.ChatResponse](t, w)

	w = do(t, srv, http.MethodGet, "/api/chat/conversations?id="+sent.ConversationID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	conv := decode[models.ChatConversation](t, w)
	if conv.ID != sent.ConversationID || conv.UserQuery != "Can you scrape product pages?" {
		t.Fatalf("unexpected conversation: %+v", conv)
	}

	w = do(t, srv, http.MethodGet, "/api/chat/conversations?id=no-such-id", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := do(t, srv, http.MethodOptions, "/api/chat", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS header")
	}
}
