package db

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ikonnect/agency-chat/internal/models"
)

// MemoryStore keeps conversations in process memory. Rows are lost on
// restart; it is meant for local development and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	rows []*models.ChatConversation
	now  func() time.Time
}

func NewMemory() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) Append(_ context.Context, sessionID, userQuery, botResponse string, convCtx map[string]any) (*models.ChatConversation, error) {
	if convCtx == nil {
		convCtx = map[string]any{}
	}
	conv := &models.ChatConversation{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		UserQuery:   userQuery,
		BotResponse: botResponse,
		Context:     convCtx,
		CreatedAt:   m.now().UTC(),
	}

	m.mu.Lock()
	m.rows = append(m.rows, copyConversation(conv))
	m.mu.Unlock()

	return copyConversation(conv), nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*models.ChatConversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, conv := range m.rows {
		if conv.ID == id {
			return copyConversation(conv), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListBySession(_ context.Context, sessionID string) ([]models.ChatConversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.ChatConversation, 0)
	for _, conv := range m.rows {
		if conv.SessionID == sessionID {
			out = append(out, *copyConversation(conv))
		}
	}
	return out, nil
}

func (m *MemoryStore) ListAll(_ context.Context) ([]models.ChatConversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.ChatConversation, 0, len(m.rows))
	for i := len(m.rows) - 1; i >= 0; i-- {
		out = append(out, *copyConversation(m.rows[i]))
	}
	return out, nil
}

func (m *MemoryStore) SetSatisfaction(_ context.Context, id string, score int) (*models.ChatConversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, conv := range m.rows {
		if conv.ID == id {
			s := score
			conv.Satisfaction = &s
			conv.Resolved = true
			return copyConversation(conv), nil
		}
	}
	return nil, ErrNotFound
}

// copyConversation detaches a row from the caller's maps and pointers.
func copyConversation(c *models.ChatConversation) *models.ChatConversation {
	out := *c
	if c.Satisfaction != nil {
		s := *c.Satisfaction
		out.Satisfaction = &s
	}
	out.Context = make(map[string]any, len(c.Context))
	for k, v := range c.Context {
		out.Context[k] = v
	}
	return &out
}
