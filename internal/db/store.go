package db

import (
	"context"
	"fmt"

	"github.com/ikonnect/agency-chat/internal/models"
)

const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Store is the method set shared by Database and MemoryStore.
type Store interface {
	Append(ctx context.Context, sessionID, userQuery, botResponse string, convCtx map[string]any) (*models.ChatConversation, error)
	Get(ctx context.Context, id string) (*models.ChatConversation, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.ChatConversation, error)
	ListAll(ctx context.Context) ([]models.ChatConversation, error)
	SetSatisfaction(ctx context.Context, id string, score int) (*models.ChatConversation, error)
	Close() error
}

var (
	_ Store = (*Database)(nil)
	_ Store = (*MemoryStore)(nil)
)

// Open returns the store for the named backend. dbPath is only used by sqlite.
func Open(backend, dbPath string) (Store, error) {
	switch backend {
	case BackendSQLite, "":
		database, err := New(dbPath)
		if err != nil {
			return nil, err
		}
		return database, nil
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
