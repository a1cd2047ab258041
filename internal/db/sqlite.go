package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ikonnect/agency-chat/internal/models"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/multierr"
)

// ErrNotFound is returned when no conversation has the requested id.
var ErrNotFound = errors.New("conversation not found")

const schema = `
CREATE TABLE IF NOT EXISTS chat_conversations (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    user_query TEXT NOT NULL,
    bot_response TEXT NOT NULL,
    context TEXT NOT NULL DEFAULT '{}',
    satisfaction INTEGER,
    resolved INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_chat_conversations_session
    ON chat_conversations(session_id, created_at);`

const columns = `id, session_id, user_query, bot_response, context, satisfaction, resolved, created_at`

var pragmas = []string{
	"PRAGMA journal_mode=WAL;",
	"PRAGMA busy_timeout=3000;",
	"PRAGMA synchronous=NORMAL;",
}

type Database struct {
	db  *sql.DB
	now func() time.Time
}

func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps writes ordered and lets ":memory:" work.
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, multierr.Append(fmt.Errorf("set pragma %s: %w", p, err), db.Close())
		}
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, multierr.Append(fmt.Errorf("init schema: %w", err), db.Close())
	}

	return &Database{db: db, now: time.Now}, nil
}

func (d *Database) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *Database) Append(ctx context.Context, sessionID, userQuery, botResponse string, convCtx map[string]any) (*models.ChatConversation, error) {
	if convCtx == nil {
		convCtx = map[string]any{}
	}
	raw, err := json.Marshal(convCtx)
	if err != nil {
		return nil, fmt.Errorf("encode context: %w", err)
	}

	conv := &models.ChatConversation{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		UserQuery:   userQuery,
		BotResponse: botResponse,
		Context:     convCtx,
		CreatedAt:   d.now().UTC(),
	}

	_, err = d.db.ExecContext(ctx, `
        INSERT INTO chat_conversations (id, session_id, user_query, bot_response, context, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.SessionID, conv.UserQuery, conv.BotResponse, string(raw), conv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return conv, nil
}

func (d *Database) Get(ctx context.Context, id string) (*models.ChatConversation, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+columns+` FROM chat_conversations WHERE id = ?`, id)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

// ListBySession returns the session's exchanges oldest first.
func (d *Database) ListBySession(ctx context.Context, sessionID string) ([]models.ChatConversation, error) {
	return d.query(ctx, `
        SELECT `+columns+`
        FROM chat_conversations
        WHERE session_id = ?
        ORDER BY created_at ASC, rowid ASC`, sessionID)
}

// ListAll returns every stored exchange newest first.
func (d *Database) ListAll(ctx context.Context) ([]models.ChatConversation, error) {
	return d.query(ctx, `
        SELECT `+columns+`
        FROM chat_conversations
        ORDER BY created_at DESC, rowid DESC`)
}

// SetSatisfaction records a rating and marks the exchange resolved.
// A later call overwrites the earlier rating.
func (d *Database) SetSatisfaction(ctx context.Context, id string, score int) (*models.ChatConversation, error) {
	row := d.db.QueryRowContext(ctx, `
        UPDATE chat_conversations
        SET satisfaction = ?, resolved = 1
        WHERE id = ?
        RETURNING `+columns, score, id)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update satisfaction: %w", err)
	}
	return conv, nil
}

func (d *Database) query(ctx context.Context, query string, args ...any) ([]models.ChatConversation, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]models.ChatConversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return conversations, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(s scanner) (*models.ChatConversation, error) {
	var (
		conv         models.ChatConversation
		rawContext   string
		satisfaction sql.NullInt64
	)
	err := s.Scan(&conv.ID, &conv.SessionID, &conv.UserQuery, &conv.BotResponse,
		&rawContext, &satisfaction, &conv.Resolved, &conv.CreatedAt)
	if err != nil {
		return nil, err
	}

	conv.Context = map[string]any{}
	if rawContext != "" {
		if err := json.Unmarshal([]byte(rawContext), &conv.Context); err != nil {
			return nil, fmt.Errorf("decode context: %w", err)
		}
	}
	if satisfaction.Valid {
		score := int(satisfaction.Int64)
		conv.Satisfaction = &score
	}
	return &conv, nil
}
