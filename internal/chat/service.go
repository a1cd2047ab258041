// Package chat runs the website chat widget: it replays a visitor's earlier
// exchanges to the completion backend, stores each new exchange and records
// visitor ratings.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ikonnect/agency-chat/internal/models"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrInvalidInput marks requests rejected before any side effect.
var ErrInvalidInput = errors.New("invalid input")

const (
	MinSatisfaction = 1
	MaxSatisfaction = 5
)

// Store persists chat exchanges.
type Store interface {
	Append(ctx context.Context, sessionID, userQuery, botResponse string, convCtx map[string]any) (*models.ChatConversation, error)
	Get(ctx context.Context, id string) (*models.ChatConversation, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.ChatConversation, error)
	ListAll(ctx context.Context) ([]models.ChatConversation, error)
	SetSatisfaction(ctx context.Context, id string, score int) (*models.ChatConversation, error)
}

// Generator produces the assistant reply for an ordered list of turns.
type Generator interface {
	Generate(ctx context.Context, turns []models.Turn, convCtx map[string]any) (string, error)
}

type Service struct {
	store     Store
	generator Generator
	logger    *zap.Logger
}

func NewService(store Store, generator Generator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, generator: generator, logger: logger}
}

type SendInput struct {
	Message   string
	SessionID string
	Context   map[string]any
}

type SendOutput struct {
	Response       string
	ConversationID string
}

// Send answers one visitor message. The exchange is stored only after the
// reply has been generated, so a failed call leaves no row behind.
func (s *Service) Send(ctx context.Context, in SendInput) (*SendOutput, error) {
	var errs error
	if strings.TrimSpace(in.Message) == "" {
		errs = multierr.Append(errs, errors.New("message is required"))
	}
	if strings.TrimSpace(in.SessionID) == "" {
		errs = multierr.Append(errs, errors.New("sessionId is required"))
	}
	if errs != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, errs)
	}

	history, err := s.store.ListBySession(ctx, in.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	turns := make([]models.Turn, 0, 2*len(history)+1)
	for _, c := range history {
		turns = append(turns, c.Turns()...)
	}
	turns = append(turns, models.Turn{Role: models.RoleUser, Content: in.Message})

	reply, err := s.generator.Generate(ctx, turns, in.Context)
	if err != nil {
		return nil, err
	}

	conv, err := s.store.Append(ctx, in.SessionID, in.Message, reply, in.Context)
	if err != nil {
		return nil, fmt.Errorf("save conversation: %w", err)
	}

	s.logger.Info("chat exchange stored",
		zap.String("sessionId", in.SessionID),
		zap.String("conversationId", conv.ID),
		zap.Int("history", len(history)))

	return &SendOutput{Response: reply, ConversationID: conv.ID}, nil
}

type FeedbackInput struct {
	ConversationID string
	Satisfaction   int
}

// Feedback rates a stored exchange and marks it resolved. Rating an unknown
// conversation returns the store's not-found error unchanged.
func (s *Service) Feedback(ctx context.Context, in FeedbackInput) (*models.ChatConversation, error) {
	var errs error
	if strings.TrimSpace(in.ConversationID) == "" {
		errs = multierr.Append(errs, errors.New("conversationId is required"))
	}
	switch {
	case in.Satisfaction == 0:
		errs = multierr.Append(errs, errors.New("satisfaction is required"))
	case in.Satisfaction < MinSatisfaction || in.Satisfaction > MaxSatisfaction:
		errs = multierr.Append(errs, fmt.Errorf("satisfaction must be between %d and %d", MinSatisfaction, MaxSatisfaction))
	}
	if errs != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, errs)
	}

	conv, err := s.store.SetSatisfaction(ctx, in.ConversationID, in.Satisfaction)
	if err != nil {
		return nil, fmt.Errorf("record satisfaction: %w", err)
	}

	s.logger.Info("chat feedback recorded",
		zap.String("conversationId", conv.ID),
		zap.Int("satisfaction", in.Satisfaction))
	return conv, nil
}

// List returns one session's exchanges oldest first, or every exchange
// newest first when sessionID is empty.
func (s *Service) List(ctx context.Context, sessionID string) ([]models.ChatConversation, error) {
	if sessionID == "" {
		return s.store.ListAll(ctx)
	}
	return s.store.ListBySession(ctx, sessionID)
}

// Get returns one stored exchange by id.
func (s *Service) Get(ctx context.Context, id string) (*models.ChatConversation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: conversation id is required", ErrInvalidInput)
	}
	return s.store.Get(ctx, id)
}
