package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ikonnect/agency-chat/internal/api"
	"github.com/ikonnect/agency-chat/internal/chat"
	"github.com/ikonnect/agency-chat/internal/config"
	"github.com/ikonnect/agency-chat/internal/db"
	"github.com/ikonnect/agency-chat/internal/llm"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// App holds the wired components of the chat back-end.
type App struct {
	Config *config.Config
	Store  db.Store
	LLM    *llm.Service
	Chat   *chat.Service
	Logger *zap.Logger
}

func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	store, err := db.Open(cfg.Store, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store, err)
	}

	llmService, err := llm.New(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, llm.Options{
		Model:            cfg.Model,
		MaxTokens:        cfg.MaxTokens,
		Temperature:      cfg.Temperature,
		Timeout:          cfg.LLMTimeout,
		MaxHistoryTurns:  cfg.HistoryTurns,
		MaxHistoryTokens: cfg.HistoryTokens,
	}, logger.Named("llm"))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("initialize LLM service: %w", err)
	}

	return &App{
		Config: cfg,
		Store:  store,
		LLM:    llmService,
		Chat:   chat.NewService(store, llmService, logger.Named("chat")),
		Logger: logger,
	}, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}

func (a *App) Handler() http.Handler {
	return api.NewHandler(a.Chat, a.Logger.Named("api")).Routes()
}

// ListenAndServe serves the API until ctx is cancelled, then drains
// in-flight requests.
func (a *App) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.Logger.Info("Starting server", zap.String("addr", srv.Addr))
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.Logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
