package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ikonnect/agency-chat/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

// ErrGenerationFailed is the only error Generate returns to callers; the
// provider's own error is wrapped alongside it for logging.
var ErrGenerationFailed = errors.New("failed to generate chat response")

const (
	defaultModel           = "gpt-4o"
	defaultMaxTokens       = 500
	defaultTemperature     = 0.7
	sentimentMaxTokens     = 100
	neutralConfidence      = 0.5
	defaultMaxHistoryTurns = 20
)

// Options tunes the completion calls. Temperature and the history limits are
// used as given, so zero means a deterministic reply or no cap; start from
// DefaultOptions to get the usual values.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
	// Timeout bounds one provider call. Zero leaves only the caller's deadline.
	Timeout time.Duration

	MaxHistoryTurns  int
	MaxHistoryTokens int
	CountTokens      TokenCounter
}

func DefaultOptions() Options {
	return Options{
		Model:           defaultModel,
		MaxTokens:       defaultMaxTokens,
		Temperature:     defaultTemperature,
		MaxHistoryTurns: defaultMaxHistoryTurns,
	}
}

func (o Options) withDefaults() Options {
	if o.Model == "" {
		o.Model = defaultModel
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = defaultMaxTokens
	}
	if o.CountTokens == nil && o.MaxHistoryTokens > 0 {
		o.CountTokens = NewTokenCounter(o.Model)
	}
	return o
}

type Service struct {
	llm    llms.Model
	opts   Options
	logger *zap.Logger
}

// New connects to an OpenAI-compatible chat completions API.
func New(baseURL, token string, opts Options, logger *zap.Logger) (*Service, error) {
	opts = opts.withDefaults()

	clientOpts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(opts.Model),
	}
	if baseURL != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(baseURL))
	}

	llm, err := openai.New(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return NewWithModel(llm, opts, logger), nil
}

// NewWithModel wraps an already constructed langchaingo model.
func NewWithModel(model llms.Model, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{llm: model, opts: opts.withDefaults(), logger: logger}
}

// Generate sends the system instruction followed by the conversation turns
// and returns the text of the first choice.
func (s *Service) Generate(ctx context.Context, turns []models.Turn, convCtx map[string]any) (string, error) {
	window := trimHistory(turns, s.opts.MaxHistoryTurns, s.opts.MaxHistoryTokens, s.opts.CountTokens)

	messages := make([]llms.MessageContent, 0, len(window)+1)
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, buildSystemPrompt(convCtx)))
	for _, t := range window {
		messages = append(messages, llms.TextParts(messageType(t.Role), t.Content))
	}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	resp, err := s.llm.GenerateContent(ctx, messages,
		llms.WithMaxTokens(s.opts.MaxTokens),
		llms.WithTemperature(s.opts.Temperature),
	)
	if err != nil {
		s.logger.Error("completion request failed",
			zap.Error(err),
			zap.String("model", s.opts.Model),
			zap.Int("turns", len(window)))
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		s.logger.Error("completion response has no choices", zap.String("model", s.opts.Model))
		return "", fmt.Errorf("%w: empty choice list", ErrGenerationFailed)
	}

	text := resp.Choices[0].Content
	if strings.TrimSpace(text) == "" {
		s.logger.Warn("completion returned empty text, using fallback reply", zap.String("model", s.opts.Model))
		return FallbackReply, nil
	}

	s.logger.Debug("completion generated",
		zap.Int("turns", len(window)),
		zap.Int("dropped_turns", len(turns)-len(window)),
		zap.Int("response_length", len(text)))
	return text, nil
}

type sentimentReply struct {
	Sentiment  string   `json:"sentiment"`
	Confidence *float64 `json:"confidence"`
}

// AnalyzeSentiment classifies text as positive, negative or neutral. It never
// fails: provider or parse errors yield a neutral result with 0.5 confidence.
func (s *Service) AnalyzeSentiment(ctx context.Context, text string) models.SentimentResult {
	neutral := models.SentimentResult{Sentiment: models.SentimentNeutral, Confidence: neutralConfidence}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	resp, err := s.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, sentimentPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, text),
	},
		llms.WithMaxTokens(sentimentMaxTokens),
		llms.WithJSONMode(),
	)
	if err != nil {
		s.logger.Warn("sentiment request failed", zap.Error(err))
		return neutral
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return neutral
	}

	return parseSentiment(resp.Choices[0].Content, s.logger)
}

func parseSentiment(content string, logger *zap.Logger) models.SentimentResult {
	result := models.SentimentResult{Sentiment: models.SentimentNeutral, Confidence: neutralConfidence}

	content = strings.TrimSpace(content)
	if content == "" {
		return result
	}

	var reply sentimentReply
	if err := json.Unmarshal([]byte(content), &reply); err != nil {
		logger.Warn("sentiment reply is not valid JSON", zap.Error(err), zap.String("reply", content))
		return result
	}

	switch label := models.Sentiment(strings.ToLower(strings.TrimSpace(reply.Sentiment))); label {
	case models.SentimentPositive, models.SentimentNegative, models.SentimentNeutral:
		result.Sentiment = label
	}
	if reply.Confidence != nil && *reply.Confidence != 0 {
		result.Confidence = min(1, max(0, *reply.Confidence))
	}
	return result
}

func messageType(role models.Role) schema.ChatMessageType {
	if role == models.RoleAssistant {
		return schema.ChatMessageTypeAI
	}
	return schema.ChatMessageTypeHuman
}
