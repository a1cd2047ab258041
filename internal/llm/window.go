package llm

import (
	"sync"

	"github.com/ikonnect/agency-chat/internal/models"
	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter reports how many tokens a piece of text costs.
type TokenCounter func(text string) int

// NewTokenCounter counts with the model's tiktoken encoding. The encoding is
// loaded on first use; if it cannot be loaded the counter estimates four
// characters per token.
func NewTokenCounter(model string) TokenCounter {
	var (
		once sync.Once
		enc  *tiktoken.Tiktoken
	)
	return func(text string) int {
		once.Do(func() {
			e, err := tiktoken.EncodingForModel(model)
			if err != nil {
				e, err = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
			}
			if err == nil {
				enc = e
			}
		})
		if enc == nil {
			return len([]rune(text)) / 4
		}
		return len(enc.Encode(text, nil, nil))
	}
}

// trimHistory keeps the trailing maxTurns turns and then drops the oldest
// turns until the rest fits in maxTokens. A trimmed window is moved forward
// to its first user turn, and the last turn is always kept. Zero limits
// disable the corresponding cut.
func trimHistory(turns []models.Turn, maxTurns, maxTokens int, count TokenCounter) []models.Turn {
	if len(turns) == 0 {
		return turns
	}
	if maxTurns > 0 && len(turns) > maxTurns {
		turns = startOnUser(turns[len(turns)-maxTurns:])
	}
	if maxTokens <= 0 || count == nil {
		return turns
	}

	total := 0
	start := len(turns) - 1
	total += count(turns[start].Content)
	for i := start - 1; i >= 0; i-- {
		cost := count(turns[i].Content)
		if total+cost > maxTokens {
			break
		}
		total += cost
		start = i
	}
	if start == 0 {
		return turns
	}
	return startOnUser(turns[start:])
}

// startOnUser drops leading assistant turns so the window never opens with a
// reply to a question that was cut off.
func startOnUser(turns []models.Turn) []models.Turn {
	for i := 0; i < len(turns)-1; i++ {
		if turns[i].Role == models.RoleUser {
			return turns[i:]
		}
	}
	return turns[len(turns)-1:]
}
