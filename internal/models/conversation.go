package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatConversation is one visitor message and the reply generated for it.
// Only Satisfaction and Resolved change after creation.
type ChatConversation struct {
	ID           string         `json:"id"`
	SessionID    string         `json:"sessionId"`
	UserQuery    string         `json:"userQuery"`
	BotResponse  string         `json:"botResponse"`
	Context      map[string]any `json:"context"`
	Satisfaction *int           `json:"satisfaction"`
	Resolved     bool           `json:"resolved"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// Turns flattens the exchange into the user turn followed by the assistant turn.
func (c ChatConversation) Turns() []Turn {
	return []Turn{
		{Role: RoleUser, Content: c.UserQuery},
		{Role: RoleAssistant, Content: c.BotResponse},
	}
}

type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

type SentimentResult struct {
	Sentiment  Sentiment `json:"sentiment"`
	Confidence float64   `json:"confidence"`
}
