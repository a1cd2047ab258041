package llm

import (
	"encoding/json"
	"fmt"
)

const systemPrompt = `You are a helpful AI assistant for Ikonnect Service, a digital agency specializing in:
- Data Automation (streamlined workflows, automated reporting, integrations)
- Web Development (custom applications, performance optimization, scalability)
- AI Chatbots & Integration (conversational AI, customer service automation)
- Web Extraction (web scraping, data extraction, processing)
- Graphic Design (branding, UI/UX, marketing materials)

You should help visitors with:
- Questions about our services
- General inquiries about projects
- Technical guidance and recommendations
- Scheduling consultations

Keep responses helpful, professional, and concise. If asked about pricing or specific project details, suggest they contact our team directly.`

const sentimentPrompt = `Analyze the sentiment of the following message and respond with JSON in this format: {"sentiment": "positive" | "negative" | "neutral", "confidence": number between 0 and 1}`

// FallbackReply is returned when the provider answers with empty text.
const FallbackReply = "I apologize, but I'm unable to generate a response right now. Please try again or contact our team directly."

// buildSystemPrompt appends the caller's context, if any, to the fixed instruction.
func buildSystemPrompt(convCtx map[string]any) string {
	if len(convCtx) == 0 {
		return systemPrompt
	}
	raw, err := json.Marshal(convCtx)
	if err != nil {
		return systemPrompt
	}
	return fmt.Sprintf("%s\n\nRecent conversation context: %s", systemPrompt, raw)
}
