package providers

import (
	"context"

	"paperdraft/internal/models"
)

// Part is one piece of a user turn: text, or inline binary data (images).
// At most one of Text and InlineData is set.
type Part struct {
	Text       string
	InlineMIME string
	InlineData []byte
}

func TextPart(text string) Part {
	return Part{Text: text}
}

func InlinePart(mime string, data []byte) Part {
	return Part{InlineMIME: mime, InlineData: data}
}

// GenerateRequest is a one-shot generation call. API keys are user-supplied
// at runtime and travel with the request rather than the client.
type GenerateRequest struct {
	APIKey            string
	Model             string
	Parts             []Part
	SystemInstruction string
	// UseSearchGrounding requests search-augmented generation. Only the
	// Gemini client honors it; the OpenRouter client ignores it.
	UseSearchGrounding bool
}

type GenerateResult struct {
	Text      string
	Grounding []models.GroundingSource
}

// Generator is the one-shot generation surface shared by both backends.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)
}

// Message is one role-tagged message in the OpenRouter wire format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
