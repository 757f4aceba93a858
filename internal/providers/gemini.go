package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"paperdraft/internal/models"
)

// GeminiClient calls the Gemini generateContent API. It supports an optional
// system instruction, inline binary parts, and Google Search grounding.
type GeminiClient struct {
	baseURL string
	client  *http.Client
}

func NewGeminiClient(baseURL string) *GeminiClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &GeminiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiTool struct {
	GoogleSearch *struct{} `json:"googleSearch,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Tools             []geminiTool    `json:"tools,omitempty"`
}

type geminiGroundingChunk struct {
	Web *struct {
		URI   string `json:"uri"`
		Title string `json:"title"`
	} `json:"web,omitempty"`
	RetrievedContext *struct {
		URI   string `json:"uri"`
		Title string `json:"title"`
	} `json:"retrievedContext,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
			Role  string       `json:"role"`
		} `json:"content"`
		GroundingMetadata *struct {
			GroundingChunks []geminiGroundingChunk `json:"groundingChunks"`
		} `json:"groundingMetadata"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func wireParts(parts []Part) []geminiPart {
	out := make([]geminiPart, 0, len(parts))
	for _, p := range parts {
		if len(p.InlineData) > 0 {
			out = append(out, geminiPart{InlineData: &geminiInlineData{
				MIMEType: p.InlineMIME,
				Data:     base64.StdEncoding.EncodeToString(p.InlineData),
			}})
			continue
		}
		out = append(out, geminiPart{Text: p.Text})
	}
	return out
}

func (g *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	if req.APIKey == "" {
		return GenerateResult{}, fmt.Errorf("gemini api key is not set")
	}
	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: wireParts(req.Parts)}},
	}
	if req.SystemInstruction != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemInstruction}}}
	}
	if req.UseSearchGrounding {
		body.Tools = []geminiTool{{GoogleSearch: &struct{}{}}}
	}
	resp, err := g.post(ctx, req.APIKey, req.Model, body)
	if err != nil {
		return GenerateResult{}, err
	}
	return resp, nil
}

func (g *GeminiClient) post(ctx context.Context, apiKey, model string, body geminiRequest) (GenerateResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("marshal gemini request: %w", err)
	}
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, model, apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return GenerateResult{}, fmt.Errorf("build gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	var parsed geminiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		if resp.StatusCode >= 400 {
			return GenerateResult{}, fmt.Errorf("gemini api error %d: %s", resp.StatusCode, string(raw))
		}
		return GenerateResult{}, fmt.Errorf("decode gemini response: %w", err)
	}
	if parsed.Error != nil {
		return GenerateResult{}, fmt.Errorf("gemini api error: %s", parsed.Error.Message)
	}
	if resp.StatusCode >= 400 {
		return GenerateResult{}, fmt.Errorf("gemini api error %d: %s", resp.StatusCode, string(raw))
	}
	if len(parsed.Candidates) == 0 {
		return GenerateResult{}, fmt.Errorf("gemini returned no candidates")
	}

	var text strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	out := GenerateResult{Text: text.String()}
	if gm := parsed.Candidates[0].GroundingMetadata; gm != nil {
		for _, chunk := range gm.GroundingChunks {
			switch {
			case chunk.Web != nil && chunk.Web.URI != "":
				out.Grounding = append(out.Grounding, models.GroundingSource{URI: chunk.Web.URI, Title: chunk.Web.Title})
			case chunk.RetrievedContext != nil && chunk.RetrievedContext.URI != "":
				out.Grounding = append(out.Grounding, models.GroundingSource{URI: chunk.RetrievedContext.URI, Title: chunk.RetrievedContext.Title})
			}
		}
	}
	return out, nil
}

// GeminiSession is a live multi-turn conversation. The system instruction is
// fixed at creation and the full turn history is replayed on every send,
// which is how the generateContent API models a chat session.
type GeminiSession struct {
	client            *GeminiClient
	apiKey            string
	model             string
	systemInstruction string
	contents          []geminiContent
}

// NewSession primes a session with an existing history of turns. Roles must
// be "user" or "model"; system turns are carried via the system instruction,
// never as history entries.
func (g *GeminiClient) NewSession(apiKey, model, systemInstruction string, history []models.ChatTurn) *GeminiSession {
	s := &GeminiSession{
		client:            g,
		apiKey:            apiKey,
		model:             model,
		systemInstruction: systemInstruction,
	}
	for _, turn := range history {
		role := "user"
		if turn.Role == models.RoleModel || turn.Role == models.RoleAssistant {
			role = "model"
		}
		s.contents = append(s.contents, geminiContent{Role: role, Parts: []geminiPart{{Text: turn.Text}}})
	}
	return s
}

// Send appends the user's parts to the session history, performs the call,
// and records the model reply so the next send replays both.
func (s *GeminiSession) Send(ctx context.Context, parts []Part) (GenerateResult, error) {
	if s.apiKey == "" {
		return GenerateResult{}, fmt.Errorf("gemini api key is not set")
	}
	userContent := geminiContent{Role: "user", Parts: wireParts(parts)}
	body := geminiRequest{Contents: append(append([]geminiContent{}, s.contents...), userContent)}
	if s.systemInstruction != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: s.systemInstruction}}}
	}
	result, err := s.client.post(ctx, s.apiKey, s.model, body)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("gemini chat: %w", err)
	}
	s.contents = append(s.contents, userContent, geminiContent{Role: "model", Parts: []geminiPart{{Text: result.Text}}})
	return result, nil
}
