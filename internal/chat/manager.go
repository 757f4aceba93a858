package chat

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"paperdraft/internal/contextbuild"
	"paperdraft/internal/models"
	"paperdraft/internal/prompts"
	"paperdraft/internal/providers"
	"paperdraft/internal/util"
)

// Config is the chat backend configuration. It changes only through
// Reconfigure so resets are applied consistently with the change that
// caused them.
type Config struct {
	Provider        models.Provider
	GeminiModel     string
	OpenRouterModel string
	GeminiKey       string
	OpenRouterKey   string
	UseContext      bool
}

type sessionKey struct {
	keyFingerprint string
	model          string
	sysHash        string
}

// Manager owns the shared display transcript, the per-provider histories,
// and the registry of live Gemini sessions.
type Manager struct {
	mu         sync.Mutex
	gemini     *providers.GeminiClient
	openRouter *providers.OpenRouterClient

	cfg Config

	display           []models.ChatMessage
	geminiHistory     []models.ChatTurn
	openRouterHistory []models.ChatTurn

	sessions map[sessionKey]*providers.GeminiSession
	// geminiSysInstruction is the instruction the current Gemini
	// conversation was started with. It anchors the session key for the
	// rest of the conversation.
	geminiSysInstruction string
}

func NewManager(gemini *providers.GeminiClient, openRouter *providers.OpenRouterClient, cfg Config) *Manager {
	return &Manager{
		gemini:     gemini,
		openRouter: openRouter,
		cfg:        cfg,
		sessions:   make(map[sessionKey]*providers.GeminiSession),
	}
}

func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

func (m *Manager) Messages() []models.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ChatMessage, len(m.display))
	copy(out, m.display)
	return out
}

// Reconfigure applies a new configuration and every reset its changes
// imply, in one step. Toggling context use clears everything; switching
// provider clears the transcript and the outgoing provider's history;
// changing a provider's key or model clears that provider's history.
func (m *Manager) Reconfigure(next Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if next.UseContext != m.cfg.UseContext {
		m.display = nil
		m.clearGemini()
		m.openRouterHistory = nil
	}
	if next.Provider != m.cfg.Provider {
		m.display = nil
		if next.Provider == models.ProviderGemini {
			m.openRouterHistory = nil
		} else {
			m.clearGemini()
		}
	}
	if next.GeminiKey != m.cfg.GeminiKey || next.GeminiModel != m.cfg.GeminiModel {
		m.clearGemini()
	}
	if next.OpenRouterKey != m.cfg.OpenRouterKey || next.OpenRouterModel != m.cfg.OpenRouterModel {
		m.openRouterHistory = nil
	}
	m.cfg = next
}

// Reset clears the transcript, both histories, and all live sessions.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.display = nil
	m.clearGemini()
	m.openRouterHistory = nil
}

func (m *Manager) clearGemini() {
	m.geminiHistory = nil
	m.geminiSysInstruction = ""
	m.sessions = make(map[sessionKey]*providers.GeminiSession)
}

func (m *Manager) appendDisplay(sender models.ChatSender, text string) models.ChatMessage {
	msg := models.ChatMessage{
		ID:        uuid.NewString(),
		Sender:    sender,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
	m.display = append(m.display, msg)
	return msg
}

// Send runs one chat turn against the active provider. The user message is
// appended to the transcript before any validation, so a failed turn still
// shows what was asked; failures come back as an AI-authored error bubble.
// researchContext is injected into the system instruction only at the start
// of a fresh conversation with context use enabled.
func (m *Manager) Send(ctx context.Context, text, researchContext string, files []models.UploadedFile) (models.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.appendDisplay(models.SenderUser, text)

	apiKey, model := m.cfg.OpenRouterKey, m.cfg.OpenRouterModel
	if m.cfg.Provider == models.ProviderGemini {
		apiKey, model = m.cfg.GeminiKey, m.cfg.GeminiModel
	}
	model = strings.TrimSpace(model)
	if apiKey == "" {
		return m.appendDisplay(models.SenderAI, fmt.Sprintf("Error: API key for %s is not set.", m.cfg.Provider)), nil
	}
	if model == "" {
		return m.appendDisplay(models.SenderAI, fmt.Sprintf("Error: Model for %s is not entered or is empty.", m.cfg.Provider)), nil
	}

	effective := prompts.ChatBaseSystemInstruction
	freshConversation := len(m.geminiHistory) == 0 && len(m.openRouterHistory) == 0
	if m.cfg.UseContext && freshConversation && researchContext != "" {
		effective += prompts.ChatContextPreface(researchContext)
	}

	var reply string
	var err error
	if m.cfg.Provider == models.ProviderGemini {
		reply, err = m.sendGemini(ctx, apiKey, model, text, effective, files)
	} else {
		reply, err = m.sendOpenRouter(ctx, apiKey, model, text, effective)
	}
	if err != nil {
		return m.appendDisplay(models.SenderAI, "Error: "+err.Error()), err
	}
	return m.appendDisplay(models.SenderAI, reply), nil
}

func (m *Manager) sendGemini(ctx context.Context, apiKey, model, text, effective string, files []models.UploadedFile) (string, error) {
	if len(m.geminiHistory) == 0 {
		m.geminiSysInstruction = effective
	}
	key := sessionKey{
		keyFingerprint: util.Fingerprint(apiKey),
		model:          model,
		sysHash:        util.SHA256Hex([]byte(m.geminiSysInstruction)),
	}
	sess := m.sessions[key]
	if sess == nil {
		sess = m.gemini.NewSession(apiKey, model, m.geminiSysInstruction, m.geminiHistory)
		m.sessions[key] = sess
	}

	parts := []providers.Part{providers.TextPart(text)}
	for _, f := range contextbuild.ReadyImages(files) {
		data, decodeErr := base64.StdEncoding.DecodeString(f.Base64Data)
		if decodeErr != nil {
			continue
		}
		parts = append(parts, providers.InlinePart(f.MIMEType, data))
	}

	result, err := sess.Send(ctx, parts)
	if err != nil {
		return "", err
	}
	m.geminiHistory = append(m.geminiHistory,
		models.ChatTurn{Role: models.RoleUser, Text: text},
		models.ChatTurn{Role: models.RoleModel, Text: result.Text},
	)
	return result.Text, nil
}

func (m *Manager) sendOpenRouter(ctx context.Context, apiKey, model, text, effective string) (string, error) {
	hasSystem := len(m.openRouterHistory) > 0 && m.openRouterHistory[0].Role == models.RoleSystem
	if effective != prompts.ChatBaseSystemInstruction && !hasSystem {
		m.openRouterHistory = append([]models.ChatTurn{{Role: models.RoleSystem, Text: effective}}, m.openRouterHistory...)
	}

	messages := make([]providers.Message, 0, len(m.openRouterHistory)+1)
	for _, t := range m.openRouterHistory {
		messages = append(messages, providers.Message{Role: string(t.Role), Content: t.Text})
	}
	messages = append(messages, providers.Message{Role: "user", Content: text})

	reply, err := m.openRouter.Chat(ctx, apiKey, model, messages)
	if err != nil {
		return "", err
	}
	m.openRouterHistory = append(m.openRouterHistory,
		models.ChatTurn{Role: models.RoleUser, Text: text},
		models.ChatTurn{Role: models.RoleAssistant, Text: reply},
	)
	return reply, nil
}
