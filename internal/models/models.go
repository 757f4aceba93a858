package models

import "time"

// Provider identifies one of the two generation backends.
type Provider string

const (
	ProviderGemini     Provider = "gemini"
	ProviderOpenRouter Provider = "openrouter"
)

func (p Provider) Valid() bool {
	return p == ProviderGemini || p == ProviderOpenRouter
}

// AvailableGeminiModels and AvailableOpenRouterModels are the suggestion
// lists surfaced through the config endpoint. Users may enter any model id.
var (
	AvailableGeminiModels = []string{
		"gemini-2.5-flash-preview-04-17",
	}
	AvailableOpenRouterModels = []string{
		"openai/gpt-3.5-turbo",
		"openai/gpt-4o",
		"openai/gpt-4-turbo",
		"google/gemini-pro",
		"google/gemini-2.5-flash-preview-04-17",
		"anthropic/claude-3-haiku-20240307",
		"anthropic/claude-3-sonnet-20240229",
		"anthropic/claude-3-opus-20240229",
		"mistralai/mistral-7b-instruct",
		"mistralai/mixtral-8x7b-instruct",
	}
)

// SectionKind is the kind of paper section being drafted.
type SectionKind string

const (
	SectionIntroduction SectionKind = "introduction"
	SectionRelatedWorks SectionKind = "relatedWorks"
	SectionOther        SectionKind = "other"
)

func (k SectionKind) Valid() bool {
	switch k {
	case SectionIntroduction, SectionRelatedWorks, SectionOther:
		return true
	}
	return false
}

// Paper is one Semantic Scholar search result. Immutable once fetched;
// cached by id so selections survive pagination.
type Paper struct {
	PaperID       string   `json:"paper_id"`
	Title         string   `json:"title"`
	Authors       []string `json:"authors,omitempty"`
	Year          *int     `json:"year,omitempty"`
	Abstract      string   `json:"abstract,omitempty"`
	URL           string   `json:"url,omitempty"`
	Venue         string   `json:"venue,omitempty"`
	CitationCount *int     `json:"citation_count,omitempty"`
}

type FileStatus string

const (
	FilePending     FileStatus = "pending"
	FileReading     FileStatus = "reading"
	FileReady       FileStatus = "ready"
	FileError       FileStatus = "error"
	FileUnsupported FileStatus = "unsupported_type"
)

// UploadedFile holds the processed form of one user upload. At most one of
// ExtractedText and Base64Data is populated; error states are terminal.
type UploadedFile struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Size          int64      `json:"size"`
	Status        FileStatus `json:"status"`
	MIMEType      string     `json:"mime_type,omitempty"`
	ExtractedText string     `json:"extracted_text,omitempty"`
	Base64Data    string     `json:"base64_data,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
}

// GroundingSource is one web source returned by search-augmented generation.
type GroundingSource struct {
	URI   string `json:"uri"`
	Title string `json:"title,omitempty"`
}

// GeneratedSection is the stored result slot for one section kind.
type GeneratedSection struct {
	Content   string            `json:"content"`
	Grounding []GroundingSource `json:"grounding,omitempty"`
	Error     string            `json:"error,omitempty"`
}

type ChatSender string

const (
	SenderUser ChatSender = "user"
	SenderAI   ChatSender = "ai"
)

// ChatMessage is one entry in the shared display log. The log is append-only
// and shared across providers.
type ChatMessage struct {
	ID        string     `json:"id"`
	Sender    ChatSender `json:"sender"`
	Text      string     `json:"text"`
	Timestamp time.Time  `json:"timestamp"`
}

type ChatRole string

const (
	RoleSystem    ChatRole = "system"
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
	// RoleModel is the assistant role in Gemini's native turn format.
	RoleModel ChatRole = "model"
)

// ChatTurn is one role-tagged turn in a provider conversation history.
// For Gemini the text is the concatenation of the turn's text parts.
type ChatTurn struct {
	Role ChatRole `json:"role"`
	Text string   `json:"text"`
}
