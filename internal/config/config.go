package config

import (
	"os"
	"strconv"
)

type Config struct {
	APIAddr                string
	PostgresURL            string
	SemanticScholarBaseURL string
	GeminiBaseURL          string
	OpenRouterBaseURL      string
	DefaultGeminiModel     string
	DefaultOpenRouterModel string
	PapersPerPage          int
	SelectAllLimit         int
	MaxContextWords        int
	MaxChatContextWords    int
	MaxUploadBytes         int64
}

func Load() Config {
	return Config{
		APIAddr:                getenv("PAPERDRAFT_API_ADDR", ":8080"),
		PostgresURL:            getenv("PAPERDRAFT_POSTGRES_URL", ""),
		SemanticScholarBaseURL: getenv("PAPERDRAFT_S2_BASE_URL", "https://api.semanticscholar.org/graph/v1/paper/search"),
		GeminiBaseURL:          getenv("PAPERDRAFT_GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		OpenRouterBaseURL:      getenv("PAPERDRAFT_OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		DefaultGeminiModel:     getenv("PAPERDRAFT_GEMINI_MODEL", "gemini-2.5-flash-preview-04-17"),
		DefaultOpenRouterModel: getenv("PAPERDRAFT_OPENROUTER_MODEL", "openai/gpt-3.5-turbo"),
		PapersPerPage:          getenvInt("PAPERDRAFT_PAPERS_PER_PAGE", 20),
		SelectAllLimit:         getenvInt("PAPERDRAFT_SELECT_ALL_LIMIT", 1000),
		MaxContextWords:        getenvInt("PAPERDRAFT_MAX_CONTEXT_WORDS", 3000),
		MaxChatContextWords:    getenvInt("PAPERDRAFT_MAX_CHAT_CONTEXT_WORDS", 2500),
		MaxUploadBytes:         int64(getenvInt("PAPERDRAFT_MAX_UPLOAD_BYTES", 5*1024*1024)),
	}
}

func getenv(k, fallback string) string {
	v := os.Getenv(k)
	if v == "" {
		return fallback
	}
	return v
}

func getenvInt(k string, fallback int) int {
	v := os.Getenv(k)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
