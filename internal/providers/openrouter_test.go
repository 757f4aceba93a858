package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenRouterChatSendsBearerAndModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer okey" {
			t.Errorf("authorization = %q", got)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var body struct {
			Model    string    `json:"model"`
			Messages []Message `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Model != "openai/gpt-test" {
			t.Errorf("model = %q", body.Model)
		}
		if len(body.Messages) != 2 || body.Messages[0].Role != "system" {
			t.Errorf("messages = %v", body.Messages)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "hi there"}},
			},
		})
	}))
	defer srv.Close()

	c := NewOpenRouterClient(srv.URL)
	out, err := c.Chat(context.Background(), "okey", "openai/gpt-test", []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hello"},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if out != "hi there" {
		t.Fatalf("out = %q", out)
	}
}

func TestOpenRouterChatSurfacesErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "insufficient credits"},
		})
	}))
	defer srv.Close()

	c := NewOpenRouterClient(srv.URL)
	_, err := c.Chat(context.Background(), "okey", "m", []Message{{Role: "user", Content: "x"}})
	if err == nil || !strings.Contains(err.Error(), "insufficient credits") {
		t.Fatalf("expected surfaced message, got %v", err)
	}
}

func TestOpenRouterChatRequiresKeyAndMessages(t *testing.T) {
	c := NewOpenRouterClient("http://unused")
	if _, err := c.Chat(context.Background(), "", "m", []Message{{Role: "user", Content: "x"}}); err == nil {
		t.Fatal("expected missing-key error")
	}
	if _, err := c.Chat(context.Background(), "k", "m", nil); err == nil {
		t.Fatal("expected empty-messages error")
	}
}

func TestOpenRouterGenerateDropsInlineParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []Message `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.Messages) != 1 || body.Messages[0].Content != "prompt text" {
			t.Errorf("messages = %v", body.Messages)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "ok"}},
			},
		})
	}))
	defer srv.Close()

	c := NewOpenRouterClient(srv.URL)
	res, err := c.Generate(context.Background(), GenerateRequest{
		APIKey: "okey",
		Model:  "m",
		Parts: []Part{
			TextPart("prompt text"),
			InlinePart("image/png", []byte{1, 2, 3}),
		},
		UseSearchGrounding: true,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Text != "ok" || res.Grounding != nil {
		t.Fatalf("res = %+v", res)
	}
}
