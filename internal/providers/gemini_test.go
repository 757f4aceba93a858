package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGeminiGeneratePostsWireFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-test:generateContent") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("key"); got != "gkey" {
			t.Errorf("key = %q", got)
		}
		var body map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if _, ok := body["systemInstruction"]; !ok {
			t.Error("systemInstruction missing")
		}
		if _, ok := body["tools"]; !ok {
			t.Error("tools missing with grounding enabled")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{
					{"text": "part one "},
					{"text": "part two"},
				}}},
			},
		})
	}))
	defer srv.Close()

	c := NewGeminiClient(srv.URL)
	res, err := c.Generate(context.Background(), GenerateRequest{
		APIKey:             "gkey",
		Model:              "gemini-test",
		Parts:              []Part{TextPart("hello")},
		SystemInstruction:  "be brief",
		UseSearchGrounding: true,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Text != "part one part two" {
		t.Fatalf("text = %q", res.Text)
	}
}

func TestGeminiGenerateParsesGroundingChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"parts": []map[string]any{{"text": "grounded"}}},
				"groundingMetadata": map[string]any{
					"groundingChunks": []map[string]any{
						{"web": map[string]any{"uri": "https://a.example", "title": "A"}},
						{"retrievedContext": map[string]any{"uri": "https://b.example", "title": "B"}},
						{"web": map[string]any{"uri": "", "title": "skipped"}},
					},
				},
			}},
		})
	}))
	defer srv.Close()

	c := NewGeminiClient(srv.URL)
	res, err := c.Generate(context.Background(), GenerateRequest{
		APIKey: "gkey",
		Model:  "m",
		Parts:  []Part{TextPart("q")},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(res.Grounding) != 2 {
		t.Fatalf("grounding = %v", res.Grounding)
	}
	if res.Grounding[0].URI != "https://a.example" || res.Grounding[1].Title != "B" {
		t.Fatalf("grounding = %v", res.Grounding)
	}
}

func TestGeminiGenerateSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "API key not valid"},
		})
	}))
	defer srv.Close()

	c := NewGeminiClient(srv.URL)
	_, err := c.Generate(context.Background(), GenerateRequest{
		APIKey: "bad",
		Model:  "m",
		Parts:  []Part{TextPart("q")},
	})
	if err == nil || !strings.Contains(err.Error(), "API key not valid") {
		t.Fatalf("expected surfaced message, got %v", err)
	}
}

func TestGeminiSessionReplaysHistory(t *testing.T) {
	type wireContent struct {
		Role  string `json:"role"`
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	}
	var bodies [][]wireContent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Contents []wireContent `json:"contents"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body.Contents)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": "reply"}}}},
			},
		})
	}))
	defer srv.Close()

	c := NewGeminiClient(srv.URL)
	sess := c.NewSession("gkey", "m", "sys", nil)

	if _, err := sess.Send(context.Background(), []Part{TextPart("first")}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := sess.Send(context.Background(), []Part{TextPart("second")}); err != nil {
		t.Fatalf("send: %v", err)
	}

	if len(bodies) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(bodies))
	}
	second := bodies[1]
	if len(second) != 3 {
		t.Fatalf("second call should replay 3 turns, got %d", len(second))
	}
	if second[0].Role != "user" || second[1].Role != "model" || second[2].Role != "user" {
		t.Fatalf("role order wrong: %+v", second)
	}
	if second[2].Parts[0].Text != "second" {
		t.Fatalf("latest turn = %q", second[2].Parts[0].Text)
	}
}

func TestGeminiSessionFailedSendLeavesHistoryClean(t *testing.T) {
	var n int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n++
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "temporarily unavailable"}})
			return
		}
		var body struct {
			Contents []json.RawMessage `json:"contents"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.Contents) != 1 {
			t.Errorf("failed turn leaked into history: %d contents", len(body.Contents))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": "ok"}}}},
			},
		})
	}))
	defer srv.Close()

	c := NewGeminiClient(srv.URL)
	sess := c.NewSession("gkey", "m", "", nil)

	if _, err := sess.Send(context.Background(), []Part{TextPart("first")}); err == nil {
		t.Fatal("expected first send to fail")
	}
	if _, err := sess.Send(context.Background(), []Part{TextPart("retry")}); err != nil {
		t.Fatalf("retry: %v", err)
	}
}
