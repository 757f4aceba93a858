package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"paperdraft/internal/config"
	"paperdraft/internal/storage"
)

func testCfg() config.Config {
	return config.Config{
		PapersPerPage:       20,
		SelectAllLimit:      1000,
		MaxContextWords:     3000,
		MaxChatContextWords: 2500,
		MaxUploadBytes:      5 << 20,
		DefaultGeminiModel:  "gemini-test",
	}
}

func fakeScholar(t *testing.T, total int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		fmt.Sscanf(r.URL.Query().Get("limit"), "%d", &limit)
		offset := 0
		fmt.Sscanf(r.URL.Query().Get("offset"), "%d", &offset)
		n := limit
		if offset+n > total {
			n = total - offset
		}
		data := make([]map[string]any, 0)
		for i := 0; i < n; i++ {
			data = append(data, map[string]any{
				"paperId": fmt.Sprintf("p%d", offset+i),
				"title":   fmt.Sprintf("Paper %d", offset+i),
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"total": total, "offset": offset, "data": data})
	}))
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	s := NewServer(testCfg(), storage.NewMemoryStateStore())
	rec := doJSON(t, s.Routes(), http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestKeysReportPresenceOnly(t *testing.T) {
	s := NewServer(testCfg(), storage.NewMemoryStateStore())
	h := s.Routes()

	rec := doJSON(t, h, http.MethodPut, "/keys", map[string]string{"gemini": "secret-key"})
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/keys", nil)
	body := decodeBody(t, rec)
	if body["gemini"] != true || body["openRouter"] != false {
		t.Fatalf("body = %v", body)
	}
	if strings.Contains(rec.Body.String(), "secret-key") {
		t.Fatal("key material leaked in response")
	}
}

func TestSearchRequiresScholarKey(t *testing.T) {
	s := NewServer(testCfg(), storage.NewMemoryStateStore())
	rec := doJSON(t, s.Routes(), http.MethodPost, "/search", map[string]any{"topic": "gnn"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSearchAndSelectFlow(t *testing.T) {
	scholar := fakeScholar(t, 45)
	defer scholar.Close()
	cfg := testCfg()
	cfg.SemanticScholarBaseURL = scholar.URL

	store := storage.NewMemoryStateStore()
	s := NewServer(cfg, store)
	h := s.Routes()

	doJSON(t, h, http.MethodPut, "/keys", map[string]string{"semanticScholar": "s2"})

	rec := doJSON(t, h, http.MethodPost, "/search", map[string]any{"topic": "gnn", "page": 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["total"].(float64) != 45 {
		t.Fatalf("total = %v", body["total"])
	}
	if len(body["papers"].([]any)) != 20 {
		t.Fatalf("papers = %d", len(body["papers"].([]any)))
	}

	rec = doJSON(t, h, http.MethodPost, "/papers/select", map[string]any{"paperId": "p3", "selected": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("select status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/papers", nil)
	body = decodeBody(t, rec)
	selected := body["selectedIds"].([]any)
	if len(selected) != 1 || selected[0] != "p3" {
		t.Fatalf("selectedIds = %v", selected)
	}

	// restarting against the same store restores topic and selection
	s2 := NewServer(cfg, store)
	rec = doJSON(t, s2.Routes(), http.MethodGet, "/papers", nil)
	body = decodeBody(t, rec)
	if body["topic"] != "gnn" {
		t.Fatalf("restored topic = %v", body["topic"])
	}
	selected = body["selectedIds"].([]any)
	if len(selected) != 1 || selected[0] != "p3" {
		t.Fatalf("restored selection = %v", selected)
	}
}

func TestSelectUnknownPaper(t *testing.T) {
	s := NewServer(testCfg(), storage.NewMemoryStateStore())
	rec := doJSON(t, s.Routes(), http.MethodPost, "/papers/select", map[string]any{"paperId": "ghost", "selected": true})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSelectAllSelectsEveryResult(t *testing.T) {
	scholar := fakeScholar(t, 130)
	defer scholar.Close()
	cfg := testCfg()
	cfg.SemanticScholarBaseURL = scholar.URL

	s := NewServer(cfg, storage.NewMemoryStateStore())
	h := s.Routes()
	doJSON(t, h, http.MethodPut, "/keys", map[string]string{"semanticScholar": "s2"})
	doJSON(t, h, http.MethodPost, "/search", map[string]any{"topic": "gnn", "page": 1})

	rec := doJSON(t, h, http.MethodPost, "/papers/select-all", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["count"].(float64) != 130 {
		t.Fatalf("count = %v", body["count"])
	}
}

func TestGenerateBlockedWithoutKey(t *testing.T) {
	s := NewServer(testCfg(), storage.NewMemoryStateStore())
	rec := doJSON(t, s.Routes(), http.MethodPost, "/sections/generate", map[string]any{
		"sectionType": "introduction",
		"provider":    "gemini",
		"model":       "gemini-test",
		"autoPrompt":  true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
}

func TestGenerateAutoPromptEndToEnd(t *testing.T) {
	var calls int
	gemini := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		text := map[int]string{1: "GENERATED PROMPT", 2: "REFINED INSTRUCTION", 3: "Final section text."}[calls]
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": text}}}},
			},
		})
	}))
	defer gemini.Close()

	cfg := testCfg()
	cfg.GeminiBaseURL = gemini.URL
	s := NewServer(cfg, storage.NewMemoryStateStore())
	h := s.Routes()

	doJSON(t, h, http.MethodPut, "/keys", map[string]string{"gemini": "gkey"})

	s.mu.Lock()
	s.state.topic = "graph neural networks"
	s.mu.Unlock()

	rec := doJSON(t, h, http.MethodPost, "/sections/generate", map[string]any{
		"sectionType": "introduction",
		"provider":    "gemini",
		"model":       "gemini-test",
		"autoPrompt":  true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	if calls != 3 {
		t.Fatalf("expected 3 provider calls, got %d", calls)
	}

	rec = doJSON(t, h, http.MethodGet, "/sections", nil)
	if !strings.Contains(rec.Body.String(), "Final section text.") {
		t.Fatalf("stored section missing: %s", rec.Body.String())
	}
}

func TestFileUploadAndDelete(t *testing.T) {
	s := NewServer(testCfg(), storage.NewMemoryStateStore())
	h := s.Routes()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("files", "notes.txt")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte("uploaded notes")); err != nil {
		t.Fatalf("write: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Files []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"files"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Files) != 1 || resp.Files[0].Status != "ready" {
		t.Fatalf("files = %+v", resp.Files)
	}

	rec = doJSON(t, h, http.MethodDelete, "/files/"+resp.Files[0].ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/files", nil)
	body := decodeBody(t, rec)
	if files := body["files"].([]any); len(files) != 0 {
		t.Fatalf("files after delete = %v", files)
	}
}

func TestCitationsRequireText(t *testing.T) {
	s := NewServer(testCfg(), storage.NewMemoryStateStore())
	rec := doJSON(t, s.Routes(), http.MethodPost, "/citations", map[string]any{
		"text":     "  ",
		"provider": "gemini",
		"model":    "m",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestChatConfigRoundTrip(t *testing.T) {
	s := NewServer(testCfg(), storage.NewMemoryStateStore())
	h := s.Routes()

	rec := doJSON(t, h, http.MethodPut, "/chat/config", map[string]any{
		"provider":   "openrouter",
		"useContext": true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/chat/config", nil)
	body := decodeBody(t, rec)
	if body["provider"] != "openrouter" || body["useContext"] != true {
		t.Fatalf("config = %v", body)
	}
}

func TestChatRejectsUnknownProvider(t *testing.T) {
	s := NewServer(testCfg(), storage.NewMemoryStateStore())
	rec := doJSON(t, s.Routes(), http.MethodPut, "/chat/config", map[string]any{"provider": "claude"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}
