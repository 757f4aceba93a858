package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"paperdraft/internal/chat"
	"paperdraft/internal/citations"
	"paperdraft/internal/config"
	"paperdraft/internal/contextbuild"
	"paperdraft/internal/models"
	"paperdraft/internal/providers"
	"paperdraft/internal/scholar"
	"paperdraft/internal/sections"
	"paperdraft/internal/storage"
	"paperdraft/internal/uploads"
	"paperdraft/internal/util"
)

type apiKeys struct {
	Gemini          string
	OpenRouter      string
	SemanticScholar string
}

// appState is the drafting workspace: topic, search results and selection,
// uploaded files, and generated sections. Keys live here in memory only and
// are never persisted.
type appState struct {
	keys apiKeys

	topic       string
	page        int
	totalPapers int
	pagePapers  []models.Paper
	paperCache  map[string]models.Paper
	selectedIDs []string

	files    []models.UploadedFile
	sections map[models.SectionKind]models.GeneratedSection

	searchLoading     bool
	generationLoading bool
	citationsLoading  bool
	chatLoading       bool

	// crawlGeneration invalidates a select-all crawl started before the
	// topic or search state changed under it.
	crawlGeneration int
}

type Server struct {
	cfg        config.Config
	store      storage.StateStore
	scholar    *scholar.Client
	generators map[models.Provider]providers.Generator
	orch       *sections.Orchestrator
	miner      *citations.Miner
	chat       *chat.Manager

	mu    sync.Mutex
	state appState
}

func NewServer(cfg config.Config, store storage.StateStore) *Server {
	gemini := providers.NewGeminiClient(cfg.GeminiBaseURL)
	openRouter := providers.NewOpenRouterClient(cfg.OpenRouterBaseURL)
	generators := map[models.Provider]providers.Generator{
		models.ProviderGemini:     gemini,
		models.ProviderOpenRouter: openRouter,
	}
	sc := scholar.NewClient(cfg.SemanticScholarBaseURL)

	s := &Server{
		cfg:        cfg,
		store:      store,
		scholar:    sc,
		generators: generators,
		orch:       sections.NewOrchestrator(generators, cfg.MaxContextWords),
		miner:      citations.NewMiner(generators, sc),
		chat: chat.NewManager(gemini, openRouter, chat.Config{
			Provider:        models.ProviderGemini,
			GeminiModel:     cfg.DefaultGeminiModel,
			OpenRouterModel: cfg.DefaultOpenRouterModel,
		}),
		state: appState{
			page:       1,
			paperCache: make(map[string]models.Paper),
			sections:   make(map[models.SectionKind]models.GeneratedSection),
		},
	}
	s.restoreState()
	return s
}

// restoreState reloads the persisted workspace. Missing or stale slots fall
// back to zero values silently.
func (s *Server) restoreState() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var topic string
	if ok, err := s.store.Load(ctx, storage.SlotTopic, storage.SchemaVersions[storage.SlotTopic], &topic); err != nil {
		log.Printf("restore topic: %v", err)
	} else if ok {
		s.state.topic = topic
	}
	var selected []string
	if ok, err := s.store.Load(ctx, storage.SlotSelectedIDs, storage.SchemaVersions[storage.SlotSelectedIDs], &selected); err != nil {
		log.Printf("restore selection: %v", err)
	} else if ok {
		s.state.selectedIDs = selected
	}
	var cache map[string]models.Paper
	if ok, err := s.store.Load(ctx, storage.SlotPaperCache, storage.SchemaVersions[storage.SlotPaperCache], &cache); err != nil {
		log.Printf("restore paper cache: %v", err)
	} else if ok && cache != nil {
		s.state.paperCache = cache
	}
	var secs map[models.SectionKind]models.GeneratedSection
	if ok, err := s.store.Load(ctx, storage.SlotSections, storage.SchemaVersions[storage.SlotSections], &secs); err != nil {
		log.Printf("restore sections: %v", err)
	} else if ok && secs != nil {
		s.state.sections = secs
	}
}

func (s *Server) persist(slot string, value any) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.Save(ctx, slot, storage.SchemaVersions[slot], value); err != nil {
		log.Printf("persist %s: %v", slot, err)
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/keys", s.handleKeys)
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/papers", s.handlePapers)
	mux.HandleFunc("/papers/select", s.handleSelect)
	mux.HandleFunc("/papers/select-all", s.handleSelectAll)
	mux.HandleFunc("/files", s.handleFiles)
	mux.HandleFunc("/files/", s.handleFileScoped)
	mux.HandleFunc("/sections", s.handleSections)
	mux.HandleFunc("/sections/generate", s.handleGenerate)
	mux.HandleFunc("/chat/messages", s.handleChatMessages)
	mux.HandleFunc("/chat/config", s.handleChatConfig)
	mux.HandleFunc("/chat/reset", s.handleChatReset)
	mux.HandleFunc("/citations", s.handleCitations)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"defaultGeminiModel":     s.cfg.DefaultGeminiModel,
		"defaultOpenRouterModel": s.cfg.DefaultOpenRouterModel,
		"geminiModels":           models.AvailableGeminiModels,
		"openRouterModels":       models.AvailableOpenRouterModels,
		"papersPerPage":          s.cfg.PapersPerPage,
		"maxUploadBytes":         s.cfg.MaxUploadBytes,
	})
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.mu.Lock()
		k := s.state.keys
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{
			"gemini":          k.Gemini != "",
			"openRouter":      k.OpenRouter != "",
			"semanticScholar": k.SemanticScholar != "",
		})
	case http.MethodPut:
		var req struct {
			Gemini          *string `json:"gemini"`
			OpenRouter      *string `json:"openRouter"`
			SemanticScholar *string `json:"semanticScholar"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
		s.mu.Lock()
		if req.Gemini != nil {
			s.state.keys.Gemini = strings.TrimSpace(*req.Gemini)
		}
		if req.OpenRouter != nil {
			s.state.keys.OpenRouter = strings.TrimSpace(*req.OpenRouter)
		}
		if req.SemanticScholar != nil {
			s.state.keys.SemanticScholar = strings.TrimSpace(*req.SemanticScholar)
		}
		keys := s.state.keys
		s.mu.Unlock()

		cc := s.chat.Config()
		cc.GeminiKey = keys.Gemini
		cc.OpenRouterKey = keys.OpenRouter
		s.chat.Reconfigure(cc)

		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		Topic string `json:"topic"`
		Page  int    `json:"page"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		writeErr(w, http.StatusBadRequest, util.Precondition("research topic is required"))
		return
	}
	if req.Page < 1 {
		req.Page = 1
	}

	s.mu.Lock()
	if s.state.keys.SemanticScholar == "" {
		s.mu.Unlock()
		writeErr(w, http.StatusBadRequest, util.Precondition("Semantic Scholar API key is not set"))
		return
	}
	if s.state.searchLoading {
		s.mu.Unlock()
		writeErr(w, http.StatusConflict, fmt.Errorf("a search is already in progress"))
		return
	}
	s.state.searchLoading = true
	if req.Topic != s.state.topic {
		// New topic: any crawl still running belongs to the old one.
		s.state.crawlGeneration++
		s.state.selectedIDs = nil
	}
	apiKey := s.state.keys.SemanticScholar
	s.mu.Unlock()

	offset := (req.Page - 1) * s.cfg.PapersPerPage
	result, err := s.scholar.Search(r.Context(), apiKey, req.Topic, s.cfg.PapersPerPage, offset)

	s.mu.Lock()
	s.state.searchLoading = false
	if err != nil {
		s.mu.Unlock()
		writeErr(w, http.StatusBadGateway, err)
		return
	}
	s.state.topic = req.Topic
	s.state.page = req.Page
	s.state.totalPapers = result.Total
	s.state.pagePapers = result.Papers
	for _, p := range result.Papers {
		s.state.paperCache[p.PaperID] = p
	}
	topic, selected := s.state.topic, s.state.selectedIDs
	cache := copyCache(s.state.paperCache)
	s.mu.Unlock()

	s.persist(storage.SlotTopic, topic)
	s.persist(storage.SlotPaperCache, cache)
	s.persist(storage.SlotSelectedIDs, selected)

	writeJSON(w, http.StatusOK, map[string]any{
		"papers": result.Papers,
		"total":  result.Total,
		"page":   req.Page,
	})
}

func (s *Server) handlePapers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	s.mu.Lock()
	resp := map[string]any{
		"topic":       s.state.topic,
		"page":        s.state.page,
		"total":       s.state.totalPapers,
		"papers":      s.state.pagePapers,
		"selectedIds": s.state.selectedIDs,
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		PaperID  string `json:"paperId"`
		Selected bool   `json:"selected"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if req.PaperID == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("paperId is required"))
		return
	}

	s.mu.Lock()
	if _, ok := s.state.paperCache[req.PaperID]; !ok && req.Selected {
		s.mu.Unlock()
		writeErr(w, http.StatusNotFound, fmt.Errorf("unknown paper %s", req.PaperID))
		return
	}
	ids := s.state.selectedIDs[:0:0]
	for _, id := range s.state.selectedIDs {
		if id != req.PaperID {
			ids = append(ids, id)
		}
	}
	if req.Selected {
		ids = append(ids, req.PaperID)
	}
	s.state.selectedIDs = ids
	selected := s.state.selectedIDs
	s.mu.Unlock()

	s.persist(storage.SlotSelectedIDs, selected)
	writeJSON(w, http.StatusOK, map[string]any{"selectedIds": selected})
}

// handleSelectAll crawls every result for the current topic and selects
// them. The crawl generation captured at the start invalidates the result
// if the topic changes while pages are still being fetched.
func (s *Server) handleSelectAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}

	s.mu.Lock()
	if s.state.topic == "" {
		s.mu.Unlock()
		writeErr(w, http.StatusBadRequest, util.Precondition("research topic is required"))
		return
	}
	if s.state.keys.SemanticScholar == "" {
		s.mu.Unlock()
		writeErr(w, http.StatusBadRequest, util.Precondition("Semantic Scholar API key is not set"))
		return
	}
	if s.state.searchLoading {
		s.mu.Unlock()
		writeErr(w, http.StatusConflict, fmt.Errorf("a search is already in progress"))
		return
	}
	s.state.searchLoading = true
	generation := s.state.crawlGeneration
	topic, apiKey := s.state.topic, s.state.keys.SemanticScholar
	s.mu.Unlock()

	papers, err := s.scholar.FetchAll(r.Context(), apiKey, topic, s.cfg.SelectAllLimit)

	s.mu.Lock()
	s.state.searchLoading = false
	if err != nil {
		s.mu.Unlock()
		writeErr(w, http.StatusBadGateway, err)
		return
	}
	if generation != s.state.crawlGeneration {
		s.mu.Unlock()
		writeErr(w, http.StatusConflict, fmt.Errorf("search state changed during the crawl"))
		return
	}
	ids := make([]string, 0, len(papers))
	for _, p := range papers {
		s.state.paperCache[p.PaperID] = p
		ids = append(ids, p.PaperID)
	}
	s.state.selectedIDs = ids
	cache := copyCache(s.state.paperCache)
	s.mu.Unlock()

	s.persist(storage.SlotPaperCache, cache)
	s.persist(storage.SlotSelectedIDs, ids)
	writeJSON(w, http.StatusOK, map[string]any{"selectedIds": ids, "count": len(ids)})
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.mu.Lock()
		files := listedFiles(s.state.files)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"files": files})
	case http.MethodPost:
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
			return
		}
		fhs := r.MultipartForm.File["files"]
		if len(fhs) == 0 {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("no files provided"))
			return
		}
		now := time.Now().UnixMilli()
		var processed []models.UploadedFile
		for _, fh := range fhs {
			f, err := fh.Open()
			if err != nil {
				writeErr(w, http.StatusBadRequest, fmt.Errorf("open upload %s: %w", fh.Filename, err))
				return
			}
			content, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
			f.Close()
			if err != nil {
				writeErr(w, http.StatusBadRequest, fmt.Errorf("read upload %s: %w", fh.Filename, err))
				return
			}
			processed = append(processed, uploads.ProcessFile(fh.Filename, fh.Header.Get("Content-Type"), now, content, s.cfg.MaxUploadBytes))
		}

		s.mu.Lock()
		for _, p := range processed {
			replaced := false
			for i, existing := range s.state.files {
				if existing.ID == p.ID {
					s.state.files[i] = p
					replaced = true
					break
				}
			}
			if !replaced {
				s.state.files = append(s.state.files, p)
			}
		}
		files := listedFiles(s.state.files)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"files": files})
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleFileScoped(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/files/"), "/")
	if id == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	if r.Method != http.MethodDelete {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	s.mu.Lock()
	kept := s.state.files[:0:0]
	found := false
	for _, f := range s.state.files {
		if f.ID == id {
			found = true
			continue
		}
		kept = append(kept, f)
	}
	s.state.files = kept
	s.mu.Unlock()
	if !found {
		writeErr(w, http.StatusNotFound, fmt.Errorf("unknown file %s", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func copyCache(cache map[string]models.Paper) map[string]models.Paper {
	out := make(map[string]models.Paper, len(cache))
	for id, p := range cache {
		out[id] = p
	}
	return out
}

// listedFiles strips bulky payload fields for listing responses.
func listedFiles(files []models.UploadedFile) []models.UploadedFile {
	out := make([]models.UploadedFile, len(files))
	copy(out, files)
	for i := range out {
		out[i].ExtractedText = ""
		out[i].Base64Data = ""
	}
	return out
}

func (s *Server) handleSections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	s.mu.Lock()
	secs := make(map[models.SectionKind]models.GeneratedSection, len(s.state.sections))
	for k, v := range s.state.sections {
		secs[k] = v
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"sections": secs})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		SectionType        models.SectionKind `json:"sectionType"`
		Provider           models.Provider    `json:"provider"`
		Model              string             `json:"model"`
		AutoPrompt         bool               `json:"autoPrompt"`
		Requirements       string             `json:"requirements"`
		UseSearchGrounding bool               `json:"useSearchGrounding"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}

	s.mu.Lock()
	if s.state.generationLoading {
		s.mu.Unlock()
		writeErr(w, http.StatusConflict, fmt.Errorf("a generation is already in progress"))
		return
	}
	genReq := sections.Request{
		Kind:               req.SectionType,
		Topic:              s.state.topic,
		Provider:           req.Provider,
		Model:              strings.TrimSpace(req.Model),
		APIKey:             s.providerKey(req.Provider),
		AutoPrompt:         req.AutoPrompt,
		Requirements:       req.Requirements,
		UseSearchGrounding: req.UseSearchGrounding,
		Context:            s.contextInputs(),
	}
	// Validate before flipping the loading flag or clearing the slot, so
	// a blocked request leaves the previous result intact.
	if err := sections.Validate(genReq); err != nil {
		s.mu.Unlock()
		writeErr(w, statusFor(err), err)
		return
	}
	s.state.generationLoading = true
	delete(s.state.sections, req.SectionType)
	s.mu.Unlock()

	result, err := s.orch.Generate(r.Context(), genReq)

	s.mu.Lock()
	s.state.generationLoading = false
	if err != nil {
		s.state.sections[req.SectionType] = models.GeneratedSection{Error: err.Error()}
	} else {
		s.state.sections[req.SectionType] = result
	}
	secs := make(map[models.SectionKind]models.GeneratedSection, len(s.state.sections))
	for k, v := range s.state.sections {
		secs[k] = v
	}
	s.mu.Unlock()

	s.persist(storage.SlotSections, secs)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"section": result})
}

// contextInputs snapshots the assembler inputs. Caller holds s.mu.
func (s *Server) contextInputs() contextbuild.Inputs {
	intro := s.state.sections[models.SectionIntroduction]
	related := s.state.sections[models.SectionRelatedWorks]
	other := s.state.sections[models.SectionOther]
	files := make([]models.UploadedFile, len(s.state.files))
	copy(files, s.state.files)
	return contextbuild.Inputs{
		SelectedIDs:  s.state.selectedIDs,
		Cache:        copyCache(s.state.paperCache),
		Page:         s.state.pagePapers,
		Files:        files,
		Intro:        intro.Content,
		RelatedWorks: related.Content,
		Other:        other.Content,
	}
}

// providerKey returns the stored key for a provider. Caller holds s.mu.
func (s *Server) providerKey(p models.Provider) string {
	switch p {
	case models.ProviderGemini:
		return s.state.keys.Gemini
	case models.ProviderOpenRouter:
		return s.state.keys.OpenRouter
	}
	return ""
}

func (s *Server) handleChatMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"messages": s.chat.Messages()})
	case http.MethodPost:
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("text is required"))
			return
		}

		s.mu.Lock()
		if s.state.chatLoading {
			s.mu.Unlock()
			writeErr(w, http.StatusConflict, fmt.Errorf("a chat turn is already in progress"))
			return
		}
		s.state.chatLoading = true
		researchContext := ""
		if s.chat.Config().UseContext {
			researchContext = contextbuild.BuildChatContext(s.contextInputs(), s.cfg.MaxChatContextWords)
		}
		files := make([]models.UploadedFile, len(s.state.files))
		copy(files, s.state.files)
		s.mu.Unlock()

		reply, err := s.chat.Send(r.Context(), req.Text, researchContext, files)

		s.mu.Lock()
		s.state.chatLoading = false
		s.mu.Unlock()

		if err != nil {
			// The transcript already carries the error bubble; surface
			// the status too.
			writeJSON(w, statusFor(err), map[string]any{"reply": reply, "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"reply": reply})
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleChatConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cc := s.chat.Config()
		writeJSON(w, http.StatusOK, map[string]any{
			"provider":        cc.Provider,
			"geminiModel":     cc.GeminiModel,
			"openRouterModel": cc.OpenRouterModel,
			"useContext":      cc.UseContext,
		})
	case http.MethodPut:
		var req struct {
			Provider        *models.Provider `json:"provider"`
			GeminiModel     *string          `json:"geminiModel"`
			OpenRouterModel *string          `json:"openRouterModel"`
			UseContext      *bool            `json:"useContext"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
		cc := s.chat.Config()
		if req.Provider != nil {
			if !req.Provider.Valid() {
				writeErr(w, http.StatusBadRequest, fmt.Errorf("unknown provider %q", *req.Provider))
				return
			}
			cc.Provider = *req.Provider
		}
		if req.GeminiModel != nil {
			cc.GeminiModel = strings.TrimSpace(*req.GeminiModel)
		}
		if req.OpenRouterModel != nil {
			cc.OpenRouterModel = strings.TrimSpace(*req.OpenRouterModel)
		}
		if req.UseContext != nil {
			cc.UseContext = *req.UseContext
		}
		s.chat.Reconfigure(cc)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleChatReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	s.chat.Reset()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleCitations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		Text     string          `json:"text"`
		Provider models.Provider `json:"provider"`
		Model    string          `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}

	s.mu.Lock()
	if s.state.citationsLoading {
		s.mu.Unlock()
		writeErr(w, http.StatusConflict, fmt.Errorf("a citation run is already in progress"))
		return
	}
	s.state.citationsLoading = true
	mineReq := citations.Request{
		Text:               req.Text,
		Provider:           req.Provider,
		Model:              strings.TrimSpace(req.Model),
		APIKey:             s.providerKey(req.Provider),
		SemanticScholarKey: s.state.keys.SemanticScholar,
	}
	s.mu.Unlock()

	output, err := s.miner.Mine(r.Context(), mineReq)

	s.mu.Lock()
	s.state.citationsLoading = false
	s.mu.Unlock()

	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"output": output})
}

// statusFor maps an operation failure to a response status: precondition
// failures are client errors, provider failures follow their class.
func statusFor(err error) int {
	if util.IsPrecondition(err) {
		return http.StatusBadRequest
	}
	switch providers.ClassifyError(err) {
	case providers.ErrorQuota, providers.ErrorRate:
		return http.StatusTooManyRequests
	case providers.ErrorContext:
		return http.StatusRequestEntityTooLarge
	case providers.ErrorTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": err.Error(),
		},
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
