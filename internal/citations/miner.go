package citations

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"paperdraft/internal/models"
	"paperdraft/internal/prompts"
	"paperdraft/internal/providers"
	"paperdraft/internal/scholar"
	"paperdraft/internal/util"
)

const (
	maxQueries      = 3
	papersPerQuery  = 5
	maxUniquePapers = 15

	// NoPapersMessage is returned as the mining result when every query
	// came back empty.
	NoPapersMessage = "No relevant papers found by Semantic Scholar for the given text. Try rephrasing or provide more specific text."
)

var fenceRegex = regexp.MustCompile("(?s)^```(\\w*)?\\s*\n?(.*?)\n?\\s*```$")

// StripCodeFence removes a single wrapping Markdown code fence, if present.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRegex.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[2])
	}
	return s
}

// Request is one citation mining run: the text to cite, the AI backend to
// analyze it with, and the Semantic Scholar key for paper search.
type Request struct {
	Text               string
	Provider           models.Provider
	Model              string
	APIKey             string
	SemanticScholarKey string
}

type Miner struct {
	generators map[models.Provider]providers.Generator
	scholar    *scholar.Client
}

func NewMiner(generators map[models.Provider]providers.Generator, sc *scholar.Client) *Miner {
	return &Miner{generators: generators, scholar: sc}
}

func (m *Miner) validate(req Request) error {
	if strings.TrimSpace(req.Text) == "" {
		return util.Precondition("enter some text to find citations for")
	}
	if req.SemanticScholarKey == "" {
		return util.Precondition("Semantic Scholar API key is not set")
	}
	if !req.Provider.Valid() {
		return util.Precondition(fmt.Sprintf("unknown provider %q", req.Provider))
	}
	if req.APIKey == "" {
		return util.Precondition(fmt.Sprintf("no API key configured for %s", req.Provider))
	}
	if strings.TrimSpace(req.Model) == "" {
		return util.Precondition(fmt.Sprintf("no model selected for %s", req.Provider))
	}
	return nil
}

// Mine extracts search queries from the text, gathers candidate papers, and
// asks the model to insert citation markers and a references list.
func (m *Miner) Mine(ctx context.Context, req Request) (string, error) {
	if err := m.validate(req); err != nil {
		return "", err
	}
	gen := m.generators[req.Provider]

	queries, err := m.extractQueries(ctx, gen, req)
	if err != nil {
		return "", err
	}

	papers := m.gatherPapers(ctx, req.SemanticScholarKey, queries)
	if len(papers) == 0 {
		return NoPapersMessage, nil
	}

	result, err := gen.Generate(ctx, providers.GenerateRequest{
		APIKey:            req.APIKey,
		Model:             req.Model,
		Parts:             []providers.Part{providers.TextPart(prompts.CitationUserPrompt(req.Text, paperDetailsBlock(papers)))},
		SystemInstruction: prompts.CitationSystemInstruction,
	})
	if err != nil {
		return "", fmt.Errorf("citation analysis: %w", err)
	}
	return result.Text, nil
}

func (m *Miner) extractQueries(ctx context.Context, gen providers.Generator, req Request) ([]string, error) {
	result, err := gen.Generate(ctx, providers.GenerateRequest{
		APIKey:            req.APIKey,
		Model:             req.Model,
		Parts:             []providers.Part{providers.TextPart(prompts.QueryExtractionPrompt(req.Text))},
		SystemInstruction: prompts.QueryExtractionSystemInstruction,
	})
	if err != nil {
		return nil, fmt.Errorf("extract search queries: %w", err)
	}

	raw := StripCodeFence(result.Text)
	var queries []string
	if err := json.Unmarshal([]byte(raw), &queries); err != nil {
		return nil, fmt.Errorf("parse search queries from AI response %q: %w", result.Text, err)
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("AI did not return any search queries")
	}
	for _, q := range queries {
		if strings.TrimSpace(q) == "" {
			return nil, fmt.Errorf("AI returned an empty search query")
		}
	}
	if len(queries) > maxQueries {
		queries = queries[:maxQueries]
	}
	return queries, nil
}

// gatherPapers runs the queries against Semantic Scholar, deduplicating by
// paper id and stopping once enough unique papers are collected. A failed
// query is logged and skipped rather than aborting the run.
func (m *Miner) gatherPapers(ctx context.Context, scholarKey string, queries []string) []models.Paper {
	var papers []models.Paper
	seen := make(map[string]bool)
	for _, query := range queries {
		res, err := m.scholar.Search(ctx, scholarKey, query, papersPerQuery, 0)
		if err != nil {
			log.Printf("citation search %q failed: %v", query, err)
			continue
		}
		for _, p := range res.Papers {
			if p.PaperID == "" || seen[p.PaperID] {
				continue
			}
			seen[p.PaperID] = true
			papers = append(papers, p)
		}
		if len(papers) >= maxUniquePapers {
			break
		}
	}
	return papers
}

func paperDetailsBlock(papers []models.Paper) string {
	blocks := make([]string, 0, len(papers))
	for i, p := range papers {
		authors := "N/A"
		if len(p.Authors) > 0 {
			authors = strings.Join(p.Authors, ", ")
		}
		year := "N/A"
		if p.Year != nil {
			year = fmt.Sprintf("%d", *p.Year)
		}
		blocks = append(blocks, fmt.Sprintf("Paper %d:\nTitle: %s\nAuthors: %s\nYear: %s\nVenue: %s\nURL: %s\nAbstract: %s\n",
			i+1, orNA(p.Title), authors, year, orNA(p.Venue), orNA(p.URL), orNA(p.Abstract)))
	}
	return strings.Join(blocks, "\n")
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
