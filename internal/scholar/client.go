package scholar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"paperdraft/internal/models"
)

// searchFields is the fixed field-selection list sent on every search.
const searchFields = "paperId,title,authors.name,year,abstract,url,venue,citationCount"

// apiPageLimit is the largest page the search endpoint allows.
const apiPageLimit = 100

// Client talks to the Semantic Scholar paper-search endpoint. That is the
// only endpoint this system uses.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://api.semanticscholar.org/graph/v1/paper/search"
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type SearchResult struct {
	Papers []models.Paper
	Total  int
	Offset int
}

type wirePaper struct {
	PaperID string `json:"paperId"`
	Title   string `json:"title"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	Year          *int    `json:"year"`
	Abstract      *string `json:"abstract"`
	URL           *string `json:"url"`
	Venue         *string `json:"venue"`
	CitationCount *int    `json:"citationCount"`
}

func (w wirePaper) toModel() models.Paper {
	p := models.Paper{
		PaperID:       w.PaperID,
		Title:         w.Title,
		Year:          w.Year,
		CitationCount: w.CitationCount,
	}
	if p.Title == "" {
		p.Title = "N/A"
	}
	for _, a := range w.Authors {
		p.Authors = append(p.Authors, a.Name)
	}
	if w.Abstract != nil {
		p.Abstract = *w.Abstract
	}
	if w.URL != nil {
		p.URL = *w.URL
	}
	if w.Venue != nil {
		p.Venue = *w.Venue
	}
	return p
}

// Search runs one paged search. The API key travels in the x-api-key header.
func (c *Client) Search(ctx context.Context, apiKey, topic string, limit, offset int) (SearchResult, error) {
	if apiKey == "" {
		return SearchResult{}, fmt.Errorf("semantic scholar api key is required and not provided")
	}
	q := url.Values{}
	q.Set("query", topic)
	q.Set("fields", searchFields)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return SearchResult{}, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("x-api-key", apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return SearchResult{}, fmt.Errorf("semantic scholar request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		var errBody struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		msg := resp.Status
		if err := json.Unmarshal(raw, &errBody); err == nil {
			if errBody.Message != "" {
				msg = errBody.Message
			} else if errBody.Error != "" {
				msg = errBody.Error
			}
		}
		return SearchResult{}, fmt.Errorf("semantic scholar api error: %s", msg)
	}

	var parsed struct {
		Total  int         `json:"total"`
		Offset int         `json:"offset"`
		Data   []wirePaper `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return SearchResult{}, fmt.Errorf("decode search response: %w", err)
	}

	out := SearchResult{Total: parsed.Total, Offset: parsed.Offset}
	for _, w := range parsed.Data {
		out.Papers = append(out.Papers, w.toModel())
	}
	return out, nil
}

// FetchAll crawls result pages for a topic until min(reported total,
// practicalLimit) papers are collected, a page comes back empty, or a page
// request fails (failures abort the crawl). Papers are deduplicated by id
// across pages.
func (c *Client) FetchAll(ctx context.Context, apiKey, topic string, practicalLimit int) ([]models.Paper, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("semantic scholar api key is required for fetching all papers")
	}

	probe, err := c.Search(ctx, apiKey, topic, 1, 0)
	if err != nil {
		return nil, fmt.Errorf("initial paper count probe: %w", err)
	}
	if probe.Total == 0 {
		return nil, nil
	}

	cap := probe.Total
	if practicalLimit < cap {
		cap = practicalLimit
	}

	collected := make([]models.Paper, 0, cap)
	seen := make(map[string]bool, cap)
	offset := 0
	for offset < cap && len(collected) < cap {
		pageSize := cap - len(collected)
		if pageSize > apiPageLimit {
			pageSize = apiPageLimit
		}
		page, err := c.Search(ctx, apiKey, topic, pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("fetch page at offset %d: %w", offset, err)
		}
		if len(page.Papers) == 0 {
			break
		}
		for _, p := range page.Papers {
			if p.PaperID == "" || seen[p.PaperID] {
				continue
			}
			seen[p.PaperID] = true
			collected = append(collected, p)
		}
		offset += len(page.Papers)
	}
	if len(collected) > cap {
		collected = collected[:cap]
	}
	return collected, nil
}
