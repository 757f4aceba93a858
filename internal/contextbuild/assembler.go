package contextbuild

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"paperdraft/internal/models"
	"paperdraft/internal/util"
)

// Inputs is everything the assembler draws context from: the paper selection
// (resolved through the cache), the live result page used when nothing is
// selected, ready uploaded files, and previously generated sections.
type Inputs struct {
	SelectedIDs  []string
	Cache        map[string]models.Paper
	Page         []models.Paper
	Files        []models.UploadedFile
	Intro        string
	RelatedWorks string
	Other        string
}

const paperSummariesHeader = "Summaries of relevant papers (including URLs if available):\n"

// CandidatePapers resolves the papers to consider: the selection mapped
// through the cache when non-empty, otherwise the live page. Selected ids
// missing from the cache are silently skipped.
func CandidatePapers(selectedIDs []string, cache map[string]models.Paper, page []models.Paper) []models.Paper {
	out := make([]models.Paper, 0, len(selectedIDs))
	if len(selectedIDs) > 0 {
		for _, id := range selectedIDs {
			if p, ok := cache[id]; ok {
				out = append(out, p)
			}
		}
		return out
	}
	for _, p := range page {
		if cached, ok := cache[p.PaperID]; ok {
			out = append(out, cached)
		}
	}
	return out
}

// SortPapers orders papers by citation count descending then year
// descending, nils treated as zero. The sort is stable so equal papers keep
// their input order.
func SortPapers(papers []models.Paper) {
	sort.SliceStable(papers, func(i, j int) bool {
		ci, cj := intOrZero(papers[i].CitationCount), intOrZero(papers[j].CitationCount)
		if ci != cj {
			return ci > cj
		}
		return intOrZero(papers[i].Year) > intOrZero(papers[j].Year)
	})
}

func intOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func fieldOrNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func yearOrNA(y *int) string {
	if y == nil {
		return "N/A"
	}
	return strconv.Itoa(*y)
}

func authorsOrNA(authors []string) string {
	if len(authors) == 0 {
		return "N/A"
	}
	return strings.Join(authors, ", ")
}

func paperBlock(number int, p models.Paper) string {
	prefix := ""
	if number > 0 {
		prefix = fmt.Sprintf("[%d] ", number)
	}
	return fmt.Sprintf("%sTitle: %s\nAuthors: %s\nYear: %s\nVenue: %s\nURL: %s\nAbstract: %s\n\n",
		prefix, fieldOrNA(p.Title), authorsOrNA(p.Authors), yearOrNA(p.Year),
		fieldOrNA(p.Venue), fieldOrNA(p.URL), fieldOrNA(p.Abstract))
}

// BuildPaperContext renders the numbered paper context used for section
// generation. Candidates are sorted and appended while the running word
// count stays at or under the cap; the first block that would exceed it ends
// the loop with no partial inclusion.
func BuildPaperContext(in Inputs, capWords int) string {
	papers := CandidatePapers(in.SelectedIDs, in.Cache, in.Page)
	SortPapers(papers)

	var b strings.Builder
	words := 0
	number := 1
	for _, p := range papers {
		block := paperBlock(number, p)
		blockWords := util.CountWords(block)
		if words+blockWords > capWords {
			break
		}
		b.WriteString(block)
		words += blockWords
		number++
	}
	return strings.TrimSpace(b.String())
}

// GenerationFileBlock wraps ready uploaded text files with the boundary
// markers used in final generation prompts.
func GenerationFileBlock(files []models.UploadedFile) string {
	var parts []string
	for _, f := range files {
		if f.Status == models.FileReady && f.ExtractedText != "" {
			parts = append(parts, fmt.Sprintf("--- Content from uploaded file: %s (cite by filename) ---\n%s\n--- End of content from %s ---\n\n", f.Name, f.ExtractedText, f.Name))
		}
	}
	return strings.Join(parts, "")
}

func chatFileBlock(files []models.UploadedFile) string {
	var parts []string
	for _, f := range files {
		if f.Status == models.FileReady && f.ExtractedText != "" {
			parts = append(parts, fmt.Sprintf("--- From uploaded file: %s ---\n%s\n--- End of file: %s ---", f.Name, f.ExtractedText, f.Name))
		}
	}
	return strings.Join(parts, "\n\n")
}

// BuildChatContext renders the larger unified blob injected into a fresh
// context-mode conversation: paper summaries first, then uploaded-file text
// and the three prior sections, each folded in wholesale only if it fits the
// remaining budget. A block that does not fit is skipped entirely and the
// next candidate is still attempted.
func BuildChatContext(in Inputs, capWords int) string {
	papers := CandidatePapers(in.SelectedIDs, in.Cache, in.Page)
	SortPapers(papers)

	var combined strings.Builder
	words := 0

	paperSection := paperSummariesHeader
	for _, p := range papers {
		block := paperBlock(0, p)
		blockWords := util.CountWords(block)
		if words+blockWords > capWords {
			break
		}
		paperSection += block
		words += blockWords
	}
	if paperSection != paperSummariesHeader {
		combined.WriteString(paperSection)
	}

	appendWhole := func(label, content string) {
		if content == "" {
			return
		}
		blockWords := util.CountWords(content)
		if words+blockWords > capWords {
			return
		}
		if combined.Len() > 0 {
			combined.WriteString("\n\n")
		}
		combined.WriteString(label)
		combined.WriteString(content)
		words += blockWords
	}

	appendWhole("Additional context from uploaded documents:\n", chatFileBlock(in.Files))
	appendWhole("Previously generated Introduction section:\n", in.Intro)
	appendWhole("Previously generated Related Works section:\n", in.RelatedWorks)
	appendWhole("Previously generated \"Other Things\" section:\n", in.Other)

	return strings.TrimSpace(combined.String())
}

// ReadyImages returns the ready image uploads eligible for inline
// attachment.
func ReadyImages(files []models.UploadedFile) []models.UploadedFile {
	var out []models.UploadedFile
	for _, f := range files {
		if f.Status == models.FileReady && f.Base64Data != "" && strings.HasPrefix(f.MIMEType, "image/") {
			out = append(out, f)
		}
	}
	return out
}
