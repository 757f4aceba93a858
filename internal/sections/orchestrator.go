package sections

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"paperdraft/internal/contextbuild"
	"paperdraft/internal/models"
	"paperdraft/internal/prompts"
	"paperdraft/internal/providers"
	"paperdraft/internal/util"
)

// Request carries everything one section generation needs. Credentials are
// per-request; the orchestrator holds no keys.
type Request struct {
	Kind     models.SectionKind
	Topic    string
	Provider models.Provider
	Model    string
	APIKey   string

	// AutoPrompt selects the two-stage pipeline that synthesizes its own
	// system instruction. When false, Requirements is refined once and
	// embedded in a fixed instruction template instead.
	AutoPrompt   bool
	Requirements string

	UseSearchGrounding bool

	Context contextbuild.Inputs
}

// Orchestrator runs the multi-stage prompt pipeline and the final
// generation call for one section at a time.
type Orchestrator struct {
	generators      map[models.Provider]providers.Generator
	maxContextWords int
}

func NewOrchestrator(generators map[models.Provider]providers.Generator, maxContextWords int) *Orchestrator {
	return &Orchestrator{generators: generators, maxContextWords: maxContextWords}
}

// Validate checks a request's preconditions without running it.
func Validate(req Request) error {
	if !req.Kind.Valid() {
		return util.Precondition(fmt.Sprintf("unknown section kind %q", req.Kind))
	}
	if !req.Provider.Valid() {
		return util.Precondition(fmt.Sprintf("unknown provider %q", req.Provider))
	}
	if req.Model == "" {
		return util.Precondition("no model selected")
	}
	if req.APIKey == "" {
		return util.Precondition(fmt.Sprintf("no API key configured for %s", req.Provider))
	}
	switch req.Kind {
	case models.SectionOther:
		if strings.TrimSpace(req.Topic) == "" && strings.TrimSpace(req.Requirements) == "" {
			return util.Precondition("provide a research topic or custom requirements")
		}
	default:
		if strings.TrimSpace(req.Topic) == "" {
			return util.Precondition("research topic is required")
		}
	}
	if !req.AutoPrompt && req.Kind != models.SectionOther && strings.TrimSpace(req.Requirements) == "" {
		return util.Precondition("requirements are required when auto-prompt is off")
	}
	return nil
}

// Generate validates, runs any intermediate prompt-engineering calls, then
// performs the final generation. Validation failures return a
// PreconditionError before any provider call is made.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (models.GeneratedSection, error) {
	if err := Validate(req); err != nil {
		return models.GeneratedSection{}, err
	}
	gen := o.generators[req.Provider]

	sysInstruction, userQuery, err := o.buildPrompts(ctx, gen, req)
	if err != nil {
		return models.GeneratedSection{}, err
	}

	paperContext := contextbuild.BuildPaperContext(req.Context, o.maxContextWords)
	fileBlock := contextbuild.GenerationFileBlock(req.Context.Files)
	finalPrompt := prompts.FinalGenerationPrompt(req.Kind, userQuery, paperContext, fileBlock)

	parts := []providers.Part{providers.TextPart(finalPrompt)}
	useGrounding := false
	if req.Provider == models.ProviderGemini {
		parts = append(parts, imageParts(req.Context.Files)...)
		useGrounding = req.UseSearchGrounding
	}

	result, err := gen.Generate(ctx, providers.GenerateRequest{
		APIKey:             req.APIKey,
		Model:              req.Model,
		Parts:              parts,
		SystemInstruction:  sysInstruction,
		UseSearchGrounding: useGrounding,
	})
	if err != nil {
		return models.GeneratedSection{}, fmt.Errorf("generate %s: %w", req.Kind, err)
	}
	return models.GeneratedSection{Content: result.Text, Grounding: result.Grounding}, nil
}

// buildPrompts resolves the system instruction and user query for the final
// call, running intermediate provider calls as the mode demands.
func (o *Orchestrator) buildPrompts(ctx context.Context, gen providers.Generator, req Request) (string, string, error) {
	if req.Kind == models.SectionOther {
		return prompts.OtherSystemInstruction(), prompts.OtherUserQuery(req.Topic, req.Requirements), nil
	}

	if req.AutoPrompt {
		task := prompts.AutoPromptTask(req.Kind, req.Topic)
		generated, err := o.callIntermediate(ctx, gen, req, prompts.DeepResearchQueryTemplate, task, "prompt generation")
		if err != nil {
			return "", "", err
		}
		refined, err := o.callIntermediate(ctx, gen, req, prompts.AdvancedPromptRefinerTemplate, generated, "prompt refinement")
		if err != nil {
			return "", "", err
		}
		return refined, prompts.AutoPromptUserQuery(req.Topic), nil
	}

	refined, err := o.callIntermediate(ctx, gen, req, prompts.AdvancedPromptRefinerTemplate, req.Requirements, "requirements refinement")
	if err != nil {
		return "", "", err
	}
	return prompts.RequirementsSystemInstruction(req.Kind), prompts.RequirementsUserQuery(req.Kind, req.Topic, refined), nil
}

// callIntermediate performs one prompt-engineering call. Grounding and
// images never apply here; an empty reply fails the whole generation.
func (o *Orchestrator) callIntermediate(ctx context.Context, gen providers.Generator, req Request, system, user, stage string) (string, error) {
	result, err := gen.Generate(ctx, providers.GenerateRequest{
		APIKey:            req.APIKey,
		Model:             req.Model,
		Parts:             []providers.Part{providers.TextPart(user)},
		SystemInstruction: system,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", stage, err)
	}
	if strings.TrimSpace(result.Text) == "" {
		return "", fmt.Errorf("%s: provider returned an empty response", stage)
	}
	return result.Text, nil
}

func imageParts(files []models.UploadedFile) []providers.Part {
	var parts []providers.Part
	for _, f := range contextbuild.ReadyImages(files) {
		data, err := base64.StdEncoding.DecodeString(f.Base64Data)
		if err != nil {
			continue
		}
		parts = append(parts, providers.InlinePart(f.MIMEType, data))
	}
	return parts
}
