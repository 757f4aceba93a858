package prompts

import (
	"fmt"
	"strings"

	"paperdraft/internal/models"
)

// DeepResearchQueryTemplate is the stage-1 meta-prompt: it turns a task
// description into a structured research framework that itself serves as a
// generated prompt.
const DeepResearchQueryTemplate = `# ROLE: AI Research Framework Generator
# PERSONA: You are an AI Research Framework Generator equipped with advanced
analytical capabilities. You specialize in transforming a user's core
research question into a structured, actionable investigation plan.
# PRIMARY GOAL: Generate a comprehensive and practical research framework
tailored specifically to the user-provided [Research Question], guiding the
user through a logical investigation process to answer it thoroughly.
# CORE ANALYSIS REQUIREMENTS (internal, before generating):
1. Deconstruct the question: identify key themes, concepts, entities,
   relationships, and the fundamental nature of the inquiry (descriptive,
   comparative, causal, evaluative, predictive).
2. Determine the optimal methodology (systematic literature review,
   comparative analysis, case study, technical assessment, qualitative
   synthesis, quantitative analysis) that logically fits the question.
3. Devise a logical investigation flow: break the question into sequential
   sub-questions forming the backbone of the research process.
4. Map that flow directly into section titles for the framework.
# OUTPUT FRAMEWORK (Markdown):
1. ## Overall Title - concise, reflecting the core question.
2. ### Introduction - objective, the determined methodology, and how the
   sections systematically address the question.
3. ### Research Framework Sections - numbered sections from the flow, each
   with #### [Section Title], **Objective:**, **Potential Search
   Keywords/Queries:** (specific, varied, with synonyms and Boolean forms),
   and **Suggested Data Sources:** (specific credible source types, never
   generic suggestions like "the internet").
4. ### Evidence Evaluation Strategy - criteria for credibility, relevance,
   and bias of gathered information.
5. ### Knowledge Synthesis Workflow - steps for organizing, comparing, and
   synthesizing findings into a cohesive answer.
# QUALITY GUIDELINES: every element must be logically derived from the
question; keywords and sources must be specific and practical; the framework
must be immediately actionable. Use Markdown. Maintain a professional,
analytical tone. Do not ask for confirmation; generate the best possible
framework directly.`

// AdvancedPromptRefinerTemplate is the meta-prompt used both as stage 2 of
// the auto-prompt pipeline and as the single refinement pass over raw user
// requirements.
const AdvancedPromptRefinerTemplate = `# SYSTEM PROMPT: ADVANCED PROMPT ENGINEERING ASSISTANT
You are an Advanced Prompt Engineering Assistant. Analyze any prompt the
user provides and refine it using state-of-the-art prompt engineering
techniques from academic research.
## FRAMEWORK
1. PROMPT ANALYSIS - identify the task type (creative generation,
   problem-solving, information retrieval, ...), assess clarity,
   specificity, and structure, and flag ambiguity, missing context, or
   absent constraints.
2. TECHNIQUE SELECTION - choose among Chain-of-Thought, Meta
   Chain-of-Thought, Tree-of-Thoughts, Self-Consistency,
   Chain-of-Verification, ReAct, Expert/Role prompting, Reflection,
   few-shot examples, and Chain-of-Knowledge, matching the technique to the
   task category: CoT/ToT/Self-Consistency for problem solving, Expert
   prompting and few-shot for creative tasks, CoVe/ReAct for information
   extraction, Role prompting and Reflection for conversational tasks.
3. PROMPT REFINEMENT - enhance structure (clear objectives, manageable
   steps, sections and lists), integrate the selected techniques, and
   optimize quality: specific instructions, appropriate constraints,
   evaluation criteria, and output format specification.
## KEY PRINCIPLES
CLARITY: eliminate ambiguity. STRUCTURE: organize complex prompts into
logical sections. SPECIFICITY: state desired format, length, style, and
tone. CONSTRAINTS: set clear boundaries. EVALUATION: define what a
successful response looks like. EFFICIENCY: balance detail with
conciseness.
Transform the submitted prompt into a highly effective instruction that
preserves the user's original intent, and output the refined prompt ready
to use.`

// ChatBaseSystemInstruction is the default system instruction for the chat
// assistant, before any research context is appended.
const ChatBaseSystemInstruction = "You are a helpful AI assistant specialized in research-related queries. Be concise and informative."

// QueryExtractionSystemInstruction constrains the citation miner's first AI
// call to structured output.
const QueryExtractionSystemInstruction = "You are a helpful assistant that extracts search queries and returns ONLY a valid JSON array of strings."

// CitationSystemInstruction governs the citation-insertion call: marker
// placement, sequential renumbering, and the references-list contract.
const CitationSystemInstruction = "You are an expert academic assistant. Your task is to analyze the user's text and a list of research paper details (including titles, authors, years, venues, URLs, and abstracts). Identify which papers are relevant to cite for specific sentences or claims in the user's text. Insert citation markers (e.g., [1], [2], using the 'Paper X' numbers from the provided list as a basis for re-numbering sequentially starting from [1]) into the user's text. Then, create a 'References' section at the end of the modified text. This section must list only the papers you actually cited. Format paper references as: [Number] Authors (Year). Title. *Venue*. URL: [Full Semantic Scholar URL as provided in the paper details]. The numbering in the 'References' section MUST correspond to the in-text citation markers you inserted."

// ReferenceContract is the citation/reference formatting contract embedded
// in requirements-mode system instructions.
const ReferenceContract = `When citing papers from the provided context (which includes summaries and URLs from Semantic Scholar), you MUST include full reference details in a 'References' section specific to THIS generated content. Format these references as: "[Number] Authors (Year). Title. *Venue*. URL: [Full Semantic Scholar URL from context]". For web search results (if used), cite as "[Web X]" in the text and list them as "[Web X] Title - URL" in the 'References' section. Ensure this 'References' section is clearly distinct, appears at the end of the generated content for this section, and only lists items actually cited in *this specific* generated piece. Numbering in the text and references must correspond. If citing uploaded files, refer to them by filename (e.g., "As stated in 'filename.txt', ...") and do not include them in the numbered 'References' list unless explicitly asked.`

const (
	ContextBegins = "---CONTEXT BEGINS---"
	ContextEnds   = "---CONTEXT ENDS---"

	// NoPaperContext stands in for the paper-context block when nothing
	// was selected or listed.
	NoPaperContext = "Context from Research Papers: None provided or selected. Rely on the research topic and any uploaded file content."
)

// FinalGenerationPrompt assembles the complete user prompt for a section
// generation call: the query, the delimited context, and the closing
// instruction.
func FinalGenerationPrompt(kind models.SectionKind, userQuery, paperContext, fileBlock string) string {
	ctxBody := paperContext
	if strings.TrimSpace(ctxBody) == "" {
		ctxBody = NoPaperContext
	}
	var b strings.Builder
	b.WriteString(userQuery)
	b.WriteString("\n\n")
	b.WriteString(ContextBegins)
	b.WriteString("\n")
	b.WriteString(ctxBody)
	b.WriteString("\n")
	if fileBlock != "" {
		b.WriteString("\n")
		b.WriteString(fileBlock)
	}
	b.WriteString(ContextEnds)
	b.WriteString(fmt.Sprintf("\n\nBegin the %s now:", ActionVerb(kind)))
	return b.String()
}

// DisplayName is the human-readable section name used inside prompt text.
func DisplayName(kind models.SectionKind) string {
	switch kind {
	case models.SectionIntroduction:
		return "Introduction"
	case models.SectionRelatedWorks:
		return "Related Works"
	default:
		return "Other Things"
	}
}

// ActionVerb names the artifact a generation call produces, used both in
// user queries and the closing instruction line.
func ActionVerb(kind models.SectionKind) string {
	switch kind {
	case models.SectionIntroduction:
		return "an Introduction"
	case models.SectionRelatedWorks:
		return "a Related Works section"
	default:
		return "a custom text output"
	}
}

// AutoPromptTask builds the stage-1 task description of the auto-prompt
// pipeline. It instructs the model to produce a prompt, not the section.
func AutoPromptTask(kind models.SectionKind, topic string) string {
	return fmt.Sprintf(`You are to generate a highly detailed and effective *prompt* (not the section itself) for another AI. This generated prompt will instruct that AI on how to write an outstanding '%[1]s' section for a research paper on the topic: %[2]q. The *prompt you generate* MUST explicitly instruct the target AI to:
1. Thoroughly analyze the research topic (%[2]q) and any provided context (which will include paper summaries with author, year, title, venue, URL, and abstract, plus content from user-uploaded files).
2. Logically structure the '%[1]s' section, covering all essential components relevant to academic standards for such a section.
3. Maintain a formal, objective, and analytical academic tone and style throughout the '%[1]s'.
4. Naturally and critically integrate information from the provided paper summaries, citing them in-text as [1], [2], etc.
5. Incorporate relevant information from user-uploaded files, citing them by filename (e.g., "Details from 'report.txt' suggest...").
6. If web search grounding is used, cite web sources found as [Web 1], [Web 2], etc.
7. Conclude the generated '%[1]s' with a clearly demarcated 'References' section that:
   a. Lists *only* the sources (papers from context, web results) that were *actually cited* within this specific '%[1]s'.
   b. Formats paper references meticulously as: [Number] Author(s) (Year). Title of Paper. *Venue/Journal*. URL: [Full Semantic Scholar URL as provided in the context].
   c. Formats web references (if any) as: [Web X] Title of Webpage - Full URL.
   d. Ensures the numbering in this 'References' list precisely matches the in-text citation markers used.
   e. Keeps this 'References' list unique to this '%[1]s', excluding general knowledge and uncited sources.`, DisplayName(kind), topic)
}

// AutoPromptUserQuery is the short final user query used when the refined
// meta-prompt output became the system instruction.
func AutoPromptUserQuery(topic string) string {
	return fmt.Sprintf("The research topic is: %q. Please follow your detailed system instructions precisely. You will be provided with context from research papers and uploaded files. Remember the specific instructions about citation and reference formatting.", topic)
}

// RequirementsSystemInstruction is the fixed-template system instruction for
// requirements mode on introduction/relatedWorks.
func RequirementsSystemInstruction(kind models.SectionKind) string {
	return fmt.Sprintf("You are an expert academic writing assistant. Your task is to write a high-quality '%s' section for a research paper. You MUST strictly follow the refined user requirements provided in the user message. %s", DisplayName(kind), ReferenceContract)
}

// RequirementsUserQuery embeds the refined requirements and topic.
func RequirementsUserQuery(kind models.SectionKind, topic, refinedRequirements string) string {
	return fmt.Sprintf("The research topic is: %q.\nPlease write %s based on the following refined requirements:\n%s\nRemember to use the provided context (research papers, uploaded files, and potentially web search results) as detailed in your general instructions, and to format citations and references correctly according to the system prompt.", topic, ActionVerb(kind), refinedRequirements)
}

// OtherSystemInstruction is the system instruction for the free-form "other"
// section kind.
func OtherSystemInstruction() string {
	contract := strings.Replace(ReferenceContract, "When citing papers from the provided context", "when citing papers from any provided context", 1)
	return "You are an expert AI assistant. Your primary goal is to fulfill the user's custom requirements for generating text. You are given a research topic (if any), context from research papers, text from user-uploaded documents, and potentially image data or web search results. Adhere strictly to the user's specified requirements. If academic conventions like citations and references are implied or requested by the user's requirements, " + contract
}

// OtherUserQuery embeds the raw custom requirements and the topic, if any.
func OtherUserQuery(topic, requirements string) string {
	t := topic
	if t == "" {
		t = "Not specified, rely on custom requirements."
	}
	return fmt.Sprintf("Research Topic: %q\nUser-Specified Requirements:\n%s", t, requirements)
}

// QueryExtractionPrompt asks for 2-3 Semantic Scholar queries as a JSON
// string array.
func QueryExtractionPrompt(inputText string) string {
	return fmt.Sprintf(`Given the following text, extract 2-3 distinct and concise search queries that could be used to find relevant academic papers on Semantic Scholar. Return the queries as a JSON array of strings. For example, if the text is 'The sky is blue due to Rayleigh scattering of sunlight by atmospheric particles.', suitable queries might be ["Rayleigh scattering", "atmospheric optics sunlight"]. Text: '%s'`, inputText)
}

// CitationUserPrompt combines the user's text with the numbered
// paper-details block for the citation-insertion call.
func CitationUserPrompt(inputText, paperDetails string) string {
	return fmt.Sprintf("User's text to analyze and cite:\n%q\n\nPotential research papers for citation (use their abstracts and details to determine relevance. When you cite a paper in the text, use a sequential number starting from [1], e.g., [1], [2], etc. Ensure to use the provided URL for each paper in the reference list):\n%s\n\nInstructions: Modify the user's text by inserting citation markers (e.g., [1], [2]). After the modified text, append a 'References' section. Only include papers you actually cited. Ensure the reference list numbers correspond to the in-text citation numbers you created, and format references as specified in the system prompt, including the URL for each paper.", inputText, paperDetails)
}

// ChatContextPreface wraps the assembled research context for injection into
// a fresh context-mode conversation's system instruction.
func ChatContextPreface(researchContext string) string {
	return fmt.Sprintf("\n\nHere is some research context (from selected papers, generated sections, and uploaded text documents). This context is provided below, enclosed in <research_context> tags. You MUST use this information when answering relevant questions, including any questions about the content of the uploaded documents and their Semantic Scholar URLs if available in the context:\n<research_context>\n%s\n</research_context>\nIf you are asked about specific uploaded images, they will be provided with the user's message.", researchContext)
}
