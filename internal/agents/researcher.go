package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"certquiz/internal/llm"
	"certquiz/internal/retrieval"
)

// ErrNoContent is returned when the corpus has no evidence for a topic.
// Research never proceeds on an empty context; that is how hallucinated
// questions get written.
var ErrNoContent = errors.New("no factual content found for topic")

// FactFetcher is the retrieval surface the researcher depends on.
type FactFetcher interface {
	FetchFacts(ctx context.Context, query string, limit int) ([]retrieval.Result, error)
}

const researcherSystemPrompt = `You are an expert Researcher for a professional examination board. Your task is to extract and synthesize factual information from textbook content.

Your responsibilities:
1. Identify the most important core facts for the topic
2. Extract key definitions with clear wording
3. List any formulas, rules, or principles
4. Identify related concepts for context
5. Cite sources when available

For difficulty levels:
- EASY: Focus on fundamental concepts, basic definitions, direct facts
- MEDIUM: Include relationships between concepts, moderate complexity
- HARD: Include edge cases, exceptions, advanced nuances, interdependencies

CRITICAL: Only use information from the provided TEXTBOOK_CONTENT. Do not hallucinate or add external knowledge.
Be concise: keep fact statements under 30 words, definitions under 25 words, summaries under 50 words.`

// Researcher extracts a ResearchBrief from corpus evidence for one topic.
type Researcher struct {
	caller    *llm.Caller
	retriever FactFetcher
	maxFacts  int
	maxChunks int
}

// NewResearcher builds a researcher. maxFacts bounds the brief size,
// maxChunks the amount of retrieved context fed to the model.
func NewResearcher(caller *llm.Caller, retriever FactFetcher, maxFacts int) *Researcher {
	if maxFacts <= 0 {
		maxFacts = 6
	}
	return &Researcher{
		caller:    caller,
		retriever: retriever,
		maxFacts:  maxFacts,
		maxChunks: 8,
	}
}

// Research retrieves evidence for the topic and distills it into a brief.
func (r *Researcher) Research(ctx context.Context, topic, difficulty string) (*ResearchBrief, error) {
	chunks, err := r.retriever.FetchFacts(ctx, topic, r.maxChunks)
	if err != nil {
		return nil, fmt.Errorf("researcher retrieval failed: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoContent, topic)
	}

	var sb strings.Builder
	sb.WriteString("TEXTBOOK_CONTENT:\n")
	for i, chunk := range chunks {
		fmt.Fprintf(&sb, "\n[%d] (%s)\n%s\n", i+1, chunk.Chunk.SourceType, chunk.Chunk.Content)
	}

	userPrompt := fmt.Sprintf(`Research the following topic and create a comprehensive research brief.

TOPIC: %s
DIFFICULTY LEVEL: %s

%s

Return a JSON object with this structure:
{
    "topic": "the topic",
    "difficulty": "easy|medium|hard",
    "core_facts": [
        {"fact": "The factual statement", "importance": "high|medium|low", "source": "source reference if available"}
    ],
    "key_definitions": [
        {"term": "term name", "definition": "clear definition"}
    ],
    "formulas_and_rules": [
        {"name": "formula/rule name", "expression": "the formula or rule text"}
    ],
    "related_concepts": ["concept1", "concept2"],
    "summary": "2-3 sentence summary of the topic",
    "source_references": ["source1", "source2"]
}

Extract up to %d core facts, prioritized by relevance and importance.`, topic, difficulty, sb.String(), r.maxFacts)

	var brief ResearchBrief
	if err := r.caller.CompleteJSON(ctx, researcherSystemPrompt, userPrompt, &brief); err != nil {
		return nil, fmt.Errorf("researcher: %w", err)
	}

	if len(brief.CoreFacts) == 0 {
		return nil, fmt.Errorf("%w: researcher extracted no facts for %s", ErrNoContent, topic)
	}
	if len(brief.CoreFacts) > r.maxFacts {
		brief.CoreFacts = brief.CoreFacts[:r.maxFacts]
	}
	if brief.Topic == "" {
		brief.Topic = topic
	}
	if brief.Difficulty == "" {
		brief.Difficulty = difficulty
	}
	return &brief, nil
}

// formatResearchBrief renders a brief as the RESEARCH_CONTENT block shared
// by the drafter and critic prompts.
func formatResearchBrief(brief *ResearchBrief) string {
	var sb strings.Builder

	sb.WriteString("RESEARCH_CONTENT:\n")
	fmt.Fprintf(&sb, "Topic: %s\n", brief.Topic)
	fmt.Fprintf(&sb, "Difficulty: %s\n", brief.Difficulty)
	fmt.Fprintf(&sb, "Summary: %s\n\n", brief.Summary)

	if len(brief.CoreFacts) > 0 {
		sb.WriteString("CORE FACTS:\n")
		for i, fact := range brief.CoreFacts {
			importance := fact.Importance
			if importance == "" {
				importance = "medium"
			}
			fmt.Fprintf(&sb, "%d. %s (Importance: %s)\n", i+1, fact.Fact, importance)
		}
		sb.WriteString("\n")
	}
	if len(brief.KeyDefinitions) > 0 {
		sb.WriteString("KEY DEFINITIONS:\n")
		for _, def := range brief.KeyDefinitions {
			fmt.Fprintf(&sb, "- %s: %s\n", def.Term, def.Definition)
		}
		sb.WriteString("\n")
	}
	if len(brief.FormulasAndRules) > 0 {
		sb.WriteString("FORMULAS AND RULES:\n")
		for _, formula := range brief.FormulasAndRules {
			fmt.Fprintf(&sb, "- %s: %s\n", formula.Name, formula.Expression)
		}
		sb.WriteString("\n")
	}
	if len(brief.RelatedConcepts) > 0 {
		fmt.Fprintf(&sb, "RELATED CONCEPTS: %s\n", strings.Join(brief.RelatedConcepts, ", "))
	}
	return sb.String()
}
