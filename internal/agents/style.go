package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"certquiz/internal/corpus"
	"certquiz/internal/llm"
	"certquiz/internal/retrieval"
)

const styleSystemPrompt = `You are an expert at analyzing examination papers to extract their question style and patterns. Your analysis will be used to guide AI-generated questions to match the style of real exams.

Analyze:
1. QUESTION STEMS: The recurring opening phrases (e.g., "Which of the following...", "Identify the...")
2. SENTENCE LENGTH: Average words per sentence in question stems
3. DISTRACTOR PATTERNS: How wrong answers are typically structured (e.g., "opposite of correct", "partially correct but missing detail", "common misconception", "unrelated technical term")
4. COMPLEXITY: Overall complexity level (simple=direct recall, moderate=requires application, complex=multi-step reasoning)
5. TONE: The register of the paper (formal, conversational, technical)
6. OPTION COUNT: The typical number of answer options per question
7. MISCONCEPTIONS: Common student misconceptions the distractors exploit
8. COGNITIVE LEVELS: Which levels the paper targets
9. TRAP PATTERNS: Recurring ways the paper tries to catch careless candidates`

// StyleExampleFetcher is the retrieval surface the analyzer depends on.
type StyleExampleFetcher interface {
	FetchStyleExamples(ctx context.Context, query string, limit int) ([]retrieval.Result, error)
}

// ProfileCache persists extracted profiles keyed by exam code.
type ProfileCache interface {
	StyleProfileJSON(ctx context.Context, examCode string) (string, bool, error)
	PutStyleProfileJSON(ctx context.Context, examCode, profile string) error
}

// StyleAnalyzer extracts a StyleProfile from past exam papers, caching the
// result per exam code. Profile extraction is expensive and the style of an
// exam corpus does not change between jobs.
type StyleAnalyzer struct {
	caller    *llm.Caller
	retriever StyleExampleFetcher
	cache     ProfileCache
}

// NewStyleAnalyzer builds a style analyzer. cache may be nil, in which case
// every call re-analyzes.
func NewStyleAnalyzer(caller *llm.Caller, retriever StyleExampleFetcher, cache ProfileCache) *StyleAnalyzer {
	return &StyleAnalyzer{caller: caller, retriever: retriever, cache: cache}
}

// Profile returns the style profile for an exam, extracting and caching it
// on first use. Returns nil without error when no exam paper material has
// been ingested; generation then proceeds with default style.
func (a *StyleAnalyzer) Profile(ctx context.Context, examCode, topic string) (*StyleProfile, error) {
	if a.cache != nil {
		cached, found, err := a.cache.StyleProfileJSON(ctx, examCode)
		if err != nil {
			return nil, err
		}
		if found {
			var profile StyleProfile
			if err := json.Unmarshal([]byte(cached), &profile); err != nil {
				return nil, fmt.Errorf("corrupt cached style profile for %s: %w", examCode, err)
			}
			return &profile, nil
		}
	}

	examples, err := a.retriever.FetchStyleExamples(ctx, topic, 8)
	if err != nil {
		return nil, fmt.Errorf("style analyzer retrieval failed: %w", err)
	}
	var papers []string
	for _, e := range examples {
		if e.Chunk.SourceType == corpus.SourceExamPaper {
			papers = append(papers, e.Chunk.Content)
		}
	}
	if len(papers) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	for i, paper := range papers {
		fmt.Fprintf(&sb, "\n[EXCERPT %d]\n%s\n", i+1, paper)
	}

	userPrompt := fmt.Sprintf(`Analyze this exam paper content and extract its style profile.

EXAM PAPER CONTENT:
%s

Return a JSON object with this structure:
{
    "question_stems": ["stem1", "stem2", "stem3"],
    "avg_sentence_length": 18.5,
    "distractor_patterns": ["pattern1", "pattern2"],
    "complexity": "simple|moderate|complex",
    "tone": "formal|conversational|technical",
    "option_count": 4,
    "common_misconceptions": ["misconception1", "misconception2"],
    "cognitive_levels": ["recall", "application", "analysis", "synthesis"],
    "trap_patterns": ["pattern1", "pattern2"]
}`, sb.String())

	var profile StyleProfile
	if err := a.caller.CompleteJSON(ctx, styleSystemPrompt, userPrompt, &profile); err != nil {
		return nil, fmt.Errorf("style analyzer: %w", err)
	}

	if a.cache != nil {
		encoded, err := json.Marshal(&profile)
		if err != nil {
			return nil, fmt.Errorf("failed to encode style profile: %w", err)
		}
		if err := a.cache.PutStyleProfileJSON(ctx, examCode, string(encoded)); err != nil {
			return nil, err
		}
	}
	return &profile, nil
}
