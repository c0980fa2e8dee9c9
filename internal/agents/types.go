// Package agents implements the generation roles: researcher, drafter,
// critic and style analyzer. Each role is a thin wrapper over the shared
// llm.Caller with role-specific prompts and schema-checked outputs.
package agents

import (
	"fmt"
	"sort"
	"strings"
)

// Question types. Multiple selection items carry two or more correct keys.
const (
	TypeSingleSelect      = "single_select"
	TypeMultipleSelection = "multiple_selection"
)

// Difficulty levels accepted by the pipeline.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

var optionKeys = []string{"A", "B", "C", "D"}

// CoreFact is one extracted factual statement.
type CoreFact struct {
	Fact       string `json:"fact"`
	Importance string `json:"importance"`
	Source     string `json:"source,omitempty"`
}

// Definition is a term and its meaning.
type Definition struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// FormulaRule is a named formula, rule or principle.
type FormulaRule struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
}

// ResearchBrief is the researcher's structured summary of corpus evidence
// for one topic. Drafting and review both work strictly from this brief.
type ResearchBrief struct {
	Topic            string        `json:"topic"`
	Difficulty       string        `json:"difficulty"`
	CoreFacts        []CoreFact    `json:"core_facts"`
	KeyDefinitions   []Definition  `json:"key_definitions"`
	FormulasAndRules []FormulaRule `json:"formulas_and_rules"`
	RelatedConcepts  []string      `json:"related_concepts"`
	Summary          string        `json:"summary"`
	SourceReferences []string      `json:"source_references"`
}

// DistractorReason records why one wrong option was chosen.
type DistractorReason struct {
	Option string `json:"option"`
	Reason string `json:"reason"`
}

// DraftedQuestion is a complete candidate exam item. Answer holds the
// correct option keys, comma-separated for multiple selection items.
type DraftedQuestion struct {
	Question            string             `json:"question"`
	QuestionType        string             `json:"question_type"`
	Options             map[string]string  `json:"options"`
	Answer              string             `json:"answer"`
	Explanation         string             `json:"explanation"`
	Difficulty          string             `json:"difficulty"`
	DistractorReasoning []DistractorReason `json:"distractor_reasoning"`
	Topic               string             `json:"topic"`
	CognitiveLevel      string             `json:"cognitive_level"`
}

// AnswerKeys returns the correct option keys, trimmed and sorted.
func (q *DraftedQuestion) AnswerKeys() []string {
	parts := strings.Split(q.Answer, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			keys = append(keys, p)
		}
	}
	sort.Strings(keys)
	return keys
}

// Validate checks the structural invariants every drafted question must
// satisfy before it can enter review.
func (q *DraftedQuestion) Validate() error {
	if strings.TrimSpace(q.Question) == "" {
		return fmt.Errorf("question text is empty")
	}
	if strings.TrimSpace(q.Explanation) == "" {
		return fmt.Errorf("explanation is empty")
	}
	if len(q.Options) != len(optionKeys) {
		return fmt.Errorf("expected %d options, got %d", len(optionKeys), len(q.Options))
	}
	for _, key := range optionKeys {
		if strings.TrimSpace(q.Options[key]) == "" {
			return fmt.Errorf("option %s is missing or empty", key)
		}
	}

	keys := q.AnswerKeys()
	if len(keys) == 0 {
		return fmt.Errorf("no answer keys provided")
	}
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if _, ok := q.Options[key]; !ok {
			return fmt.Errorf("answer key %q is not an option", key)
		}
		if seen[key] {
			return fmt.Errorf("answer key %q repeated", key)
		}
		seen[key] = true
	}

	switch q.QuestionType {
	case TypeSingleSelect, "":
		if len(keys) != 1 {
			return fmt.Errorf("single_select question has %d answer keys", len(keys))
		}
	case TypeMultipleSelection:
		if len(keys) < 2 {
			return fmt.Errorf("multiple_selection question has %d answer keys, need at least 2", len(keys))
		}
	default:
		return fmt.Errorf("unknown question type %q", q.QuestionType)
	}
	return nil
}

// CheckResult is one named quality check from the critic.
type CheckResult struct {
	Passed bool   `json:"passed"`
	Notes  string `json:"notes"`
}

// CritiqueReview is the critic's verdict on a draft.
type CritiqueReview struct {
	Approved    bool                   `json:"approved"`
	Score       int                    `json:"score"`
	Issues      []string               `json:"issues"`
	Suggestions []string               `json:"suggestions"`
	Checks      map[string]CheckResult `json:"checks"`
}

// StyleProfile captures the linguistic fingerprint of past exam papers. It
// is extracted once per exam corpus and cached.
type StyleProfile struct {
	QuestionStems        []string `json:"question_stems"`
	AvgSentenceLength    float64  `json:"avg_sentence_length"`
	DistractorPatterns   []string `json:"distractor_patterns"`
	Complexity           string   `json:"complexity"`
	Tone                 string   `json:"tone"`
	OptionCount          int      `json:"option_count"`
	CommonMisconceptions []string `json:"common_misconceptions"`
	CognitiveLevels      []string `json:"cognitive_levels"`
	TrapPatterns         []string `json:"trap_patterns"`
}

// ValidDifficulty reports whether d is a recognized difficulty level.
func ValidDifficulty(d string) bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}
