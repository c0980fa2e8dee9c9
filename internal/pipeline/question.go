package pipeline

import "certquiz/internal/agents"

// Question is a finished exam item as delivered to consumers.
type Question struct {
	ID                  string                        `json:"id"`
	Question            string                        `json:"question"`
	QuestionType        string                        `json:"question_type"`
	Options             map[string]string             `json:"options"`
	Answer              string                        `json:"answer"`
	Explanation         string                        `json:"explanation"`
	Difficulty          string                        `json:"difficulty"`
	Topic               string                        `json:"topic"`
	CognitiveLevel      string                        `json:"cognitive_level"`
	DistractorReasoning []agents.DistractorReason     `json:"distractor_reasoning,omitempty"`
	CriticScore         int                           `json:"critic_score"`
	QualityChecks       map[string]agents.CheckResult `json:"quality_checks,omitempty"`
	SourceReferences    []string                      `json:"source_references,omitempty"`
}

func questionFromDraft(id string, draft *agents.DraftedQuestion, review *agents.CritiqueReview, sources []string) *Question {
	return &Question{
		ID:                  id,
		Question:            draft.Question,
		QuestionType:        draft.QuestionType,
		Options:             draft.Options,
		Answer:              draft.Answer,
		Explanation:         draft.Explanation,
		Difficulty:          draft.Difficulty,
		Topic:               draft.Topic,
		CognitiveLevel:      draft.CognitiveLevel,
		DistractorReasoning: draft.DistractorReasoning,
		CriticScore:         review.Score,
		QualityChecks:       review.Checks,
		SourceReferences:    sources,
	}
}
