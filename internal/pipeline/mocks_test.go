package pipeline

import (
	"context"
	"fmt"
	"sync"

	"certquiz/internal/agents"
	"certquiz/internal/corpus"
	"certquiz/internal/retrieval"
)

type fakeResearcher struct {
	mu     sync.Mutex
	err    error
	topics []string
}

func (f *fakeResearcher) Research(ctx context.Context, topic, difficulty string) (*agents.ResearchBrief, error) {
	f.mu.Lock()
	f.topics = append(f.topics, topic)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &agents.ResearchBrief{
		Topic:            topic,
		Difficulty:       difficulty,
		CoreFacts:        []agents.CoreFact{{Fact: "a fact about " + topic, Importance: "high"}},
		Summary:          "summary of " + topic,
		SourceReferences: []string{"textbook: " + topic},
	}, nil
}

func (f *fakeResearcher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.topics...)
}

type fakeDrafter struct {
	mu         sync.Mutex
	draftErr   error
	reviseErr  error
	typesAsked []string
	revisions  int
	seq        int
}

func (f *fakeDrafter) Draft(ctx context.Context, brief *agents.ResearchBrief, profile *agents.StyleProfile, styleExamples []string, difficulty, questionType string) (*agents.DraftedQuestion, error) {
	f.mu.Lock()
	f.typesAsked = append(f.typesAsked, questionType)
	f.seq++
	seq := f.seq
	f.mu.Unlock()
	if f.draftErr != nil {
		return nil, f.draftErr
	}
	return fakeDraft(brief.Topic, questionType, seq), nil
}

func (f *fakeDrafter) Revise(ctx context.Context, current *agents.DraftedQuestion, feedback []string, brief *agents.ResearchBrief) (*agents.DraftedQuestion, error) {
	f.mu.Lock()
	f.revisions++
	f.mu.Unlock()
	if f.reviseErr != nil {
		return nil, f.reviseErr
	}
	revised := *current
	revised.Explanation = current.Explanation + " (revised)"
	return &revised, nil
}

func (f *fakeDrafter) askedTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.typesAsked...)
}

func fakeDraft(topic, questionType string, seq int) *agents.DraftedQuestion {
	answer := "A"
	if questionType == agents.TypeMultipleSelection {
		answer = "A,B"
	}
	return &agents.DraftedQuestion{
		Question:       fmt.Sprintf("Question %d about %s", seq, topic),
		QuestionType:   questionType,
		Options:        map[string]string{"A": "one", "B": "two", "C": "three", "D": "four"},
		Answer:         answer,
		Explanation:    "because",
		Difficulty:     agents.DifficultyMedium,
		Topic:          topic,
		CognitiveLevel: "recall",
	}
}

// fakeCritic approves after rejectFirst rejections per draft sequence.
type fakeCritic struct {
	mu          sync.Mutex
	rejectFirst int
	rejections  int
	reviews     int
	err         error
	score       int
}

func (f *fakeCritic) Review(ctx context.Context, question *agents.DraftedQuestion, brief *agents.ResearchBrief) (*agents.CritiqueReview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviews++
	if f.err != nil {
		return nil, f.err
	}
	score := f.score
	if score == 0 {
		score = 8
	}
	if f.rejections < f.rejectFirst {
		f.rejections++
		return &agents.CritiqueReview{Approved: false, Score: 5, Suggestions: []string{"tighten the stem"}}, nil
	}
	return &agents.CritiqueReview{
		Approved: true,
		Score:    score,
		Checks: map[string]agents.CheckResult{
			"factual_accuracy": {Passed: true, Notes: "grounded in brief"},
			"style_match":      {Passed: true},
		},
	}, nil
}

type fakeStyle struct {
	profile *agents.StyleProfile
	err     error
}

func (f *fakeStyle) Profile(ctx context.Context, examCode, topic string) (*agents.StyleProfile, error) {
	return f.profile, f.err
}

type fakeExamples struct {
	err error
}

func (f *fakeExamples) FetchStyleExamples(ctx context.Context, query string, limit int) ([]retrieval.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []retrieval.Result{
		{Chunk: corpus.Chunk{ID: 1, Content: "Which of the following applies?", SourceType: corpus.SourceExamPaper}},
	}, nil
}

// fakeDedupe flags texts listed in duplicates and records the rest.
type fakeDedupe struct {
	mu         sync.Mutex
	duplicates map[string]bool
	checkErr   error
	recorded   []string
	alwaysDup  int // first N checks report duplicate
	checks     int
}

func (f *fakeDedupe) IsDuplicate(ctx context.Context, questionText string) (bool, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	if f.checkErr != nil {
		return false, 0, f.checkErr
	}
	if f.checks <= f.alwaysDup {
		return true, 0.95, nil
	}
	if f.duplicates[questionText] {
		return true, 0.91, nil
	}
	return false, 0.2, nil
}

func (f *fakeDedupe) Record(ctx context.Context, q *Question) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, q.Question)
	return nil
}

func (f *fakeDedupe) recordedQuestions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.recorded...)
}
