package agents

import (
	"context"
	"errors"

	"certquiz/internal/corpus"
	"certquiz/internal/llm"
	"certquiz/internal/retrieval"
)

// cannedClient returns scripted responses in order and records prompts.
type cannedClient struct {
	responses  []string
	err        error
	calls      int
	systemSeen []string
	userSeen   []string
}

func (c *cannedClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	c.systemSeen = append(c.systemSeen, systemPrompt)
	c.userSeen = append(c.userSeen, userPrompt)
	i := c.calls
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	if i >= len(c.responses) {
		return "", errors.New("no more canned responses")
	}
	return c.responses[i], nil
}

func newCannedCaller(responses ...string) (*llm.Caller, *cannedClient) {
	client := &cannedClient{responses: responses}
	return llm.NewCaller(client, 1), client
}

type stubFetcher struct {
	results []retrieval.Result
	err     error
	queries []string
	limits  []int
}

func (s *stubFetcher) FetchFacts(ctx context.Context, query string, limit int) ([]retrieval.Result, error) {
	s.queries = append(s.queries, query)
	s.limits = append(s.limits, limit)
	return s.results, s.err
}

func (s *stubFetcher) FetchStyleExamples(ctx context.Context, query string, limit int) ([]retrieval.Result, error) {
	s.queries = append(s.queries, query)
	s.limits = append(s.limits, limit)
	return s.results, s.err
}

func factChunk(id int64, content, sourceType string) retrieval.Result {
	return retrieval.Result{Chunk: corpus.Chunk{ID: id, Content: content, SourceType: sourceType}}
}

type memoryCache struct {
	profiles map[string]string
	puts     int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{profiles: make(map[string]string)}
}

func (m *memoryCache) StyleProfileJSON(ctx context.Context, examCode string) (string, bool, error) {
	p, ok := m.profiles[examCode]
	return p, ok, nil
}

func (m *memoryCache) PutStyleProfileJSON(ctx context.Context, examCode, profile string) error {
	m.profiles[examCode] = profile
	m.puts++
	return nil
}

func validDraft(questionType string) *DraftedQuestion {
	answer := "B"
	if questionType == TypeMultipleSelection {
		answer = "A,C"
	}
	return &DraftedQuestion{
		Question:     "Which of the following services provides object storage?",
		QuestionType: questionType,
		Options: map[string]string{
			"A": "Block volumes",
			"B": "Object store",
			"C": "Archive tier",
			"D": "File shares",
		},
		Answer:      answer,
		Explanation: "Object storage holds unstructured data as objects in buckets.",
		Difficulty:  DifficultyMedium,
		Topic:       "Storage",
		CognitiveLevel: "recall",
	}
}

func testBrief() *ResearchBrief {
	return &ResearchBrief{
		Topic:      "Storage",
		Difficulty: DifficultyMedium,
		CoreFacts: []CoreFact{
			{Fact: "Object storage stores data as objects in buckets", Importance: "high"},
		},
		Summary: "Object storage basics.",
	}
}
