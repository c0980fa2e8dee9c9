package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"certquiz/internal/agents"
	"certquiz/internal/config"
	"certquiz/internal/retrieval"
)

// Researcher produces a research brief for a topic.
type Researcher interface {
	Research(ctx context.Context, topic, difficulty string) (*agents.ResearchBrief, error)
}

// Drafter writes and revises candidate questions.
type Drafter interface {
	Draft(ctx context.Context, brief *agents.ResearchBrief, profile *agents.StyleProfile, styleExamples []string, difficulty, questionType string) (*agents.DraftedQuestion, error)
	Revise(ctx context.Context, current *agents.DraftedQuestion, feedback []string, brief *agents.ResearchBrief) (*agents.DraftedQuestion, error)
}

// Critic reviews drafts.
type Critic interface {
	Review(ctx context.Context, question *agents.DraftedQuestion, brief *agents.ResearchBrief) (*agents.CritiqueReview, error)
}

// StyleProvider yields the exam's style profile, or nil when no past papers
// are available.
type StyleProvider interface {
	Profile(ctx context.Context, examCode, topic string) (*agents.StyleProfile, error)
}

// StyleExampleFetcher retrieves question-phrasing exemplars.
type StyleExampleFetcher interface {
	FetchStyleExamples(ctx context.Context, query string, limit int) ([]retrieval.Result, error)
}

// Dedupe gates accepted questions on semantic novelty.
type Dedupe interface {
	IsDuplicate(ctx context.Context, questionText string) (bool, float64, error)
	Record(ctx context.Context, q *Question) error
}

// Request describes one generation job.
type Request struct {
	JobID      string
	ExamCode   string
	Topics     []string
	Count      int
	Difficulty string
}

// Orchestrator drives the research, draft, critique, revise and dedupe loop.
type Orchestrator struct {
	researcher Researcher
	drafter    Drafter
	critic     Critic
	style      StyleProvider
	examples   StyleExampleFetcher
	dedupe     Dedupe
	cfg        config.GenerationConfig
	logger     *zap.Logger
}

// NewOrchestrator wires the pipeline together. logger may be nil.
func NewOrchestrator(researcher Researcher, drafter Drafter, critic Critic, style StyleProvider, examples StyleExampleFetcher, dedupe Dedupe, cfg config.GenerationConfig, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxTotalAttempts <= 0 {
		cfg.MaxTotalAttempts = 15
	}
	if cfg.MaxCriticIterations <= 0 {
		cfg.MaxCriticIterations = 2
	}
	if cfg.MultiSelectQuota <= 0 {
		cfg.MultiSelectQuota = 0.2
	}
	return &Orchestrator{
		researcher: researcher,
		drafter:    drafter,
		critic:     critic,
		style:      style,
		examples:   examples,
		dedupe:     dedupe,
		cfg:        cfg,
		logger:     logger,
	}
}

// Start validates the request and launches the generation loop in the
// background, returning a Run streaming its events. The loop stops on
// context cancellation, on reaching the requested count, or on exhausting
// the attempt budget; running out of attempts is not an error.
func (o *Orchestrator) Start(ctx context.Context, req Request) (*Run, error) {
	if req.Count <= 0 {
		return nil, fmt.Errorf("count must be positive, got %d", req.Count)
	}
	topics := make([]string, 0, len(req.Topics))
	for _, t := range req.Topics {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	if len(topics) == 0 {
		topics = []string{"General Knowledge"}
	}
	if req.Difficulty == "" {
		req.Difficulty = agents.DifficultyMedium
	}
	if !agents.ValidDifficulty(req.Difficulty) {
		return nil, fmt.Errorf("unknown difficulty %q", req.Difficulty)
	}
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}
	req.Topics = topics

	runCtx, cancel := context.WithCancel(ctx)
	// Sized so the producer never blocks on a polling consumer: every
	// attempt emits a bounded number of events.
	buffer := o.cfg.MaxTotalAttempts*(10+2*o.cfg.MaxCriticIterations) + req.Count + 8
	run := newRun(req.JobID, cancel, buffer)

	go o.generate(runCtx, run, req)
	return run, nil
}

func (o *Orchestrator) emit(ctx context.Context, run *Run, ev Event) {
	ev.JobID = run.jobID
	ev.Timestamp = time.Now()
	select {
	case run.events <- ev:
	case <-ctx.Done():
	}
}

func (o *Orchestrator) progress(ctx context.Context, run *Run, stage, format string, args ...interface{}) {
	o.emit(ctx, run, Event{Type: EventProgress, Stage: stage, Message: fmt.Sprintf(format, args...)})
}

func (o *Orchestrator) generate(ctx context.Context, run *Run, req Request) {
	defer run.cancel()

	log := o.logger.With(zap.String("job_id", req.JobID))
	log.Info("starting generation job",
		zap.Int("count", req.Count),
		zap.Strings("topics", req.Topics),
		zap.String("difficulty", req.Difficulty))

	o.progress(ctx, run, StageInit, "Starting generation of %d %s questions across %d topic(s)",
		req.Count, req.Difficulty, len(req.Topics))

	// Phase 1: style ingestion. The profile is shared across topics; the
	// first topic anchors the lookup.
	o.progress(ctx, run, StageStyle, "Style Analyzer: Extracting patterns from past papers...")
	profile, err := o.style.Profile(ctx, req.ExamCode, req.Topics[0])
	if err != nil {
		o.fail(ctx, run, fmt.Errorf("style analysis failed: %w", err))
		return
	}
	if profile != nil {
		o.progress(ctx, run, StageStyle, "Style Analyzer: Profile extracted successfully")
	} else {
		o.progress(ctx, run, StageStyle, "Style Analyzer: No past papers found, using default style")
	}

	exampleHits, err := o.examples.FetchStyleExamples(ctx, req.Topics[0], 3)
	if err != nil {
		o.fail(ctx, run, fmt.Errorf("style example retrieval failed: %w", err))
		return
	}
	styleExamples := make([]string, len(exampleHits))
	for i, h := range exampleHits {
		styleExamples[i] = h.Chunk.Content
	}

	// Phase 2: generation loop. Research briefs are cached per topic so
	// retries on the same topic never re-run retrieval.
	researchCache := make(map[string]*agents.ResearchBrief)

	var questions []Question
	attempts := 0
	multiNeeded := int(float64(req.Count) * o.cfg.MultiSelectQuota)
	multiGenerated := 0

	for len(questions) < req.Count && attempts < o.cfg.MaxTotalAttempts {
		if ctx.Err() != nil {
			o.fail(ctx, run, ctx.Err())
			return
		}
		attempts++
		slot := len(questions) + 1
		topic := req.Topics[(slot-1)%len(req.Topics)]

		brief, ok := researchCache[topic]
		if !ok {
			o.progress(ctx, run, StageResearch, "Researcher: Analyzing textbook content for '%s'...", topic)
			brief, err = o.researcher.Research(ctx, topic, req.Difficulty)
			if err != nil {
				log.Warn("research failed", zap.String("topic", topic), zap.Error(err))
				o.emit(ctx, run, Event{Type: EventError, Stage: StageError,
					Message: fmt.Sprintf("Research failed for '%s': %v", topic, err)})
				continue
			}
			researchCache[topic] = brief
			o.progress(ctx, run, StageResearch, "Researcher: Found %d facts for '%s'", len(brief.CoreFacts), topic)
		}

		// Force multiple selection when the quota is unmet and either the
		// slot lands on the cadence or the remaining slots are all needed
		// to fill it.
		remainingSlots := req.Count - len(questions)
		remainingMulti := multiNeeded - multiGenerated
		questionType := agents.TypeSingleSelect
		if remainingMulti > 0 && (slot%5 == 0 || remainingSlots <= remainingMulti) {
			questionType = agents.TypeMultipleSelection
		}

		o.progress(ctx, run, StageDraft, "Generating Question %d/%d (%s)...", slot, req.Count, questionType)

		question, review, err := o.draftAndReview(ctx, run, brief, profile, styleExamples, req.Difficulty, questionType)
		if err != nil {
			log.Warn("attempt failed", zap.Int("attempt", attempts), zap.Error(err))
			o.emit(ctx, run, Event{Type: EventError, Stage: StageError,
				Message: fmt.Sprintf("Error generating question: %v", err)})
			continue
		}
		if question == nil {
			// Rejected by the critic after all revisions.
			o.progress(ctx, run, StageReject, "Critic: Question rejected after revisions")
			continue
		}

		duplicate, similarity, err := o.dedupe.IsDuplicate(ctx, question.Question)
		if err != nil {
			log.Warn("dedupe check failed", zap.Error(err))
			o.emit(ctx, run, Event{Type: EventError, Stage: StageError,
				Message: fmt.Sprintf("Duplicate check failed: %v", err)})
			continue
		}
		if duplicate {
			log.Info("duplicate skipped", zap.Float64("similarity", similarity))
			o.progress(ctx, run, StageSkip, "Skipping duplicate question (similarity %.2f)", similarity)
			continue
		}

		if err := o.dedupe.Record(ctx, question); err != nil {
			// The question is still good; losing the write-back only
			// weakens future dedupe.
			log.Warn("failed to record accepted question", zap.Error(err))
		}

		questions = append(questions, *question)
		if question.QuestionType == agents.TypeMultipleSelection {
			multiGenerated++
		}
		log.Info("question accepted", zap.Int("slot", slot), zap.Int("score", review.Score))
		o.progress(ctx, run, StageSuccess, "Question %d generated successfully", slot)
		o.emit(ctx, run, Event{Type: EventQuestion, Question: question})
	}

	summary := &Summary{
		Requested:   req.Count,
		Generated:   len(questions),
		MultiSelect: multiGenerated,
		Attempts:    attempts,
	}
	log.Info("generation complete",
		zap.Int("generated", summary.Generated),
		zap.Int("attempts", summary.Attempts))
	o.emit(ctx, run, Event{Type: EventDone, Message: fmt.Sprintf("Generated %d/%d questions in %d attempts",
		summary.Generated, summary.Requested, summary.Attempts), Summary: summary})
	run.finish(questions, nil)
}

// draftAndReview runs one draft through the critic's revision loop. A nil
// question with nil error means the critic rejected the final revision.
func (o *Orchestrator) draftAndReview(ctx context.Context, run *Run, brief *agents.ResearchBrief, profile *agents.StyleProfile, styleExamples []string, difficulty, questionType string) (*Question, *agents.CritiqueReview, error) {
	draft, err := o.drafter.Draft(ctx, brief, profile, styleExamples, difficulty, questionType)
	if err != nil {
		return nil, nil, err
	}

	o.progress(ctx, run, StageCritic, "Critic: Reviewing draft for quality and accuracy...")
	review, err := o.critic.Review(ctx, draft, brief)
	if err != nil {
		return nil, nil, err
	}

	for iteration := 0; iteration < o.cfg.MaxCriticIterations && !review.Approved; iteration++ {
		o.progress(ctx, run, StageRevise, "Psychometrician: Improving question (Critic score: %d/10)...", review.Score)
		draft, err = o.drafter.Revise(ctx, draft, review.Suggestions, brief)
		if err != nil {
			return nil, nil, err
		}
		review, err = o.critic.Review(ctx, draft, brief)
		if err != nil {
			return nil, nil, err
		}
	}

	if !review.Approved {
		return nil, review, nil
	}
	o.progress(ctx, run, StageApprove, "Critic: Question approved (Score: %d/10)", review.Score)
	return questionFromDraft(uuid.NewString(), draft, review, brief.SourceReferences), review, nil
}

func (o *Orchestrator) fail(ctx context.Context, run *Run, err error) {
	o.logger.Error("generation job failed", zap.String("job_id", run.jobID), zap.Error(err))
	ev := Event{Type: EventError, Stage: StageError, Message: err.Error(), JobID: run.jobID, Timestamp: time.Now()}
	// Best effort: the consumer may already be gone on cancellation.
	select {
	case run.events <- ev:
	default:
	}
	run.finish(nil, err)
}
