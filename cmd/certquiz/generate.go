package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"certquiz/internal/agents"
	"certquiz/internal/corpus"
	"certquiz/internal/embedding"
	"certquiz/internal/llm"
	"certquiz/internal/pipeline"
	"certquiz/internal/retrieval"
)

var (
	genTopics     []string
	genCount      int
	genDifficulty string
	genExamCode   string
	genOutput     string
	genQuiet      bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate exam questions from the ingested corpus",
	Long: `Generate runs the multi-agent pipeline against the local corpus and
streams progress while questions are produced. Questions are written as a
JSON array to stdout or to --output.

Topics are covered round-robin; roughly 20% of the requested questions are
multiple-selection items. Generation stops when the requested count is
reached or the attempt budget runs out, whichever comes first.`,
	Example: `  certquiz generate --topic "IAM" --topic "Networking" --count 10
  certquiz generate --topic "Storage" --count 5 --difficulty hard --output questions.json`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringArrayVarP(&genTopics, "topic", "t", nil, "topic to cover (repeatable)")
	generateCmd.Flags().IntVarP(&genCount, "count", "n", 5, "number of questions to generate")
	generateCmd.Flags().StringVarP(&genDifficulty, "difficulty", "d", agents.DifficultyMedium, "difficulty: easy, medium or hard")
	generateCmd.Flags().StringVar(&genExamCode, "exam", "default", "exam code for style profile caching")
	generateCmd.Flags().StringVarP(&genOutput, "output", "o", "", "write questions to file instead of stdout")
	generateCmd.Flags().BoolVarP(&genQuiet, "quiet", "q", false, "suppress progress output")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := corpus.Open(cfg.Corpus.DatabasePath, cfg.CorpusBusyTimeout())
	if err != nil {
		return err
	}
	defer store.Close()

	engine, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		return err
	}
	caller, err := llm.NewCallerFromConfig(cfg.LLM, cfg.LLMTimeout())
	if err != nil {
		return err
	}

	retriever := retrieval.NewHybridRetriever(store, engine, cfg.Retrieval)
	orch := pipeline.NewOrchestrator(
		agents.NewResearcher(caller, retriever, cfg.Generation.MaxFacts),
		agents.NewDrafter(caller),
		agents.NewCritic(caller, cfg.Generation.MinCriticScore),
		agents.NewStyleAnalyzer(caller, retriever, store),
		retriever,
		pipeline.NewDeduplicator(engine, store, cfg.Generation.DedupeThreshold),
		cfg.Generation,
		logger,
	)

	run, err := orch.Start(ctx, pipeline.Request{
		ExamCode:   genExamCode,
		Topics:     genTopics,
		Count:      genCount,
		Difficulty: genDifficulty,
	})
	if err != nil {
		return err
	}
	logger.Info("generation started", zap.String("job_id", run.JobID()))

	var questions []pipeline.Question
	var summary *pipeline.Summary
	for ev := range run.Events() {
		switch ev.Type {
		case pipeline.EventProgress:
			if !genQuiet {
				fmt.Fprintf(os.Stderr, "[%s] %s\n", ev.Stage, ev.Message)
			}
		case pipeline.EventQuestion:
			questions = append(questions, *ev.Question)
			if !genQuiet {
				fmt.Fprintf(os.Stderr, "✓ %d/%d: %s\n", len(questions), genCount, truncate(ev.Question.Question, 70))
			}
		case pipeline.EventError:
			fmt.Fprintf(os.Stderr, "✗ %s\n", ev.Message)
		case pipeline.EventDone:
			summary = ev.Summary
		}
	}
	<-run.Done()
	if _, err := run.Questions(); err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}

	if summary != nil && !genQuiet {
		fmt.Fprintf(os.Stderr, "\nGenerated %d/%d questions in %d attempts (%d multiple selection)\n",
			summary.Generated, summary.Requested, summary.Attempts, summary.MultiSelect)
	}

	return writeQuestions(questions)
}

func writeQuestions(questions []pipeline.Question) error {
	if questions == nil {
		questions = []pipeline.Question{}
	}
	data, err := json.MarshalIndent(questions, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode questions: %w", err)
	}
	data = append(data, '\n')

	if genOutput == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(genOutput, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", genOutput, err)
	}
	logger.Info("questions written", zap.String("path", genOutput), zap.Int("count", len(questions)))
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "..."
}
