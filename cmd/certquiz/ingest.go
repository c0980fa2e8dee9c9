package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"certquiz/internal/corpus"
	"certquiz/internal/embedding"
)

var (
	ingestSourceType string
	ingestChunkSize  int
)

// embedBatchSize bounds how many chunks go to the embedding API per call.
const embedBatchSize = 16

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Ingest study material into the corpus",
	Long: `Ingest reads plain-text files, splits them into chunks, embeds each
chunk and stores it in the corpus database.

Use --type to label the material: textbook and diagram content feeds
fact retrieval, exam_paper content feeds style analysis and examples.`,
	Example: `  certquiz ingest --type textbook notes/*.txt
  certquiz ingest --type exam_paper past-papers/2024.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSourceType, "type", corpus.SourceTextbook,
		"source type: textbook, diagram or exam_paper")
	ingestCmd.Flags().IntVar(&ingestChunkSize, "chunk-size", 1200, "target chunk size in characters")
}

func runIngest(cmd *cobra.Command, args []string) error {
	switch ingestSourceType {
	case corpus.SourceTextbook, corpus.SourceDiagram, corpus.SourceExamPaper:
	default:
		return fmt.Errorf("invalid source type %q (use textbook, diagram or exam_paper)", ingestSourceType)
	}

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
	logger.Info("ingesting files",
		zap.Int("files", len(args)),
		zap.String("source_type", ingestSourceType),
		zap.String("engine", engine.Name()))

	total := 0
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		chunks := chunkText(string(data), ingestChunkSize)
		if len(chunks) == 0 {
			logger.Warn("no content in file", zap.String("path", path))
			continue
		}

		filename := filepath.Base(path)
		for start := 0; start < len(chunks); start += embedBatchSize {
			end := start + embedBatchSize
			if end > len(chunks) {
				end = len(chunks)
			}
			batch := chunks[start:end]

			vectors, err := engine.EmbedBatch(ctx, batch)
			if err != nil {
				return fmt.Errorf("embedding failed for %s: %w", path, err)
			}
			for i, chunk := range batch {
				_, err := store.InsertChunk(ctx, chunk, vectors[i], ingestSourceType, map[string]interface{}{
					"filename": filename,
					"chunk":    start + i,
				})
				if err != nil {
					return err
				}
			}
			total += len(batch)
		}
		logger.Info("file ingested", zap.String("path", path), zap.Int("chunks", len(chunks)))
	}

	fmt.Fprintf(os.Stderr, "Ingested %d chunks from %d file(s) as %s\n", total, len(args), ingestSourceType)
	return nil
}

// chunkText splits text into chunks of roughly maxChars, packing whole
// paragraphs together and hard-splitting only paragraphs that exceed the
// limit on their own.
func chunkText(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = 1200
	}

	paragraphs := strings.Split(text, "\n\n")
	var chunks []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		for len(p) > maxChars {
			flush()
			cut := strings.LastIndex(p[:maxChars], " ")
			if cut <= 0 {
				cut = maxChars
			}
			chunks = append(chunks, strings.TrimSpace(p[:cut]))
			p = strings.TrimSpace(p[cut:])
		}
		if current.Len() > 0 && current.Len()+len(p)+2 > maxChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	flush()
	return chunks
}
