package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"certquiz/internal/corpus"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show corpus statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := corpus.Open(cfg.Corpus.DatabasePath, cfg.CorpusBusyTimeout())
		if err != nil {
			return err
		}
		defer store.Close()

		counts, err := store.CountChunks(cmd.Context())
		if err != nil {
			return err
		}

		types := make([]string, 0, len(counts))
		total := 0
		for t, n := range counts {
			types = append(types, t)
			total += n
		}
		sort.Strings(types)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Corpus:\t%s\n", store.Path())
		for _, t := range types {
			fmt.Fprintf(w, "%s\t%d\n", t, counts[t])
		}
		fmt.Fprintf(w, "total\t%d\n", total)
		return w.Flush()
	},
}
