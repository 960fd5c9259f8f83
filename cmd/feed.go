package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TsaiLintung/paper-scroll/internal/scroll"
)

const abstractPreview = 400

func newFeedCmd() *cobra.Command {
	var (
		n         int
		sample    bool
		asJSON    bool
		resetSeen bool
	)
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Print papers from the synced journals",
		Long: `Prints papers drawn from the synced snapshots. With --sample, papers are
sampled at random from OpenAlex for the configured journals and years instead,
which needs no prior sync.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if n <= 0 {
				n = appInstance.Config().Feed.InitialBatch
			}

			var papers []scroll.Paper
			if sample {
				if resetSeen {
					appInstance.Sampler().Reset()
				}
				papers, err = appInstance.Sampler().Batch(cmd.Context(), n)
			} else {
				papers, err = appInstance.Feed().Next(cmd.Context(), n)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(papers)
			}
			if len(papers) == 0 {
				fmt.Fprintln(out, "no papers could be loaded")
				return nil
			}
			for i, p := range papers {
				if i > 0 {
					fmt.Fprintln(out)
				}
				printPaper(out, p)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "number", "n", 0, "number of papers (default feed.initial_batch)")
	cmd.Flags().BoolVar(&sample, "sample", false, "sample papers from OpenAlex instead of the synced pool")
	cmd.Flags().BoolVar(&resetSeen, "reset", false, "with --sample, forget papers already shown")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print papers as JSON")
	return cmd
}

func printPaper(w io.Writer, p scroll.Paper) {
	fmt.Fprintln(w, p.Title)
	if p.YearJournal != "" {
		fmt.Fprintln(w, "  "+p.YearJournal)
	}
	if p.Authors != "" {
		fmt.Fprintln(w, "  "+p.Authors)
	}
	fmt.Fprintln(w, "  "+p.DOI)
	if p.Abstract != "" {
		fmt.Fprintln(w, "  "+truncate(p.Abstract, abstractPreview))
	}
}

func truncate(s string, limit int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= limit {
		return string(r)
	}
	return string(r[:limit]) + "…"
}
