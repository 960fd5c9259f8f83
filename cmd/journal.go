package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/TsaiLintung/paper-scroll/internal/scroll"
)

func newJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Manage the followed journals",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add NAME ISSN",
			Short: "Follow a journal",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				appInstance, err := resolveApp(cmd.Context())
				if err != nil {
					return err
				}
				update, err := appInstance.Settings().AddJournal(cmd.Context(), scroll.Journal{Name: args[0], ISSN: args[1]})
				if err != nil {
					return err
				}
				if len(update.Changed) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%s is already followed\n", args[1])
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", args[0], args[1])
				resyncHint(cmd, update)
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove ISSN",
			Short: "Stop following a journal",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				appInstance, err := resolveApp(cmd.Context())
				if err != nil {
					return err
				}
				update, err := appInstance.Settings().RemoveJournal(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
				resyncHint(cmd, update)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List followed journals",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return findJournals(cmd, "")
			},
		},
		&cobra.Command{
			Use:   "find QUERY",
			Short: "Fuzzy-search followed journals by name or ISSN",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return findJournals(cmd, args[0])
			},
		},
		&cobra.Command{
			Use:   "import FILE",
			Short: "Follow every journal in a YAML list (use - for stdin)",
			Long: `Reads a YAML document of the form

  journals:
    - name: aer
      issn: 0002-8282

and follows each journal not already followed. Nothing is stored when any
entry is invalid.`,
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				appInstance, err := resolveApp(cmd.Context())
				if err != nil {
					return err
				}
				var r io.Reader = cmd.InOrStdin()
				if args[0] != "-" {
					f, err := os.Open(args[0])
					if err != nil {
						return fmt.Errorf("open journal list: %w", err)
					}
					defer f.Close() //nolint:errcheck // read-only file
					r = f
				}
				update, err := appInstance.Settings().ImportJournals(cmd.Context(), r)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d journal(s) followed\n", len(update.Settings.Journals))
				resyncHint(cmd, update)
				return nil
			},
		},
	)
	return cmd
}

func findJournals(cmd *cobra.Command, query string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	journals, err := appInstance.Settings().Find(cmd.Context(), query)
	if err != nil {
		return err
	}
	if len(journals) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no journals")
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tISSN")
	for _, j := range journals {
		fmt.Fprintf(tw, "%s\t%s\n", j.Name, j.ISSN)
	}
	return tw.Flush()
}
