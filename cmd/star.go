package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TsaiLintung/paper-scroll/internal/scroll"
)

func newStarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "star",
		Short: "Work with starred papers",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List starred papers, newest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				appInstance, err := resolveApp(cmd.Context())
				if err != nil {
					return err
				}
				starred, err := appInstance.Store().ListStarred(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(starred) == 0 {
					fmt.Fprintln(out, "no starred papers")
					return nil
				}
				for i, s := range starred {
					if i > 0 {
						fmt.Fprintln(out)
					}
					fmt.Fprintf(out, "starred %s\n", s.StarredAt.Format("2006-01-02"))
					printPaper(out, s.Paper)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "check DOI",
			Short: "Report whether a paper is starred",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				appInstance, err := resolveApp(cmd.Context())
				if err != nil {
					return err
				}
				starred, err := appInstance.Store().GetStarred(cmd.Context(), args[0])
				if errors.Is(err, scroll.ErrNotFound) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s is not starred\n", scroll.DOIURL(args[0]))
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s starred %s\n", starred.Paper.DOI, starred.StarredAt.Format("2006-01-02"))
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove DOI",
			Short: "Unstar a paper",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				appInstance, err := resolveApp(cmd.Context())
				if err != nil {
					return err
				}
				if err := appInstance.Store().UnstarPaper(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "unstarred %s\n", args[0])
				return nil
			},
		},
	)
	return cmd
}
