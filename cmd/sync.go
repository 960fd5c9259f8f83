package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TsaiLintung/paper-scroll/internal/scroll"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Refresh journal snapshots once and print progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			res, err := appInstance.SyncOnce(cmd.Context(), func(s scroll.Status) {
				fmt.Fprintf(out, "[%3.0f%%] %s\n", s.Progress*100, s.Message)
			})
			if err != nil {
				return fmt.Errorf("sync: %w", err)
			}
			if res.Failed() {
				return errors.New(res.Err)
			}
			fmt.Fprintf(out, "%d snapshot(s) saved\n", res.Snapshots)
			return nil
		},
	}
}
