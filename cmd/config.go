package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/TsaiLintung/paper-scroll/internal/settings"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the feed settings",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the current settings as YAML",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				appInstance, err := resolveApp(cmd.Context())
				if err != nil {
					return err
				}
				cfg, err := appInstance.Settings().Get(cmd.Context())
				if err != nil {
					return err
				}
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(cfg); err != nil {
					return fmt.Errorf("encode settings: %w", err)
				}
				return enc.Close()
			},
		},
		&cobra.Command{
			Use:   "set FIELD VALUE",
			Short: "Change one setting (" + strings.Join(settings.Fields(), ", ") + ")",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				appInstance, err := resolveApp(cmd.Context())
				if err != nil {
					return err
				}
				update, err := appInstance.Settings().Set(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if len(update.Changed) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%s unchanged\n", args[0])
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s updated\n", args[0])
				resyncHint(cmd, update)
				return nil
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Restore the default settings",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				appInstance, err := resolveApp(cmd.Context())
				if err != nil {
					return err
				}
				update, err := appInstance.Settings().Reset(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "settings reset to defaults")
				resyncHint(cmd, update)
				return nil
			},
		},
	)
	return cmd
}
