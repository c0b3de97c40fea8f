package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDebugCmd() *cobra.Command {
	debugCmd := &cobra.Command{
		Use:   "debug",
		Short: "Debug and diagnostic commands",
		Long:  `Commands for debugging and diagnosing hostsentinel configuration.`,
	}

	debugCmd.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		Long: `Print the configuration hostsentinel would run with, after applying the
config file, HOSTSENTINEL_* environment variables and flags.

The output is valid YAML and can be saved as a config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	})

	return debugCmd
}
