package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"stemprep/internal/config"
)

func newInitConfigCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Create a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := config.ExpandHome(strings.TrimSpace(targetPath))
			if target == "" {
				target = config.GetDefaultConfigPath()
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.SaveConfigFile(config.DefaultConfig(), target); err != nil {
				return fmt.Errorf("failed to create config file: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created default config file at: %s\n", target)
			fmt.Fprintln(out, "Set acoustid_api_key to enable identification.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file (.yaml or .toml)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite an existing configuration file")
	return cmd
}
