package main

import (
	"github.com/spf13/cobra"

	"stemprep/internal/config"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "stemprep",
		Short:         "Identify and analyse WAV files, then give them canonical names",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (YAML or TOML)")

	loadConfig := func() (config.Config, string, error) {
		path := configFlag
		if path == "" {
			path = config.FindConfigFile()
		}
		cfg, err := config.LoadConfigFile(path)
		return cfg, path, err
	}

	rootCmd.AddCommand(newAnalyseCommand(loadConfig))
	rootCmd.AddCommand(newToolsCommand(loadConfig))
	rootCmd.AddCommand(newInitConfigCommand())

	return rootCmd
}
