package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stemprep/internal/config"
	"stemprep/pkg/utils"
)

// newToolsCommand reports which external programs the configuration points at
// and whether they are installed.
func newToolsCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Show the external analysis tools and whether they are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load()
			if err != nil {
				return &exitError{code: exitFatal, err: err}
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Used by", "Tool", "Path"},
				toolRows(cfg),
				nil,
			))
			return nil
		},
	}
}

func toolRows(cfg config.Config) [][]string {
	tools := []struct{ user, name string }{
		{"converter", cfg.FFmpegPath},
		{"identify", cfg.FpcalcPath},
		{"aubio", cfg.AubioPath},
		{"essentia", cfg.EssentiaPath},
		{"keyfinder", cfg.KeyfinderPath},
		{"madmom", cfg.MadmomTempoPath},
		{"madmom", cfg.MadmomKeyPath},
		{"librosa", cfg.PythonPath},
	}

	rows := make([][]string, 0, len(tools))
	for _, t := range tools {
		path := utils.LookupTool(t.name)
		if path == "" {
			path = "not installed"
		}
		rows = append(rows, []string{t.user, t.name, path})
	}
	return rows
}
