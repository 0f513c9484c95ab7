package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"stemprep/internal/config"
	"stemprep/internal/logger"
	"stemprep/internal/pipeline"
	"stemprep/internal/progress"
	"stemprep/internal/shutdown"
	"stemprep/internal/web"
	"stemprep/pkg/utils"
)

type configLoader func() (config.Config, string, error)

// analyseOptions holds the flags of the analyse command. Only flags the user
// set override the configuration file.
type analyseOptions struct {
	outputDir          string
	skipFingerprinting bool
	skipTempo          bool
	skipKey            bool
	skipQualitative    bool
	backends           []string
	concurrency        int
	verbose            bool
	dryRun             bool
	force              bool
	keepOriginals      bool
	monitor            string
}

func newAnalyseCommand(load configLoader) *cobra.Command {
	opts := &analyseOptions{}

	cmd := &cobra.Command{
		Use:     "analyse <input_dir>",
		Aliases: []string{"analyze"},
		Short:   "Identify, analyse and rename every WAV file in a directory",
		Long: `Analyse fingerprints each WAV file, estimates tempo, key and descriptive
features with every installed backend, resolves a consensus and commits the
file as artist_songname_bpm_key.wav next to a JSON sidecar.

Exit status is 0 when every file succeeded (partial results included), 1 when
any file failed and 2 when the run could not start.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := load()
			if err != nil {
				return &exitError{code: exitFatal, err: err}
			}
			cfg.InputDir = args[0]
			opts.apply(cmd.Flags().Changed, &cfg)
			cfg.ResolveOutputDir()
			if err := cfg.Validate(); err != nil {
				return &exitError{code: exitFatal, err: fmt.Errorf("configuration error: %w", err)}
			}
			return runAnalyse(cmd, cfg, path)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.outputDir, "output-dir", "o", "", "Directory for renamed files (default: the input directory)")
	f.BoolVar(&opts.skipFingerprinting, "skip-fingerprinting", false, "Do not identify files")
	f.BoolVar(&opts.skipTempo, "skip-tempo", false, "Do not estimate tempo")
	f.BoolVar(&opts.skipTempo, "skip-bpm", false, "Alias for --skip-tempo")
	f.BoolVar(&opts.skipKey, "skip-key", false, "Do not estimate the musical key")
	f.BoolVar(&opts.skipQualitative, "skip-qualitative", false, "Do not extract descriptive features")
	f.StringSliceVar(&opts.backends, "backends", nil, "Analysis backends to use, in priority order")
	f.IntVarP(&opts.concurrency, "concurrency", "j", 0, "Files processed at once (1-32)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Show detailed output")
	f.BoolVarP(&opts.dryRun, "dry-run", "n", false, "Analyse and print planned names without writing anything")
	f.BoolVar(&opts.force, "force", false, "Reprocess files that already carry a matching sidecar")
	f.BoolVar(&opts.keepOriginals, "keep-originals", false, "Copy files instead of moving them")
	f.StringVar(&opts.monitor, "monitor", "", "Serve a live batch monitor on this address, e.g. 127.0.0.1:8080")

	return cmd
}

// apply copies the flags the user changed onto cfg.
func (o *analyseOptions) apply(changed func(string) bool, cfg *config.Config) {
	if changed("output-dir") {
		cfg.OutputDir = config.ExpandHome(o.outputDir)
	}
	if changed("skip-fingerprinting") {
		cfg.SkipFingerprinting = o.skipFingerprinting
	}
	if changed("skip-tempo") || changed("skip-bpm") {
		cfg.SkipTempo = o.skipTempo
	}
	if changed("skip-key") {
		cfg.SkipKey = o.skipKey
	}
	if changed("skip-qualitative") {
		cfg.SkipQualitative = o.skipQualitative
	}
	if changed("backends") {
		cfg.Backends = o.backends
		cfg.BackendPriority = nil
	}
	if changed("concurrency") {
		cfg.Concurrency = o.concurrency
	}
	if changed("verbose") {
		cfg.Verbose = o.verbose
	}
	if changed("dry-run") {
		cfg.DryRun = o.dryRun
	}
	if changed("force") {
		cfg.Force = o.force
	}
	if changed("keep-originals") {
		cfg.KeepOriginals = o.keepOriginals
	}
	if changed("monitor") {
		cfg.MonitorAddr = o.monitor
	}
}

func runAnalyse(cmd *cobra.Command, cfg config.Config, configPath string) error {
	sh := shutdown.New()
	sh.Listen()
	defer sh.Close()

	log := setupLogger(cfg.Verbose)
	defer log.Close()

	if configPath != "" {
		log.Debug("Loaded configuration from: %s", configPath)
	}

	if missing := utils.MissingTools(cfg.FFmpegPath, cfg.FpcalcPath); len(missing) > 0 {
		log.Debug("Not installed: %v", missing)
	}

	tmpDir, err := utils.CreateTempDir()
	if err != nil {
		return &exitError{code: exitFatal, err: fmt.Errorf("error creating temporary folder: %w", err)}
	}
	log.Debug("Temporary folder: %s", tmpDir)
	sh.AddCleanup(func() {
		log.Debug("Cleaning up...")
		if err := utils.Cleanup(tmpDir); err != nil {
			log.Warn("Error during cleanup: %v", err)
		}
	})

	comp, closeComp, err := pipeline.Build(&cfg, log, tmpDir)
	if err != nil {
		return &exitError{code: exitFatal, err: err}
	}
	defer closeComp()

	var bar *progress.Bar
	hooks := pipeline.Hooks{
		OnStart: func(r *pipeline.BatchReport) {
			if !cfg.Verbose && isatty.IsTerminal(os.Stdout.Fd()) {
				bar = progress.New(r.Total)
				log.SetProgressBar(true)
			}
		},
		OnFile: func(f pipeline.FileReport) {
			if bar != nil {
				bar.Increment(string(f.Outcome))
			}
		},
	}

	var mon *web.Monitor
	if cfg.MonitorAddr != "" {
		mon = web.NewMonitor()
		hooks = mon.Hooks(hooks)
		srv := web.NewServer(mon, log)
		if _, err := srv.Start(cfg.MonitorAddr); err != nil {
			return &exitError{code: exitFatal, err: err}
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.Warn("Monitor shutdown error: %v", err)
			}
		}()
	}

	coord := pipeline.New(cfg, comp, log, hooks)
	report, err := coord.Run(sh.Context(), sh.WorkContext())

	if bar != nil {
		bar.Finish()
		log.SetProgressBar(false)
	}
	if mon != nil {
		mon.Finish()
	}

	if err != nil {
		return &exitError{code: exitFatal, err: err}
	}

	if sh.Context().Err() != nil {
		log.Warn("Run interrupted; files not started are reported as failed")
	}

	printSummary(cmd.OutOrStdout(), report)

	if report.Failed > 0 {
		return &exitError{code: exitFileFailed}
	}
	log.Info("=== Process completed successfully ===")
	return nil
}

// setupLogger logs to the console, plus a timestamped file unless verbose.
func setupLogger(verbose bool) *logger.Logger {
	log := logger.New(verbose)
	if verbose {
		return log
	}

	logDir := config.GetDefaultLogPath()
	if err := os.MkdirAll(logDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] Failed to create log directory: %v\n", err)
		return log
	}
	logFile := filepath.Join(logDir, fmt.Sprintf("stemprep_%s.log", time.Now().Format("2006-01-02_15-04-05")))
	if err := log.SetFileLog(logFile); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] Failed to setup file logging: %v\n", err)
	} else {
		log.Debug("Logging to file: %s", logFile)
	}
	return log
}
