package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/xreply/internal/bird"
	"github.com/kalambet/xreply/internal/browser"
	"github.com/kalambet/xreply/internal/config"
	"github.com/kalambet/xreply/internal/engine"
	"github.com/kalambet/xreply/internal/logging"
	"github.com/kalambet/xreply/internal/metrics"
	"github.com/kalambet/xreply/internal/pipeline"
	"github.com/kalambet/xreply/internal/publish"
	"github.com/kalambet/xreply/internal/reply"
	"github.com/kalambet/xreply/internal/source"
	"github.com/kalambet/xreply/internal/state"
	"github.com/kalambet/xreply/internal/storage"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one reply pass (dry run unless --live)",
	Long: `Run one reply pass: fetch candidates, draft replies and post them.

Without --live nothing is posted; drafts are logged and the candidates are
still recorded as handled.

Examples:
  xreply run
  xreply run --mode watchlist --live
  xreply run --debug`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := runOptionsFromFlags(cmd)
		if err != nil {
			return err
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		_, err = execute(cmd.Context(), cfg, opts, cmd.ErrOrStderr())
		return err
	},
}

func init() {
	runCmd.Flags().String("mode", string(config.ModeThread), "candidate source: thread or watchlist")
	runCmd.Flags().Bool("live", false, "post replies")
	runCmd.Flags().Bool("dry-run", false, "never post, even with --live")
	runCmd.Flags().Bool("debug", false, "enable debug logging")
	runCmd.Flags().Bool("quiet", false, "log to the log file only")
}

type runOptions struct {
	Mode   config.Mode
	DryRun bool
	Debug  bool
	Quiet  bool
}

func runOptionsFromFlags(cmd *cobra.Command) (runOptions, error) {
	modeStr, _ := cmd.Flags().GetString("mode")
	live, _ := cmd.Flags().GetBool("live")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	debug, _ := cmd.Flags().GetBool("debug")
	quiet, _ := cmd.Flags().GetBool("quiet")

	mode, err := config.ParseMode(modeStr)
	if err != nil {
		return runOptions{}, err
	}
	return runOptions{Mode: mode, DryRun: dryRun || !live, Debug: debug, Quiet: quiet}, nil
}

// backend is the collaborator that reads timelines, posts replies and knows
// which account it is logged in as.
type backend interface {
	source.Timeline
	publish.Poster
	pipeline.Authenticator
}

func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (backend, func() error, error) {
	switch cfg.Source.Backend {
	case "bird", "":
		c := bird.New(cfg.Bird.Binary, time.Duration(cfg.Bird.TimeoutSeconds)*time.Second, logger)
		return c, func() error { return nil }, nil
	case "browser":
		s, err := browser.Open(ctx, browser.Options{
			ControlURL: cfg.Browser.ControlURL,
			ChromeBin:  cfg.Browser.ChromeBin,
			ProfileDir: cfg.Browser.ProfileDir,
			Headless:   cfg.Browser.Headless,
			NavTimeout: time.Duration(cfg.Browser.NavTimeoutSeconds) * time.Second,
			Settle:     time.Duration(cfg.Browser.SettleMs) * time.Millisecond,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("opening browser: %w", err)
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown source backend %q: want bird or browser", cfg.Source.Backend)
	}
}

// execute wires one run from cfg and performs it. Console progress that is
// not part of the log goes to w.
func execute(ctx context.Context, cfg config.Config, opts runOptions, w io.Writer) (pipeline.Report, error) {
	rc, err := cfg.RunConfig(opts.Mode, opts.DryRun)
	if err != nil {
		return pipeline.Report{}, err
	}

	voice, err := loadVoice(cfg, opts.Mode)
	if err != nil {
		return pipeline.Report{}, err
	}

	logger, closeLog, err := logging.Setup(logging.Options{
		File:    cfg.LogFile(opts.Mode),
		Debug:   opts.Debug || cfg.Log.Level == "debug",
		Quiet:   opts.Quiet,
		Console: w,
	})
	if err != nil {
		return pipeline.Report{}, err
	}
	defer closeLog()

	be, closeBackend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return pipeline.Report{}, err
	}
	defer func() {
		if err := closeBackend(); err != nil {
			logger.Warn("closing backend failed", "error", err)
		}
	}()

	src, err := source.New(be, rc, logger)
	if err != nil {
		return pipeline.Report{}, err
	}

	eng, err := engine.New(ctx, cfg.Generator)
	switch {
	case errors.Is(err, engine.ErrMissingCredential):
		logger.Warn("text generation unavailable; every candidate will be skipped", "provider", cfg.Generator.Provider, "error", err)
		eng = engine.Unavailable(err)
	case err != nil:
		return pipeline.Report{}, err
	}
	progress := w
	if opts.Quiet {
		progress = io.Discard
	}
	if err := engine.EnsureReady(ctx, eng, progress); err != nil {
		logger.Warn("text generation backend not ready", "engine", eng.Name(), "error", err)
		eng = engine.Unavailable(err)
	}
	logger.Debug("text generation backend", "engine", eng.Name())

	gen := reply.NewGenerator(eng, reply.Options{
		Handle:    rc.Handle,
		MaxTokens: cfg.Generator.MaxTokens,
		MaxChars:  cfg.Generator.MaxChars,
		Timeout:   time.Duration(cfg.Generator.TimeoutSeconds) * time.Second,
	})

	deps := pipeline.Deps{
		Auth:      be,
		Source:    src,
		Store:     state.NewStore(cfg.StateFile(opts.Mode), rc.Retention),
		Generator: gen,
		Publisher: publish.New(be, rc.DryRun, 0, logger),
		Voice:     voice,
		Logger:    logger,
	}

	if journal, err := storage.Open(cfg.Storage.DataDir); err != nil {
		logger.Warn("run journal unavailable", "error", err)
	} else {
		defer journal.Close()
		deps.Journal = journal
	}

	if cfg.Metrics.Textfile != "" {
		deps.Metrics = metrics.NewRecorder(cfg.Metrics.Textfile)
	}

	return pipeline.New(rc, deps).Run(ctx)
}

// loadVoice reads generator.voice_file, or falls back to the built-in preset
// for mode.
func loadVoice(cfg config.Config, mode config.Mode) (reply.VoiceSpec, error) {
	if cfg.Generator.VoiceFile != "" {
		return reply.LoadVoice(cfg.Generator.VoiceFile)
	}
	return reply.Preset(presetFor(mode))
}

func presetFor(mode config.Mode) string {
	if mode == config.ModeWatchList {
		return "outbound"
	}
	return "thread"
}
