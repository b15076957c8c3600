// Command outbreak runs replicates of the stochastic outbreak simulator and
// writes their combined event log.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/talgya/outbreak/internal/config"
	"github.com/talgya/outbreak/internal/engine"
	"github.com/talgya/outbreak/internal/entropy"
	"github.com/talgya/outbreak/internal/events"
	"github.com/talgya/outbreak/internal/persistence"
	"github.com/talgya/outbreak/internal/plugins"
	"github.com/talgya/outbreak/internal/runner"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env file", "error", err)
	}

	if err := newRootCommand(viper.New()).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(v *viper.Viper) *cobra.Command {
	var cfgFile string
	var debug bool

	root := &cobra.Command{
		Use:          "outbreak",
		Short:        "Stochastic individual-based outbreak simulator",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(debug)
			if cfgFile == "" {
				return nil
			}
			v.SetConfigFile(cfgFile)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("read config: %w", err)
			}
			slog.Debug("config loaded", "file", v.ConfigFileUsed())
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "run file (yaml, toml or json)")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "verbose diagnostics")

	run := newRunCommand(v)
	root.AddCommand(run, newValidateCommand(v), newEventsCommand())
	root.RunE = run.RunE
	root.Flags().AddFlagSet(run.Flags())
	return root
}

func setupLogging(debug bool) {
	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})
	slog.SetDefault(slog.New(logger))
}

// ── Run ───────────────────────────────────────────────────────────────

func newRunCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured replicates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return runReplicates(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.IntP("replicates", "n", 1, "number of replicates")
	f.IntP("jobs", "j", 0, "replicates run in parallel (0: one per CPU)")
	f.Uint64("seed", 0, "random seed (0: draw one)")
	f.String("logfile", "", "append records to this file instead of stdout")
	f.String("db", "", "also store the run in this SQLite database")
	for _, name := range []string{"replicates", "jobs", "seed", "logfile", "db"} {
		_ = v.BindPFlag(name, f.Lookup(name))
	}
	return cmd
}

func runReplicates(ctx context.Context, cfg config.Config, stdout io.Writer) error {
	if cfg.Seed == 0 {
		cfg.Seed = entropy.Seed()
	}
	setup, err := cfg.Setup()
	if err != nil {
		return err
	}

	// ── Output ────────────────────────────────────────────────────────
	out := stdout
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		out = f
	}
	records := runner.NewWriterSink(out)
	sinks := []runner.Sink{records}

	// ── Database ──────────────────────────────────────────────────────
	if cfg.DB != "" {
		db, err := persistence.Open(cfg.DB)
		if err != nil {
			return err
		}
		defer db.Close()

		run, err := persistence.NewRun(cfg.Seed, cfg.Replicates, cfg)
		if err != nil {
			return err
		}
		sink, err := persistence.NewRunSink(db, run)
		if err != nil {
			return err
		}
		sinks = append(sinks, sink)
		slog.Info("storing run", "db", cfg.DB, "run", run.ID)
	}

	// ── Replicates ────────────────────────────────────────────────────
	slog.Info("starting",
		"replicates", cfg.Replicates,
		"jobs", cfg.Jobs,
		"seed", cfg.Seed,
		"popsize", totalSize(setup),
	)
	nrecords := 0
	sinks = append(sinks, runner.SinkFunc(func(res *runner.Result) error {
		nrecords += res.Log.Len()
		return nil
	}))

	started := time.Now()
	pool := &runner.Pool{
		Setup:      setup,
		Registry:   plugins.Builtins(),
		Replicates: cfg.Replicates,
		Jobs:       cfg.Jobs,
		Sinks:      sinks,
	}
	summaries, runErr := pool.Run(ctx)
	if err := records.Flush(); err != nil && runErr == nil {
		runErr = fmt.Errorf("flush records: %w", err)
	}

	report(summaries, nrecords, time.Since(started))
	if runErr != nil {
		slog.Error("run failed", "error", runErr)
	}
	return runErr
}

func totalSize(s engine.Setup) int {
	n := 0
	for _, g := range s.Groups {
		n += g.Size
	}
	return n
}

func report(summaries []engine.Summary, nrecords int, elapsed time.Duration) {
	if len(summaries) == 0 {
		return
	}
	var infected, aborted int
	for _, s := range summaries {
		infected += s.Infected
		if s.Aborted {
			aborted++
		}
	}
	slog.Info("run finished",
		"replicates", len(summaries),
		"records", humanize.Comma(int64(nrecords)),
		"mean_infected", humanize.FormatFloat("#,###.##", float64(infected)/float64(len(summaries))),
		"aborted", aborted,
		"elapsed", elapsed.Round(time.Millisecond),
	)
}

// ── Validate ──────────────────────────────────────────────────────────

func newValidateCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration without running anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			setup, err := cfg.Setup()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "configuration ok: %s individuals in %d group(s), %d replicate(s), %d plugin(s)\n",
				humanize.Comma(int64(totalSize(setup))), len(setup.Groups), cfg.Replicates, len(setup.Plugins))
			fmt.Fprintf(w, "symptomatic cases: %s\n", setup.Options.Handle)
			return nil
		},
	}
}

// ── Events ────────────────────────────────────────────────────────────

func newEventsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "List the record kinds and the built-in plugins",
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			for _, k := range events.Kinds() {
				fmt.Fprintln(w, k)
			}
			fmt.Fprintln(w)
			for _, name := range plugins.Builtins().Names() {
				fmt.Fprintln(w, "plugin", name)
			}
		},
	}
}
