package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iglpdc/dmrg-helpers/internal/config"
	"github.com/iglpdc/dmrg-helpers/pkg/analyze"
	"github.com/iglpdc/dmrg-helpers/pkg/declutter"
	"github.com/iglpdc/dmrg-helpers/pkg/output"
	"github.com/iglpdc/dmrg-helpers/pkg/storage"
)

// app holds what every command shares once the root command has loaded the
// configuration.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "dmrg-helpers",
		Short: "Collect and analyze the estimators written by DMRG runs",
		Long: `dmrg-helpers reads the estimator files of a set of DMRG runs into one
store, computes correlators and structure factors from them, and saves
the results as data files, plots or an HTTP API.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML configuration file")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.String("root", "", "directory searched for estimator files")
	pf.String("pattern", "", "file name pattern of estimator files")
	pf.String("db", "", "directory of a new persistent store; empty keeps it in memory")
	pf.Int("workers", 0, "files read in parallel")

	rootCmd.AddCommand(
		a.structureFactorsCmd(),
		a.replotCmd(),
		a.listCmd(),
		a.estimatorCmd(),
		a.serveCmd(),
	)
	return rootCmd
}

// setup loads the configuration, applies the flags that were set and builds
// the logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("root") {
		cfg.Input.Root, _ = flags.GetString("root")
	}
	if flags.Changed("pattern") {
		cfg.Input.Pattern, _ = flags.GetString("pattern")
	}
	if flags.Changed("db") {
		cfg.Storage.Path, _ = flags.GetString("db")
	}
	if flags.Changed("workers") {
		cfg.Input.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("output") {
		cfg.Output.Dir, _ = flags.GetString("output")
	}
	if flags.Changed("no-plot") {
		noPlot, _ := flags.GetBool("no-plot")
		cfg.Output.Plot = !noPlot
	}
	if flags.Changed("min-separation") {
		cfg.Output.MinSeparation, _ = flags.GetFloat64("min-separation")
	}
	if flags.Changed("tie-break") {
		cfg.Output.TieBreak, _ = flags.GetString("tie-break")
	}
	if flags.Changed("chain-length-key") {
		cfg.Analysis.ChainLengthKey, _ = flags.GetString("chain-length-key")
	}
	if flags.Changed("listen") {
		cfg.Server.ListenAddr, _ = flags.GetString("listen")
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	return nil
}

// openStore creates a new store holding every estimator file found under
// the input root.
func (a *app) openStore(ctx context.Context) (storage.Store, error) {
	a.logger.Info("creating store",
		"root", a.cfg.Input.Root,
		"pattern", a.cfg.Input.Pattern,
		"path", a.cfg.Storage.Path)
	return storage.CreateFromDir(ctx,
		a.cfg.ToStorageConfig(a.logger),
		a.cfg.Input.Root,
		a.cfg.Input.Pattern,
		a.cfg.Input.Workers,
		a.logger)
}

func (a *app) resolver(store storage.Store) analyze.ChainLengthResolver {
	return analyze.ResolverFor(a.cfg.Analysis.ChainLengthKey, store.FingerprintKeys())
}

// plotOptions fills output.PlotOptions from the output configuration.
func (a *app) plotOptions(protected []string) output.PlotOptions {
	opts := output.DefaultPlotOptions()
	opts.Width = a.cfg.Output.PlotWidth
	opts.Height = a.cfg.Output.PlotHeight
	opts.MinSeparation = a.cfg.Output.MinSeparation
	opts.Protected = protected
	// Validate has already accepted the name.
	opts.TieBreak, _ = declutter.ParseTieBreak(a.cfg.Output.TieBreak)
	opts.Logger = a.logger
	return opts
}

func (a *app) plotPath(name string) string {
	return filepath.Join(a.cfg.Output.Dir, name+"."+a.cfg.Output.PlotFormat)
}

func (a *app) archivePath() string {
	if a.cfg.Output.Archive == "" || filepath.IsAbs(a.cfg.Output.Archive) {
		return a.cfg.Output.Archive
	}
	return filepath.Join(a.cfg.Output.Dir, a.cfg.Output.Archive)
}

// addOutputFlags registers the flags shared by the commands that write
// files.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().String("output", "", "directory for data files and plots")
	cmd.Flags().Bool("no-plot", false, "do not draw plots")
	cmd.Flags().Float64("min-separation", 0, "drop runs closer than this fraction of the plot height")
	cmd.Flags().String("tie-break", "", "run removed between two equally close runs: tighter or looser")
}

// fileBase turns an operator list into a file name stem.
func fileBase(name string) string {
	return strings.ReplaceAll(name, "*", "_")
}
