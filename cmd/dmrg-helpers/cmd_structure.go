package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/iglpdc/dmrg-helpers/pkg/analyze"
	"github.com/iglpdc/dmrg-helpers/pkg/output"
	"github.com/iglpdc/dmrg-helpers/pkg/storage"
	"github.com/iglpdc/dmrg-helpers/pkg/types"
)

var structureFactorNames = []string{"spin_structure_factor", "charge_structure_factor"}

func (a *app) structureFactorsCmd() *cobra.Command {
	var (
		protected []string
		fermiTP   float64
	)

	cmd := &cobra.Command{
		Use:   "structure-factors",
		Short: "Compute the spin and charge structure factors of every run",
		Long: `Reads every estimator file under the input root and computes the spin
and charge structure factors of each run. Each run is saved as a two-column
data file named after its metadata, every structure factor is appended to
the archive, and one plot per structure factor is drawn.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var markers func(sf *analyze.StructureFactor, resolver analyze.ChainLengthResolver) ([]float64, error)
			if cmd.Flags().Changed("fermi-tp") {
				markers = fermiMarkers(fermiTP)
			}
			return a.runStructureFactors(cmd, protected, markers)
		},
	}

	addOutputFlags(cmd)
	cmd.Flags().String("chain-length-key", "", "metadata key holding the chain length")
	cmd.Flags().StringSliceVar(&protected, "protect", nil, "runs never dropped from plots, by fingerprint values")
	cmd.Flags().Float64Var(&fermiTP, "fermi-tp", 0, "mark the free-fermion Fermi momenta for this next-nearest hopping")
	return cmd
}

func (a *app) runStructureFactors(cmd *cobra.Command, protected []string, markers func(*analyze.StructureFactor, analyze.ChainLengthResolver) ([]float64, error)) error {
	ctx := cmd.Context()

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	resolver := a.resolver(store)
	results, err := a.structureFactors(cmd, store, resolver)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(a.cfg.Output.Dir, 0755); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}

	var archive *output.Archive
	if path := a.archivePath(); path != "" {
		archive, err = output.OpenArchive(path)
		if err != nil {
			return err
		}
		defer archive.Close()
	}

	for _, sf := range results {
		named := sf.Named()

		paths, err := output.Save(a.cfg.Output.Dir, sf.Series, named.Name+".dat", sf.Correlator.MetadataFor)
		if err != nil {
			return err
		}
		a.logger.Info("saved structure factor", "name", named.Name, "files", len(paths))

		if archive != nil {
			if err := archive.Append(named); err != nil {
				return err
			}
		}

		if !a.cfg.Output.Plot {
			continue
		}
		opts := a.plotOptions(protected)
		opts.YLabel = named.Name
		if markers != nil {
			if opts.Markers, err = markers(sf, resolver); err != nil {
				return err
			}
		}
		if _, err := output.Plot(a.plotPath(named.Name), named, opts); err != nil {
			return err
		}
	}

	if archive != nil {
		return archive.Flush()
	}
	return nil
}

// structureFactors computes the spin and charge structure factors. One
// whose estimators were not measured is skipped with a warning.
func (a *app) structureFactors(cmd *cobra.Command, store storage.Store, resolver analyze.ChainLengthResolver) ([]*analyze.StructureFactor, error) {
	ctx := cmd.Context()
	var results []*analyze.StructureFactor

	spin, err := analyze.SpinStructureFactor(ctx, store, a.cfg.Analysis.Spin, resolver, a.logger)
	if err != nil {
		return nil, err
	}
	if spin.Correlator.Len() > 0 {
		results = append(results, spin)
	} else {
		a.logger.Warn("no spin estimators, skipping spin structure factor")
	}

	charge, err := analyze.DensityStructureFactor(ctx, store, a.cfg.Analysis.Density, resolver)
	switch {
	case errors.Is(err, analyze.ErrNoEstimators):
		a.logger.Warn("skipping charge structure factor", "error", err)
	case err != nil:
		return nil, err
	default:
		results = append(results, charge)

		n, err := analyze.Density(ctx, store, a.cfg.Analysis.Density)
		if err != nil {
			return nil, err
		}
		for fp, mean := range analyze.MeanDensity(n) {
			a.logger.Info("mean density", "run", fp, "n", mean)
		}
	}

	if len(results) == 0 {
		return nil, errors.Wrap(analyze.ErrNoEstimators, "no structure factor can be computed")
	}
	return results, nil
}

// fermiMarkers returns the Fermi momenta of the two-band free-fermion model
// at half filling, for the chain length of the first run.
func fermiMarkers(tp float64) func(*analyze.StructureFactor, analyze.ChainLengthResolver) ([]float64, error) {
	return func(sf *analyze.StructureFactor, resolver analyze.ChainLengthResolver) ([]float64, error) {
		runs := sf.Correlator.Runs()
		if len(runs) == 0 {
			return nil, nil
		}
		l, err := resolver.ChainLength(sf.Correlator, runs[0])
		if err != nil {
			return nil, err
		}
		return analyze.HalfFillingFermiMomenta(analyze.TwoBandDispersion(tp), 0, analyze.TwoBandTop(tp), l)
	}
}

func (a *app) replotCmd() *cobra.Command {
	var (
		archivePath string
		protected   []string
	)

	cmd := &cobra.Command{
		Use:   "replot [name...]",
		Short: "Redraw archived structure factors without reading the estimators again",
		Long: `Reads the archive written by structure-factors and draws the latest
entry of every name given, or of both structure factors when no name is
given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if archivePath == "" {
				archivePath = a.archivePath()
			}
			if archivePath == "" {
				return errors.New("no archive configured")
			}
			names := args
			if len(names) == 0 {
				names = structureFactorNames
			}

			entries, err := output.ReadArchive(archivePath)
			if err != nil {
				return err
			}

			for _, name := range names {
				entry, ok := output.Latest(entries, name)
				if !ok {
					a.logger.Warn("not in archive", "name", name, "archive", archivePath)
					continue
				}
				if err := a.replot(entry.NamedSeries, protected); err != nil {
					return err
				}
			}
			return nil
		},
	}

	addOutputFlags(cmd)
	cmd.Flags().StringVar(&archivePath, "archive", "", "archive file; defaults to the configured one")
	cmd.Flags().StringSliceVar(&protected, "protect", nil, "runs never dropped from plots, by fingerprint values")
	return cmd
}

func (a *app) replot(s types.NamedSeries, protected []string) error {
	if err := os.MkdirAll(a.cfg.Output.Dir, 0755); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}
	opts := a.plotOptions(protected)
	opts.YLabel = s.Name
	_, err := output.Plot(a.plotPath(s.Name), s, opts)
	return err
}
