package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/iglpdc/dmrg-helpers/pkg/analyze"
	"github.com/iglpdc/dmrg-helpers/pkg/estimator"
	"github.com/iglpdc/dmrg-helpers/pkg/output"
	"github.com/iglpdc/dmrg-helpers/pkg/sites"
	"github.com/iglpdc/dmrg-helpers/pkg/types"
)

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the observables and runs found under the input root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			stats := store.Stats()
			fmt.Fprintf(out, "fingerprint keys: %s\n", store.FingerprintKeys())
			fmt.Fprintf(out, "%d observables, %d runs, %d samples\n", stats.Observables, stats.Runs, stats.Samples)

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "OBSERVABLE\tRUNS\tFINGERPRINTS")
			for _, name := range store.Observables() {
				runs := store.Runs(name)
				fmt.Fprintf(w, "%s\t%d\t%s\n", name, len(runs), strings.Join(runs, " "))
			}
			return w.Flush()
		},
	}
}

// estimatorFlags holds the flags of the estimator command.
type estimatorFlags struct {
	sites     []string
	transform bool
	periodic  bool
	save      bool
}

func (a *app) estimatorCmd() *cobra.Command {
	var f estimatorFlags

	cmd := &cobra.Command{
		Use:   "estimator NAME",
		Short: "Print one estimator, such as n_up or S_z*S_z, for every run",
		Long: `Prints the samples of one estimator for every run. --sites keeps only
the site tuples produced by one expression per operator, such as
--sites i,i+1 for nearest neighbours. --transform prints the Fourier
transform of a two-point estimator instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runEstimator(cmd, args[0], f)
		},
	}

	addOutputFlags(cmd)
	cmd.Flags().String("chain-length-key", "", "metadata key holding the chain length")
	cmd.Flags().StringSliceVar(&f.sites, "sites", nil, "site expression per operator, such as i or 2*i+1")
	cmd.Flags().BoolVar(&f.transform, "transform", false, "print the Fourier transform of a two-point estimator")
	cmd.Flags().BoolVar(&f.periodic, "periodic", false, "with --transform, treat the correlator as translation invariant")
	cmd.Flags().BoolVar(&f.save, "save", false, "save each run as a data file in the output directory")
	return cmd
}

func (a *app) runEstimator(cmd *cobra.Command, name string, f estimatorFlags) error {
	store, err := a.openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	full, err := estimator.Query(cmd.Context(), store, name)
	if err != nil {
		return err
	}
	if full.Len() == 0 {
		return errors.Errorf("no estimator %s", name)
	}

	resolver := a.resolver(store)
	agg := full
	if len(f.sites) > 0 {
		agg, err = sites.Select(full, f.sites, func(fp string) (int, error) {
			return resolver.ChainLength(full, fp)
		})
		if err != nil {
			return err
		}
	}

	var series map[string]types.XYSeries
	switch {
	case f.transform:
		series, err = transform(agg, resolver, f.periodic)
	case len(agg.Name()) == 1:
		series, err = singleSite(agg)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if series == nil {
		printSamples(out, agg)
		if f.save {
			return errors.Errorf("%s has more than one site per sample; only --transform output can be saved", name)
		}
		return nil
	}

	for _, fp := range agg.Runs() {
		fmt.Fprintf(out, "# %s\n%s\n", output.RunLabel(agg.FingerprintKeys(), fp), output.Format(series[fp]))
	}
	if !f.save {
		return nil
	}
	base := fileBase(agg.Name().String())
	if f.transform {
		base += "_transform"
	}
	paths, err := output.Save(a.cfg.Output.Dir, series, base+".dat", agg.MetadataFor)
	if err != nil {
		return err
	}
	a.logger.Info("saved estimator", "name", name, "files", len(paths))
	return nil
}

func transform(agg *estimator.Aggregate, resolver analyze.ChainLengthResolver, periodic bool) (map[string]types.XYSeries, error) {
	if !periodic {
		return analyze.TransformAll(agg, resolver)
	}
	out := make(map[string]types.XYSeries, agg.Len())
	for _, fp := range agg.Runs() {
		run, _ := agg.Run(fp)
		l, err := resolver.ChainLength(agg, fp)
		if err != nil {
			return nil, err
		}
		if out[fp], err = analyze.TransformPeriodic(run, l); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func singleSite(agg *estimator.Aggregate) (map[string]types.XYSeries, error) {
	out := make(map[string]types.XYSeries, agg.Len())
	for _, fp := range agg.Runs() {
		s, err := agg.XY(fp)
		if err != nil {
			return nil, err
		}
		out[fp] = s
	}
	return out, nil
}

func printSamples(w io.Writer, agg *estimator.Aggregate) {
	for _, fp := range agg.Runs() {
		fmt.Fprintf(w, "# %s\n", output.RunLabel(agg.FingerprintKeys(), fp))
		run, _ := agg.Run(fp)
		order := make([]int, run.Len())
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(i, j int) bool { return run.Sites[order[i]].Less(run.Sites[order[j]]) })
		for _, i := range order {
			s := run.Sites[i]
			encoded, err := estimator.EncodeName(agg.Name(), s)
			if err != nil {
				encoded = s.Key()
			}
			fmt.Fprintf(w, "%s %g\n", encoded, run.Values[i])
		}
	}
}
