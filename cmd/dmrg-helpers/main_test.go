package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iglpdc/dmrg-helpers/pkg/output"
)

// estimatorsFile is a 4-site run with every estimator the structure factors
// need.
func estimatorsFile(u string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# META L 4\n# META U %s\n", u)
	for i := 0; i < 4; i++ {
		fmt.Fprintf(&b, "n_up_%d 0.5\nn_down_%d 0.5\n", i, i)
	}
	sign := 1.0
	for j := 0; j < 4; j++ {
		fmt.Fprintf(&b, "S_z_0*S_z_%d %g\n", j, 0.25*sign)
		fmt.Fprintf(&b, "S_p_0*S_m_%d %g\n", j, 0.1*sign)
		fmt.Fprintf(&b, "S_m_0*S_p_%d %g\n", j, 0.1*sign)
		fmt.Fprintf(&b, "n_up_0*n_up_%d 0.3\n", j)
		fmt.Fprintf(&b, "n_down_0*n_down_%d 0.2\n", j)
		sign = -sign
	}
	return b.String()
}

func writeRuns(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, u := range []string{"1.0", "2.0"} {
		dir := filepath.Join(root, "U"+u)
		require.NoError(t, os.MkdirAll(dir, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "estimators.dat"), []byte(estimatorsFile(u)), 0644))
	}
	return root
}

func execute(args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestStructureFactorsAndReplot(t *testing.T) {
	root := writeRuns(t)
	outDir := t.TempDir()

	_, err := execute("structure-factors", "--root", root, "--output", outDir, "--no-plot")
	require.NoError(t, err)

	for _, name := range structureFactorNames {
		for _, u := range []string{"1.0", "2.0"} {
			assert.FileExists(t, filepath.Join(outDir, name+"_L_4_U_"+u+".dat"))
		}
	}

	entries, err := output.ReadArchive(filepath.Join(outDir, "structure_factors.jsonl"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "spin_structure_factor", entries[0].Name)
	assert.Equal(t, "L:U", entries[0].FingerprintKeys)
	assert.Len(t, entries[0].Runs, 2)
	assert.Equal(t, "charge_structure_factor", entries[1].Name)

	_, err = execute("replot", "--output", outDir, "spin_structure_factor")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(outDir, "spin_structure_factor.png"))
	assert.NoFileExists(t, filepath.Join(outDir, "charge_structure_factor.png"))
}

func TestStructureFactorsPlot(t *testing.T) {
	root := writeRuns(t)
	outDir := t.TempDir()

	_, err := execute("structure-factors", "--root", root, "--output", outDir,
		"--min-separation", "0.05", "--protect", "4:1.0", "--fermi-tp", "0")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(outDir, "spin_structure_factor.png"))
	assert.FileExists(t, filepath.Join(outDir, "charge_structure_factor.png"))

	// The band top of t'=0.75 lies inside [0, pi].
	outDir = t.TempDir()
	_, err = execute("structure-factors", "--root", root, "--output", outDir, "--fermi-tp", "0.75")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(outDir, "spin_structure_factor.png"))
}

func TestStructureFactorsWithoutEstimators(t *testing.T) {
	_, err := execute("structure-factors", "--root", t.TempDir(), "--output", t.TempDir(), "--no-plot")
	assert.Error(t, err)
}

func TestList(t *testing.T) {
	out, err := execute("list", "--root", writeRuns(t))
	require.NoError(t, err)

	assert.Contains(t, out, "fingerprint keys: L:U")
	assert.Contains(t, out, "7 observables, 2 runs, 56 samples")
	assert.Regexp(t, `S_z\*S_z\s+2\s+4:1.0 4:2.0`, out)
	assert.Regexp(t, `n_up\s+2`, out)
}

func TestEstimator(t *testing.T) {
	root := writeRuns(t)

	out, err := execute("estimator", "--root", root, "n_up")
	require.NoError(t, err)
	assert.Contains(t, out, "# L=4, U=1.0\n0 0.5\n1 0.5\n2 0.5\n3 0.5")

	out, err = execute("estimator", "--root", root, "--sites", "0,2*i+1", "S_z*S_z")
	require.NoError(t, err)
	assert.Contains(t, out, "S_z_0*S_z_1 -0.25")
	assert.Contains(t, out, "S_z_0*S_z_3 -0.25")
	assert.NotContains(t, out, "S_z_0*S_z_2")

	out, err = execute("estimator", "--root", root, "--transform", "S_z*S_z")
	require.NoError(t, err)
	assert.Contains(t, out, "# L=4, U=2.0\n0 0")

	outDir := t.TempDir()
	_, err = execute("estimator", "--root", root, "--output", outDir, "--save", "n_down")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(outDir, "n_down_L_4_U_1.0.dat"))

	_, err = execute("estimator", "--root", root, "n_foo")
	assert.ErrorContains(t, err, "no estimator n_foo")

	_, err = execute("estimator", "--root", root, "--save", "S_z*S_z")
	assert.Error(t, err)
}

func TestInvalidFlags(t *testing.T) {
	_, err := execute("list", "--root", t.TempDir(), "--log-level", "loud")
	assert.Error(t, err)

	_, err = execute("structure-factors", "--root", t.TempDir(), "--tie-break", "random")
	assert.Error(t, err)
}
