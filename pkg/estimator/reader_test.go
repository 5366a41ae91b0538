package estimator

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iglpdc/dmrg-helpers/pkg/types"
)

func TestRead(t *testing.T) {
	content := `# estimators written by the DMRG driver
# META p 1.0

n_up_0 1.0
n_up_1   2.0
`
	f, err := Read("estimators.dat", strings.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"p": "1.0"}, f.Meta)
	require.Len(t, f.Data, 2)
	assert.Equal(t, types.DataLine{
		Line:  4,
		Token: "n_up_0",
		Name:  types.NewObservableName("n_up"),
		Sites: types.NewSiteTuple(0),
		Value: 1.0,
	}, f.Data[0])
	assert.Equal(t, 5, f.Data[1].Line)
	assert.Equal(t, 2.0, f.Data[1].Value)

	records, fp := f.Records()
	assert.Equal(t, types.Fingerprint{Keys: "p", Values: "1.0"}, fp)
	require.Len(t, records, 2)
	assert.Equal(t, "1.0", records[1].Fingerprint)
}

func TestReadRepeatedMetaKeepsLast(t *testing.T) {
	f, err := Read("x", strings.NewReader("# META L 8\n# META L 16\n"))
	require.NoError(t, err)
	assert.Equal(t, "16", f.Meta["L"])
	assert.Empty(t, f.Data)
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		line    int
		kind    error
	}{
		{"meta without value", "# META L\n", 1, ErrMalformedMetadata},
		{"meta with extra", "# META L 8 extra\n", 1, ErrMalformedMetadata},
		{"three columns", "# META L 8\nn_up_0 1.0 2.0\n", 2, nil},
		{"bad value", "n_up_0 one\n", 1, nil},
		{"bad name", "\nnup 1.0\n", 2, ErrMalformedOperatorName},
		{"bad site", "n_up_x 1.0\n", 1, ErrInvalidSiteIndex},
		{"nan value", "n_up_0 1.0\nn_up_1 NaN\n", 2, ErrNonFiniteValue},
		{"infinite value", "n_up_0 -Inf\n", 1, ErrNonFiniteValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read("bad.dat", strings.NewReader(tt.content))
			require.Error(t, err)

			var lineErr *MalformedLineError
			require.ErrorAs(t, err, &lineErr)
			assert.Equal(t, tt.line, lineErr.Line)
			assert.Equal(t, "bad.dat", lineErr.File)
			assert.ErrorIs(t, err, ErrMalformedLine)
			if tt.kind != nil {
				assert.ErrorIs(t, err, tt.kind)
			}
		})
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "estimators.dat")
	require.NoError(t, os.WriteFile(path, []byte("# META L 2\nS_z_0*S_z_1 -0.25\n"), 0644))

	f, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, f.Path)
	assert.Equal(t, types.NewSiteTuple(0, 1), f.Data[0].Sites)

	_, err = ReadFile(filepath.Join(dir, "missing.dat"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestLocate(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{
		"estimators.dat",
		"run_a/estimators_1.dat",
		"run_b/estimators_2.dat",
		"run_b/notes.txt",
		"run_b/partial_estimators.dat",
	} {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, nil, 0644))
	}

	found, err := Locate(root, "", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "estimators.dat"),
		filepath.Join(root, "run_a", "estimators_1.dat"),
		filepath.Join(root, "run_b", "estimators_2.dat"),
	}, found)

	found, err = Locate(root, "*.txt", nil)
	require.NoError(t, err)
	assert.Len(t, found, 1)

	_, err = Locate(root, "[", nil)
	assert.Error(t, err)
}
