package estimator

import (
	"bufio"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/iglpdc/dmrg-helpers/pkg/types"
)

const (
	commentPrefix = "#"
	metaToken     = "META"
)

// ReadFile reads and validates an estimators file.
func ReadFile(path string) (*types.EstimatorFile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", path)
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, errors.Wrap(err, "open estimators file")
	}
	defer f.Close()

	return Read(abs, f)
}

// Read parses estimator data from r. name is only used in error messages and
// as the Path of the result.
//
// Lines starting with '#' are comments; "# META key value" comments add to
// the metadata. Blank lines are skipped. Every other line must be
// "<token> <float>", and its token must parse with ParseName.
func Read(name string, r io.Reader) (*types.EstimatorFile, error) {
	file := &types.EstimatorFile{
		Path: name,
		Meta: make(map[string]string),
	}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, commentPrefix):
			if err := readMeta(file.Meta, line); err != nil {
				return nil, &MalformedLineError{File: name, Line: lineNo, Reason: "bad metadata", Err: err}
			}
		case strings.TrimSpace(line) == "":
			continue
		default:
			d, err := readData(line)
			if err != nil {
				return nil, &MalformedLineError{File: name, Line: lineNo, Reason: "bad data line", Err: err}
			}
			d.Line = lineNo
			file.Data = append(file.Data, d)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "read %s", name)
	}

	return file, nil
}

func readMeta(meta map[string]string, line string) error {
	fields := strings.Fields(line)
	for i, f := range fields {
		if f != metaToken {
			continue
		}
		rest := fields[i+1:]
		if len(rest) != 2 {
			return errors.Wrapf(ErrMalformedMetadata, "want key and value after META, got %d fields", len(rest))
		}
		meta[rest[0]] = rest[1]
		return nil
	}
	return nil
}

func readData(line string) (types.DataLine, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return types.DataLine{}, errors.Errorf("want 2 columns, got %d", len(fields))
	}

	value, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return types.DataLine{}, errors.Wrapf(err, "value %q", fields[1])
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return types.DataLine{}, errors.Wrapf(ErrNonFiniteValue, "%q", fields[1])
	}

	name, sites, err := ParseName(fields[0])
	if err != nil {
		return types.DataLine{}, err
	}

	return types.DataLine{
		Token: fields[0],
		Name:  name,
		Sites: sites,
		Value: value,
	}, nil
}
