package estimator

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrMalformedOperatorName is returned for an operator without a '_site' suffix,
	// with an empty label or with a ':' in its label.
	ErrMalformedOperatorName = errors.New("malformed operator name")

	// ErrInvalidSiteIndex is returned when the site suffix is not a
	// non-negative base-10 integer.
	ErrInvalidSiteIndex = errors.New("invalid site index")

	// ErrNonFiniteValue is returned for NaN or infinite estimator values.
	ErrNonFiniteValue = errors.New("non-finite value")

	// ErrMalformedLine is the kind of every MalformedLineError.
	ErrMalformedLine = errors.New("malformed line")

	// ErrMalformedMetadata is returned for a META comment that is not
	// followed by exactly a key and a value.
	ErrMalformedMetadata = errors.New("malformed metadata")

	// ErrMetadataArityMismatch is returned when fingerprint keys and values
	// split into different numbers of fields.
	ErrMetadataArityMismatch = errors.New("metadata arity mismatch")

	// ErrEmptyRun is returned when a run holds no samples.
	ErrEmptyRun = errors.New("empty run")

	// ErrUnknownRun is returned for fingerprint values not in the aggregate.
	ErrUnknownRun = errors.New("unknown run")

	// ErrLengthMismatch is returned when a derive step changes the number of
	// samples of a run.
	ErrLengthMismatch = errors.New("length mismatch")

	// ErrNotSingleSite is returned when a single-site view is requested for a
	// multi-site observable.
	ErrNotSingleSite = errors.New("observable is not single-site")
)

// MalformedLineError reports the file and line of a bad data line.
type MalformedLineError struct {
	File   string
	Line   int
	Reason string
	Err    error
}

func (e *MalformedLineError) Error() string {
	msg := fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is makes errors.Is(err, ErrMalformedLine) true for every line error.
func (e *MalformedLineError) Is(target error) bool {
	return target == ErrMalformedLine
}

func (e *MalformedLineError) Unwrap() error { return e.Err }
