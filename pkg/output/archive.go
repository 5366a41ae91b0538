package output

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/iglpdc/dmrg-helpers/pkg/types"
)

// Archive appends named series to a JSON-lines file so that plots can be
// redrawn later without re-reading the estimator files.
type Archive struct {
	path   string
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

// ArchiveEntry is one line of an archive.
type ArchiveEntry struct {
	Timestamp time.Time `json:"timestamp"`
	types.NamedSeries
}

// OpenArchive opens path for appending, creating it and its directory if
// needed.
func OpenArchive(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create archive directory")
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open archive")
	}

	return &Archive{
		path:   path,
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

// Path returns the archive file path.
func (a *Archive) Path() string { return a.path }

// Append writes s as one entry. It is buffered until Flush or Close.
func (a *Archive) Append(s types.NamedSeries) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := json.Marshal(ArchiveEntry{Timestamp: time.Now().UTC(), NamedSeries: s})
	if err != nil {
		return errors.Wrapf(err, "failed to marshal series %s", s.Name)
	}

	if _, err := a.writer.Write(data); err != nil {
		return errors.Wrap(err, "failed to write to archive")
	}
	if err := a.writer.WriteByte('\n'); err != nil {
		return errors.Wrap(err, "failed to write newline")
	}

	return nil
}

// Flush writes buffered entries to disk.
func (a *Archive) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.writer.Flush(); err != nil {
		return errors.Wrap(err, "failed to flush archive")
	}
	if err := a.file.Sync(); err != nil {
		return errors.Wrap(err, "failed to sync archive")
	}

	return nil
}

// Close flushes and closes the archive.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.writer.Flush(); err != nil {
		return err
	}
	if err := a.file.Sync(); err != nil {
		return err
	}

	return a.file.Close()
}

// ReadArchive returns every entry of the archive at path, in file order.
func ReadArchive(path string) ([]ArchiveEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open archive")
	}
	defer file.Close()

	var entries []ArchiveEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var entry ArchiveEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, errors.Wrapf(err, "%s:%d: failed to unmarshal archive entry", path, line)
		}
		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return entries, nil
}

// Latest returns the last entry named name, which is the one a replot
// should use.
func Latest(entries []ArchiveEntry, name string) (ArchiveEntry, bool) {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Name == name {
			return entries[i], true
		}
	}
	return ArchiveEntry{}, false
}
