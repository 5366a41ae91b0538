package storage

import (
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Index tracks which observables are stored and for which runs, so queries
// for unknown names never touch badger.
type Index struct {
	// Maps encoded observable name to its runs
	observables map[string]*observableMetadata
	// Maps run ID to fingerprint values
	runs map[uint64]string
}

// observableMetadata holds what the index knows about one observable
type observableMetadata struct {
	Key     string
	Blocks  int
	Samples int
	// Samples per run ID
	Runs map[uint64]int
}

// NewIndex creates a new index
func NewIndex() *Index {
	return &Index{
		observables: make(map[string]*observableMetadata),
		runs:        make(map[uint64]string),
	}
}

// Add records that a block of samples for key was written under the given
// fingerprint values. It returns the run ID of the fingerprint.
func (idx *Index) Add(key, fingerprint string, samples int) uint64 {
	id := RunID(fingerprint)
	idx.runs[id] = fingerprint

	meta, ok := idx.observables[key]
	if !ok {
		meta = &observableMetadata{
			Key:  key,
			Runs: make(map[uint64]int),
		}
		idx.observables[key] = meta
	}
	meta.Blocks++
	meta.Samples += samples
	meta.Runs[id] += samples

	return id
}

// Has reports whether any block was written for key.
func (idx *Index) Has(key string) bool {
	_, ok := idx.observables[key]
	return ok
}

// Keys returns every indexed observable key, sorted.
func (idx *Index) Keys() []string {
	keys := make([]string, 0, len(idx.observables))
	for k := range idx.observables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Runs returns the sorted fingerprint values of the runs stored for key.
func (idx *Index) Runs(key string) []string {
	meta, ok := idx.observables[key]
	if !ok {
		return nil
	}
	fps := make([]string, 0, len(meta.Runs))
	for id := range meta.Runs {
		fps = append(fps, idx.runs[id])
	}
	sort.Strings(fps)
	return fps
}

// Samples returns the number of samples stored for key.
func (idx *Index) Samples(key string) int {
	if meta, ok := idx.observables[key]; ok {
		return meta.Samples
	}
	return 0
}

// Blocks returns the number of blocks written for key.
func (idx *Index) Blocks(key string) int {
	if meta, ok := idx.observables[key]; ok {
		return meta.Blocks
	}
	return 0
}

// ObservableCount returns the number of indexed observables
func (idx *Index) ObservableCount() int {
	return len(idx.observables)
}

// RunCount returns the number of distinct runs seen
func (idx *Index) RunCount() int {
	return len(idx.runs)
}

// RunID hashes fingerprint values into a compact run identifier.
func RunID(fingerprint string) uint64 {
	return xxhash.Sum64String(fingerprint)
}

// Clear clears the index
func (idx *Index) Clear() {
	idx.observables = make(map[string]*observableMetadata)
	idx.runs = make(map[uint64]string)
}
