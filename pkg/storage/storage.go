// Package storage keeps estimator records in an append-only badger database
// keyed by observable name.
package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/iglpdc/dmrg-helpers/pkg/types"
)

var (
	// ErrAlreadyExists is returned when opening a persistent store at a path
	// that already exists. Stores are never overwritten.
	ErrAlreadyExists = errors.New("store location already exists")

	// ErrIncompatibleSchema is returned when a file's metadata keys differ from
	// those of the files already inserted.
	ErrIncompatibleSchema = errors.New("incompatible file: fingerprint keys differ")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store is closed")

	// ErrInvalidLabel is returned for an operator label holding the key
	// separator ':'.
	ErrInvalidLabel = errors.New("operator label contains ':'")
)

// Store is an append-only record store.
type Store interface {
	// Insert stores records under fp. The first insert fixes the
	// fingerprint keys of the store; later inserts must match them.
	Insert(ctx context.Context, records []types.Record, fp types.Fingerprint) error

	// InsertFile inserts every data line of file under its metadata.
	InsertFile(ctx context.Context, file *types.EstimatorFile) error

	// Query returns every record stored under name.
	Query(ctx context.Context, name types.ObservableName) ([]types.Record, error)

	// FingerprintKeys returns the fingerprint keys adopted by the store, or ""
	// before the first insert.
	FingerprintKeys() string

	// Observables returns the stored observable names sorted by key.
	Observables() []types.ObservableName

	// Runs returns the sorted fingerprint values stored for name.
	Runs(name types.ObservableName) []string

	// Stats summarizes the store content.
	Stats() Stats

	// Close closes the storage
	Close() error
}

// Stats counts what a store holds.
type Stats struct {
	Observables int `json:"observables"`
	Runs        int `json:"runs"`
	Blocks      int `json:"blocks"`
	Samples     int `json:"samples"`
}

// Config holds storage configuration
type Config struct {
	// Path is the badger directory. Empty means in-memory.
	Path             string
	InMemory         bool
	CompressionLevel int
	SyncWrites       bool
	// Logger receives badger's internal logs. Nil disables them.
	Logger *slog.Logger
	// Codec encodes observable names into keys. Nil means ColonCodec.
	Codec NameCodec
}

// DefaultConfig returns default storage configuration
func DefaultConfig() *Config {
	return &Config{
		InMemory:         true,
		CompressionLevel: 3,
	}
}

const (
	blockPrefix = 'b'
	metaPrefix  = 'm'
)

var fingerprintKeysKey = []byte{metaPrefix, 'k'}

// badgerStore implements Store using BadgerDB
type badgerStore struct {
	cfg        *Config
	db         *badger.DB
	codec      NameCodec
	index      *Index
	compressor *Compressor

	mu              sync.RWMutex
	fingerprintKeys *string
	seq             uint64
	closed          bool
}

// Open creates a new store. A persistent store must not exist yet.
func Open(cfg *Config) (Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var opts badger.Options
	if cfg.InMemory || cfg.Path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if _, err := os.Stat(cfg.Path); err == nil {
			return nil, errors.Wrapf(ErrAlreadyExists, "%s", cfg.Path)
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	compressor, err := NewCompressor(cfg.CompressionLevel)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create compressor: %w", err)
	}

	codec := cfg.Codec
	if codec == nil {
		codec = ColonCodec{}
	}

	return &badgerStore{
		cfg:        cfg,
		db:         db,
		codec:      codec,
		index:      NewIndex(),
		compressor: compressor,
	}, nil
}

// InsertFile implements Store.InsertFile
func (s *badgerStore) InsertFile(ctx context.Context, file *types.EstimatorFile) error {
	records, fp := file.Records()
	if err := s.Insert(ctx, records, fp); err != nil {
		return errors.Wrapf(err, "insert %s", file.Path)
	}
	return nil
}

// Insert implements Store.Insert. All records go in one transaction, so a
// failed insert leaves nothing behind.
func (s *badgerStore) Insert(ctx context.Context, records []types.Record, fp types.Fingerprint) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := s.checkFingerprintKeys(fp.Keys); err != nil {
		filesInserted.WithLabelValues("incompatible").Inc()
		return err
	}

	blocks, keys, err := s.groupRecordsByName(records, fp.Values)
	if err != nil {
		filesInserted.WithLabelValues("error").Inc()
		return err
	}

	seq := s.seq
	err = s.db.Update(func(txn *badger.Txn) error {
		if s.fingerprintKeys == nil {
			if err := txn.Set(fingerprintKeysKey, []byte(fp.Keys)); err != nil {
				return err
			}
		}
		for i, b := range blocks {
			payload, err := s.compressor.EncodeBlock(b)
			if err != nil {
				return fmt.Errorf("failed to encode block for %q: %w", keys[i], err)
			}
			if err := txn.Set(blockKey(keys[i], seq), payload); err != nil {
				return err
			}
			seq++
		}
		return nil
	})
	if err != nil {
		filesInserted.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to write records: %w", err)
	}

	// Commit in-memory state only once badger accepted the batch.
	s.seq = seq
	if s.fingerprintKeys == nil {
		adopted := fp.Keys
		s.fingerprintKeys = &adopted
	}
	for i, b := range blocks {
		s.index.Add(keys[i], b.Fingerprint, b.Count())
	}
	filesInserted.WithLabelValues("ok").Inc()
	recordsInserted.Add(float64(len(records)))

	return nil
}

// checkFingerprintKeys must be called with the write lock held.
func (s *badgerStore) checkFingerprintKeys(keys string) error {
	if s.fingerprintKeys == nil || *s.fingerprintKeys == keys {
		return nil
	}
	return errors.Wrapf(ErrIncompatibleSchema, "store has %q, file has %q", *s.fingerprintKeys, keys)
}

// groupRecordsByName builds one block per observable, keeping record order.
func (s *badgerStore) groupRecordsByName(records []types.Record, fingerprint string) ([]*block, []string, error) {
	var (
		blocks []*block
		keys   []string
		byKey  = make(map[string]*block)
	)

	for _, rec := range records {
		if len(rec.Name) == 0 || len(rec.Name) != len(rec.Sites) {
			return nil, nil, fmt.Errorf("record %s has %d operators and %d sites", rec.Name, len(rec.Name), len(rec.Sites))
		}
		for _, label := range rec.Name {
			if strings.Contains(label, types.FieldSeparator) {
				return nil, nil, errors.Wrapf(ErrInvalidLabel, "%q", label)
			}
		}
		key := s.codec.Encode(rec.Name)
		b, ok := byKey[key]
		if !ok {
			b = &block{Fingerprint: fingerprint, Arity: len(rec.Name)}
			byKey[key] = b
			blocks = append(blocks, b)
			keys = append(keys, key)
		}
		b.Sites = append(b.Sites, rec.Sites...)
		b.Values = append(b.Values, rec.Value)
	}

	return blocks, keys, nil
}

// Query implements Store.Query
func (s *badgerStore) Query(ctx context.Context, name types.ObservableName) ([]types.Record, error) {
	start := time.Now()
	defer func() { queryDuration.Observe(time.Since(start).Seconds()) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	key := s.codec.Encode(name)
	if !s.index.Has(key) {
		queryTotal.WithLabelValues("empty").Inc()
		return nil, nil
	}

	records := make([]types.Record, 0, s.index.Samples(key))
	prefix := blockPrefixFor(key)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var b *block
			err := it.Item().Value(func(val []byte) error {
				var err error
				b, err = s.compressor.DecodeBlock(val)
				return err
			})
			if err != nil {
				return fmt.Errorf("failed to read block: %w", err)
			}
			records = appendBlock(records, name, b)
		}
		return nil
	})
	if err != nil {
		queryTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	queryTotal.WithLabelValues("ok").Inc()
	return records, nil
}

func appendBlock(records []types.Record, name types.ObservableName, b *block) []types.Record {
	for i, v := range b.Values {
		sites := b.Sites[i*b.Arity : (i+1)*b.Arity]
		records = append(records, types.Record{
			Name:        types.NewObservableName(name...),
			Sites:       types.NewSiteTuple(sites...),
			Value:       v,
			Fingerprint: b.Fingerprint,
		})
	}
	return records
}

// FingerprintKeys implements Store.FingerprintKeys
func (s *badgerStore) FingerprintKeys() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fingerprintKeys == nil {
		return ""
	}
	return *s.fingerprintKeys
}

// Observables implements Store.Observables
func (s *badgerStore) Observables() []types.ObservableName {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.index.Keys()
	names := make([]types.ObservableName, len(keys))
	for i, k := range keys {
		names[i] = s.codec.Decode(k)
	}
	return names
}

// Runs implements Store.Runs
func (s *badgerStore) Runs(name types.ObservableName) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Runs(s.codec.Encode(name))
}

// Close implements Store.Close
func (s *badgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.index.Clear()
	s.compressor.Close()
	return s.db.Close()
}

// Stats implements Store.Stats
func (s *badgerStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Observables: s.index.ObservableCount(),
		Runs:        s.index.RunCount(),
	}
	for _, key := range s.index.Keys() {
		stats.Blocks += s.index.Blocks(key)
		stats.Samples += s.index.Samples(key)
	}
	return stats
}

// blockPrefixFor returns the key prefix of every block of an observable. The
// name is length-prefixed so that no key is a prefix of another.
func blockPrefixFor(key string) []byte {
	buf := make([]byte, 0, 1+binary.MaxVarintLen64+len(key))
	buf = append(buf, blockPrefix)
	buf = binary.AppendUvarint(buf, uint64(len(key)))
	return append(buf, key...)
}

// blockKey generates the storage key of one block
func blockKey(key string, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(blockPrefixFor(key), seq)
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
