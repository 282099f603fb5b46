package autosave

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Snapshot is one stored encoding of a document.
type Snapshot struct {
	Document uuid.UUID
	Seq      uint64    // increases with every snapshot of the document
	State    uint64    // history state the encoding was taken at
	Time     time.Time // when the snapshot was taken
	Data     []byte
}

// StoreConfig configures a snapshot store.
type StoreConfig struct {
	// Dir holds the database files. Ignored when InMemory is set.
	Dir string

	// InMemory keeps snapshots in memory only.
	InMemory bool

	// Keep is the number of snapshots kept per document. Zero keeps all.
	Keep int

	// Logger receives badger's own diagnostics. Nil disables them.
	Logger *zap.Logger
}

// Store keeps the most recent snapshots of each document in badger.
//
// Keys are "snap/<document uuid>/<seq>" with seq big-endian, so a prefix
// scan returns a document's snapshots oldest first.
type Store struct {
	db   *badger.DB
	keep int
}

// badgerLogger adapts zap to badger's logger interface.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(f string, args ...any)   { l.s.Errorf(f, args...) }
func (l badgerLogger) Warningf(f string, args ...any) { l.s.Warnf(f, args...) }
func (l badgerLogger) Infof(f string, args ...any)    { l.s.Infof(f, args...) }
func (l badgerLogger) Debugf(f string, args ...any)   { l.s.Debugf(f, args...) }

// OpenStore opens or creates a snapshot store.
func OpenStore(cfg StoreConfig) (*Store, error) {
	if cfg.Keep < 0 {
		return nil, fmt.Errorf("keep %d: %w", cfg.Keep, ErrInvalidConfig)
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			return nil, fmt.Errorf("directory is required: %w", ErrInvalidConfig)
		}
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("create autosave directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerLogger{s: cfg.Logger.Named("badger").Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open autosave store: %w", err)
	}
	return &Store{db: db, keep: cfg.Keep}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

const keyPrefix = "snap/"

func docPrefix(doc uuid.UUID) []byte {
	return []byte(keyPrefix + doc.String() + "/")
}

func snapshotKey(doc uuid.UUID, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(docPrefix(doc), seq)
}

// Save stores data as the newest snapshot of doc and drops the oldest
// snapshots beyond the keep limit.
func (s *Store) Save(doc uuid.UUID, state uint64, data []byte) (Snapshot, error) {
	snap := Snapshot{Document: doc, State: state, Time: time.Now(), Data: data}
	err := s.db.Update(func(txn *badger.Txn) error {
		keys := snapshotKeys(txn, docPrefix(doc))
		if n := len(keys); n > 0 {
			last := keys[n-1]
			snap.Seq = binary.BigEndian.Uint64(last[len(last)-8:]) + 1
		}
		if err := txn.Set(snapshotKey(doc, snap.Seq), encodeValue(snap)); err != nil {
			return err
		}
		keys = append(keys, snapshotKey(doc, snap.Seq))
		if s.keep > 0 && len(keys) > s.keep {
			for _, k := range keys[:len(keys)-s.keep] {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("save snapshot of %s: %w", doc, err)
	}
	return snap, nil
}

func snapshotKeys(txn *badger.Txn, prefix []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}

// Latest returns the newest snapshot of doc.
func (s *Store) Latest(doc uuid.UUID) (Snapshot, error) {
	snaps, err := s.list(doc, true)
	if err != nil {
		return Snapshot{}, err
	}
	if len(snaps) == 0 {
		return Snapshot{}, fmt.Errorf("%s: %w", doc, ErrNoSnapshot)
	}
	return snaps[len(snaps)-1], nil
}

// List returns the snapshots of doc, oldest first, without their data.
func (s *Store) List(doc uuid.UUID) ([]Snapshot, error) {
	return s.list(doc, false)
}

func (s *Store) list(doc uuid.UUID, withData bool) ([]Snapshot, error) {
	prefix := docPrefix(doc)
	var snaps []Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.Key()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			snap, err := decodeValue(v)
			if err != nil {
				return fmt.Errorf("snapshot %x: %w", key, err)
			}
			snap.Document = doc
			snap.Seq = binary.BigEndian.Uint64(key[len(key)-8:])
			if !withData {
				snap.Data = nil
			}
			snaps = append(snaps, snap)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list snapshots of %s: %w", doc, err)
	}
	return snaps, nil
}

// Documents returns the IDs of documents with at least one snapshot.
func (s *Store) Documents() ([]uuid.UUID, error) {
	var docs []uuid.UUID
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(keyPrefix)
		for _, k := range snapshotKeys(txn, prefix) {
			rest := k[len(prefix):]
			i := bytes.IndexByte(rest, '/')
			if i < 0 {
				continue
			}
			id, err := uuid.ParseBytes(rest[:i])
			if err != nil {
				continue
			}
			if n := len(docs); n == 0 || docs[n-1] != id {
				docs = append(docs, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// Delete removes every snapshot of doc.
func (s *Store) Delete(doc uuid.UUID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, k := range snapshotKeys(txn, docPrefix(doc)) {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Values are the snapshot time in unix nanoseconds and the history state,
// both big-endian, followed by the encoded sprite.
const valueHeader = 16

func encodeValue(s Snapshot) []byte {
	v := make([]byte, 0, valueHeader+len(s.Data))
	v = binary.BigEndian.AppendUint64(v, uint64(s.Time.UnixNano()))
	v = binary.BigEndian.AppendUint64(v, s.State)
	return append(v, s.Data...)
}

func decodeValue(v []byte) (Snapshot, error) {
	if len(v) < valueHeader {
		return Snapshot{}, errors.New("short snapshot value")
	}
	return Snapshot{
		Time:  time.Unix(0, int64(binary.BigEndian.Uint64(v))),
		State: binary.BigEndian.Uint64(v[8:]),
		Data:  v[valueHeader:],
	}, nil
}
