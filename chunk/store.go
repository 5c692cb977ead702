package chunk

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/s2"
	"go.etcd.io/bbolt"
)

var (
	bucketMeta = []byte("meta")
	bucketText = []byte("text")
	bucketIDs  = []byte("ids")
)

// Store is an append-only chunk table backed by bbolt.
//
// Chunks are keyed by their node ordinal (the dense graph node id assigned
// at build time, in insertion order). The caller-supplied Chunk.ID is kept
// as a secondary unique index. Text blocks are S2-compressed.
type Store struct {
	db       *bbolt.DB
	readOnly bool
}

// Create creates a new writable store at path. The file must not exist.
func Create(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("chunk: open store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketMeta, bucketText, bucketIDs} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("chunk: create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Open opens an existing store read-only for serving queries.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("chunk: open store: %w", err)
	}

	s := &Store{db: db, readOnly: true}
	err = db.View(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketMeta, bucketText, bucketIDs} {
			if tx.Bucket(b) == nil {
				return fmt.Errorf("chunk: store missing bucket %s", b)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

type chunkMeta struct {
	ID         uint64    `json:"id"`
	Source     SourceRef `json:"source"`
	TokenCount int       `json:"token_count"`
}

// Append appends chunks in order, assigning each the next ordinal.
// It fails if any Chunk.ID is already present; no partial append survives.
func (s *Store) Append(chunks []Chunk) error {
	if s.readOnly {
		return fmt.Errorf("chunk: store is read-only")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		metaBucket := tx.Bucket(bucketMeta)
		textBucket := tx.Bucket(bucketText)
		idsBucket := tx.Bucket(bucketIDs)

		next := uint64(metaBucket.Stats().KeyN)
		for i, c := range chunks {
			idKey := u64Key(c.ID)
			if idsBucket.Get(idKey) != nil {
				return fmt.Errorf("chunk: duplicate chunk id %d", c.ID)
			}

			ordKey := u64Key(next + uint64(i))
			meta, err := json.Marshal(chunkMeta{ID: c.ID, Source: c.Source, TokenCount: c.TokenCount})
			if err != nil {
				return err
			}
			if err := metaBucket.Put(ordKey, meta); err != nil {
				return err
			}
			if err := textBucket.Put(ordKey, s2.Encode(nil, []byte(c.Text))); err != nil {
				return err
			}
			if err := idsBucket.Put(idKey, ordKey); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns the chunk at the given node ordinal.
func (s *Store) Get(ordinal uint64) (Chunk, error) {
	var c Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := u64Key(ordinal)
		raw := tx.Bucket(bucketMeta).Get(key)
		if raw == nil {
			return fmt.Errorf("chunk: ordinal %d not found", ordinal)
		}

		var meta chunkMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return fmt.Errorf("chunk: decode meta for ordinal %d: %w", ordinal, err)
		}

		compressed := tx.Bucket(bucketText).Get(key)
		text, err := s2.Decode(nil, compressed)
		if err != nil {
			return fmt.Errorf("chunk: decompress text for ordinal %d: %w", ordinal, err)
		}

		c = Chunk{ID: meta.ID, Text: string(text), Source: meta.Source, TokenCount: meta.TokenCount}
		return nil
	})
	return c, err
}

// Text returns only the raw text at the given node ordinal.
// This is the hot path for recompute: metadata decoding is skipped.
func (s *Store) Text(ordinal uint64) (string, error) {
	var text string
	err := s.db.View(func(tx *bbolt.Tx) error {
		compressed := tx.Bucket(bucketText).Get(u64Key(ordinal))
		if compressed == nil {
			return fmt.Errorf("chunk: ordinal %d not found", ordinal)
		}
		raw, err := s2.Decode(nil, compressed)
		if err != nil {
			return fmt.Errorf("chunk: decompress text for ordinal %d: %w", ordinal, err)
		}
		text = string(raw)
		return nil
	})
	return text, err
}

// Ordinal resolves a caller-supplied chunk id to its node ordinal.
func (s *Store) Ordinal(id uint64) (uint64, bool, error) {
	var (
		ordinal uint64
		found   bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketIDs).Get(u64Key(id))
		if v == nil {
			return nil
		}
		ordinal = binary.BigEndian.Uint64(v)
		found = true
		return nil
	})
	return ordinal, found, err
}

// Count returns the number of stored chunks.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketMeta).Stats().KeyN
		return nil
	})
	return n, err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func u64Key(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}
