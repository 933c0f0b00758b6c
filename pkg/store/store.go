package store

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/merklevault/merklevault/pkg/merkle"
)

// ErrNotFound is returned when no batch has been uploaded yet or the
// requested index is outside the current batch.
var ErrNotFound = errors.New("file not found")

// Batch describes the currently stored upload.
type Batch struct {
	ID        uuid.UUID `json:"batch_id"`
	RootHash  string    `json:"merkle_root_hash"`
	LeafCount int       `json:"leaf_count"`
	CreatedAt time.Time `json:"created_at"`
}

// Store holds the server's single (files, tree) aggregate. The pair is
// guarded by one lock and replaced wholesale on upload, so a reader can
// never observe a file set whose length disagrees with its tree.
//
// The store is memory-only: an upload batch does not survive a restart, and
// a new upload discards the previous batch entirely.
type Store struct {
	mu     sync.RWMutex
	files  [][]byte
	tree   *merkle.Tree
	batch  *Batch
	logger *zap.Logger
}

// NewStore creates an empty store.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{logger: logger}
}

// Put builds a merkle tree over files and atomically replaces the stored
// batch. The tree build happens outside the lock; only the swap is guarded.
func (s *Store) Put(files [][]byte) (*Batch, error) {
	tree, err := merkle.Build(files)
	if err != nil {
		return nil, err
	}

	// Copy the blobs so later caller mutations cannot desync them from the
	// tree that was hashed over them.
	stored := make([][]byte, len(files))
	for i, f := range files {
		stored[i] = append([]byte(nil), f...)
	}

	batch := &Batch{
		ID:        uuid.New(),
		RootHash:  tree.RootHash(),
		LeafCount: tree.LeafCount,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.files = stored
	s.tree = tree
	s.batch = batch
	s.mu.Unlock()

	s.logger.Sugar().Infow("Stored upload batch",
		"batch_id", batch.ID,
		"leaf_count", batch.LeafCount,
		"merkle_root", batch.RootHash,
	)

	return batch, nil
}

// File returns a copy of the file at idx in the current batch.
func (s *Store) File(idx int) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.tree == nil || idx < 0 || idx >= len(s.files) {
		return nil, ErrNotFound
	}
	return append([]byte(nil), s.files[idx]...), nil
}

// Proof returns the merkle proof for the file at idx, together with the
// batch metadata the proof belongs to.
func (s *Store) Proof(idx int) (merkle.Proof, *Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.tree == nil {
		return nil, nil, ErrNotFound
	}
	proof, err := s.tree.GenerateProof(idx)
	if err != nil {
		if errors.Is(err, merkle.ErrIndexOutOfRange) || errors.Is(err, merkle.ErrNoTree) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	b := *s.batch
	return proof, &b, nil
}

// Batch returns the current batch metadata, or false if nothing has been
// uploaded yet.
func (s *Store) Batch() (*Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.batch == nil {
		return nil, false
	}
	b := *s.batch
	return &b, true
}
