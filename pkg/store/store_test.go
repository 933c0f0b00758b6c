package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/merklevault/merklevault/pkg/merkle"
)

func testFiles(n int) [][]byte {
	files := make([][]byte, n)
	for i := 0; i < n; i++ {
		files[i] = []byte(fmt.Sprintf("file-%d", i))
	}
	return files
}

// TestPutAndFetch tests the basic upload/download/proof cycle
func TestPutAndFetch(t *testing.T) {
	s := NewStore(zap.NewNop())
	files := testFiles(4)

	batch, err := s.Put(files)
	require.NoError(t, err)
	require.NotEmpty(t, batch.RootHash)
	require.Equal(t, 4, batch.LeafCount)

	for i := range files {
		got, err := s.File(i)
		require.NoError(t, err)
		require.Equal(t, files[i], got)

		proof, pb, err := s.Proof(i)
		require.NoError(t, err)
		require.Equal(t, batch.ID, pb.ID)

		ok, err := merkle.Verify(got, i, batch.LeafCount, proof, batch.RootHash)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

// TestPutEmpty tests that an empty batch is rejected
func TestPutEmpty(t *testing.T) {
	s := NewStore(zap.NewNop())
	batch, err := s.Put(nil)
	require.ErrorIs(t, err, merkle.ErrEmptyInput)
	require.Nil(t, batch)
}

// TestFetchBeforeUpload tests NotFound before any batch exists
func TestFetchBeforeUpload(t *testing.T) {
	s := NewStore(zap.NewNop())

	_, err := s.File(0)
	require.ErrorIs(t, err, ErrNotFound)

	_, _, err = s.Proof(0)
	require.ErrorIs(t, err, ErrNotFound)

	_, ok := s.Batch()
	require.False(t, ok)
}

// TestFetchOutOfRange tests NotFound for bad indices
func TestFetchOutOfRange(t *testing.T) {
	s := NewStore(zap.NewNop())
	_, err := s.Put(testFiles(3))
	require.NoError(t, err)

	for _, idx := range []int{-1, 3, 100} {
		_, err := s.File(idx)
		require.ErrorIs(t, err, ErrNotFound, "File(%d)", idx)

		_, _, err = s.Proof(idx)
		require.ErrorIs(t, err, ErrNotFound, "Proof(%d)", idx)
	}
}

// TestPutReplacesBatch tests that a new upload replaces the old batch
// wholesale: new ID, new root, old indices gone
func TestPutReplacesBatch(t *testing.T) {
	s := NewStore(zap.NewNop())

	first, err := s.Put(testFiles(5))
	require.NoError(t, err)

	second, err := s.Put(testFiles(2))
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
	require.NotEqual(t, first.RootHash, second.RootHash)

	_, err = s.File(4)
	require.ErrorIs(t, err, ErrNotFound)

	current, ok := s.Batch()
	require.True(t, ok)
	require.Equal(t, second.ID, current.ID)
}

// TestPutCopiesInput tests that mutating the caller's slice after Put does
// not desync the stored files from the tree
func TestPutCopiesInput(t *testing.T) {
	s := NewStore(zap.NewNop())
	files := testFiles(2)

	batch, err := s.Put(files)
	require.NoError(t, err)

	files[0][0] ^= 0xFF

	got, err := s.File(0)
	require.NoError(t, err)
	proof, _, err := s.Proof(0)
	require.NoError(t, err)

	ok, err := merkle.Verify(got, 0, batch.LeafCount, proof, batch.RootHash)
	require.NoError(t, err)
	require.True(t, ok)
}

// TestConcurrentReadersAndWriter exercises the lock: readers must always
// see a file set and tree that agree with each other. The writer re-uploads
// the same content so every (file, proof) combination a reader assembles
// must verify regardless of interleaving.
func TestConcurrentReadersAndWriter(t *testing.T) {
	s := NewStore(zap.NewNop())
	files := testFiles(8)
	_, err := s.Put(files)
	require.NoError(t, err)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				file, err := s.File(idx)
				if err != nil {
					t.Errorf("File(%d): %v", idx, err)
					return
				}
				proof, pb, err := s.Proof(idx)
				if err != nil {
					t.Errorf("Proof(%d): %v", idx, err)
					return
				}
				ok, err := merkle.Verify(file, idx, pb.LeafCount, proof, pb.RootHash)
				if err != nil || !ok {
					t.Errorf("reader observed file/proof mismatch at index %d: ok=%v err=%v", idx, ok, err)
					return
				}
			}
		}(w)
	}

	for i := 0; i < 50; i++ {
		_, err := s.Put(files)
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
}
