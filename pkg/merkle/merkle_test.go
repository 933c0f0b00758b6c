package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/merklevault/merklevault/pkg/util"
)

// makeFiles creates n single-letter file contents: "A", "B", "C", ...
func makeFiles(n int) [][]byte {
	files := make([][]byte, n)
	for i := 0; i < n; i++ {
		files[i] = []byte{byte('A' + i%26)}
	}
	return files
}

// digestPair computes the parent digest of two hex child digests the way
// the tree does: over raw digest bytes.
func digestPair(t *testing.T, left, right string) string {
	t.Helper()
	l, err := util.DecodeDigest(left)
	require.NoError(t, err)
	r, err := util.DecodeDigest(right)
	require.NoError(t, err)
	return util.Sha256Hex(append(l, r...))
}

// TestBuildEmpty tests that building a tree from zero files fails
func TestBuildEmpty(t *testing.T) {
	tree, err := Build(nil)
	require.ErrorIs(t, err, ErrEmptyInput)
	require.Nil(t, tree)

	tree, err = Build([][]byte{})
	require.ErrorIs(t, err, ErrEmptyInput)
	require.Nil(t, tree)
}

// TestBuildSingleLeaf tests the one-file degenerate tree
func TestBuildSingleLeaf(t *testing.T) {
	tree, err := Build([][]byte{[]byte("A")})
	require.NoError(t, err)
	require.Equal(t, 1, tree.LeafCount)
	require.True(t, tree.Root.IsLeaf())
	require.Equal(t, util.Sha256Hex([]byte("A")), tree.RootHash())
	require.Equal(t, 0, tree.Root.LeftIdx)
	require.Equal(t, 0, tree.Root.RightIdx)

	// The proof for the only leaf is empty and still verifies.
	proof, err := tree.GenerateProof(0)
	require.NoError(t, err)
	require.Empty(t, proof)

	ok, err := Verify([]byte("A"), 0, 1, proof, tree.RootHash())
	require.NoError(t, err)
	require.True(t, ok)
}

// TestBuildFourFiles checks the exact depth-2 structure and root digest for
// files ["a","b","c","d"]: root = H(H(H(a)||H(b)) || H(H(c)||H(d)))
func TestBuildFourFiles(t *testing.T) {
	files := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")}
	tree, err := Build(files)
	require.NoError(t, err)

	ha := util.Sha256Hex([]byte("a"))
	hb := util.Sha256Hex([]byte("b"))
	hc := util.Sha256Hex([]byte("c"))
	hd := util.Sha256Hex([]byte("d"))
	hab := digestPair(t, ha, hb)
	hcd := digestPair(t, hc, hd)
	want := digestPair(t, hab, hcd)

	require.Equal(t, want, tree.RootHash())

	root := tree.Root
	require.Equal(t, 0, root.LeftIdx)
	require.Equal(t, 3, root.RightIdx)
	require.Equal(t, hab, root.Left.Hash)
	require.Equal(t, hcd, root.Right.Hash)
	require.Equal(t, ha, root.Left.Left.Hash)
	require.Equal(t, hd, root.Right.Right.Hash)
}

// TestBuildOddSplit confirms the fixed split rule on three leaves: the left
// half gets floor(3/2)=1 leaf, the right half gets 2
func TestBuildOddSplit(t *testing.T) {
	tree, err := Build(makeFiles(3))
	require.NoError(t, err)

	root := tree.Root
	require.Equal(t, 0, root.Left.LeftIdx)
	require.Equal(t, 0, root.Left.RightIdx)
	require.True(t, root.Left.IsLeaf())

	require.Equal(t, 1, root.Right.LeftIdx)
	require.Equal(t, 2, root.Right.RightIdx)
	require.False(t, root.Right.IsLeaf())
}

// TestBuildDeterminism tests that the same ordered input yields the same root
func TestBuildDeterminism(t *testing.T) {
	files := makeFiles(13)

	tree1, err := Build(files)
	require.NoError(t, err)
	tree2, err := Build(files)
	require.NoError(t, err)

	require.Equal(t, tree1.RootHash(), tree2.RootHash())
}

// TestBuildOrderSensitivity tests that reordering leaves changes the root
func TestBuildOrderSensitivity(t *testing.T) {
	tree1, err := Build([][]byte{[]byte("a"), []byte("b")})
	require.NoError(t, err)
	tree2, err := Build([][]byte{[]byte("b"), []byte("a")})
	require.NoError(t, err)

	require.NotEqual(t, tree1.RootHash(), tree2.RootHash())
}

// TestRangeInvariant checks that every internal node's range is exactly the
// union of its children's contiguous ranges
func TestRangeInvariant(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 7, 8, 26} {
		t.Run(fmt.Sprintf("%d_files", n), func(t *testing.T) {
			tree, err := Build(makeFiles(n))
			require.NoError(t, err)
			checkRanges(t, tree.Root)
			require.Equal(t, 0, tree.Root.LeftIdx)
			require.Equal(t, n-1, tree.Root.RightIdx)
		})
	}
}

func checkRanges(t *testing.T, node *TreeNode) {
	t.Helper()
	if node.IsLeaf() {
		require.Equal(t, node.LeftIdx, node.RightIdx)
		return
	}
	require.NotNil(t, node.Left)
	require.NotNil(t, node.Right)
	require.Equal(t, node.LeftIdx, node.Left.LeftIdx)
	require.Equal(t, node.RightIdx, node.Right.RightIdx)
	require.Equal(t, node.Left.RightIdx+1, node.Right.LeftIdx)
	checkRanges(t, node.Left)
	checkRanges(t, node.Right)
}

// TestGenerateProofOrdering checks the spec scenario: the proof for "c" in
// ["a","b","c","d"] is [sibling_d, sibling_ab] in leaf-to-root order
func TestGenerateProofOrdering(t *testing.T) {
	files := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")}
	tree, err := Build(files)
	require.NoError(t, err)

	proof, err := tree.GenerateProof(2)
	require.NoError(t, err)
	require.Len(t, proof, 2)

	// First the leaf-adjacent sibling "d", then the ab subtree.
	require.Equal(t, 3, proof[0].LeftIdx)
	require.Equal(t, 3, proof[0].RightIdx)
	require.Equal(t, util.Sha256Hex([]byte("d")), proof[0].Hash)

	require.Equal(t, 0, proof[1].LeftIdx)
	require.Equal(t, 1, proof[1].RightIdx)
	require.Equal(t, tree.Root.Left.Hash, proof[1].Hash)
}

// TestGenerateProofBounds tests out-of-range indices and the absent tree
func TestGenerateProofBounds(t *testing.T) {
	tree, err := Build(makeFiles(4))
	require.NoError(t, err)

	t.Run("Negative index", func(t *testing.T) {
		proof, err := tree.GenerateProof(-1)
		require.ErrorIs(t, err, ErrIndexOutOfRange)
		require.Nil(t, proof)
	})

	t.Run("Index equals leaf count", func(t *testing.T) {
		proof, err := tree.GenerateProof(4)
		require.ErrorIs(t, err, ErrIndexOutOfRange)
		require.Nil(t, proof)
	})

	t.Run("Nil tree", func(t *testing.T) {
		var absent *Tree
		proof, err := absent.GenerateProof(0)
		require.ErrorIs(t, err, ErrNoTree)
		require.Nil(t, proof)
	})
}

// TestRoundTrip verifies every leaf of every tree size in 1..16 plus 26
func TestRoundTrip(t *testing.T) {
	sizes := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 26}

	for _, n := range sizes {
		t.Run(fmt.Sprintf("%d_files", n), func(t *testing.T) {
			files := makeFiles(n)
			tree, err := Build(files)
			require.NoError(t, err)

			for i := 0; i < n; i++ {
				proof, err := tree.GenerateProof(i)
				require.NoError(t, err)

				ok, err := Verify(files[i], i, n, proof, tree.RootHash())
				require.NoError(t, err)
				require.True(t, ok, "verification failed for leaf %d of %d", i, n)
			}
		})
	}
}

// TestVerifyTamperedFile tests that flipping one byte of the file fails
// verification with the same proof and root
func TestVerifyTamperedFile(t *testing.T) {
	files := makeFiles(5)
	tree, err := Build(files)
	require.NoError(t, err)

	proof, err := tree.GenerateProof(2)
	require.NoError(t, err)

	tampered := append([]byte(nil), files[2]...)
	tampered[0] ^= 0x01

	ok, err := Verify(tampered, 2, 5, proof, tree.RootHash())
	require.NoError(t, err)
	require.False(t, ok)
}

// TestVerifyWrongRoot tests rejection of any root other than the built one
func TestVerifyWrongRoot(t *testing.T) {
	files := makeFiles(4)
	tree, err := Build(files)
	require.NoError(t, err)

	proof, err := tree.GenerateProof(2)
	require.NoError(t, err)

	// Flip the last hex character of the real root.
	root := tree.RootHash()
	last := root[len(root)-1]
	flipped := byte('0')
	if last == '0' {
		flipped = '1'
	}
	wrongRoot := root[:len(root)-1] + string(flipped)

	ok, err := Verify(files[2], 2, 4, proof, wrongRoot)
	require.NoError(t, err)
	require.False(t, ok)
}

// TestVerifyTamperedSibling tests that corrupting a proof step fails
// verification
func TestVerifyTamperedSibling(t *testing.T) {
	files := makeFiles(8)
	tree, err := Build(files)
	require.NoError(t, err)

	proof, err := tree.GenerateProof(3)
	require.NoError(t, err)
	require.NotEmpty(t, proof)

	proof[0].Hash = util.Sha256Hex([]byte("forged"))

	ok, err := Verify(files[3], 3, 8, proof, tree.RootHash())
	require.NoError(t, err)
	require.False(t, ok)
}

// TestVerifyTruncatedProof tests that a proof whose accumulated range does
// not span the full leaf set verifies false rather than panicking
func TestVerifyTruncatedProof(t *testing.T) {
	files := makeFiles(8)
	tree, err := Build(files)
	require.NoError(t, err)

	proof, err := tree.GenerateProof(0)
	require.NoError(t, err)
	require.Len(t, proof, 3)

	truncated := proof[:2]
	ok, err := Verify(files[0], 0, 8, truncated, tree.RootHash())
	require.NoError(t, err)
	require.False(t, ok)
}

// TestVerifyMalformedProof tests that a non-adjacent sibling range is a
// typed failure, not a silent false
func TestVerifyMalformedProof(t *testing.T) {
	files := makeFiles(8)
	tree, err := Build(files)
	require.NoError(t, err)

	proof, err := tree.GenerateProof(0)
	require.NoError(t, err)

	t.Run("Disjoint range", func(t *testing.T) {
		bad := append(Proof(nil), proof...)
		bad[0].LeftIdx = 5
		bad[0].RightIdx = 6

		ok, err := Verify(files[0], 0, 8, bad, tree.RootHash())
		require.ErrorIs(t, err, ErrMalformedProof)
		require.False(t, ok)
	})

	t.Run("Overlapping range", func(t *testing.T) {
		bad := append(Proof(nil), proof...)
		bad[0].LeftIdx = 0
		bad[0].RightIdx = 0

		ok, err := Verify(files[0], 0, 8, bad, tree.RootHash())
		require.ErrorIs(t, err, ErrMalformedProof)
		require.False(t, ok)
	})

	t.Run("Undecodable digest", func(t *testing.T) {
		bad := append(Proof(nil), proof...)
		bad[0].Hash = "not-hex"

		ok, err := Verify(files[0], 0, 8, bad, tree.RootHash())
		require.ErrorIs(t, err, ErrMalformedProof)
		require.False(t, ok)
	})

	t.Run("Index out of range", func(t *testing.T) {
		ok, err := Verify(files[0], 8, 8, proof, tree.RootHash())
		require.ErrorIs(t, err, ErrIndexOutOfRange)
		require.False(t, ok)
	})
}

// TestProofLength checks the O(log n) bound on proof size
func TestProofLength(t *testing.T) {
	testCases := []struct {
		numFiles int
		maxDepth int
	}{
		{1, 0},
		{2, 1},
		{4, 2},
		{8, 3},
		{16, 4},
		{100, 7},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%d_files", tc.numFiles), func(t *testing.T) {
			tree, err := Build(makeFiles(tc.numFiles))
			require.NoError(t, err)

			for _, idx := range []int{0, tc.numFiles / 2, tc.numFiles - 1} {
				proof, err := tree.GenerateProof(idx)
				require.NoError(t, err)
				require.LessOrEqual(t, len(proof), tc.maxDepth)
			}
		})
	}
}

// TestParentHashUsesRawDigestBytes pins the parent digest to raw digest
// concatenation, not hex text concatenation
func TestParentHashUsesRawDigestBytes(t *testing.T) {
	files := [][]byte{[]byte("a"), []byte("b")}
	tree, err := Build(files)
	require.NoError(t, err)

	la := sha256.Sum256([]byte("a"))
	lb := sha256.Sum256([]byte("b"))
	want := sha256.Sum256(append(la[:], lb[:]...))
	require.Equal(t, hex.EncodeToString(want[:]), tree.RootHash())

	// The hex-text variant must NOT match.
	hexConcat := util.Sha256Hex([]byte(hex.EncodeToString(la[:]) + hex.EncodeToString(lb[:])))
	require.NotEqual(t, hexConcat, tree.RootHash())
}

// TestTreeJSONRoundTrip checks the persisted nested-record layout survives a
// round trip and keeps proving
func TestTreeJSONRoundTrip(t *testing.T) {
	files := makeFiles(5)
	tree, err := Build(files)
	require.NoError(t, err)

	data, err := json.Marshal(tree)
	require.NoError(t, err)
	require.Contains(t, string(data), `"left_idx"`)

	var restored Tree
	require.NoError(t, json.Unmarshal(data, &restored))
	require.Equal(t, tree.RootHash(), restored.RootHash())

	proof, err := restored.GenerateProof(4)
	require.NoError(t, err)
	ok, err := Verify(files[4], 4, 5, proof, tree.RootHash())
	require.NoError(t, err)
	require.True(t, ok)
}
