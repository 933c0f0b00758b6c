package merkle

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/pkg/errors"

	"github.com/merklevault/merklevault/pkg/util"
)

// Build creates a merkle tree from an ordered list of file contents.
//
// The tree is built by recursively splitting the index range [0, n-1]: the
// left half receives floor(size/2) leaves, the right half the remainder.
// The split rule must match between build, proof generation and
// verification, since the verifier reconstructs the tree shape implicitly
// from range bookkeeping. The result is a balanced tree of depth
// ceil(log2 n), so every proof is O(log n) regardless of leaf position.
func Build(files [][]byte) (*Tree, error) {
	n := len(files)
	if n == 0 {
		return nil, ErrEmptyInput
	}

	root, _ := buildRange(files, 0, n-1)
	return &Tree{Root: root, LeafCount: n}, nil
}

// buildRange builds the subtree covering the inclusive leaf range [left,
// right]. It returns the node together with its raw digest so parent hashes
// are computed over digest bytes without re-decoding hex.
func buildRange(files [][]byte, left, right int) (*TreeNode, [sha256.Size]byte) {
	if left == right {
		sum := sha256.Sum256(files[left])
		return &TreeNode{
			Hash:     hex.EncodeToString(sum[:]),
			LeftIdx:  left,
			RightIdx: right,
		}, sum
	}

	// Left half gets floor(size/2) leaves.
	mid := left + (right-left+1)/2 - 1
	leftChild, leftSum := buildRange(files, left, mid)
	rightChild, rightSum := buildRange(files, mid+1, right)

	sum := hashPair(leftSum, rightSum)
	return &TreeNode{
		Hash:     hex.EncodeToString(sum[:]),
		LeftIdx:  left,
		RightIdx: right,
		Left:     leftChild,
		Right:    rightChild,
	}, sum
}

// GenerateProof creates a merkle proof for the leaf at the given index.
// The proof is the chain of siblings along the path from the leaf to the
// root, ordered leaf-to-root.
func (t *Tree) GenerateProof(leafIdx int) (Proof, error) {
	if t == nil || t.Root == nil {
		return nil, ErrNoTree
	}
	if leafIdx < 0 || leafIdx >= t.LeafCount {
		return nil, errors.Wrapf(ErrIndexOutOfRange, "leaf index %d (tree has %d leaves)", leafIdx, t.LeafCount)
	}

	// Descend from the root toward the leaf, recording the sibling of each
	// containing child. That yields the proof root-to-leaf; reverse at the
	// end so the first step is the sibling adjacent to the leaf.
	steps := make(Proof, 0)
	node := t.Root
	for !node.IsLeaf() {
		var sibling *TreeNode
		if leafIdx <= node.Left.RightIdx {
			sibling = node.Right
			node = node.Left
		} else {
			sibling = node.Left
			node = node.Right
		}
		steps = append(steps, ProofStep{
			Hash:     sibling.Hash,
			LeftIdx:  sibling.LeftIdx,
			RightIdx: sibling.RightIdx,
		})
	}

	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return steps, nil
}

// Verify checks that file is the leaf at leafIdx of a leafCount-leaf tree
// whose root digest is rootHash, using the given proof. It is a pure local
// computation: no tree and no server involved.
//
// Each proof step must be strictly adjacent to the running range — on the
// left if its upper bound sits immediately below the range, on the right if
// its lower bound sits immediately above it. Anything else is a structural
// inconsistency and returns ErrMalformedProof. After the whole proof is
// consumed the recomputed digest must equal rootHash and the running range
// must span [0, leafCount-1]; a truncated proof that happens to match a
// sub-root digest is rejected by the span check.
func Verify(file []byte, leafIdx, leafCount int, proof Proof, rootHash string) (bool, error) {
	if leafCount <= 0 || leafIdx < 0 || leafIdx >= leafCount {
		return false, errors.Wrapf(ErrIndexOutOfRange, "leaf index %d (batch has %d leaves)", leafIdx, leafCount)
	}

	current := sha256.Sum256(file)
	curLeft, curRight := leafIdx, leafIdx

	for i, step := range proof {
		sibling, err := util.DecodeDigest(step.Hash)
		if err != nil {
			return false, errors.Wrapf(ErrMalformedProof, "step %d: %v", i, err)
		}
		var siblingSum [sha256.Size]byte
		copy(siblingSum[:], sibling)

		switch {
		case step.RightIdx == curLeft-1:
			// Sibling sits immediately to the left.
			current = hashPair(siblingSum, current)
			curLeft = step.LeftIdx
		case step.LeftIdx == curRight+1:
			// Sibling sits immediately to the right.
			current = hashPair(current, siblingSum)
			curRight = step.RightIdx
		default:
			return false, errors.Wrapf(ErrMalformedProof,
				"step %d range [%d,%d] is not adjacent to accumulated range [%d,%d]",
				i, step.LeftIdx, step.RightIdx, curLeft, curRight)
		}
	}

	if curLeft != 0 || curRight != leafCount-1 {
		// Proof consumed without covering the full leaf set.
		return false, nil
	}
	return hex.EncodeToString(current[:]) == rootHash, nil
}

// hashPair computes sha256(left || right) over raw digest bytes.
func hashPair(left, right [sha256.Size]byte) [sha256.Size]byte {
	data := make([]byte, 0, 2*sha256.Size)
	data = append(data, left[:]...)
	data = append(data, right[:]...)
	return sha256.Sum256(data)
}
