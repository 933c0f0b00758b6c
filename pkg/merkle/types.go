package merkle

// TreeNode is a node of the merkle tree. A leaf covers exactly one file
// (LeftIdx == RightIdx); an internal node covers the contiguous inclusive
// leaf range [LeftIdx, RightIdx] and owns both children.
//
// The JSON layout is the client-side persistence format: nested records of
// {hash, left_idx, right_idx, left?, right?}.
type TreeNode struct {
	// Hash is the lowercase hex SHA-256 digest. For a leaf it is the digest
	// of the raw file bytes; for an internal node it is the digest of the
	// children's raw digest bytes concatenated left-then-right.
	Hash string `json:"hash"`

	// LeftIdx and RightIdx are the inclusive 0-based bounds of the leaf
	// range this subtree covers.
	LeftIdx  int `json:"left_idx"`
	RightIdx int `json:"right_idx"`

	Left  *TreeNode `json:"left,omitempty"`
	Right *TreeNode `json:"right,omitempty"`
}

// IsLeaf reports whether the node covers a single file.
func (n *TreeNode) IsLeaf() bool {
	return n.Left == nil && n.Right == nil
}

// Tree is an immutable merkle tree over an ordered file batch. Rebuilding
// replaces the whole tree; nothing is ever patched in place.
type Tree struct {
	Root      *TreeNode `json:"root"`
	LeafCount int       `json:"leaf_count"`
}

// RootHash returns the root digest, or "" for an absent tree.
func (t *Tree) RootHash() string {
	if t == nil || t.Root == nil {
		return ""
	}
	return t.Root.Hash
}

// ProofStep is one sibling descriptor in a merkle proof: the sibling's
// digest plus the leaf range its subtree covers. The range is what lets the
// verifier reconstruct concatenation order without the original tree.
type ProofStep struct {
	Hash     string `json:"hash"`
	LeftIdx  int    `json:"left_idx"`
	RightIdx int    `json:"right_idx"`
}

// Proof is an ordered sibling chain, leaf-to-root: the first step is the
// sibling adjacent to the target leaf, the last is the sibling nearest the
// root. A proof is self-contained and carries no reference to its tree.
type Proof []ProofStep
