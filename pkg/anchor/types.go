package anchor

import (
	"time"

	"github.com/merklevault/merklevault/pkg/merkle"
)

// Anchor is what the client keeps, independently of the server, after an
// upload: enough to later verify any downloaded file without trusting the
// server. The root hash is the trust anchor proper; the serialized tree is
// optional and lets the client regenerate proofs locally.
type Anchor struct {
	// BatchID identifies the upload batch the anchor belongs to.
	BatchID string `json:"batch_id"`

	// ServerURL is the vault the batch was uploaded to.
	ServerURL string `json:"server_url"`

	// RootHash is the merkle root returned at upload time, lowercase hex.
	RootHash string `json:"merkle_root_hash"`

	// LeafCount is the number of files in the batch. Verification needs it
	// to check that a proof spans the whole leaf set.
	LeafCount int `json:"leaf_count"`

	CreatedAt time.Time `json:"created_at"`

	// Tree is the optional full serialized tree for local proof generation.
	Tree *merkle.Tree `json:"tree,omitempty"`
}
