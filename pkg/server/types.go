package server

import "github.com/merklevault/merklevault/pkg/merkle"

// UploadRequest is the body of POST /v1/upload. Files are base64-encoded
// by encoding/json; their order is the leaf order of the tree.
type UploadRequest struct {
	Files [][]byte `json:"files"`
}

// UploadResponse returns the identity of the new batch. The client is
// expected to persist MerkleRootHash before discarding its local files.
type UploadResponse struct {
	BatchID        string `json:"batch_id"`
	MerkleRootHash string `json:"merkle_root_hash"`
	LeafCount      int    `json:"leaf_count"`
}

// ProofResponse is the body of GET /v1/proofs/{index}.
type ProofResponse struct {
	BatchID        string       `json:"batch_id"`
	MerkleRootHash string       `json:"merkle_root_hash"`
	LeafCount      int          `json:"leaf_count"`
	LeafIndex      int          `json:"leaf_index"`
	Proof          merkle.Proof `json:"proof"`
}

// BatchResponse is the body of GET /v1/batch.
type BatchResponse struct {
	BatchID        string `json:"batch_id"`
	MerkleRootHash string `json:"merkle_root_hash"`
	LeafCount      int    `json:"leaf_count"`
	CreatedAt      string `json:"created_at"`
}
