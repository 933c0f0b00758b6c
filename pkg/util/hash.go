package util

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Sha256Hex computes the SHA-256 digest of data and renders it as a
// lowercase hex string. This is the one hashing primitive in the system;
// leaf hashes, parent hashes and the root hash all come from here.
func Sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DecodeDigest decodes a lowercase hex digest back into its raw 32 bytes.
// Parent hashes are computed over raw digest bytes, not over the hex text,
// so the display encoding never leaks into the tree.
func DecodeDigest(digest string) ([]byte, error) {
	raw, err := hex.DecodeString(digest)
	if err != nil {
		return nil, fmt.Errorf("invalid hex digest %q: %w", digest, err)
	}
	if len(raw) != sha256.Size {
		return nil, fmt.Errorf("digest must be %d bytes, got %d", sha256.Size, len(raw))
	}
	return raw, nil
}
