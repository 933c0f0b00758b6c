package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/merklevault/merklevault/pkg/config"
	"github.com/merklevault/merklevault/pkg/merkle"
)

// ErrNotFound is returned when the server has no batch, or the requested
// index is outside the current batch.
var ErrNotFound = errors.New("not found on server")

// UploadResult is the server's answer to an upload. MerkleRootHash is the
// trust anchor: the caller must persist it before discarding local files.
type UploadResult struct {
	BatchID        string `json:"batch_id"`
	MerkleRootHash string `json:"merkle_root_hash"`
	LeafCount      int    `json:"leaf_count"`
}

// ProofResult carries a merkle proof for one file, plus the batch it
// belongs to so the caller can detect a batch swap since upload.
type ProofResult struct {
	BatchID        string       `json:"batch_id"`
	MerkleRootHash string       `json:"merkle_root_hash"`
	LeafCount      int          `json:"leaf_count"`
	LeafIndex      int          `json:"leaf_index"`
	Proof          merkle.Proof `json:"proof"`
}

// BatchInfo describes the batch currently held by the server.
type BatchInfo struct {
	BatchID        string `json:"batch_id"`
	MerkleRootHash string `json:"merkle_root_hash"`
	LeafCount      int    `json:"leaf_count"`
	CreatedAt      string `json:"created_at"`
}

// Client provides a reusable library interface to a vault server. The
// server is untrusted: nothing a Client returns should be believed until
// it has been verified with VerifyFile against a locally kept root hash.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new vault client from a validated config.
func NewClient(cfg *config.ClientConfig, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("server URL is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.ServerURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}, nil
}

// Upload sends an ordered file batch to the server and returns the batch
// identity including the merkle root hash.
func (c *Client) Upload(ctx context.Context, files [][]byte) (*UploadResult, error) {
	if len(files) == 0 {
		return nil, errors.Wrap(merkle.ErrEmptyInput, "upload requires at least one file")
	}

	c.logger.Sugar().Infow("Uploading file batch", "file_count", len(files))

	reqBody, err := json.Marshal(struct {
		Files [][]byte `json:"files"`
	}{Files: files})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal upload request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/upload", bytes.NewReader(reqBody))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build upload request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "upload request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		return nil, c.statusError(resp, "upload")
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to decode upload response")
	}

	c.logger.Sugar().Infow("Upload accepted by server",
		"batch_id", result.BatchID,
		"merkle_root", result.MerkleRootHash,
		"leaf_count", result.LeafCount,
	)
	return &result, nil
}

// Download fetches the raw bytes of the file at index. The bytes are
// unverified until checked with VerifyFile.
func (c *Client) Download(ctx context.Context, index int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1/files/%d", c.baseURL, index), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build download request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "download request for index %d failed", index)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.Wrapf(ErrNotFound, "file index %d", index)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp, "download")
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read file body")
	}
	return data, nil
}

// GetProof fetches the merkle proof for the file at index.
func (c *Client) GetProof(ctx context.Context, index int) (*ProofResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1/proofs/%d", c.baseURL, index), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build proof request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "proof request for index %d failed", index)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.Wrapf(ErrNotFound, "proof index %d", index)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp, "proof")
	}

	var result ProofResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to decode proof response")
	}
	return &result, nil
}

// GetBatch fetches the metadata of the batch the server currently holds.
func (c *Client) GetBatch(ctx context.Context) (*BatchInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/batch", nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build batch request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "batch request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.Wrap(ErrNotFound, "no batch uploaded")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp, "batch")
	}

	var result BatchInfo
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to decode batch response")
	}
	return &result, nil
}

// DownloadVerified fetches the file and its proof at index and verifies
// both against rootHash before returning the bytes.
func (c *Client) DownloadVerified(ctx context.Context, index, leafCount int, rootHash string) ([]byte, error) {
	file, err := c.Download(ctx, index)
	if err != nil {
		return nil, err
	}

	proofResult, err := c.GetProof(ctx, index)
	if err != nil {
		return nil, err
	}

	ok, err := VerifyFile(file, index, leafCount, proofResult.Proof, rootHash)
	if err != nil {
		return nil, errors.Wrapf(err, "verification of index %d failed", index)
	}
	if !ok {
		return nil, fmt.Errorf("file at index %d failed merkle verification against root %s", index, rootHash)
	}

	c.logger.Sugar().Debugw("Downloaded and verified file",
		"index", index,
		"size", len(file),
	)
	return file, nil
}

// VerifyFile checks file against rootHash using proof. It is a pure local
// computation and never contacts the server.
func VerifyFile(file []byte, index, leafCount int, proof merkle.Proof, rootHash string) (bool, error) {
	return merkle.Verify(file, index, leafCount, proof, rootHash)
}

func (c *Client) statusError(resp *http.Response, op string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("%s failed: server returned %d: %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
}
