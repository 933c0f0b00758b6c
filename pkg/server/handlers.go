package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/merklevault/merklevault/pkg/merkle"
	"github.com/merklevault/merklevault/pkg/store"
)

// handleUpload handles POST /v1/upload. The request body carries the full
// ordered file batch; the previous batch (if any) is discarded.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.uploadLimiter != nil && !s.uploadLimiter.Allow() {
		s.logger.Sugar().Warnw("Upload rejected by rate limiter", "remote", r.RemoteAddr)
		http.Error(w, "Too many upload requests", http.StatusTooManyRequests)
		return
	}

	var req UploadRequest
	body := http.MaxBytesReader(w, r.Body, s.maxBatchBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Upload batch too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	batch, err := s.store.Put(req.Files)
	if err != nil {
		if errors.Is(err, merkle.ErrEmptyInput) {
			http.Error(w, "Upload must contain at least one file", http.StatusBadRequest)
			return
		}
		s.logger.Sugar().Errorw("Failed to store upload batch", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.logger.Sugar().Infow("Upload accepted",
		"batch_id", batch.ID,
		"leaf_count", batch.LeafCount,
		"merkle_root", batch.RootHash,
	)

	s.writeJSON(w, http.StatusCreated, UploadResponse{
		BatchID:        batch.ID.String(),
		MerkleRootHash: batch.RootHash,
		LeafCount:      batch.LeafCount,
	})
}

// handleDownload handles GET /v1/files/{index}. The response is the raw
// file bytes; verification is the caller's job.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	idx, ok := s.parseIndex(w, r, "/v1/files/")
	if !ok {
		return
	}

	file, err := s.store.File(idx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "File not found", http.StatusNotFound)
			return
		}
		s.logger.Sugar().Errorw("Failed to fetch file", "index", idx, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file)
}

// handleGetProof handles GET /v1/proofs/{index}.
func (s *Server) handleGetProof(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	idx, ok := s.parseIndex(w, r, "/v1/proofs/")
	if !ok {
		return
	}

	proof, batch, err := s.store.Proof(idx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "File not found", http.StatusNotFound)
			return
		}
		s.logger.Sugar().Errorw("Failed to generate proof", "index", idx, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, ProofResponse{
		BatchID:        batch.ID.String(),
		MerkleRootHash: batch.RootHash,
		LeafCount:      batch.LeafCount,
		LeafIndex:      idx,
		Proof:          proof,
	})
}

// handleGetBatch handles GET /v1/batch.
func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	batch, ok := s.store.Batch()
	if !ok {
		http.Error(w, "No batch uploaded", http.StatusNotFound)
		return
	}

	s.writeJSON(w, http.StatusOK, BatchResponse{
		BatchID:        batch.ID.String(),
		MerkleRootHash: batch.RootHash,
		LeafCount:      batch.LeafCount,
		CreatedAt:      batch.CreatedAt.Format(time.RFC3339),
	})
}

// parseIndex extracts the trailing {index} path segment. On failure it
// writes the error response itself and returns ok=false.
func (s *Server) parseIndex(w http.ResponseWriter, r *http.Request, prefix string) (int, bool) {
	raw := strings.TrimPrefix(r.URL.Path, prefix)
	if raw == "" || strings.Contains(raw, "/") {
		http.Error(w, "Invalid file index", http.StatusBadRequest)
		return 0, false
	}
	idx, err := strconv.Atoi(raw)
	if err != nil {
		http.Error(w, "Invalid file index", http.StatusBadRequest)
		return 0, false
	}
	return idx, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Sugar().Errorw("Failed to encode response", "error", err)
	}
}
