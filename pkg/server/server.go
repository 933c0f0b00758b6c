package server

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/merklevault/merklevault/pkg/config"
	"github.com/merklevault/merklevault/pkg/store"
)

// Server exposes the vault over HTTP:
//
//	POST /v1/upload          - replace the stored batch, returns the root hash
//	GET  /v1/files/{index}   - raw file bytes
//	GET  /v1/proofs/{index}  - merkle proof for one file
//	GET  /v1/batch           - current batch metadata
//
// Proof verification has no endpoint: it is a pure client-side operation
// against the root hash the client kept for itself.
type Server struct {
	store         *store.Store
	logger        *zap.Logger
	httpServer    *http.Server
	uploadLimiter *rate.Limiter
	maxBatchBytes int64
}

// NewServer creates a new server instance from a validated config.
func NewServer(cfg *config.ServerConfig, st *store.Store, logger *zap.Logger) *Server {
	s := &Server{
		store:         st,
		logger:        logger,
		maxBatchBytes: cfg.MaxBatchBytes,
	}

	if cfg.UploadRPS > 0 {
		s.uploadLimiter = rate.NewLimiter(rate.Limit(cfg.UploadRPS), cfg.UploadBurst)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/upload", s.handleUpload)
	mux.HandleFunc("/v1/files/", s.handleDownload)
	mux.HandleFunc("/v1/proofs/", s.handleGetProof)
	mux.HandleFunc("/v1/batch", s.handleGetBatch)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}

	return s
}

// Start starts the HTTP server in the background.
func (s *Server) Start() error {
	go func() {
		s.logger.Sugar().Infow("Starting vault server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}
