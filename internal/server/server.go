package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/tributeguard/internal/analyzer"
	"github.com/ppiankov/tributeguard/internal/extract"
	"github.com/ppiankov/tributeguard/internal/policy"
)

// maxBodyBytes bounds an analyze request body.
const maxBodyBytes = 1 << 20

// failureMessage is the user-visible error for extraction failures.
const failureMessage = "Failed to analyze content"

// Config holds HTTP server configuration.
type Config struct {
	Addr       string
	PolicyPath string // operator policy file; empty uses ~/.tributeguard/policy.yaml
	Production bool   // hide failure details from callers
	Logger     *slog.Logger
}

// Server serves the analyze API over HTTP. The operator policy loaded from
// PolicyPath is the default for requests that carry none; it can be swapped
// at runtime by ReloadPolicy.
type Server struct {
	cfg      Config
	policy   *policy.Handle
	analyzer *analyzer.Analyzer
	logger   *slog.Logger
	srv      *http.Server
}

// New loads the operator policy and builds the analyzer. opts are applied
// before the server's default-policy source.
func New(cfg Config, ex extract.Extractor, opts ...analyzer.Option) (*Server, error) {
	if cfg.PolicyPath == "" {
		cfg.PolicyPath = policy.DefaultPath()
	}
	text, _, err := policy.LoadFile(cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	h := policy.NewHandle()
	h.Set(text)

	opts = append(opts, analyzer.WithDefaultPolicy(h.Get), analyzer.WithLogger(logger))
	s := &Server{
		cfg:      cfg,
		policy:   h,
		analyzer: analyzer.New(ex, opts...),
		logger:   logger,
	}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Analyzer returns the analyzer shared by all transports of this server.
func (s *Server) Analyzer() *analyzer.Analyzer {
	return s.analyzer
}

// Policy returns the current operator policy and its hash.
func (s *Server) Policy() (string, string) {
	p := s.policy.Get()
	return p, policy.Hash(p)
}

// PolicyPath returns the watched operator policy file.
func (s *Server) PolicyPath() string {
	return s.cfg.PolicyPath
}

// ReloadPolicy re-reads the operator policy file and swaps it in.
// In-flight requests keep the policy they started with.
func (s *Server) ReloadPolicy() error {
	text, hash, err := policy.LoadFile(s.cfg.PolicyPath)
	if err != nil {
		return fmt.Errorf("failed to reload policy: %w", err)
	}
	s.policy.Set(text)
	s.logger.Info("policy reloaded", "path", s.cfg.PolicyPath, "hash", hash)
	return nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /api/policy", s.handlePolicy)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// Start listens on cfg.Addr. Blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.ServeOn(ctx, ln)
}

// ServeOn serves on ln until ctx is cancelled.
func (s *Server) ServeOn(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	err := s.srv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type policyResponse struct {
	Policy string `json:"policy"`
	Hash   string `json:"hash"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := uuid.NewString()
	w.Header().Set("X-Request-Id", id)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, id, start, http.StatusBadRequest, errorResponse{Error: "request body too large or unreadable"})
		return
	}

	req, err := analyzer.DecodeRequest(body)
	if err != nil {
		s.writeError(w, id, start, http.StatusBadRequest, errorResponse{Error: analyzer.UserMessage(err)})
		return
	}

	ctx := analyzer.ContextWithSource(r.Context(), "http")
	result, err := s.analyzer.AnalyzeWithID(ctx, id, req)
	if err != nil {
		status, resp := s.classify(err)
		s.writeError(w, id, start, status, resp)
		return
	}

	writeJSON(w, http.StatusOK, result)
	s.logger.Info("analyze",
		"request_id", id,
		"status", http.StatusOK,
		"verdict", result.Verdict(),
		"flagged", len(result.FlaggedContent),
		"duration", time.Since(start))
}

func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	p, hash := s.Policy()
	writeJSON(w, http.StatusOK, policyResponse{Policy: p, Hash: hash})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// classify maps an analyzer error to an HTTP status and body.
func (s *Server) classify(err error) (int, errorResponse) {
	if errors.Is(err, analyzer.ErrInvalidInput) {
		return http.StatusBadRequest, errorResponse{Error: analyzer.UserMessage(err)}
	}
	resp := errorResponse{Error: failureMessage}
	if !s.cfg.Production {
		resp.Details = err.Error()
	}
	return http.StatusInternalServerError, resp
}

func (s *Server) writeError(w http.ResponseWriter, id string, start time.Time, status int, resp errorResponse) {
	writeJSON(w, status, resp)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.logger.Log(context.Background(), level, "analyze",
		"request_id", id,
		"status", status,
		"error", resp.Error,
		"duration", time.Since(start))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
