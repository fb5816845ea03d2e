package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ppiankov/tributeguard/internal/analyzer"
	"github.com/ppiankov/tributeguard/internal/policy"
)

// Config holds gRPC server configuration.
type Config struct {
	Addr       string
	Production bool                   // hide failure details from callers
	Policy     func() (string, string) // operator policy and hash; nil means the built-in default
	Logger     *slog.Logger
}

// Server implements ModerationService on top of an Analyzer.
type Server struct {
	cfg        Config
	analyzer   *analyzer.Analyzer
	logger     *slog.Logger
	grpcServer *grpc.Server
}

// New creates a gRPC server for a.
func New(cfg Config, a *analyzer.Analyzer) *Server {
	if cfg.Policy == nil {
		cfg.Policy = func() (string, string) {
			p := policy.Default()
			return p, policy.Hash(p)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		cfg:        cfg,
		analyzer:   a,
		logger:     logger,
		grpcServer: grpc.NewServer(),
	}
	RegisterModerationServer(s.grpcServer, s)
	return s
}

// Serve listens on cfg.Addr. Blocks until stopped.
func (s *Server) Serve() error {
	lis, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.grpcServer.Serve(lis)
}

// ServeOn serves on the given listener. For testing.
func (s *Server) ServeOn(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// GracefulStop gracefully shuts down the gRPC server.
func (s *Server) GracefulStop() {
	s.grpcServer.GracefulStop()
}

// Analyze implements the Analyze RPC.
func (s *Server) Analyze(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	start := time.Now()
	id := requestID(ctx)
	grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, id))

	body, err := in.MarshalJSON()
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "request must be an object")
	}
	req, err := analyzer.DecodeRequest(body)
	if err != nil {
		s.logger.Warn("analyze", "request_id", id, "code", codes.InvalidArgument.String(), "duration", time.Since(start))
		return nil, status.Error(codes.InvalidArgument, analyzer.UserMessage(err))
	}

	result, err := s.analyzer.AnalyzeWithID(analyzer.ContextWithSource(ctx, "grpc"), id, req)
	if err != nil {
		st := s.toStatus(err)
		s.logger.Error("analyze", "request_id", id, "code", st.Code().String(), "duration", time.Since(start))
		return nil, st.Err()
	}

	out, err := ResultToStruct(result)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	s.logger.Info("analyze",
		"request_id", id,
		"code", codes.OK.String(),
		"verdict", result.Verdict(),
		"flagged", len(result.FlaggedContent),
		"duration", time.Since(start))
	return out, nil
}

// DefaultPolicy implements the DefaultPolicy RPC.
func (s *Server) DefaultPolicy(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, hash := s.cfg.Policy()
	return structpb.NewStruct(map[string]any{"policy": p, "hash": hash})
}

func (s *Server) toStatus(err error) *status.Status {
	if errors.Is(err, analyzer.ErrInvalidInput) {
		return status.New(codes.InvalidArgument, analyzer.UserMessage(err))
	}
	msg := "Failed to analyze content"
	if !s.cfg.Production {
		msg += ": " + err.Error()
	}
	return status.New(codes.Internal, msg)
}

// ResultToStruct encodes a Result as {flaggedContent: [...]}. The list is
// never null.
func ResultToStruct(r analyzer.Result) (*structpb.Struct, error) {
	items := make([]any, len(r.FlaggedContent))
	for i, s := range r.FlaggedContent {
		items[i] = s
	}
	return structpb.NewStruct(map[string]any{"flaggedContent": items})
}

func requestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(RequestIDHeader); len(v) > 0 && v[0] != "" {
			return v[0]
		}
	}
	return uuid.NewString()
}
