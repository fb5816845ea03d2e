package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/tributeguard/internal/analyzer"
	"github.com/ppiankov/tributeguard/internal/extract"
	"github.com/ppiankov/tributeguard/internal/policy"
)

// Config holds MCP server configuration.
type Config struct {
	PolicyPath string // operator policy file; empty uses ~/.tributeguard/policy.yaml
	Version    string
}

// Server exposes the moderation analyzer as MCP tools.
type Server struct {
	mcpServer  *mcpsdk.Server
	analyzer   *analyzer.Analyzer
	policy     string
	policyHash string
}

// New loads the operator policy and registers the tools.
func New(cfg Config, ex extract.Extractor, opts ...analyzer.Option) (*Server, error) {
	if cfg.PolicyPath == "" {
		cfg.PolicyPath = policy.DefaultPath()
	}
	text, _, err := policy.LoadFile(cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		policy:     text,
		policyHash: policy.Hash(text),
	}
	opts = append(opts, analyzer.WithDefaultPolicy(func() string { return s.policy }))
	s.analyzer = analyzer.New(ex, opts...)

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "tributeguard",
			Version: version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds the tributeguard tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "tributeguard_analyze",
		Description: "Check a memorial tribute against the moderation policy. Returns the exact phrases that make it unsuitable; an empty list means the tribute is approved.",
	}, s.handleAnalyze)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "tributeguard_default_policy",
		Description: "Return the moderation policy used when a request supplies none, with its sha256 hash.",
	}, s.handleDefaultPolicy)
}
