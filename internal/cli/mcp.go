package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tributeguard/internal/analyzer"
	"github.com/ppiankov/tributeguard/internal/audit"
	"github.com/ppiankov/tributeguard/internal/extract"
	tgmcp "github.com/ppiankov/tributeguard/internal/mcp"
)

var (
	mcpPolicyFile string
	mcpProvider   string
)

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpPolicyFile, "policy-file", "", "Operator policy YAML")
	mcpCmd.Flags().StringVar(&mcpProvider, "provider", "", "Extraction provider override (openai|bedrock|stub)")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long:  "Runs tributeguard as an MCP (Model Context Protocol) server over stdio.\nExposes tools: tributeguard_analyze, tributeguard_default_policy.",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	c := currentConfig()
	override(&c.PolicyFile, mcpPolicyFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ec := c.Extract()
	override(&ec.Provider, mcpProvider)
	ex, err := extract.New(ctx, ec)
	if err != nil {
		return fmt.Errorf("failed to create extractor: %w", err)
	}

	opts := []analyzer.Option{
		analyzer.WithModel(c.Model),
		analyzer.WithTimeout(c.Timeout),
		analyzer.WithLogger(newLogger(c)),
	}
	if c.AuditLog != "" {
		log, err := audit.Open(c.AuditLog)
		if err != nil {
			return err
		}
		defer log.Close()
		opts = append(opts, analyzer.WithObserver(log))
	}

	srv, err := tgmcp.New(tgmcp.Config{PolicyPath: c.PolicyFile, Version: version}, ex, opts...)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintln(os.Stderr, "tributeguard MCP server running on stdio")
	fmt.Fprintf(os.Stderr, "Provider: %s, model: %s\n\n", ec.Provider, c.Model)

	return srv.Run(ctx)
}
