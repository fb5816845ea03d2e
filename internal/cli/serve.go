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
	"github.com/ppiankov/tributeguard/internal/review"
	"github.com/ppiankov/tributeguard/internal/rpc"
	"github.com/ppiankov/tributeguard/internal/server"
)

var (
	serveHTTPAddr   string
	serveGRPCAddr   string
	servePolicyFile string
	serveAuditLog   string
	serveReviewDB   string
	serveNoGRPC     bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHTTPAddr, "http", "", "HTTP listen address (default from config, 127.0.0.1:8080)")
	serveCmd.Flags().StringVar(&serveGRPCAddr, "grpc", "", "gRPC listen address (default from config, 127.0.0.1:9090)")
	serveCmd.Flags().StringVar(&servePolicyFile, "policy-file", "", "Operator policy YAML (hot-reloaded)")
	serveCmd.Flags().StringVar(&serveAuditLog, "audit-log", "", "Path to audit log JSONL file")
	serveCmd.Flags().StringVar(&serveReviewDB, "review-db", "", "Path to SQLite review queue for flagged tributes")
	serveCmd.Flags().BoolVar(&serveNoGRPC, "no-grpc", false, "Serve HTTP only")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the moderation API server",
	Long: "Serves POST /api/analyze over HTTP and the ModerationService over gRPC.\n" +
		"Both share one analyzer and the operator policy, which is hot-reloaded\n" +
		"when its file changes.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	c := currentConfig()
	override(&c.Server.HTTPAddr, serveHTTPAddr)
	override(&c.Server.GRPCAddr, serveGRPCAddr)
	override(&c.PolicyFile, servePolicyFile)
	override(&c.AuditLog, serveAuditLog)
	override(&c.ReviewDB, serveReviewDB)

	logger := newLogger(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ex, err := extract.New(ctx, c.Extract())
	if err != nil {
		return fmt.Errorf("failed to create extractor: %w", err)
	}

	opts := []analyzer.Option{
		analyzer.WithModel(c.Model),
		analyzer.WithTimeout(c.Timeout),
	}
	if c.AuditLog != "" {
		log, err := audit.Open(c.AuditLog)
		if err != nil {
			return err
		}
		defer log.Close()
		opts = append(opts, analyzer.WithObserver(log))
	}
	if c.ReviewDB != "" {
		store, err := review.Open(c.ReviewDB)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, analyzer.WithObserver(store))
	}

	srv, err := server.New(server.Config{
		Addr:       c.Server.HTTPAddr,
		PolicyPath: c.PolicyFile,
		Production: c.Production(),
		Logger:     logger,
	}, ex, opts...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	reloader, err := server.NewReloader(srv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: hot-reload disabled: %v\n", err)
	} else {
		go reloader.Run(ctx)
	}

	errCh := make(chan error, 2)

	var grpcSrv *rpc.Server
	if !serveNoGRPC {
		grpcSrv = rpc.New(rpc.Config{
			Addr:       c.Server.GRPCAddr,
			Production: c.Production(),
			Policy:     srv.Policy,
			Logger:     logger,
		}, srv.Analyzer())
		go func() { errCh <- grpcSrv.Serve() }()
	}
	go func() { errCh <- srv.Start(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	_, hash := srv.Policy()
	fmt.Fprintf(os.Stderr, "tributeguard listening on http://%s\n", c.Server.HTTPAddr)
	if grpcSrv != nil {
		fmt.Fprintf(os.Stderr, "gRPC: %s\n", c.Server.GRPCAddr)
	}
	fmt.Fprintf(os.Stderr, "Mode: %s, provider: %s, model: %s\n", c.Mode, c.Provider.Name, c.Model)
	fmt.Fprintf(os.Stderr, "Policy: %s (%s)\n", srv.PolicyPath(), hash[:19])
	if c.AuditLog != "" {
		fmt.Fprintf(os.Stderr, "Audit log: %s\n", c.AuditLog)
	}
	if c.ReviewDB != "" {
		fmt.Fprintf(os.Stderr, "Review queue: %s\n", c.ReviewDB)
	}
	fmt.Fprintln(os.Stderr)

	var serveErr error
	select {
	case <-sigCh:
		fmt.Fprintln(os.Stderr, "\nShutting down moderation server...")
	case serveErr = <-errCh:
	}

	cancel()
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	return serveErr
}

func override(dst *string, flag string) {
	if flag != "" {
		*dst = flag
	}
}
