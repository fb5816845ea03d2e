package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tributeguard/internal/audit"
)

var (
	tailLines   int
	tailVerdict string
	tailSource  string
	tailSince   time.Duration
	tailFormat  string
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 20, "Number of recent entries to show (0 = all)")
	auditTailCmd.Flags().StringVar(&tailVerdict, "verdict", "", "Only show approved or flagged entries")
	auditTailCmd.Flags().StringVar(&tailSource, "source", "", "Only show entries from http, grpc, mcp, or cli")
	auditTailCmd.Flags().DurationVar(&tailSince, "since", 0, "Only show entries newer than this (e.g. 1h)")
	auditTailCmd.Flags().StringVarP(&tailFormat, "format", "f", "text", "Output format (text|json)")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
	Long:  "Commands for verifying and inspecting the hash-chained audit log.\nThe log stores hashes and counts only, never tribute text.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify hash chain integrity of an audit log",
	Long:  "Walks the JSONL audit log and validates that every entry's prev_hash\nmatches the SHA-256 of the previous entry. Exits 0 if valid, 1 if tampered.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail [path]",
	Short: "Show recent audit log entries",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditTail,
}

func auditPath(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if p := currentConfig().AuditLog; p != "" {
		return p, nil
	}
	return "", fmt.Errorf("no audit log: pass a path or set audit_log in config")
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	path, err := auditPath(args)
	if err != nil {
		return err
	}
	result := audit.Verify(path)
	if result.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d entries verified\n", result.Lines)
		return nil
	}
	fmt.Fprintf(os.Stderr, "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	return fmt.Errorf("audit chain broken at line %d", result.ErrorLine)
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	path, err := auditPath(args)
	if err != nil {
		return err
	}

	filter := audit.Filter{
		Verdict: tailVerdict,
		Source:  tailSource,
		Limit:   tailLines,
	}
	if tailSince > 0 {
		filter.From = time.Now().Add(-tailSince)
	}

	result, err := audit.Tail(path, filter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch tailFormat {
	case "json":
		s, err := audit.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, s)
	default:
		fmt.Fprint(out, audit.FormatTimeline(result))
	}
	return nil
}
