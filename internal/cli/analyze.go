package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/ppiankov/tributeguard/internal/analyzer"
	"github.com/ppiankov/tributeguard/internal/audit"
	"github.com/ppiankov/tributeguard/internal/client"
	"github.com/ppiankov/tributeguard/internal/config"
	"github.com/ppiankov/tributeguard/internal/extract"
	"github.com/ppiankov/tributeguard/internal/policy"
	"github.com/ppiankov/tributeguard/internal/scenario"
)

var (
	analyzePolicy     string
	analyzePolicyFile string
	analyzeRemote     string
	analyzeProvider   string
	analyzeJSON       bool
)

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVar(&analyzePolicy, "policy", "", "Policy text replacing the default for this call")
	analyzeCmd.Flags().StringVar(&analyzePolicyFile, "policy-file", "", "Policy YAML replacing the default for this call")
	analyzeCmd.Flags().StringVar(&analyzeRemote, "remote", "", "Analyze on a running server (gRPC address) instead of locally")
	analyzeCmd.Flags().StringVar(&analyzeProvider, "provider", "", "Extraction provider override (openai|bedrock|stub)")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print the {\"flaggedContent\": [...]} response")
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [text...]",
	Short: "Check one tribute and print the flagged phrases",
	Long: "Analyzes a tribute given as arguments, or read from stdin when no\n" +
		"arguments are given. Prints APPROVED or the exact flagged phrases.",
	RunE: runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	text, err := readTribute(cmd, args)
	if err != nil {
		return err
	}

	req := analyzer.Request{Text: text}
	if override, err := policyOverride(); err != nil {
		return err
	} else if override != "" {
		req.Policy = &override
	}

	ctx := analyzer.ContextWithSource(cmd.Context(), "cli")

	var a scenario.Analyzer
	if analyzeRemote != "" {
		c, err := client.New(analyzeRemote)
		if err != nil {
			return err
		}
		defer c.Close()
		a = c
	} else {
		local, closeFn, err := localAnalyzer(ctx, currentConfig(), analyzeProvider)
		if err != nil {
			return err
		}
		defer closeFn()
		a = local
	}

	result, err := a.Analyze(ctx, req)
	if err != nil {
		if errors.Is(err, analyzer.ErrInvalidInput) {
			return errors.New(analyzer.UserMessage(err))
		}
		return fmt.Errorf("failed to analyze content: %w", err)
	}

	printResult(cmd.OutOrStdout(), result, analyzeJSON)
	return nil
}

// readTribute joins args, or reads stdin when there are none. A terminal
// stdin is refused rather than waiting for input.
func readTribute(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return "", errors.New("no tribute text: pass it as arguments or pipe it on stdin")
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func policyOverride() (string, error) {
	if analyzePolicy != "" && analyzePolicyFile != "" {
		return "", errors.New("--policy and --policy-file are mutually exclusive")
	}
	if analyzePolicyFile != "" {
		if _, err := os.Stat(analyzePolicyFile); err != nil {
			return "", fmt.Errorf("policy file: %w", err)
		}
		text, _, err := policy.LoadFile(analyzePolicyFile)
		return text, err
	}
	return analyzePolicy, nil
}

// localAnalyzer builds an in-process analyzer from c. The operator policy
// file is the default; the audit log, when configured, records the call.
// closeFn releases the audit log.
func localAnalyzer(ctx context.Context, c *config.Config, provider string) (*analyzer.Analyzer, func(), error) {
	ec := c.Extract()
	if provider != "" {
		ec.Provider = provider
	}
	ex, err := extract.New(ctx, ec)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create extractor: %w", err)
	}

	text, _, err := policy.LoadFile(c.PolicyFile)
	if err != nil {
		return nil, nil, err
	}

	opts := []analyzer.Option{
		analyzer.WithModel(c.Model),
		analyzer.WithTimeout(c.Timeout),
		analyzer.WithDefaultPolicy(func() string { return text }),
	}

	closeFn := func() {}
	if c.AuditLog != "" {
		log, err := audit.Open(c.AuditLog)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, analyzer.WithObserver(log))
		closeFn = func() { log.Close() }
	}

	return analyzer.New(ex, opts...), closeFn, nil
}

func printResult(w io.Writer, r analyzer.Result, asJSON bool) {
	if asJSON {
		if r.FlaggedContent == nil {
			r.FlaggedContent = []string{}
		}
		out, _ := json.MarshalIndent(r, "", "  ")
		fmt.Fprintln(w, string(out))
		return
	}
	if r.Approved() {
		fmt.Fprintln(w, "APPROVED")
		return
	}
	fmt.Fprintf(w, "FLAGGED (%d)\n", len(r.FlaggedContent))
	for _, s := range r.FlaggedContent {
		fmt.Fprintf(w, "  - %q\n", s)
	}
}
