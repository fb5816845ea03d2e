package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tributeguard/internal/analyzer"
	"github.com/ppiankov/tributeguard/internal/client"
	"github.com/ppiankov/tributeguard/internal/extract"
	"github.com/ppiankov/tributeguard/internal/scenario"
)

var (
	checkScenario string
	checkProvider string
	checkRemote   string
	checkFormat   string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkScenario, "scenario", "", "Glob pattern for scenario YAML files (default: built-in policy examples)")
	checkCmd.Flags().StringVar(&checkProvider, "provider", extract.ProviderStub, "Extraction provider (stub|openai|bedrock)")
	checkCmd.Flags().StringVar(&checkRemote, "remote", "", "Run cases against a running server (gRPC address)")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "text", "Output format (text|json)")
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run moderation assertions from scenario files",
	Long: "Runs every case of the matching scenario files through the analyzer and\n" +
		"compares the verdict and flagged phrases with the expectation. Without\n" +
		"--scenario the built-in policy examples are used.\n\n" +
		"The default provider is the deterministic stub. Use --provider openai\n" +
		"to check the live model against the policy.\n\n" +
		"Exit code 0 if all cases pass, 1 if any fail.",
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := analyzer.ContextWithSource(cmd.Context(), "cli")

	var a scenario.Analyzer
	if checkRemote != "" {
		c, err := client.New(checkRemote)
		if err != nil {
			return err
		}
		defer c.Close()
		a = c
	} else {
		local, closeFn, err := localAnalyzer(ctx, currentConfig(), checkProvider)
		if err != nil {
			return err
		}
		defer closeFn()
		a = local
	}

	var results []*scenario.RunResult
	if checkScenario == "" {
		r := scenario.Run(ctx, scenario.Builtin(), a)
		r.File = scenario.BuiltinName
		results = append(results, r)
	} else {
		matches, err := filepath.Glob(checkScenario)
		if err != nil {
			return fmt.Errorf("invalid glob pattern: %w", err)
		}
		if len(matches) == 0 {
			return fmt.Errorf("no scenario files match pattern: %s", checkScenario)
		}
		for _, path := range matches {
			r, err := scenario.LoadAndRun(ctx, path, a)
			if err != nil {
				return err
			}
			results = append(results, r)
		}
	}

	out := cmd.OutOrStdout()
	switch checkFormat {
	case "json":
		s, err := scenario.FormatJSON(results)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, s)
	default:
		fmt.Fprint(out, scenario.FormatText(results, out == os.Stdout && scenario.UseColor(os.Stdout)))
	}

	failed := 0
	for _, r := range results {
		failed += r.Failed
	}
	if failed > 0 {
		return fmt.Errorf("%d case(s) failed", failed)
	}
	return nil
}
