package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ppiankov/tributeguard/internal/audit"
	"github.com/ppiankov/tributeguard/internal/config"
	"github.com/ppiankov/tributeguard/internal/extract"
	"github.com/ppiankov/tributeguard/internal/policy"
)

func init() {
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration and diagnose setup issues",
	RunE:  runDoctor,
}

type checkResult struct {
	label  string
	ok     bool
	detail string
	fix    string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	c := currentConfig()
	checks := doctorChecks(c)

	out := cmd.OutOrStdout()
	failed := 0
	for _, ch := range checks {
		mark := "ok"
		if !ch.ok {
			mark = "!!"
			failed++
		}
		fmt.Fprintf(out, "[%s] %-18s %s\n", mark, ch.label, ch.detail)
		if ch.fix != "" {
			fmt.Fprintf(out, "     fix: %s\n", ch.fix)
		}
	}
	fmt.Fprintln(out)
	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	fmt.Fprintln(out, "All checks passed.")
	return nil
}

func doctorChecks(c *config.Config) []checkResult {
	var checks []checkResult

	// 1. Config directory.
	dir := config.Dir()
	if info, err := os.Stat(dir); dir != "" && err == nil && info.IsDir() {
		checks = append(checks, checkResult{label: "config directory", ok: true, detail: dir})
	} else {
		checks = append(checks, checkResult{label: "config directory", ok: false, detail: "missing", fix: "tributeguard init"})
	}

	// 2. Mode.
	checks = append(checks, checkResult{label: "mode", ok: true, detail: c.Mode})

	// 3. Provider credentials.
	checks = append(checks, providerCheck(c))

	// 4. Policy.
	path := c.PolicyFile
	if path == "" {
		path = policy.DefaultPath()
	}
	text, hash, err := policy.LoadFile(path)
	switch {
	case err != nil:
		checks = append(checks, checkResult{label: "policy", ok: false, detail: err.Error(), fix: "tributeguard policy reset"})
	case text == policy.Default():
		checks = append(checks, checkResult{label: "policy", ok: true, detail: "built-in (" + hash[:19] + ")"})
	default:
		checks = append(checks, checkResult{label: "policy", ok: true, detail: fmt.Sprintf("%s (%s, %s)", path, hash[:19], humanize.Bytes(uint64(len(text))))})
	}

	// 5. Audit log chain.
	if c.AuditLog != "" {
		if _, err := os.Stat(c.AuditLog); os.IsNotExist(err) {
			checks = append(checks, checkResult{label: "audit log", ok: true, detail: c.AuditLog + " (not created yet)"})
		} else if r := audit.Verify(c.AuditLog); r.Valid {
			checks = append(checks, checkResult{label: "audit log", ok: true, detail: fmt.Sprintf("%s (%s entries, chain intact)", c.AuditLog, humanize.Comma(int64(r.Lines)))})
		} else {
			checks = append(checks, checkResult{label: "audit log", ok: false, detail: fmt.Sprintf("chain broken at line %d: %s", r.ErrorLine, r.Error)})
		}
	}

	// 6. Review queue directory.
	if c.ReviewDB != "" {
		d := filepath.Dir(c.ReviewDB)
		if _, err := os.Stat(d); err != nil {
			checks = append(checks, checkResult{label: "review queue", ok: false, detail: d + " does not exist", fix: "mkdir -p " + d})
		} else {
			checks = append(checks, checkResult{label: "review queue", ok: true, detail: c.ReviewDB})
		}
	}

	return checks
}

func providerCheck(c *config.Config) checkResult {
	name := c.Provider.Name
	if name == "" {
		name = extract.ProviderOpenAI
	}
	label := "provider " + name
	switch name {
	case extract.ProviderStub:
		return checkResult{label: label, ok: true, detail: "deterministic rules, no model calls"}
	case extract.ProviderBedrock:
		if c.Provider.Region == "" {
			return checkResult{label: label, ok: false, detail: "no region", fix: "set AWS_REGION or provider.region"}
		}
		return checkResult{label: label, ok: true, detail: "region " + c.Provider.Region + ", model " + c.Model}
	default:
		if c.Provider.APIKey == "" {
			return checkResult{label: label, ok: false, detail: "no API key", fix: "set OPENAI_API_KEY or TRIBUTEGUARD_API_KEY"}
		}
		return checkResult{label: label, ok: true, detail: c.Provider.APIURL + ", model " + c.Model}
	}
}
