package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tributeguard/internal/client"
	"github.com/ppiankov/tributeguard/internal/policy"
)

var (
	policyRemote   string
	policyHashOnly bool
	policyForce    bool
)

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyShowCmd, policyInitCmd, policyResetCmd)
	policyShowCmd.Flags().StringVar(&policyRemote, "remote", "", "Show the policy of a running server (gRPC address)")
	policyShowCmd.Flags().BoolVar(&policyHashOnly, "hash", false, "Print only the policy hash")
	policyInitCmd.Flags().BoolVar(&policyForce, "force", false, "Overwrite an existing policy file")
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and manage the moderation policy",
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the policy used when a request supplies none",
	RunE:  runPolicyShow,
}

var policyInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the built-in policy to policy.yaml for editing",
	RunE:  runPolicyInit,
}

var policyResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore policy.yaml to the built-in policy",
	Long:  "Overwrites the operator policy file with the built-in policy. A running\nserver picks up the change through hot-reload.",
	RunE:  runPolicyReset,
}

func runPolicyShow(cmd *cobra.Command, args []string) error {
	var text, hash, source string
	if policyRemote != "" {
		c, err := client.New(policyRemote)
		if err != nil {
			return err
		}
		defer c.Close()
		text, hash, err = c.DefaultPolicy(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to fetch policy from %s: %w", policyRemote, err)
		}
		source = policyRemote
	} else {
		path := policyFilePath()
		var err error
		text, hash, err = policy.LoadFile(path)
		if err != nil {
			return err
		}
		source = path
		if text == policy.Default() {
			source = "built-in"
		}
	}

	out := cmd.OutOrStdout()
	if policyHashOnly {
		fmt.Fprintln(out, hash)
		return nil
	}
	fmt.Fprintf(os.Stderr, "# source: %s\n# hash: %s\n\n", source, hash)
	fmt.Fprint(out, text)
	return nil
}

func runPolicyInit(cmd *cobra.Command, args []string) error {
	path := policyFilePath()
	if !policyForce {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("policy file already exists at %s (use --force to overwrite)", path)
		}
	}
	if err := writeDefaultPolicy(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
	return nil
}

func runPolicyReset(cmd *cobra.Command, args []string) error {
	path := policyFilePath()
	if err := writeDefaultPolicy(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Reset %s to the built-in policy (%s)\n", path, policy.Hash(policy.Default()))
	return nil
}

// policyFilePath is the configured operator policy file or
// ~/.tributeguard/policy.yaml.
func policyFilePath() string {
	if p := currentConfig().PolicyFile; p != "" {
		return p
	}
	return policy.DefaultPath()
}

func writeDefaultPolicy(path string) error {
	if path == "" {
		return fmt.Errorf("cannot determine policy path: set policy_file in config")
	}
	content, err := policy.DefaultFileYAML()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write policy file: %w", err)
	}
	return nil
}
