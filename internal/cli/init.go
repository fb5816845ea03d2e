package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tributeguard/internal/config"
	"github.com/ppiankov/tributeguard/internal/policy"
)

var initForce bool

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config files")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap tributeguard configuration",
	Long: `Creates ~/.tributeguard/ with config.yaml and policy.yaml.

config.yaml selects the provider, model, mode and listen addresses.
policy.yaml holds the moderation instructions sent to the model.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	configDir := config.Dir()
	if configDir == "" {
		return fmt.Errorf("cannot determine home directory")
	}

	var created []string

	configContent, err := config.DefaultYAML()
	if err != nil {
		return fmt.Errorf("generate default config: %w", err)
	}
	configFile := filepath.Join(configDir, "config.yaml")
	if wrote, err := writeIfMissing(configFile, configContent); err != nil {
		return err
	} else if wrote {
		created = append(created, configFile)
	}

	policyContent, err := policy.DefaultFileYAML()
	if err != nil {
		return err
	}
	policyFile := filepath.Join(configDir, "policy.yaml")
	if wrote, err := writeIfMissing(policyFile, policyContent); err != nil {
		return err
	} else if wrote {
		created = append(created, policyFile)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "tributeguard init complete.")
	fmt.Fprintln(out)
	if len(created) > 0 {
		fmt.Fprintln(out, "Created:")
		for _, path := range created {
			fmt.Fprintf(out, "  %s\n", path)
		}
	} else {
		fmt.Fprintln(out, "All files already exist (use --force to overwrite).")
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Verify:")
	fmt.Fprintln(out, "  tributeguard doctor")
	fmt.Fprintln(out, "  tributeguard check")
	return nil
}

// writeIfMissing writes content to path if it doesn't exist or --force is set.
// Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	// config.yaml may hold an API key.
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
