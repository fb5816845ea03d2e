package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/tributeguard/internal/analyzer"
	"github.com/ppiankov/tributeguard/internal/extract"
)

// Operating modes. Production hides failure details from callers.
const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

// ErrInvalidConfig is returned for values that fail validation.
var ErrInvalidConfig = errors.New("invalid config")

// Provider selects and configures the extraction capability.
type Provider struct {
	Name            string `yaml:"name"`
	APIURL          string `yaml:"api_url"`
	APIKey          string `yaml:"api_key"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

// Server holds listener settings.
type Server struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`
}

// Config holds all tributeguard settings.
type Config struct {
	Mode       string        `yaml:"mode"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"`
	PolicyFile string        `yaml:"policy_file"`
	AuditLog   string        `yaml:"audit_log"`
	ReviewDB   string        `yaml:"review_db"`
	Provider   Provider      `yaml:"provider"`
	Server     Server        `yaml:"server"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Mode:    ModeProduction,
		Model:   analyzer.DefaultModel,
		Timeout: analyzer.DefaultTimeout,
		Provider: Provider{
			Name:   extract.ProviderOpenAI,
			APIURL: extract.DefaultOpenAIURL,
		},
		Server: Server{
			HTTPAddr: "127.0.0.1:8080",
			GRPCAddr: "127.0.0.1:9090",
		},
	}
}

// Dir returns ~/.tributeguard, or "" when the home directory is unknown.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".tributeguard")
}

// DefaultPath returns ~/.tributeguard/config.yaml.
func DefaultPath() string {
	dir := Dir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. Empty path falls back to DefaultPath.
// A missing file yields defaults; invalid YAML is an error.
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			// YAML overwrites only specified fields
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("TRIBUTEGUARD_MODE"); v != "" {
		c.Mode = v
	}
	if v := getenv("TRIBUTEGUARD_MODEL"); v != "" {
		c.Model = v
	}
	if v := getenv("TRIBUTEGUARD_TIMEOUT"); v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return fmt.Errorf("%w: TRIBUTEGUARD_TIMEOUT: %v", ErrInvalidConfig, err)
		}
		c.Timeout = d
	}
	if v := getenv("TRIBUTEGUARD_PROVIDER"); v != "" {
		c.Provider.Name = v
	}
	if v := getenv("TRIBUTEGUARD_API_URL"); v != "" {
		c.Provider.APIURL = v
	}
	if v := getenv("TRIBUTEGUARD_POLICY_FILE"); v != "" {
		c.PolicyFile = v
	}
	if v := getenv("TRIBUTEGUARD_AUDIT_LOG"); v != "" {
		c.AuditLog = v
	}
	if v := getenv("TRIBUTEGUARD_REVIEW_DB"); v != "" {
		c.ReviewDB = v
	}
	if v := getenv("TRIBUTEGUARD_HTTP_ADDR"); v != "" {
		c.Server.HTTPAddr = v
	}
	if v := getenv("TRIBUTEGUARD_GRPC_ADDR"); v != "" {
		c.Server.GRPCAddr = v
	}

	c.Provider.APIKey = firstNonEmpty(getenv("TRIBUTEGUARD_API_KEY"), getenv("OPENAI_API_KEY"), c.Provider.APIKey)
	c.Provider.Region = firstNonEmpty(getenv("AWS_REGION"), c.Provider.Region)

	// Failure details need an explicit development mode.
	if getenv("TRIBUTEGUARD_MODE") == "" {
		switch v := getenv("NODE_ENV"); v {
		case ModeDevelopment, ModeProduction:
			c.Mode = v
		}
	}
	return nil
}

// parseTimeout accepts a Go duration or a bare number of seconds.
func parseTimeout(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// Validate checks mode, provider and timeout.
func (c *Config) Validate() error {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	switch c.Mode {
	case ModeDevelopment, ModeProduction:
	default:
		return fmt.Errorf("%w: mode %q (want %s or %s)", ErrInvalidConfig, c.Mode, ModeDevelopment, ModeProduction)
	}
	switch c.Provider.Name {
	case "", extract.ProviderOpenAI, extract.ProviderBedrock, extract.ProviderStub:
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, c.Provider.Name)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// Production reports whether failure details must be hidden.
func (c *Config) Production() bool {
	return c.Mode == ModeProduction
}

// Extract returns the provider settings for extract.New.
func (c *Config) Extract() extract.Config {
	return extract.Config{
		Provider:        c.Provider.Name,
		APIURL:          c.Provider.APIURL,
		APIKey:          c.Provider.APIKey,
		Timeout:         c.Timeout,
		Region:          c.Provider.Region,
		AccessKeyID:     c.Provider.AccessKeyID,
		SecretAccessKey: c.Provider.SecretAccessKey,
		SessionToken:    c.Provider.SessionToken,
	}
}

// DefaultYAML renders the default config for `tributeguard init`.
func DefaultYAML() (string, error) {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", err
	}
	return "# tributeguard configuration\n# Environment variables TRIBUTEGUARD_* override these values.\n\n" + string(data), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
