package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/ppiankov/tributeguard/internal/schema"
)

// Call is one structured-extraction request.
type Call struct {
	Model      string
	System     string // governing instructions (the policy)
	Prompt     string // subject under analysis (the tribute text)
	SchemaName string
	Schema     *jsonschema.Schema
}

// Extractor reads a policy and a text and returns raw JSON that must
// conform to Call.Schema. Implementations should honor ctx cancellation.
type Extractor interface {
	Extract(ctx context.Context, call Call) ([]byte, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, call Call) ([]byte, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, call Call) ([]byte, error) {
	return f(ctx, call)
}

// ErrRefused is returned when a provider declines to produce structured output.
var ErrRefused = errors.New("model refused to produce structured output")

// Provider names accepted by New.
const (
	ProviderOpenAI  = "openai"
	ProviderBedrock = "bedrock"
	ProviderStub    = "stub"
)

// Config selects and configures a provider.
type Config struct {
	Provider string
	APIURL   string
	APIKey   string
	Timeout  time.Duration

	// Bedrock only.
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// NewCall builds the extraction call for a policy and text with the
// flaggedContent output schema.
func NewCall(model, policy, text string) Call {
	return Call{
		Model:      model,
		System:     policy,
		Prompt:     text,
		SchemaName: schema.Name,
		Schema:     schema.Schema(),
	}
}

// New returns the extractor for cfg.Provider. Empty provider means openai.
func New(ctx context.Context, cfg Config) (Extractor, error) {
	switch cfg.Provider {
	case "", ProviderOpenAI:
		return NewOpenAI(OpenAIConfig{
			APIURL:  cfg.APIURL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
		}), nil
	case ProviderBedrock:
		return NewBedrock(ctx, BedrockConfig{
			Region:          cfg.Region,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			SessionToken:    cfg.SessionToken,
		})
	case ProviderStub:
		return NewStub(), nil
	default:
		return nil, fmt.Errorf("unknown extraction provider %q (want openai, bedrock, or stub)", cfg.Provider)
	}
}
