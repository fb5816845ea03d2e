package mcp

import (
	"context"
	"errors"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/tributeguard/internal/analyzer"
)

// AnalyzeInput defines parameters for the tributeguard_analyze tool.
type AnalyzeInput struct {
	Text   string  `json:"text" jsonschema:"tribute text to check"`
	Policy *string `json:"policy,omitempty" jsonschema:"moderation policy replacing the default for this call"`
}

// AnalyzeOutput is the verdict.
type AnalyzeOutput struct {
	FlaggedContent []string `json:"flaggedContent" jsonschema:"exact offending phrases, empty when approved"`
	Verdict        string   `json:"verdict" jsonschema:"approved or flagged"`
}

// PolicyInput is empty; the tool takes no parameters.
type PolicyInput struct{}

// PolicyOutput contains the default policy.
type PolicyOutput struct {
	Policy string `json:"policy"`
	Hash   string `json:"hash"`
}

// handleAnalyze runs one analysis. Failures are returned as errors, which
// the SDK reports as tool errors; they never produce an approval.
func (s *Server) handleAnalyze(ctx context.Context, req *mcpsdk.CallToolRequest, input AnalyzeInput) (*mcpsdk.CallToolResult, AnalyzeOutput, error) {
	ctx = analyzer.ContextWithSource(ctx, "mcp")
	result, err := s.analyzer.Analyze(ctx, analyzer.Request{Text: input.Text, Policy: input.Policy})
	if err != nil {
		if errors.Is(err, analyzer.ErrInvalidInput) {
			return nil, AnalyzeOutput{}, fmt.Errorf("invalid input: %s", analyzer.UserMessage(err))
		}
		return nil, AnalyzeOutput{}, fmt.Errorf("failed to analyze content: %w", err)
	}

	return nil, AnalyzeOutput{
		FlaggedContent: result.FlaggedContent,
		Verdict:        result.Verdict(),
	}, nil
}

func (s *Server) handleDefaultPolicy(ctx context.Context, req *mcpsdk.CallToolRequest, input PolicyInput) (*mcpsdk.CallToolResult, PolicyOutput, error) {
	return nil, PolicyOutput{Policy: s.policy, Hash: s.policyHash}, nil
}
