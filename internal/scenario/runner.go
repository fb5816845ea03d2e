package scenario

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/tributeguard/internal/analyzer"
)

//go:embed builtin.yaml
var builtinYAML []byte

// BuiltinName is the file label of the embedded scenario.
const BuiltinName = "builtin:policy-examples"

// Analyzer is the subset of analyzer.Analyzer used by Run. It is also
// satisfied by the gRPC client.
type Analyzer interface {
	Analyze(ctx context.Context, req analyzer.Request) (analyzer.Result, error)
}

// Run evaluates every case in order. Cases are independent; an extraction
// failure fails the case and the run continues.
func Run(ctx context.Context, s *Scenario, a Analyzer) *RunResult {
	result := &RunResult{
		Name:  s.Name,
		Total: len(s.Cases),
	}

	for i, c := range s.Cases {
		req := analyzer.Request{Text: c.Text, Policy: c.Policy}
		if req.Policy == nil {
			req.Policy = s.Policy
		}

		cr := CaseResult{
			Index:    i + 1,
			Text:     c.Text,
			Expected: strings.ToLower(c.Expect),
		}

		res, err := a.Analyze(ctx, req)
		switch {
		case errors.Is(err, analyzer.ErrInvalidInput):
			cr.Actual = ExpectInvalid
		case err != nil:
			cr.Actual = "error"
			cr.Reason = err.Error()
		default:
			cr.Actual = res.Verdict()
			cr.Flagged = res.FlaggedContent
		}

		cr.Passed = cr.Actual == cr.Expected
		if cr.Passed && c.Flagged != nil && !equalSpans(c.Flagged, cr.Flagged) {
			cr.Passed = false
			cr.Reason = fmt.Sprintf("expected spans %q, got %q", c.Flagged, cr.Flagged)
		}

		if cr.Passed {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Cases = append(result.Cases, cr)
	}

	return result
}

// Load parses a scenario file and checks its expectations.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	s, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	return s, nil
}

// Builtin returns the embedded scenario holding the default policy's
// worked examples.
func Builtin() *Scenario {
	s, err := parse(builtinYAML)
	if err != nil {
		panic("scenario: invalid builtin.yaml: " + err.Error())
	}
	return s
}

// LoadAndRun loads a scenario file and runs it.
func LoadAndRun(ctx context.Context, path string, a Analyzer) (*RunResult, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	result := Run(ctx, s, a)
	result.File = path
	return result, nil
}

func parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	for i, c := range s.Cases {
		switch strings.ToLower(c.Expect) {
		case ExpectApproved, ExpectFlagged, ExpectInvalid:
		default:
			return nil, fmt.Errorf("case %d: expect must be approved, flagged, or invalid, got %q", i+1, c.Expect)
		}
	}
	return &s, nil
}

func equalSpans(want, got []string) bool {
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if want[i] != got[i] {
			return false
		}
	}
	return true
}
