package scenario

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/tributeguard/internal/analyzer"
	"github.com/ppiankov/tributeguard/internal/extract"
)

func stubAnalyzer() *analyzer.Analyzer {
	return analyzer.New(extract.NewStub())
}

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuiltinPassesWithStub(t *testing.T) {
	result := Run(context.Background(), Builtin(), stubAnalyzer())

	if result.Total == 0 {
		t.Fatal("builtin scenario has no cases")
	}
	for _, c := range result.Cases {
		if !c.Passed {
			t.Errorf("case %d %q: expected %s, got %s %q (%s)", c.Index, c.Text, c.Expected, c.Actual, c.Flagged, c.Reason)
		}
	}
}

func TestLoadAndRunAllPass(t *testing.T) {
	path := writeScenario(t, `name: grief
cases:
  - text: "I fucking miss you so much"
    expect: approved
  - text: "Rest in peace you stupid bitch"
    expect: flagged
    flagged: ["stupid bitch"]
  - text: ""
    expect: invalid
`)

	result, err := LoadAndRun(context.Background(), path, stubAnalyzer())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.File != path || result.Name != "grief" {
		t.Errorf("unexpected labels %q %q", result.File, result.Name)
	}
	if result.Total != 3 || result.Passed != 3 || result.Failed != 0 {
		t.Errorf("expected 3/3 passed, got %d/%d (failed %d)", result.Passed, result.Total, result.Failed)
	}
}

func TestRunVerdictMismatch(t *testing.T) {
	s := &Scenario{Name: "wrong", Cases: []Case{
		{Text: "Heaven gained an angel today", Expect: "flagged"},
	}}

	result := Run(context.Background(), s, stubAnalyzer())
	if result.Failed != 1 {
		t.Fatalf("expected 1 failure, got %d", result.Failed)
	}
	if result.Cases[0].Actual != "approved" {
		t.Errorf("expected actual approved, got %q", result.Cases[0].Actual)
	}
}

func TestRunSpanMismatch(t *testing.T) {
	s := &Scenario{Name: "spans", Cases: []Case{
		{Text: "Rest in peace you stupid bitch", Expect: "flagged", Flagged: []string{"bitch"}},
	}}

	result := Run(context.Background(), s, stubAnalyzer())
	if result.Passed != 0 {
		t.Fatal("expected span mismatch to fail")
	}
	if !strings.Contains(result.Cases[0].Reason, "stupid bitch") {
		t.Errorf("reason should show actual spans, got %q", result.Cases[0].Reason)
	}
}

func TestRunScenarioPolicyApplied(t *testing.T) {
	var seen []string
	ex := extract.ExtractorFunc(func(ctx context.Context, call extract.Call) ([]byte, error) {
		seen = append(seen, call.System)
		return []byte(`{"flaggedContent":[]}`), nil
	})

	shared := "scenario policy"
	own := "case policy"
	s := &Scenario{Name: "policies", Policy: &shared, Cases: []Case{
		{Text: "one", Expect: "approved"},
		{Text: "two", Expect: "approved", Policy: &own},
	}}

	Run(context.Background(), s, analyzer.New(ex))
	if len(seen) != 2 || seen[0] != shared || seen[1] != own {
		t.Errorf("unexpected policies %q", seen)
	}
}

func TestRunExtractionErrorContinues(t *testing.T) {
	calls := 0
	ex := extract.ExtractorFunc(func(ctx context.Context, call extract.Call) ([]byte, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("upstream down")
		}
		return []byte(`{"flaggedContent":[]}`), nil
	})
	s := &Scenario{Name: "flaky", Cases: []Case{
		{Text: "first", Expect: "approved"},
		{Text: "second", Expect: "approved"},
	}}

	result := Run(context.Background(), s, analyzer.New(ex))
	if result.Passed != 1 || result.Failed != 1 {
		t.Fatalf("expected 1 pass 1 fail, got %d/%d", result.Passed, result.Failed)
	}
	if result.Cases[0].Actual != "error" || !strings.Contains(result.Cases[0].Reason, "upstream down") {
		t.Errorf("unexpected first case %+v", result.Cases[0])
	}
}

func TestLoadRejectsUnknownExpectation(t *testing.T) {
	path := writeScenario(t, `name: bad
cases:
  - text: "hello"
    expect: maybe
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "maybe") {
		t.Fatalf("expected expectation error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadAndRun(context.Background(), "/nonexistent/scenario.yaml", stubAnalyzer()); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeScenario(t, "name: [unclosed\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected YAML error")
	}
}

func TestFormatTextPassAndFail(t *testing.T) {
	results := []*RunResult{
		{Name: "ok", Total: 2, Passed: 2},
		{Name: "broken", Total: 2, Passed: 1, Failed: 1, Cases: []CaseResult{
			{Index: 1, Passed: true},
			{Index: 2, Text: "Heaven gained an angel today", Expected: "flagged", Actual: "approved"},
		}},
	}

	out := FormatText(results, false)
	for _, want := range []string{
		"Checking 2 scenario files",
		"PASS  ok (2/2)",
		"FAIL  broken (1/2)",
		"case 2:",
		"expected flagged, got approved",
		"3 of 4 cases passed. 1 of 2 scenarios failed.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Error("expected no color codes when color is off")
	}
}

func TestFormatTextColor(t *testing.T) {
	out := FormatText([]*RunResult{{Name: "ok", Total: 1, Passed: 1}}, true)
	if !strings.Contains(out, green+"PASS"+reset) {
		t.Errorf("expected colored PASS, got %q", out)
	}
}

func TestFormatJSON(t *testing.T) {
	out, err := FormatJSON([]*RunResult{{Name: "ok", Total: 1, Passed: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"name": "ok"`) || !strings.Contains(out, `"passed": 1`) {
		t.Errorf("unexpected JSON %s", out)
	}
}

func TestUseColorHonorsNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	if UseColor(os.Stdout) {
		t.Error("NO_COLOR must disable color")
	}
}
