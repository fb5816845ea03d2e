package scenario

// Expectations accepted in Case.Expect.
const (
	ExpectApproved = "approved"
	ExpectFlagged  = "flagged"
	ExpectInvalid  = "invalid"
)

// Case is one tribute under test.
type Case struct {
	Text    string   `yaml:"text"`
	Policy  *string  `yaml:"policy,omitempty"`
	Expect  string   `yaml:"expect"`
	Flagged []string `yaml:"flagged,omitempty"` // exact spans, in order; optional
}

// Scenario is a named collection of moderation test cases. Policy, when
// set, replaces the default for every case that has none of its own.
type Scenario struct {
	Name   string  `yaml:"name"`
	Policy *string `yaml:"policy,omitempty"`
	Cases  []Case  `yaml:"cases"`
}

// CaseResult is the outcome of evaluating one test case.
type CaseResult struct {
	Index    int      `json:"index"`
	Passed   bool     `json:"passed"`
	Text     string   `json:"text"`
	Expected string   `json:"expected"`
	Actual   string   `json:"actual"`
	Flagged  []string `json:"flagged"`
	Reason   string   `json:"reason,omitempty"`
}

// RunResult is the outcome of running all cases in one scenario file.
type RunResult struct {
	File   string       `json:"file"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}
