package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// VerifyResult reports whether a verdict log's chain is intact. Lines
// counts the entries that checked out; ErrorLine is the 1-based line of
// the first bad one.
type VerifyResult struct {
	Valid     bool   `json:"valid"`
	Lines     int    `json:"lines"`
	Error     string `json:"error,omitempty"`
	ErrorLine int    `json:"error_line,omitempty"`
}

// Verify recomputes the chain of the log at path and stops at the first
// line that is not an Entry or does not point at its predecessor. An empty
// log is valid.
func Verify(path string) VerifyResult {
	f, err := os.Open(path)
	if err != nil {
		return VerifyResult{Error: err.Error()}
	}
	defer f.Close()

	want := GenesisHash
	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		n++
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return broken(n, "not a verdict entry: %v", err)
		}
		if e.PrevHash != want {
			if n == 1 {
				return broken(n, "chain does not start at genesis (prev_hash %s)", e.PrevHash)
			}
			return broken(n, "prev_hash %s does not match previous entry %s", e.PrevHash, want)
		}
		want = HashLine(sc.Bytes())
	}
	if err := sc.Err(); err != nil {
		return VerifyResult{Lines: n, Error: err.Error()}
	}
	return VerifyResult{Valid: true, Lines: n}
}

func broken(line int, format string, args ...any) VerifyResult {
	return VerifyResult{Lines: line - 1, Error: fmt.Sprintf(format, args...), ErrorLine: line}
}
