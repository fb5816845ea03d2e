package audit

import (
	"crypto/sha256"
	"encoding/hex"
)

// Entry is one verdict line in the hash-chained JSONL audit log.
// It carries hashes and counts only; tribute text and flagged spans are
// never written. Fields are fixed struct members so json.Marshal output is
// stable for hashing.
type Entry struct {
	Timestamp    string `json:"ts"`
	RequestID    string `json:"request_id"`
	Source       string `json:"source"`
	Verdict      string `json:"verdict"`
	FlaggedCount int    `json:"flagged_count"`
	TextHash     string `json:"text_hash"`
	PolicyHash   string `json:"policy_hash"`
	Model        string `json:"model"`
	DurationMS   int64  `json:"duration_ms"`
	PrevHash     string `json:"prev_hash"`
}

// HashText returns "sha256:<hex>" of a tribute's text.
func HashText(text string) string {
	h := sha256.Sum256([]byte(text))
	return "sha256:" + hex.EncodeToString(h[:])
}
