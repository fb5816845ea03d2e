package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Filter selects entries for Tail. Zero values match everything.
type Filter struct {
	Verdict string
	Source  string
	From    time.Time
	To      time.Time
	Limit   int // keep only the newest Limit entries
}

// Summary holds verdict counts for a set of entries.
type Summary struct {
	Total          int    `json:"total"`
	Approved       int    `json:"approved"`
	Flagged        int    `json:"flagged"`
	Spans          int    `json:"spans"`
	FirstTimestamp string `json:"first_timestamp"`
	LastTimestamp  string `json:"last_timestamp"`
}

// TailResult holds filtered entries and their summary.
type TailResult struct {
	Entries []Entry `json:"entries"`
	Summary Summary `json:"summary"`
}

// Tail reads the audit log and returns entries matching the filter, oldest
// first. Malformed lines are skipped.
func Tail(path string, filter Filter) (*TailResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if filter.Verdict != "" && entry.Verdict != filter.Verdict {
			continue
		}
		if filter.Source != "" && entry.Source != filter.Source {
			continue
		}

		if !filter.From.IsZero() || !filter.To.IsZero() {
			ts, err := time.Parse(TimestampFormat, entry.Timestamp)
			if err != nil {
				continue
			}
			if !filter.From.IsZero() && ts.Before(filter.From) {
				continue
			}
			if !filter.To.IsZero() && ts.After(filter.To) {
				continue
			}
		}

		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[len(entries)-filter.Limit:]
	}

	result := &TailResult{Entries: entries}
	for _, e := range entries {
		updateSummary(&result.Summary, e)
	}
	return result, nil
}

func updateSummary(s *Summary, e Entry) {
	s.Total++
	switch e.Verdict {
	case "approved":
		s.Approved++
	case "flagged":
		s.Flagged++
	}
	s.Spans += e.FlaggedCount

	if s.FirstTimestamp == "" {
		s.FirstTimestamp = e.Timestamp
	}
	s.LastTimestamp = e.Timestamp
}
