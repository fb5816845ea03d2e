package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a TailResult as a human-readable text timeline.
func FormatTimeline(result *TailResult) string {
	if len(result.Entries) == 0 {
		return "No audit entries found.\n"
	}

	var b strings.Builder

	fmt.Fprintf(&b, "Audit: %s – %s UTC\n",
		formatDateTime(result.Summary.FirstTimestamp),
		formatDateTime(result.Summary.LastTimestamp))
	b.WriteString(separator + "\n")

	for _, e := range result.Entries {
		fmt.Fprintf(&b, "%-10s %-5s %-9s %3d  %-13s %6dms  %s\n",
			formatTimeOnly(e.Timestamp),
			e.Source,
			strings.ToUpper(e.Verdict),
			e.FlaggedCount,
			shortHash(e.PolicyHash),
			e.DurationMS,
			truncate(e.RequestID, 36))
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))
	return b.String()
}

// FormatJSON renders a TailResult as indented JSON.
func FormatJSON(result *TailResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal audit entries: %w", err)
	}
	return string(data), nil
}

func formatSummary(s Summary) string {
	return fmt.Sprintf("Summary: %d total, %d approved, %d flagged (%d spans)\n",
		s.Total, s.Approved, s.Flagged, s.Spans)
}

func formatDateTime(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

// shortHash turns "sha256:abcdef..." into "abcdef012345".
func shortHash(h string) string {
	h = strings.TrimPrefix(h, "sha256:")
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
