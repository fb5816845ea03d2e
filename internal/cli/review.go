package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ppiankov/tributeguard/internal/review"
)

var (
	reviewStatus string
	reviewLimit  int
	reviewJSON   bool
)

func init() {
	rootCmd.AddCommand(reviewCmd)
	reviewCmd.AddCommand(reviewListCmd, reviewShowCmd, reviewApproveCmd, reviewRejectCmd)
	reviewListCmd.Flags().StringVar(&reviewStatus, "status", review.StatusPending, "Filter by status (pending|approved|rejected|all)")
	reviewListCmd.Flags().IntVarP(&reviewLimit, "limit", "n", 50, "Maximum number of items")
	reviewListCmd.Flags().BoolVar(&reviewJSON, "json", false, "Print items as JSON")
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Moderate flagged tributes in the review queue",
	Long:  "The review queue holds every flagged tribute seen by `serve --review-db`.\nModerators approve (publish anyway) or reject (keep hidden) each item.",
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued tributes, newest first",
	Args:  cobra.NoArgs,
	RunE:  runReviewList,
}

var reviewShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one queued tribute",
	Args:  cobra.ExactArgs(1),
	RunE:  runReviewShow,
}

var reviewApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Mark a flagged tribute as approved by a moderator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resolveItem(cmd, args[0], review.StatusApproved)
	},
}

var reviewRejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Mark a flagged tribute as rejected by a moderator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resolveItem(cmd, args[0], review.StatusRejected)
	},
}

func openReviewStore() (*review.Store, error) {
	path := currentConfig().ReviewDB
	if path == "" {
		path = review.DefaultPath()
	}
	return review.Open(path)
}

func runReviewList(cmd *cobra.Command, args []string) error {
	store, err := openReviewStore()
	if err != nil {
		return err
	}
	defer store.Close()

	status := reviewStatus
	if status == "all" {
		status = ""
	}
	items, err := store.List(cmd.Context(), review.ListOptions{Status: status, Limit: reviewLimit})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if reviewJSON {
		data, err := json.MarshalIndent(items, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	if len(items) == 0 {
		fmt.Fprintln(out, "Review queue is empty.")
		return nil
	}
	for _, it := range items {
		fmt.Fprintf(out, "#%-5d %-9s %-16s %s\n", it.ID, it.Status, humanize.Time(it.CreatedAt), truncateText(it.Text, 60))
		fmt.Fprintf(out, "       flagged: %s\n", quoteSpans(it.Spans))
	}
	return nil
}

func runReviewShow(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	store, err := openReviewStore()
	if err != nil {
		return err
	}
	defer store.Close()

	it, err := store.Get(cmd.Context(), id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:       %d\n", it.ID)
	fmt.Fprintf(out, "Status:   %s\n", it.Status)
	fmt.Fprintf(out, "Received: %s (%s)\n", it.CreatedAt.Format("2006-01-02 15:04:05 UTC"), humanize.Time(it.CreatedAt))
	if it.RequestID != "" {
		fmt.Fprintf(out, "Request:  %s\n", it.RequestID)
	}
	fmt.Fprintf(out, "Model:    %s\n", it.Model)
	fmt.Fprintf(out, "Policy:   %s\n", it.PolicyHash)
	fmt.Fprintf(out, "Flagged:  %s\n\n", quoteSpans(it.Spans))
	fmt.Fprintln(out, it.Text)
	return nil
}

func resolveItem(cmd *cobra.Command, arg, status string) error {
	id, err := parseID(arg)
	if err != nil {
		return err
	}
	store, err := openReviewStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Resolve(cmd.Context(), id, status); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "#%d %s\n", id, status)
	return nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid item id %q", s)
	}
	return id, nil
}

func quoteSpans(spans []string) string {
	q := make([]string, len(spans))
	for i, s := range spans {
		q[i] = strconv.Quote(s)
	}
	return strings.Join(q, ", ")
}

func truncateText(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
