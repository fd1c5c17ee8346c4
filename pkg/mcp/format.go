package mcp

import (
	"fmt"
	"strings"

	"github.com/pario-ai/quotaguard/pkg/models"
)

const timeLayout = "2006-01-02 15:04:05"

// formatUsage formats the budget as text.
func formatUsage(s models.UsageStats) string {
	var b strings.Builder
	b.WriteString("Provider Quota\n")
	fmt.Fprintf(&b, "  Limit:     %d\n", s.Limit)
	fmt.Fprintf(&b, "  Used:      %d\n", s.Used)
	fmt.Fprintf(&b, "  Remaining: %d\n", s.Remaining)
	fmt.Fprintf(&b, "  Usage:     %.1f%%\n", s.PercentUsed)
	fmt.Fprintf(&b, "  Resets:    %s UTC\n", s.ResetAt.UTC().Format(timeLayout))
	if s.AdminOverride {
		b.WriteString("  Override:  ON (limits are not enforced)\n")
	}
	if s.Degraded {
		b.WriteString("  Warning:   budget store unavailable, figures are from memory\n")
	}
	return b.String()
}

// formatLedger formats ledger entries as a text table.
func formatLedger(entries []models.LedgerEntry) string {
	if len(entries) == 0 {
		return "No metered calls found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-24s %-10s %5s %6s %10s\n",
		"Time", "Endpoint", "Category", "Cost", "Used", "Remaining")
	b.WriteString(strings.Repeat("-", 80) + "\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%-20s %-24s %-10s %5d %6d %10d\n",
			e.CreatedAt.UTC().Format(timeLayout), truncate(e.Endpoint, 24), e.Category,
			e.Cost, e.TotalUsageAfter, e.RemainingAfter)
	}
	return b.String()
}

// formatLedgerSummary formats grouped ledger rows as a text table.
func formatLedgerSummary(rows []models.LedgerSummary) string {
	if len(rows) == 0 {
		return "No metered calls found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-24s %-10s %8s %8s\n", "Endpoint", "Category", "Calls", "Cost")
	b.WriteString(strings.Repeat("-", 53) + "\n")
	var calls, cost int
	for _, r := range rows {
		fmt.Fprintf(&b, "%-24s %-10s %8d %8d\n", truncate(r.Endpoint, 24), r.Category, r.Calls, r.Cost)
		calls += r.Calls
		cost += r.Cost
	}
	b.WriteString(strings.Repeat("-", 53) + "\n")
	fmt.Fprintf(&b, "%-24s %-10s %8d %8d\n", "Total", "", calls, cost)
	return b.String()
}

// formatCacheStats formats cache stats as text.
func formatCacheStats(stats models.CacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	return fmt.Sprintf("Cache Statistics\n"+
		"  Entries:  %d\n"+
		"  Hits:     %d\n"+
		"  Misses:   %d\n"+
		"  Hit Rate: %.1f%%\n",
		stats.Entries, stats.Hits, stats.Misses, hitRate)
}

// formatAdminActions formats admin actions as a text table.
func formatAdminActions(actions []models.AdminAction) string {
	if len(actions) == 0 {
		return "No admin actions found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-16s %-16s %8s %8s\n", "Time", "Action", "Actor", "Before", "After")
	b.WriteString(strings.Repeat("-", 72) + "\n")
	for _, a := range actions {
		fmt.Fprintf(&b, "%-20s %-16s %-16s %8s %8s\n",
			a.CreatedAt.UTC().Format(timeLayout), a.Action, truncate(a.ActorID, 16), a.Before, a.After)
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
