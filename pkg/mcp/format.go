package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/atelier-ai/atelier/pkg/breaker"
	"github.com/atelier-ai/atelier/pkg/models"
)

// formatRouteResult formats a routing decision as readable text.
func formatRouteResult(res models.RouteResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generation Type: %s\n", res.Route.GenerationType)
	fmt.Fprintf(&b, "Model:           %s (%s)\n", res.Route.Model, res.Route.Provider)
	fmt.Fprintf(&b, "Method:          %s (confidence %.2f)\n", res.Route.Method, res.Route.Confidence)
	if res.Route.Reasoning != "" {
		fmt.Fprintf(&b, "Reasoning:       %s\n", res.Route.Reasoning)
	}
	fmt.Fprintf(&b, "Enhanced Prompt: %s\n", res.Route.EnhancedPrompt)
	if len(res.References) > 0 {
		b.WriteString("References:\n")
		for _, ref := range res.References {
			fmt.Fprintf(&b, "  @%s -> %s\n", ref.Tag, ref.ImageURL)
		}
	}
	if len(res.Params) > 0 {
		params, _ := json.Marshal(res.Params)
		fmt.Fprintf(&b, "Params:          %s\n", params)
	}
	fmt.Fprintf(&b, "Cache Hit:       %t\n", res.CacheHit)
	fmt.Fprintf(&b, "Breaker:         %s\n", res.BreakerState)
	return b.String()
}

// formatSummary formats routing summaries as a text table.
func formatSummary(rows []models.RouteSummary) string {
	if len(rows) == 0 {
		return "No routing data found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-10s %-25s %8s %10s %12s\n",
		"User", "Method", "Model", "Requests", "Cache Hits", "Avg Latency")
	b.WriteString(strings.Repeat("-", 90) + "\n")
	for _, r := range rows {
		user := r.UserID
		if len(user) > 20 {
			user = user[:8] + "..." + user[len(user)-8:]
		}
		fmt.Fprintf(&b, "%-20s %-10s %-25s %8d %10d %10dms\n",
			user, r.Method, r.Model, r.RequestCount, r.CacheHits, r.AvgLatencyMs)
	}
	return b.String()
}

// formatSessions formats sessions as a text table.
func formatSessions(sessions []models.Session) string {
	if len(sessions) == 0 {
		return "No sessions found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-24s %-20s %-20s %-20s %8s\n",
		"Session ID", "User", "Started", "Last Activity", "Requests")
	b.WriteString(strings.Repeat("-", 96) + "\n")
	for _, s := range sessions {
		user := s.UserID
		if len(user) > 20 {
			user = user[:8] + "..." + user[len(user)-8:]
		}
		fmt.Fprintf(&b, "%-24s %-20s %-20s %-20s %8d\n",
			s.ID, user,
			s.StartedAt.Format("2006-01-02 15:04:05"),
			s.LastActivity.Format("2006-01-02 15:04:05"),
			s.RequestCount)
	}
	return b.String()
}

// formatBreaker formats a breaker snapshot as text.
func formatBreaker(st breaker.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Circuit Breaker: %s\n", st.Name)
	fmt.Fprintf(&b, "  State:     %s\n", st.State)
	fmt.Fprintf(&b, "  Failures:  %d\n", st.ConsecutiveFailures)
	fmt.Fprintf(&b, "  Successes: %d\n", st.ConsecutiveSuccesses)
	if !st.OpenedAt.IsZero() {
		fmt.Fprintf(&b, "  Opened At: %s\n", st.OpenedAt.Format("2006-01-02 15:04:05"))
	}
	if st.LastError != "" {
		fmt.Fprintf(&b, "  Last Error: %s\n", st.LastError)
	}
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
		"  Counters: %d\n"+
		"  Hits:     %d\n"+
		"  Misses:   %d\n"+
		"  Hit Rate: %.1f%%\n",
		stats.Entries, stats.Counters, stats.Hits, stats.Misses, hitRate)
}

// formatAuditEntries formats audit records as a text table.
func formatAuditEntries(entries []models.RouteRecord) string {
	if len(entries) == 0 {
		return "No audit records found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-20s %-26s %-25s %-10s %8s\n",
		"Time", "User", "Type", "Model", "Method", "Latency")
	b.WriteString(strings.Repeat("-", 114) + "\n")
	for _, e := range entries {
		user := e.UserID
		if len(user) > 20 {
			user = user[:8] + "..." + user[len(user)-8:]
		}
		fmt.Fprintf(&b, "%-20s %-20s %-26s %-25s %-10s %6dms\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			user, e.GenerationType, e.Model, e.Method, e.LatencyMs)
	}
	return b.String()
}
