package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/atelier-ai/atelier/pkg/audit"
	"github.com/atelier-ai/atelier/pkg/config"
	"github.com/atelier-ai/atelier/pkg/models"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query and manage the routing audit log",
	}

	cmd.AddCommand(
		newAuditSearchCmd(),
		newAuditShowCmd(),
		newAuditStatsCmd(),
		newAuditCleanupCmd(),
	)
	return cmd
}

func newAuditSearchCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		model      string
		method     string
		since      string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search routing audit records",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := models.AuditQueryOpts{
				UserID: userID,
				Model:  model,
				Method: models.RouteMethod(method),
				Limit:  limit,
			}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				opts.Since = t
			}

			entries, err := l.Query(context.Background(), opts)
			if err != nil {
				return err
			}
			fmt.Print(formatAuditRecords(entries))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&userID, "user", "", "filter by user")
	cmd.Flags().StringVar(&model, "model", "", "filter by downstream model")
	cmd.Flags().StringVar(&method, "method", "", "filter by routing method (LLM, RULE, CORRECTED)")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max records to return")

	return cmd
}

func newAuditShowCmd() *cobra.Command {
	var (
		configPath string
		requestID  string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a single audit record by request ID",
		RunE: func(cmd *cobra.Command, args []string) error {
			if requestID == "" {
				return fmt.Errorf("--request-id is required")
			}

			l, cleanup, err := openAuditLogger(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			entries, err := l.Query(context.Background(), models.AuditQueryOpts{
				RequestID: requestID,
				Limit:     1,
			})
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No record found for that request ID.")
				return nil
			}

			e := entries[0]
			fmt.Printf("Request ID:      %s\n", e.RequestID)
			fmt.Printf("User:            %s\n", e.UserID)
			fmt.Printf("Session:         %s\n", e.SessionID)
			fmt.Printf("Generation Type: %s\n", e.GenerationType)
			fmt.Printf("Model:           %s (%s)\n", e.Model, e.Provider)
			fmt.Printf("Method:          %s\n", e.Method)
			fmt.Printf("Cache Hit:       %t\n", e.CacheHit)
			fmt.Printf("Breaker:         %s\n", e.BreakerState)
			fmt.Printf("Latency:         %dms\n", e.LatencyMs)
			fmt.Printf("Time:            %s\n", e.CreatedAt.Format(time.RFC3339))
			if e.Reasoning != "" {
				fmt.Printf("Reasoning:       %s\n", e.Reasoning)
			}
			if e.Prompt != "" {
				fmt.Printf("\n--- Prompt ---\n%s\n", e.Prompt)
			}
			if e.EnhancedPrompt != "" {
				fmt.Printf("\n--- Enhanced Prompt ---\n%s\n", e.EnhancedPrompt)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&requestID, "request-id", "", "request ID to show")

	return cmd
}

func newAuditStatsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show audit log statistics by routing method and day",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := l.Stats(context.Background())
			if err != nil {
				return err
			}
			fmt.Print(formatAuditStats(stats))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func newAuditCleanupCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete audit records older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			deleted, err := l.Cleanup(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d audit records.\n", deleted)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func openAuditLogger(configPath string) (*audit.Logger, func(), error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, nil, err
		}
	}

	l, err := audit.New(cfg.DBPath, cfg.Audit)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit db: %w", err)
	}
	return l, func() { _ = l.Close() }, nil
}

func formatAuditRecords(entries []models.RouteRecord) string {
	if len(entries) == 0 {
		return "No audit records found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-38s %-15s %-26s %-20s %-10s %8s %-20s\n",
		"REQUEST ID", "USER", "TYPE", "MODEL", "METHOD", "LATENCY", "TIME")
	b.WriteString(strings.Repeat("-", 142) + "\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%-38s %-15s %-26s %-20s %-10s %6dms %-20s\n",
			e.RequestID, e.UserID, e.GenerationType, e.Model, e.Method,
			e.LatencyMs,
			e.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

func formatAuditStats(stats []models.AuditStat) string {
	if len(stats) == 0 {
		return "No audit stats found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %-12s %8s\n", "METHOD", "DAY", "COUNT")
	b.WriteString(strings.Repeat("-", 34) + "\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-12s %-12s %8d\n", s.Method, s.Day, s.Count)
	}
	return b.String()
}
