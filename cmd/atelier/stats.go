package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/atelier-ai/atelier/pkg/config"
	"github.com/atelier-ai/atelier/pkg/tracker"
)

func newStatsCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		sessions   bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show routing decision statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				var err error
				cfg, err = config.Load(configPath)
				if err != nil {
					return err
				}
			}

			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer tr.Close()

			ctx := context.Background()

			// Session list view
			if sessions {
				sess, err := tr.ListSessions(ctx, userID)
				if err != nil {
					return err
				}
				if len(sess) == 0 {
					fmt.Println("No sessions found.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "SESSION ID\tUSER\tSTARTED\tLAST ACTIVITY\tREQUESTS")
				for _, s := range sess {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
						s.ID, s.UserID, s.StartedAt.Format("2006-01-02T15:04:05"), s.LastActivity.Format("2006-01-02T15:04:05"), s.RequestCount)
				}
				return w.Flush()
			}

			// Default: routing summary
			summaries, err := tr.Summary(ctx, userID)
			if err != nil {
				return err
			}

			if len(summaries) == 0 {
				fmt.Println("No routing data found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "USER\tMETHOD\tMODEL\tREQUESTS\tCACHE HITS\tAVG LATENCY")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%dms\n",
					s.UserID, s.Method, s.Model, s.RequestCount, s.CacheHits, s.AvgLatencyMs)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&userID, "user", "", "filter by user")
	cmd.Flags().BoolVar(&sessions, "sessions", false, "list sessions")
	return cmd
}
