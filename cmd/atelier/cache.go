package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	cachepkg "github.com/atelier-ai/atelier/pkg/cache/sqlite"
	"github.com/atelier-ai/atelier/pkg/config"
)

func newCacheCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the result cache",
	}

	openCache := func() (*cachepkg.Cache, func(), error) {
		cfg := config.Default()
		if configPath != "" {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return nil, nil, err
			}
		}
		c, err := cachepkg.New(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return c, func() { _ = c.Close() }, nil
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cleanup, err := openCache()
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := c.Stats(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Entries:  %d\nCounters: %d\nHits:     %d\nMisses:   %d\n",
				stats.Entries, stats.Counters, stats.Hits, stats.Misses)
			return nil
		},
	}

	var expiredOnly bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cleanup, err := openCache()
			if err != nil {
				return err
			}
			defer cleanup()

			if err := c.Clear(expiredOnly); err != nil {
				return err
			}
			if expiredOnly {
				fmt.Println("Expired cache entries cleared.")
			} else {
				fmt.Println("All cache entries cleared.")
			}
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&expiredOnly, "expired", false, "only clear expired entries")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}
