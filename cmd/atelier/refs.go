package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/atelier-ai/atelier/pkg/config"
	"github.com/atelier-ai/atelier/pkg/refs"
)

func newRefsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "refs",
		Short: "Manage named reference images (@tags)",
	}

	openStore := func() (*refs.SQLiteStore, func(), error) {
		cfg := config.Default()
		if configPath != "" {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return nil, nil, err
			}
		}
		store, err := refs.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}

	var userID string

	addCmd := &cobra.Command{
		Use:   "add [tag] [image-url]",
		Short: "Register a named reference for a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := openStore()
			if err != nil {
				return err
			}
			defer cleanup()

			if err := store.Save(context.Background(), userID, args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Registered @%s for user %q.\n", args[0], userID)
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List named references for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := openStore()
			if err != nil {
				return err
			}
			defer cleanup()

			entries, err := store.List(context.Background(), userID)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No references found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TAG\tIMAGE URL")
			for _, e := range entries {
				fmt.Fprintf(w, "@%s\t%s\n", e.Tag, e.ImageURL)
			}
			return w.Flush()
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm [tag]",
		Short: "Remove a named reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := openStore()
			if err != nil {
				return err
			}
			defer cleanup()

			if err := store.Delete(context.Background(), userID, args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed @%s.\n", args[0])
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.PersistentFlags().StringVar(&userID, "user", "", "user the references belong to")
	cmd.AddCommand(addCmd, listCmd, rmCmd)
	return cmd
}
