package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "atelier",
		Short:   "Atelier is a resilient classification and routing engine for creative generation",
		Version: version,
	}

	root.AddCommand(
		newServeCmd(),
		newRouteCmd(),
		newStatsCmd(),
		newRefsCmd(),
		newCacheCmd(),
		newAuditCmd(),
		newMCPCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
