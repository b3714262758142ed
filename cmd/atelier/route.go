package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/atelier-ai/atelier/pkg/models"
)

func newRouteCmd() *cobra.Command {
	var (
		configPath  string
		userID      string
		activeImage bool
		uploads     []string
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "route [prompt]",
		Short: "Classify a prompt once and print the routing decision",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, cleanup, err := buildStack(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := st.engine.Route(context.Background(), models.RouteRequest{
				Prompt:         strings.Join(args, " "),
				UserID:         userID,
				HasActiveImage: activeImage,
				UploadedImages: uploads,
			})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			fmt.Printf("Generation Type: %s\n", result.Route.GenerationType)
			fmt.Printf("Model:           %s (%s)\n", result.Route.Model, result.Route.Provider)
			fmt.Printf("Method:          %s (confidence %.2f)\n", result.Route.Method, result.Route.Confidence)
			if result.Route.Reasoning != "" {
				fmt.Printf("Reasoning:       %s\n", result.Route.Reasoning)
			}
			fmt.Printf("Enhanced Prompt: %s\n", result.Route.EnhancedPrompt)
			for _, ref := range result.References {
				fmt.Printf("Reference:       @%s -> %s\n", ref.Tag, ref.ImageURL)
			}
			if len(result.Params) > 0 {
				params, _ := json.Marshal(result.Params)
				fmt.Printf("Params:          %s\n", params)
			}
			fmt.Printf("Cache Hit:       %t\n", result.CacheHit)
			fmt.Printf("Breaker:         %s\n", result.BreakerState)
			fmt.Printf("Latency:         %dms\n", result.LatencyMs)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&userID, "user", "", "user the request belongs to")
	cmd.Flags().BoolVar(&activeImage, "active-image", false, "an image is open on the canvas")
	cmd.Flags().StringSliceVar(&uploads, "upload", nil, "uploaded reference image URL (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw routing result as JSON")
	return cmd
}
