package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/atelier-ai/atelier/pkg/audit"
	"github.com/atelier-ai/atelier/pkg/breaker"
	cachepkg "github.com/atelier-ai/atelier/pkg/cache/sqlite"
	"github.com/atelier-ai/atelier/pkg/classifier"
	"github.com/atelier-ai/atelier/pkg/config"
	"github.com/atelier-ai/atelier/pkg/engine"
	"github.com/atelier-ai/atelier/pkg/ratelimit"
	"github.com/atelier-ai/atelier/pkg/refs"
	"github.com/atelier-ai/atelier/pkg/registry"
	"github.com/atelier-ai/atelier/pkg/rules"
	"github.com/atelier-ai/atelier/pkg/tracker"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the routing engine HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, cleanup, err := buildStack(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			srv := engine.NewServer(st.engine, st.cache, st.cfg.Listen)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Printf("starting atelier with config: %s", configPath)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "atelier.yaml", "path to config file")
	return cmd
}

// stack holds the wired engine and the collaborators the CLI also needs
// directly.
type stack struct {
	cfg     *config.Config
	engine  *engine.Engine
	cache   *cachepkg.Cache
	tracker *tracker.SQLiteTracker
	auditor *audit.Logger
}

// buildStack wires the whole engine from a config file. An empty path uses
// defaults. The returned cleanup closes everything that was opened.
func buildStack(configPath string) (*stack, func(), error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
	}

	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}
	fail := func(err error) (*stack, func(), error) {
		cleanup()
		return nil, nil, err
	}

	tr, err := tracker.New(cfg.DBPath)
	if err != nil {
		return fail(fmt.Errorf("init tracker: %w", err))
	}
	closers = append(closers, tr.Close)

	var cache *cachepkg.Cache
	if cfg.Cache.Enabled {
		cache, err = cachepkg.New(cfg.DBPath)
		if err != nil {
			return fail(fmt.Errorf("init cache: %w", err))
		}
		closers = append(closers, cache.Close)
	}

	refStore, err := refs.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fail(fmt.Errorf("init reference store: %w", err))
	}
	closers = append(closers, refStore.Close)

	var limiter *ratelimit.Limiter
	if cfg.Limits.Enabled && cache != nil {
		limiter = ratelimit.New(cfg.Limits.Policies, cache)
	}

	var auditor *audit.Logger
	if cfg.Audit.Enabled {
		auditor, err = audit.New(cfg.DBPath, cfg.Audit)
		if err != nil {
			return fail(fmt.Errorf("init audit: %w", err))
		}
		closers = append(closers, auditor.Close)
	}

	brk := breaker.New("classifier", breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		OpenTimeout:      cfg.Breaker.OpenTimeout,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
	})

	table := rules.New()
	cls := classifier.New(classifier.NewHTTPClient(cfg.Classifier), brk, table, classifier.Options{
		Cache:    cache,
		CacheTTL: cfg.Cache.NamespaceTTL(cachepkg.NamespaceClassification),
		Limiter:  limiter,
	})

	reg := registry.New(cfg.Registry, cache, cfg.Cache.NamespaceTTL(cachepkg.NamespaceParams))

	eng := engine.New(cfg, engine.Deps{
		Resolver:   refs.New(refStore),
		Classifier: cls,
		Registry:   reg,
		Breaker:    brk,
		Tracker:    tr,
		Auditor:    auditor,
		Cache:      cache,
	})

	return &stack{
		cfg:     cfg,
		engine:  eng,
		cache:   cache,
		tracker: tr,
		auditor: auditor,
	}, cleanup, nil
}
