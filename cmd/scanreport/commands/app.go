package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/scanreport/pkg/config"
	"github.com/Sumatoshi-tech/scanreport/pkg/observability"
	"github.com/Sumatoshi-tech/scanreport/pkg/query"
	"github.com/Sumatoshi-tech/scanreport/pkg/session"
	"github.com/Sumatoshi-tech/scanreport/pkg/store"
	"github.com/Sumatoshi-tech/scanreport/pkg/version"
)

// cacheName labels the ordering cache in cache metrics.
const cacheName = "ordering"

// app wires the components every command needs from the loaded config.
type app struct {
	cfg       *config.Config
	providers observability.Providers
	store     store.Store
	manager   *session.Manager
	engine    *query.Engine
	red       *observability.REDMetrics
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	path, _ := flags.GetString(flagConfig)

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if backend, _ := flags.GetString(flagBackend); backend != "" {
		cfg.Store.Backend = backend
	}

	if storePath, _ := flags.GetString(flagStore); storePath != "" {
		cfg.Store.Path = storePath
	}

	if verbose, _ := flags.GetBool(flagVerbose); verbose {
		cfg.Logging.Level = "debug"
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func openApp(cmd *cobra.Command, mode observability.AppMode) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	providers, err := observability.Init(cfg.Observability(mode, version.Version))
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	a := &app{cfg: cfg, providers: providers}

	err = a.wire(cmd.Context())
	if err != nil {
		return nil, errors.Join(err, providers.Shutdown(context.WithoutCancel(cmd.Context())))
	}

	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	s, err := a.cfg.NewStore()
	if err != nil {
		return err
	}

	err = s.Open(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	a.store = s

	ingest, err := observability.NewIngestMetrics(a.providers.Meter)
	if err != nil {
		return errors.Join(err, s.Close())
	}

	a.red, err = observability.NewREDMetrics(a.providers.Meter)
	if err != nil {
		return errors.Join(err, s.Close())
	}

	opts := a.cfg.SessionOptions()
	opts.Logger = a.providers.Logger
	opts.Tracer = a.providers.Tracer
	opts.Metrics = ingest

	a.manager = session.NewManager(s, opts)
	a.engine = query.New(s,
		query.WithCache(a.cfg.Query.CacheEntries),
		query.WithLogger(a.providers.Logger),
		query.WithTracer(a.providers.Tracer),
	)

	err = observability.RegisterCacheMetrics(a.providers.Meter, map[string]observability.CacheStatsProvider{
		cacheName: a.engine,
	})
	if err != nil {
		return errors.Join(err, s.Close())
	}

	return nil
}

// Close releases the store and flushes telemetry.
func (a *app) Close(ctx context.Context) error {
	stats := a.engine.CacheStats()
	a.providers.Logger.DebugContext(ctx, "ordering cache",
		"hits", stats.Hits, "misses", stats.Misses, "entries", stats.Entries, "hit_rate", stats.HitRate())

	return errors.Join(a.store.Close(), a.providers.Shutdown(context.WithoutCancel(ctx)))
}

// withApp runs fn with an opened app and closes it afterwards. One-shot CLI
// commands are recorded as RED operation "cli.<command>".
func withApp(cmd *cobra.Command, mode observability.AppMode, fn func(ctx context.Context, a *app) error) (err error) {
	a, err := openApp(cmd, mode)
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, a.Close(cmd.Context()))
	}()

	ctx := cmd.Context()
	if mode != observability.ModeCLI {
		return fn(ctx, a)
	}

	return a.red.Observe(ctx, "cli."+cmd.Name(), func() error { return fn(ctx, a) })
}
