package main

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/place-enrich/internal/cost"
	"github.com/sells-group/place-enrich/internal/discovery"
	"github.com/sells-group/place-enrich/internal/extract"
	"github.com/sells-group/place-enrich/internal/fetcher"
	"github.com/sells-group/place-enrich/internal/queue"
	"github.com/sells-group/place-enrich/internal/quota"
	"github.com/sells-group/place-enrich/internal/resilience"
	"github.com/sells-group/place-enrich/internal/store"
	"github.com/sells-group/place-enrich/internal/website"
	anthropicpkg "github.com/sells-group/place-enrich/pkg/anthropic"
	"github.com/sells-group/place-enrich/pkg/google"
)

// appEnv holds the store, queue, quota tracker and breakers shared by every
// command. Engines are built on demand so that commands only need the
// credentials they use.
type appEnv struct {
	Store    store.Store
	Queue    queue.Queue
	Quota    quota.Tracker
	Breakers *resilience.Breakers
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv opens and migrates the store, then builds the queue and quota
// tracker on the same backend. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env := &appEnv{
		Store:    st,
		Breakers: resilience.NewBreakers(resilience.DefaultBreakerConfig()),
	}

	clock := quota.NewClock(cfg.Quota.TimeZone)
	switch s := st.(type) {
	case *store.PostgresStore:
		env.Quota = quota.NewPostgresTracker(s.Pool(), cfg.Quota.Kind, cfg.Quota.DailyLimit, clock)
		env.Queue = queue.NewPostgres(s.Pool(), cfg.Queue.VisibilityTimeout)
	case *store.SQLiteStore:
		env.Quota = quota.NewSQLiteTracker(s.DB(), cfg.Quota.Kind, cfg.Quota.DailyLimit, clock)
		// SQLite runs are single-process; tasks live only as long as the command.
		env.Queue = queue.NewMemory(cfg.Queue.VisibilityTimeout)
	default:
		env.Quota = quota.NewMemoryTracker(cfg.Quota.DailyLimit, clock)
		env.Queue = queue.NewMemory(cfg.Queue.VisibilityTimeout)
	}

	zap.L().Debug("environment ready",
		zap.String("driver", cfg.Store.Driver),
		zap.String("quota_kind", cfg.Quota.Kind),
		zap.Int64("daily_limit", cfg.Quota.DailyLimit),
	)
	return env, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "places.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// collectionRunner builds the place collection engine.
func (e *appEnv) collectionRunner() *discovery.Runner {
	client := google.NewClient(cfg.Google.Key, google.WithBaseURL(cfg.Google.BaseURL))
	return discovery.NewRunner(cfg, e.Store, e.Queue, client, e.Quota, e.Breakers.For(resilience.ServicePlaces))
}

// websiteOrchestrator builds the website enrichment engine. It loads the
// extraction schema from disk.
func (e *appEnv) websiteOrchestrator() (*website.Orchestrator, error) {
	schema, err := extract.LoadSchema(cfg.Website.SchemaPath)
	if err != nil {
		return nil, err
	}
	return e.websiteOrchestratorWithSchema(schema), nil
}

func (e *appEnv) websiteOrchestratorWithSchema(schema json.RawMessage) *website.Orchestrator {
	calc := cost.NewCalculator(cost.RatesFromConfig(cfg.Pricing))
	// Retries are driven by the orchestrator's backoff, not the SDK.
	client := anthropicpkg.NewClient(cfg.Anthropic.Key, anthropicpkg.WithMaxRetries(0))
	extractor := extract.NewAnthropicExtractor(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, calc)

	f := fetcher.NewHTTPFetcher(fetcher.Options{
		UserAgent: cfg.Website.UserAgent,
		Timeout:   cfg.Website.FetchTimeout,
		HostRate:  1,
	})
	return website.NewOrchestrator(cfg.Website, e.Store, f, extractor, schema, e.Queue, e.Breakers.For(resilience.ServiceAnthropic))
}
