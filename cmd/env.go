package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/storedir/internal/cost"
	"github.com/sells-group/storedir/internal/db"
	"github.com/sells-group/storedir/internal/discovery"
	"github.com/sells-group/storedir/internal/placesearch"
	"github.com/sells-group/storedir/internal/registration"
	"github.com/sells-group/storedir/internal/resilience"
	"github.com/sells-group/storedir/internal/store"
	"github.com/sells-group/storedir/internal/zones"
	"github.com/sells-group/storedir/pkg/foursquare"
	"github.com/sells-group/storedir/pkg/geocode"
	"github.com/sells-group/storedir/pkg/google"
)

// appEnv holds the connections and services shared by the commands.
type appEnv struct {
	Pool         *pgxpool.Pool
	Redis        *redis.Client // nil when redis.url is unset
	Stores       *store.PostgresStore
	Directory    *discovery.PostgresStore
	Runner       *discovery.Runner
	Registration *registration.Service
}

// Close releases the pool and the redis client.
func (e *appEnv) Close() {
	if e.Redis != nil {
		_ = e.Redis.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
}

// initStore connects to Postgres and applies pending migrations.
func initStore(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := db.Connect(ctx, cfg.Store.DatabaseURL, int32(cfg.Store.MaxConns))
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return pool, nil
}

// initBase opens the database for read-only commands.
func initBase(ctx context.Context) (*appEnv, error) {
	if err := cfg.Validate("migrate"); err != nil {
		return nil, err
	}
	pool, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	return &appEnv{
		Pool:      pool,
		Stores:    store.NewPostgres(pool),
		Directory: discovery.NewPostgresStore(pool),
	}, nil
}

// initEnv wires the full service graph for mode ("discovery" or "serve").
// Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	pool, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &appEnv{
		Pool:      pool,
		Stores:    store.NewPostgres(pool),
		Directory: discovery.NewPostgresStore(pool),
	}

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			env.Close()
			return nil, eris.Wrap(err, "parse redis url")
		}
		env.Redis = redis.NewClient(opts)
		if err := env.Redis.Ping(ctx).Err(); err != nil {
			// Leases fail open and the cache is optional; keep going.
			zap.L().Warn("redis unreachable at startup", zap.Error(err))
		}
	} else {
		zap.L().Debug("STOREDIR_REDIS_URL not set, leases and geocode cache disabled")
	}

	retry := resilience.FromConfig(cfg.Retry)
	places := google.NewClient(cfg.Google.Key, google.WithBaseURL(cfg.Google.BaseURL))

	geoOpts := []geocode.Option{
		geocode.WithBaseURL(cfg.Geocode.BaseURL),
		geocode.WithRateLimit(cfg.Geocode.RateLimit),
	}
	if env.Redis != nil {
		ttl := time.Duration(cfg.Geocode.CacheTTLHours) * time.Hour
		geoOpts = append(geoOpts, geocode.WithCache(geocode.NewRedisCache(env.Redis, ttl)))
	}
	geocoder := geocode.NewClient(cfg.Geocode.Key, geoOpts...)

	searcher := placesearch.New(places,
		placesearch.WithRateLimit(cfg.Google.RateLimit),
		placesearch.WithRetry(retry),
	)

	itOpts := []discovery.IteratorOption{
		discovery.WithZoneDelay(time.Duration(cfg.Discovery.ZoneDelayMs) * time.Millisecond),
		discovery.WithCost(cost.FromConfig(cfg.Pricing)),
	}
	if cfg.Foursquare.Key != "" {
		fsq := foursquare.NewClient(cfg.Foursquare.Key, foursquare.WithBaseURL(cfg.Foursquare.BaseURL))
		backup := discovery.NewBackup(fsq, discovery.BackupConfigFrom(cfg.Discovery),
			discovery.WithReverseGeocoder(geocoder),
			discovery.WithBreaker(resilience.NewCircuitBreaker("foursquare", resilience.BreakerFromConfig(cfg.Retry))),
			discovery.WithBackupRetry(retry),
			discovery.WithBackupRateLimit(cfg.Foursquare.RateLimit),
		)
		itOpts = append(itOpts, discovery.WithBackup(backup, env.Directory))
		zap.L().Info("foursquare backup search enabled")
	} else {
		zap.L().Debug("STOREDIR_FOURSQUARE_KEY not set, backup search disabled")
	}

	legacy, err := zones.Legacy()
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "load legacy zones")
	}
	runOpts := []discovery.RunnerOption{discovery.WithLegacyZones(legacy)}
	if env.Redis != nil {
		ttl := time.Duration(cfg.Discovery.LeaseTTLSecs) * time.Second
		runOpts = append(runOpts, discovery.WithLease(discovery.NewRedisLease(env.Redis, ttl)))
	}

	env.Runner = discovery.NewRunner(
		env.Directory,
		env.Stores,
		discovery.NewIterator(searcher, itOpts...),
		discovery.RunnerConfigFrom(cfg.Discovery),
		runOpts...,
	)
	env.Registration = registration.NewService(env.Stores, places, geocoder, cfg.Registration.CoordinateThresholdM)

	return env, nil
}
