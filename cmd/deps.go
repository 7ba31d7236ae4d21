package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dokanalyse/internal/analysis"
	"github.com/sells-group/dokanalyse/internal/cache"
	"github.com/sells-group/dokanalyse/internal/config"
	"github.com/sells-group/dokanalyse/internal/coverage"
	"github.com/sells-group/dokanalyse/internal/dataset"
	"github.com/sells-group/dokanalyse/internal/db"
	"github.com/sells-group/dokanalyse/internal/geometry"
	"github.com/sells-group/dokanalyse/internal/metrics"
	"github.com/sells-group/dokanalyse/internal/quality"
	"github.com/sells-group/dokanalyse/internal/resilience"
	"github.com/sells-group/dokanalyse/pkg/geonorge"
	"github.com/sells-group/dokanalyse/pkg/ogcapi"
)

// analysisEnv holds the clients and stores needed by the serve and analyze commands.
type analysisEnv struct {
	Pool     *pgxpool.Pool
	Cache    cache.Provider
	Datasets *dataset.Store
	Breakers *resilience.Breakers
	Runner   *analysis.Runner
}

// Close releases resources held by the environment.
func (e *analysisEnv) Close() {
	if e.Cache != nil {
		_ = e.Cache.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
}

// loadDatasets reads the dataset configuration directory.
func loadDatasets(ctx context.Context, c *config.Config) (*dataset.Store, error) {
	store := dataset.NewStore(c.Datasets.ConfigDir, c.Datasets.CacheTTL())
	if err := store.Initialize(ctx); err != nil {
		return nil, eris.Wrap(err, "load datasets")
	}
	for _, issue := range store.Issues() {
		zap.L().Warn("skipped configuration document", zap.String("issue", issue.String()))
	}
	return store, nil
}

// initCache picks Redis when configured and falls back to memory.
func initCache(ctx context.Context, c *config.Config) cache.Provider {
	if c.Cache.RedisURL == "" {
		return cache.NewMemory()
	}
	r, err := cache.NewRedis(ctx, c.Cache.RedisURL, "dokanalyse:")
	if err != nil {
		zap.L().Warn("redis unavailable, using in-memory cache", zap.Error(err))
		return cache.NewMemory()
	}
	zap.L().Info("redis cache enabled")
	return r
}

// initAnalysis connects to PostGIS, builds every upstream client and wires the runner.
// Callers should defer env.Close().
func initAnalysis(ctx context.Context, c *config.Config) (*analysisEnv, error) {
	if c.PostGIS.DatabaseURL == "" {
		return nil, eris.New("postgis.database_url is required")
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, eris.Wrap(err, "register metrics")
	}

	datasets, err := loadDatasets(ctx, c)
	if err != nil {
		return nil, err
	}

	pool, err := db.Connect(ctx, c.PostGIS.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "connect postgis")
	}

	env := &analysisEnv{Pool: pool, Datasets: datasets, Cache: initCache(ctx, c)}

	breakerCfg := resilience.NewBreakerConfig(c.Breaker.FailureThreshold, c.Breaker.ResetTimeoutSecs)
	breakerCfg.OnChange = func(name string, from, to resilience.State) {
		zap.L().Warn("circuit breaker transition",
			zap.String("host", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		metrics.SetCircuitOpen(name, to == resilience.Open)
	}
	breakers := resilience.NewBreakers(breakerCfg)
	env.Breakers = breakers

	engine := geometry.NewPostGIS(pool)

	ogc := ogcapi.NewClient(
		ogcapi.WithUserAgent(c.HTTP.UserAgent),
		ogcapi.WithRateLimit(c.HTTP.RateLimit),
		ogcapi.WithTimeout(c.Analysis.QueryTimeout()),
		ogcapi.WithRetries(c.HTTP.MaxRetries),
		ogcapi.WithBreakers(breakers),
	)

	geonorgeOpts := func(ttlHours int) []geonorge.Option {
		return []geonorge.Option{
			geonorge.WithUserAgent(c.HTTP.UserAgent),
			geonorge.WithRateLimit(c.HTTP.RateLimit),
			geonorge.WithRetries(c.HTTP.MaxRetries),
			geonorge.WithBreakers(breakers),
			geonorge.WithCache(env.Cache, time.Duration(ttlHours)*time.Hour),
		}
	}
	catalog := geonorge.NewCatalogClient(c.Geonorge.CatalogURL, geonorgeOpts(c.Cache.CatalogTTLHours)...)
	guidance := geonorge.NewGuidanceClient(c.Geonorge.GuidanceURL, c.Geonorge.LocalGuidanceFile,
		c.Geonorge.LocalGuidanceIDs, geonorgeOpts(c.Cache.GuidanceTTLHours)...)
	codelists := geonorge.NewCodelistClient(c.Geonorge.Codelists, geonorgeOpts(c.Cache.CodelistTTLHours)...)

	coverageSource := &coverage.Router{
		OGC:     coverage.NewOGCSource(ogc, engine),
		PostGIS: coverage.NewPostGISSource(pool),
	}

	eng := analysis.NewEngine(analysis.Deps{
		Geometry:     engine,
		Strategies:   &analysis.Strategies{OGC: ogc, Engine: engine},
		Indicators:   datasets,
		Coverage:     quality.NewCoverageEvaluator(coverageSource, codelists, quality.NewLocaleFormatter(c.Analysis.PercentLocale)),
		Catalog:      catalog,
		Guidance:     guidance,
		SearchRadius: c.Analysis.SearchRadius,
	})

	env.Runner = analysis.NewRunner(eng, datasets, engine,
		analysis.WithEPSG(c.Analysis.EPSG),
		analysis.WithMaxConcurrent(c.Analysis.MaxConcurrentDatasets),
	)

	zap.L().Info("analysis ready",
		zap.Int("epsg", c.Analysis.EPSG),
		zap.Int("max_concurrent_datasets", c.Analysis.MaxConcurrentDatasets),
	)

	return env, nil
}
