// Package main starts the template optimization service: HTTP API, job
// queue, optimization pipeline, and feedback loop, wired through Uber FX.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/cursor-prompt/prompt-optimizer/internal/cache"
	"github.com/cursor-prompt/prompt-optimizer/internal/config"
	"github.com/cursor-prompt/prompt-optimizer/internal/domain/optimization"
	"github.com/cursor-prompt/prompt-optimizer/internal/engine"
	"github.com/cursor-prompt/prompt-optimizer/internal/feedback"
	"github.com/cursor-prompt/prompt-optimizer/internal/httpapi"
	"github.com/cursor-prompt/prompt-optimizer/internal/monitoring"
	"github.com/cursor-prompt/prompt-optimizer/internal/optimizerclient"
	"github.com/cursor-prompt/prompt-optimizer/internal/pipeline"
	"github.com/cursor-prompt/prompt-optimizer/internal/queue"
	"github.com/cursor-prompt/prompt-optimizer/internal/ratelimit"
	"github.com/cursor-prompt/prompt-optimizer/internal/templateio"
	"github.com/cursor-prompt/prompt-optimizer/pkg/healthcheck"
	"github.com/cursor-prompt/prompt-optimizer/pkg/logger"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "Configuration file path")
	flag.Parse()

	app := fx.New(
		fx.Supply(*configPath),
		ConfigModule,
		LoggerModule,
		CacheModule,
		EngineModule,
		BackendModule,
		PipelineModule,
		QueueModule,
		FeedbackModule,
		MonitoringModule,
		HealthCheckModule,
		HTTPModule,
		LifecycleModule,
	)
	app.Run()
}

// ConfigModule provides configuration
var ConfigModule = fx.Provide(
	func(configPath string) (*config.Store, error) {
		return config.Load(configPath)
	},
	func(store *config.Store) *config.Config {
		return store.Config()
	},
)

// LoggerModule provides logging
var LoggerModule = fx.Provide(
	func(cfg *config.Config) (*zap.Logger, error) {
		return logger.New(logger.Config{
			Level:       cfg.App.LogLevel,
			Format:      cfg.App.LogFormat,
			Development: cfg.App.Debug,
		})
	},
)

// CacheModule provides the local fingerprint cache and its optional
// distributed tier.
var CacheModule = fx.Provide(
	func(cfg *config.Config, log *zap.Logger) *redis.Client {
		if !cfg.PromptWizard.Cache.Distributed.Enabled && !cfg.Queue.Distributed {
			return nil
		}
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.Database,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			PoolSize:     cfg.Redis.PoolSize,
		})
		log.Info("redis client configured", zap.String("addr", cfg.Redis.Addr()))
		return client
	},
	func(cfg *config.Config) *cache.Local {
		return cache.NewLocal(cfg.PromptWizard.Cache.MaxSize)
	},
	func(cfg *config.Config, local *cache.Local, client *redis.Client, log *zap.Logger) *cache.Distributed {
		var tier *redis.Client
		if cfg.PromptWizard.Cache.Distributed.Enabled {
			tier = client
		}
		return cache.NewDistributed(local, tier, cfg.PromptWizard.Cache.Distributed.Namespace, log)
	},
)

// EngineModule provides the template engine.
var EngineModule = fx.Provide(
	func(log *zap.Logger) *engine.Engine {
		return engine.New(log)
	},
)

// BackendModule provides the optimizer client fronted by the rate limiter
// and the fingerprint cache.
var BackendModule = fx.Provide(
	func(cfg *config.Config, log *zap.Logger) *optimizerclient.Client {
		return optimizerclient.New(optimizerclient.Config{
			ServiceURL: cfg.PromptWizard.ServiceURL,
			APIKey:     cfg.PromptWizard.APIKey,
			Timeout:    cfg.PromptWizard.Timeout(),
			Retries:    cfg.PromptWizard.Retries,
			VerifySSL:  cfg.PromptWizard.VerifySSL,
		}, log)
	},
	func(cfg *config.Config) *ratelimit.Limiter {
		rl := cfg.PromptWizard.RateLimiting
		return ratelimit.New(rl.MaxRequests, rl.Window(), rl.SkipCached)
	},
	func(cfg *config.Config, client *optimizerclient.Client, store *cache.Distributed, limiter *ratelimit.Limiter, log *zap.Logger) pipeline.Backend {
		return optimizerclient.NewThrottledBackend(client, store, limiter,
			cfg.PromptWizard.Cache.CacheTTL(), cfg.PromptWizard.Cache.Enabled, log)
	},
)

// PipelineModule provides the nine-stage optimization pipeline.
var PipelineModule = fx.Provide(
	func(cfg *config.Config, log *zap.Logger) *templateio.OptimizedStore {
		return templateio.NewOptimizedStore(templateio.DefaultOptimizedDir, log)
	},
	func(cfg *config.Config, log *zap.Logger, eng *engine.Engine, backend pipeline.Backend, store *templateio.OptimizedStore) *pipeline.Pipeline {
		pw := cfg.PromptWizard
		return pipeline.New(log, eng, backend, store, nil, pipeline.Config{
			DefaultModel:         optimization.TargetModel(pw.DefaultModel),
			EnablePreprocessing:  true,
			EnablePostprocessing: true,
			EnableValidation:     true,
			EnableCaching:        pw.Cache.Enabled,
			MaxPromptLength:      pw.MaxPromptLength,
			MinConfidence:        pw.MinConfidence,
			FewShotCount:         pw.FewShotCount,
			RefineIterations:     pw.MutateRefineIterations,
			GenerateReasoning:    pw.GenerateReasoning,
		})
	},
)

// QueueModule provides the job queue.
var QueueModule = fx.Provide(
	func(cfg *config.Config, p *pipeline.Pipeline, log *zap.Logger) *queue.Queue {
		return queue.New(p, queue.Config{
			MaxConcurrency:  cfg.Queue.MaxConcurrency,
			JobTimeout:      cfg.Queue.JobTimeout,
			RetryDelay:      cfg.Queue.RetryDelay,
			MaxJobHistory:   cfg.Queue.MaxJobHistory,
			CleanupInterval: cfg.Queue.CleanupInterval,
			DefaultRetries:  cfg.PromptWizard.Retries,
		}, log)
	},
)

// FeedbackModule provides the continuous-improvement loop.
var FeedbackModule = fx.Provide(
	func(cfg *config.Config, q *queue.Queue, store *cache.Distributed, log *zap.Logger) *feedback.Loop {
		loop := feedback.New(feedback.Config{
			FeedbackThreshold:        cfg.Feedback.FeedbackThreshold,
			RatingThreshold:          cfg.Feedback.RatingThreshold,
			PerformanceThreshold:     cfg.Feedback.PerformanceThreshold,
			Cooldown:                 cfg.Feedback.Cooldown,
			ReviewInterval:           cfg.Feedback.ReviewInterval,
			EnableAutoReoptimization: cfg.Feedback.EnableAutoReoptimization,
		}, q, store, log)
		loop.AttachQueue(q)
		return loop
	},
)

// MonitoringModule provides the Prometheus registry and collectors.
var MonitoringModule = fx.Provide(
	func() *prometheus.Registry {
		return prometheus.NewRegistry()
	},
	func(reg *prometheus.Registry, local *cache.Local) *monitoring.Metrics {
		return monitoring.New(reg, local)
	},
)

// HealthCheckModule provides health checks for the cache tier, the
// optimizer backend, and queue liveness.
var HealthCheckModule = fx.Provide(
	func(cfg *config.Config, client *redis.Client, backend *optimizerclient.Client, q *queue.Queue, log *zap.Logger) *healthcheck.HealthCheck {
		hc := healthcheck.New(version, log)
		if client != nil {
			hc.Register("redis", healthcheck.NewRedisChecker(client))
		}
		if cfg.PromptWizard.Enabled {
			hc.Register("optimizer-backend", healthcheck.NewExternalServiceChecker(
				"optimizer-backend", backend.BaseURL()+"/health", 5*time.Second))
		}
		hc.Register("queue", healthcheck.NewCustomChecker("queue",
			func(ctx context.Context) (healthcheck.Status, string, interface{}) {
				stats := q.GetStats()
				return healthcheck.StatusHealthy,
					fmt.Sprintf("%d pending, %d active workers", stats.Pending, stats.ActiveWorkers),
					stats
			}))
		return hc
	},
)

// HTTPModule provides the HTTP server.
var HTTPModule = fx.Provide(
	func(q *queue.Queue, loop *feedback.Loop, eng *engine.Engine, hc *healthcheck.HealthCheck, log *zap.Logger) *httpapi.Server {
		return httpapi.New(q, loop, eng, hc, log)
	},
	func(cfg *config.Config, api *httpapi.Server, reg *prometheus.Registry) *http.Server {
		return &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:      api.Router(reg),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		}
	},
)

// LifecycleModule starts and stops the long-lived components.
var LifecycleModule = fx.Invoke(
	func(lc fx.Lifecycle, store *config.Store, cfg *config.Config, srv *http.Server, q *queue.Queue, loop *feedback.Loop,
		p *pipeline.Pipeline, metrics *monitoring.Metrics, log *zap.Logger) {

		metrics.ObserveQueue(q)
		metrics.ObservePipeline(p)
		metrics.ObserveFeedback(loop)

		// Long-lived components capture their configuration at construction;
		// a file edit takes effect on restart, but the reload keeps the
		// store's runtime view current for anything reading it live.
		store.Watch(func(updated *config.Config) {
			log.Info("configuration file reloaded",
				zap.String("environment", updated.App.Environment))
		})

		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				q.Start()
				loop.Start()
				go func() {
					log.Info("http server listening", zap.String("addr", srv.Addr))
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						log.Error("http server exited", zap.Error(err))
					}
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					log.Warn("http shutdown incomplete", zap.Error(err))
				}
				loop.Stop()
				q.Stop()
				return nil
			},
		})
	},
)
