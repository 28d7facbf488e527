// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api 以便扩展
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"imei-sim/internal/api"
	"imei-sim/internal/config"
	"imei-sim/internal/logger"
	"imei-sim/internal/memstore"
	"imei-sim/internal/metrics"
	"imei-sim/internal/middleware"
	"imei-sim/internal/migrate"
	"imei-sim/internal/osrm"
	"imei-sim/internal/quota"
	"imei-sim/internal/redisstore"
	"imei-sim/internal/service"
	"imei-sim/internal/seed"
	"imei-sim/internal/snap"
	"imei-sim/internal/store"
	"imei-sim/internal/sweep"
	"imei-sim/internal/track"
	"imei-sim/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Setup().Error("config_error", "err", err)
		os.Exit(1)
	}
	// 日志初始化
	l := logger.Init(cfg.LogLevel, cfg.LogFormat)
	l.Debug("log_init_ok")
	l.Debug("config_api_base", "base", cfg.APIBase)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, dialect, err := utils.OpenDB(cfg)
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	l.Info("db_open_ok", "driver", dialect.DriverName())
	if err := db.PingContext(ctx); err != nil {
		l.Error("db_ping_error", "err", err)
	} else {
		l.Info("db_ping_ok")
	}
	if err := migrate.EnsureSchema(db, dialect); err != nil {
		l.Error("schema_error", "err", err)
		os.Exit(1)
	}
	st := store.AttachDB(db, dialect)

	rc := utils.OpenRedisFromConfig(cfg.Redis)
	if rc == nil {
		l.Info("redis_disabled")
	} else {
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
		} else {
			l.Info("redis_ping_ok")
		}
	}

	deriver, err := seed.New(cfg.SecretKey.Bytes())
	if err != nil {
		l.Error("secret_key_error", "err", err)
		os.Exit(1)
	}

	// 快存储：启用 Redis 时使用 Redis，否则退化为进程内计数（单实例部署）
	var mirror quota.Counter
	var memCounter *memstore.Counter
	if rc != nil {
		mirror = redisstore.NewCounter(rc)
	} else {
		memCounter = memstore.NewCounter()
		mirror = memCounter
	}
	ledger := quota.NewLedger(st, mirror, quota.Options{Capacity: cfg.QuotaCapacity, StoreTimeout: cfg.StoreTimeout})

	synth, osrmClient := buildSynthesizer(l, cfg)
	cache := track.NewCache(buildTrackBackend(cfg, rc), deriver, cfg.Cache.TTL)
	tracker := service.New(deriver, synth, cache, ledger, service.Options{QueryLog: st})

	if cfg.Sweep.Enabled {
		job := sweep.Job{Store: st, Retention: cfg.Sweep.RetentionDays}
		if memCounter != nil {
			job.Memory = append(job.Memory, memCounter)
		}
		sweep.StartDaily(ctx, job)
		l.Info("sweep_scheduled", "retention_days", cfg.Sweep.RetentionDays)
	}

	checks, optional := healthChecks(db, rc, osrmClient)
	mux := http.NewServeMux()
	apiMux := api.BuildRoutes(tracker, api.Options{Checks: checks, Optional: optional, TrustUserHeader: cfg.TrustUserHeader})
	mux.Handle(cfg.APIBase+"/", http.StripPrefix(cfg.APIBase, apiMux))
	mux.Handle(cfg.APIBase+"/metrics", metrics.Handler())

	handler := logger.AccessMiddleware(l)(mux)
	handler = middleware.Wrap(handler, cfg.RateLimit)
	s := &http.Server{Addr: cfg.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(sctx)
	}()

	if cfg.TLS.Enabled {
		if err := utils.EnsureSelfSignedCert(cfg.TLS.CertPath, cfg.TLS.KeyPath, "imei-sim.local"); err != nil {
			l.Error("tls_cert_error", "err", err)
			os.Exit(1)
		}
		l.Info("listening_tls", "addr", cfg.Addr, "cert", cfg.TLS.CertPath)
		err = s.ListenAndServeTLS(cfg.TLS.CertPath, cfg.TLS.KeyPath)
	} else {
		l.Info("listening", "addr", cfg.Addr)
		err = s.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("server_error", "err", err)
		os.Exit(1)
	}
	l.Info("server_stopped")
}

// buildSynthesizer：按配置装配标签与可选的道路吸附
func buildSynthesizer(l *slog.Logger, cfg config.Config) (*track.Synthesizer, *osrm.Client) {
	opts := track.Options{SnapTimeout: cfg.Snap.Timeout}
	if cfg.LabelsFile != "" {
		labels, err := track.LoadLabels(cfg.LabelsFile)
		if err != nil {
			l.Error("labels_load_error", "path", cfg.LabelsFile, "err", err)
		} else {
			opts.Labels = labels
			l.Info("labels_loaded", "count", len(labels))
		}
	}
	var client *osrm.Client
	if cfg.Snap.Enabled {
		client = osrm.NewClient(cfg.Snap.BaseURL, &http.Client{Timeout: cfg.Snap.Timeout})
		opts.Snapper = snap.NewPerPoint(client, cfg.Snap.Workers)
		hctx, cancel := context.WithTimeout(context.Background(), cfg.Snap.Timeout)
		if err := client.Heartbeat(hctx); err != nil {
			l.Warn("osrm_heartbeat_error", "err", err)
		} else {
			l.Info("osrm_heartbeat_ok")
		}
		cancel()
	}
	return track.NewSynthesizer(opts), client
}

// buildTrackBackend：进程内 LRU 为一级，启用 Redis 时追加二级
func buildTrackBackend(cfg config.Config, rc *redis.Client) track.Backend {
	lru := memstore.NewLRU(cfg.Cache.LocalSize)
	if rc == nil {
		return lru
	}
	return track.NewChain(cfg.Cache.TTL, lru, redisstore.NewTrackCache(rc))
}

func healthChecks(db *sql.DB, rc *redis.Client, oc *osrm.Client) (map[string]api.Check, map[string]bool) {
	checks := map[string]api.Check{"db": db.PingContext}
	optional := map[string]bool{}
	if rc != nil {
		checks["redis"] = func(ctx context.Context) error { return rc.Ping(ctx).Err() }
		optional["redis"] = true
	}
	if oc != nil {
		checks["osrm"] = oc.Heartbeat
		optional["osrm"] = true
	}
	return checks, optional
}
