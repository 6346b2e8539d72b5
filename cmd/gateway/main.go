package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mind-engage/mindengage-cohorts/internal/analysis"
	api "github.com/mind-engage/mindengage-cohorts/internal/api/http"
	"github.com/mind-engage/mindengage-cohorts/internal/cache"
	"github.com/mind-engage/mindengage-cohorts/internal/config"
	"github.com/mind-engage/mindengage-cohorts/internal/db"
	"github.com/mind-engage/mindengage-cohorts/internal/logging"
	"github.com/mind-engage/mindengage-cohorts/internal/runs"
	"github.com/mind-engage/mindengage-cohorts/internal/storage"
	syncx "github.com/mind-engage/mindengage-cohorts/internal/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	defer dbh.Close()

	bs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	// --- Cache (optional) ---
	var resultCache cache.Cache = cache.Nop{}
	var redisCache *cache.RedisCache
	if cfg.RedisEnabled {
		redisCache, err = cache.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer redisCache.Close()
		resultCache = redisCache
	}

	svc := &api.Service{
		Analyzer:  analysis.New(analysis.WithLogger(logger), analysis.WithDefaults(cfg.Analysis)),
		Runs:      runs.NewSQLStore(dbh, cfg.DBDriver),
		Blobs:     bs,
		Cache:     resultCache,
		Events:    syncx.NewEventRepo(dbh, ""),
		CacheTTL:  cfg.CacheTTL,
		MaxUpload: cfg.MaxUploadBytes,
		Log:       logger,

		PublicURL:  cfg.PublicURL,
		LocalLinks: cfg.Mode == config.ModeOffline && cfg.PublicURL == "",
	}

	r := api.NewRouter(svc, api.RouterOptions{
		CORSOrigins: cfg.CORSOrigins(),
		Timeout:     60 * time.Second,
		Ready: func(ctx context.Context) error {
			if err := dbh.PingContext(ctx); err != nil {
				return err
			}
			if redisCache != nil {
				return redisCache.Ping(ctx)
			}
			return nil
		},
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Printf("listening on %s (mode=%s, db=%s, redis=%t)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver, cfg.RedisEnabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
