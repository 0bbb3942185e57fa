package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"garmentpos/backend/internal/cache"
	"garmentpos/backend/internal/config"
	"garmentpos/backend/internal/httpapi"
	"garmentpos/backend/internal/service"
	"garmentpos/backend/internal/store"
	"garmentpos/backend/internal/store/memory"
	pgstore "garmentpos/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	setupLogging(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	loc, _ := cfg.Location()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	repo, closers, err := openRepository(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("repository unavailable")
	}
	bills, closeCache := openBillCache(ctx, cfg)
	if closeCache != nil {
		closers = append(closers, closeCache)
	}

	svc := service.New(repo, bills, service.Options{BillCacheTTL: cfg.BillCacheTTL(), Location: loc})
	auth := httpapi.NewAuthManager(ctx, cfg.AuthSecret, cfg.AccessTokenTTL(), repo)
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		ImportMaxRows: cfg.ImportMaxRows,
		Location:      loc,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Address()).Str("timezone", loc.String()).Msg("garment POS backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("close error")
		}
	}
	log.Info().Msg("server stopped")
}

func setupLogging(cfg config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// openRepository uses postgres when DATABASE_URL is set and never falls back
// to memory in that case.
func openRepository(ctx context.Context, cfg config.Config) (store.Repository, []func() error, error) {
	if cfg.DatabaseURL == "" {
		log.Info().Msg("repository: in-memory")
		return memory.NewSeeded(), nil, nil
	}

	pg, err := pgstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		_ = pg.Close()
		return nil, nil, err
	}
	log.Info().Msg("repository: postgres")
	return pg, []func() error{pg.Close}, nil
}

// openBillCache degrades to no caching when redis is unreachable.
func openBillCache(ctx context.Context, cfg config.Config) (cache.BillCache, func() error) {
	if cfg.RedisAddr == "" {
		log.Info().Msg("bill cache: noop")
		return cache.NoopBillCache{}, nil
	}
	redisCache := cache.NewRedisBillCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := redisCache.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("redis unavailable, using noop bill cache")
		_ = redisCache.Close()
		return cache.NoopBillCache{}, nil
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("bill cache: redis")
	return redisCache, redisCache.Close
}
