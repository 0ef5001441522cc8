package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"markettwits-summarizer/internal/adapters/httpapi"
	"markettwits-summarizer/internal/adapters/subscribers"
	"markettwits-summarizer/internal/adapters/summarycache"
	"markettwits-summarizer/internal/infra/cache"
	"markettwits-summarizer/internal/infra/config"
	applog "markettwits-summarizer/internal/infra/log"
	"markettwits-summarizer/internal/infra/metrics"
	"markettwits-summarizer/internal/infra/openai"
	"markettwits-summarizer/internal/store"
	"markettwits-summarizer/internal/usecase/summarize"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("api: конфигурация неполна")
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	kv := cache.NewRedis(redisClient)

	newsStore, err := store.NewNews(cfg.DataDir, kv, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось открыть хранилище новостей")
	}

	summaries := summarycache.New(kv, logger)
	roster := subscribers.New(kv, logger)
	openaiClient := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, 60*time.Second)
	summarizer := summarize.NewService(openaiClient, summaries, cfg.OpenAI.Model, logger)

	handler := httpapi.NewHandler(logger, roster, newsStore, summarizer, summaries, kv)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 125 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("api: старт")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("api: сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
