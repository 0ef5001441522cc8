package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"

	"markettwits-summarizer/internal/adapters/bot"
	"markettwits-summarizer/internal/adapters/subscribers"
	"markettwits-summarizer/internal/adapters/summarycache"
	"markettwits-summarizer/internal/infra/cache"
	"markettwits-summarizer/internal/infra/config"
	applog "markettwits-summarizer/internal/infra/log"
	"markettwits-summarizer/internal/infra/openai"
	"markettwits-summarizer/internal/store"
	"markettwits-summarizer/internal/usecase/summarize"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("bot: конфигурация неполна")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	kv := cache.NewRedis(redisClient)

	newsStore, err := store.NewNews(cfg.DataDir, kv, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: не удалось открыть хранилище новостей")
	}

	summaries := summarycache.New(kv, logger)
	roster := subscribers.New(kv, logger)
	openaiClient := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, 60*time.Second)
	summarizer := summarize.NewService(openaiClient, summaries, cfg.OpenAI.Model, logger)

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: не удалось создать Bot API")
	}

	handler := bot.NewHandler(botAPI, logger, roster, newsStore, summarizer, summaries)
	poller := bot.NewPoller(botAPI, handler, logger)

	poller.Run(ctx)
	logger.Info().Msg("bot: остановлен")
}
