package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"markettwits-summarizer/internal/adapters/mtproto"
	"markettwits-summarizer/internal/adapters/subscribers"
	"markettwits-summarizer/internal/adapters/summarycache"
	"markettwits-summarizer/internal/adapters/telegram"
	"markettwits-summarizer/internal/domain"
	"markettwits-summarizer/internal/infra/cache"
	"markettwits-summarizer/internal/infra/config"
	applog "markettwits-summarizer/internal/infra/log"
	"markettwits-summarizer/internal/infra/metrics"
	"markettwits-summarizer/internal/infra/openai"
	"markettwits-summarizer/internal/store"
	"markettwits-summarizer/internal/usecase/broadcast"
	"markettwits-summarizer/internal/usecase/ingest"
	"markettwits-summarizer/internal/usecase/summarize"
)

func main() {
	once := flag.Bool("once", false, "выполнить сбор и рассылку один раз и выйти")
	flag.Parse()

	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("scheduler: конфигурация неполна")
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9091")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	kv := cache.NewRedis(redisClient)

	newsStore, err := store.NewNews(cfg.DataDir, kv, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось открыть хранилище новостей")
	}

	summaries := summarycache.New(kv, logger)
	roster := subscribers.New(kv, logger)
	openaiClient := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, 60*time.Second)
	summarizer := summarize.NewService(openaiClient, summaries, cfg.OpenAI.Model, logger)

	fetcher := mtproto.NewFetcher(cfg.Telegram.APIID, cfg.Telegram.APIHash, cfg.Telegram.SessionFile, cfg.Telegram.ChannelUsername, logger)
	defer fetcher.Close()
	ingester := ingest.NewService(fetcher, newsStore, cfg.Limits.FetchLimit, logger)

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось создать Bot API")
	}
	broadcaster := broadcast.NewService(roster, telegram.NewBotSender(botAPI), logger)

	jobs := &jobs{
		log:         logger.With().Str("component", "scheduler").Logger(),
		ingester:    ingester,
		store:       newsStore,
		summarizer:  summarizer,
		summaries:   summaries,
		broadcaster: broadcaster,
	}

	if *once {
		jobs.dump(ctx)
		jobs.push()
		return
	}

	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		logger.Fatal().Err(err).Str("tz", cfg.TZ).Msg("scheduler: неизвестная таймзона")
	}

	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(cfg.Schedule.DumpSpec, func() { jobs.dump(ctx) }); err != nil {
		logger.Fatal().Err(err).Str("spec", cfg.Schedule.DumpSpec).Msg("scheduler: неверное расписание сбора")
	}
	if _, err := c.AddFunc(cfg.Schedule.PushSpec, func() { jobs.push() }); err != nil {
		logger.Fatal().Err(err).Str("spec", cfg.Schedule.PushSpec).Msg("scheduler: неверное расписание рассылки")
	}

	c.Start()
	logger.Info().
		Str("dump", cfg.Schedule.DumpSpec).
		Str("push", cfg.Schedule.PushSpec).
		Str("tz", cfg.TZ).
		Msg("scheduler: запущен")

	<-ctx.Done()
	logger.Info().Msg("scheduler: остановка")
	<-c.Stop().Done()
}

type jobs struct {
	log         zerolog.Logger
	ingester    *ingest.Service
	store       domain.NewsStore
	summarizer  domain.Summarizer
	summaries   domain.SummaryCache
	broadcaster *broadcast.Service
}

// dump собирает свежие сообщения и строит дайджест за вчера.
func (j *jobs) dump(ctx context.Context) {
	j.log.Info().Msg("ежедневный сбор: старт")
	if !j.ingester.Run(ctx, time.Time{}) {
		j.log.Error().Msg("ежедневный сбор: не удалось обновить хранилище")
		return
	}

	date := time.Now().AddDate(0, 0, -1)
	batch := j.store.ForDate(date)
	if batch == nil {
		j.log.Warn().Str("date", date.Format("2006-01-02")).Msg("ежедневный сбор: нет новостей за дату")
		return
	}
	if summary := j.summarizer.Process(ctx, *batch); summary != nil {
		j.log.Info().Str("date", domain.DateKey(summary.Date)).Int("news", summary.NewsCount).Msg("ежедневный сбор: дайджест готов")
	}
}

// push рассылает последний готовый дайджест подписчикам.
func (j *jobs) push() {
	summary := j.summaries.Latest()
	if summary == nil {
		j.log.Warn().Msg("рассылка: нет готового дайджеста")
		return
	}
	sent := j.broadcaster.Broadcast(*summary)
	j.log.Info().Int("sent", sent).Str("date", domain.DateKey(summary.Date)).Msg("рассылка: завершена")
}
