package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv  string `envconfig:"APP_ENV" default:"dev"`
	TZ      string `envconfig:"SCHEDULER_TIMEZONE" default:"Europe/Moscow"`
	Port    int    `envconfig:"PORT" default:"8000"`
	DataDir string `envconfig:"DATA_DIR" default:"data"`

	Telegram struct {
		Token           string `envconfig:"TELEGRAM_BOT_TOKEN"`
		APIID           int    `envconfig:"TELEGRAM_API_ID"`
		APIHash         string `envconfig:"TELEGRAM_API_HASH"`
		ChannelUsername string `envconfig:"TELEGRAM_CHANNEL_USERNAME" default:"MarketTwits"`
		SessionFile     string `envconfig:"TELEGRAM_SESSION_FILE" default:"data/mtproto.session"`
	} `envconfig:""`

	OpenAI struct {
		APIKey  string `envconfig:"OPENAI_API_KEY"`
		Model   string `envconfig:"OPENAI_MODEL" default:"gpt-3.5-turbo"`
		BaseURL string `envconfig:"OPENAI_BASE_URL"`
	} `envconfig:""`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisDB   int    `envconfig:"REDIS_DB" default:"0"`

	Limits struct {
		FetchLimit   int `envconfig:"FETCH_LIMIT" default:"1000"`
		PromptBudget int `envconfig:"PROMPT_BUDGET" default:"8000"`
	} `envconfig:""`

	Schedule struct {
		DumpSpec string `envconfig:"DUMP_CRON" default:"0 21 * * *"`
		PushSpec string `envconfig:"PUSH_CRON" default:"1 21 * * *"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Validate проверяет обязательные учётные данные до запуска пайплайна.
func (c AppConfig) Validate() error {
	var missing []string
	if c.Telegram.APIID == 0 {
		missing = append(missing, "TELEGRAM_API_ID")
	}
	if c.Telegram.APIHash == "" {
		missing = append(missing, "TELEGRAM_API_HASH")
	}
	if c.Telegram.Token == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if c.OpenAI.APIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("не заданы обязательные переменные окружения: %s", strings.Join(missing, ", "))
	}
	return nil
}
