package bot

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Poller читает апдейты длинным поллингом. Курсор offset монотонный и
// продвигается только после обработки апдейта, чтобы после рестарта
// необработанные апдейты пришли повторно.
type Poller struct {
	bot     *tgbotapi.BotAPI
	handler *Handler
	log     zerolog.Logger
	offset  int
}

// NewPoller создаёт поллер.
func NewPoller(botAPI *tgbotapi.BotAPI, handler *Handler, log zerolog.Logger) *Poller {
	return &Poller{
		bot:     botAPI,
		handler: handler,
		log:     log.With().Str("component", "bot_poller").Logger(),
	}
}

// Run крутит цикл поллинга до отмены контекста.
func (p *Poller) Run(ctx context.Context) {
	// Поллинг несовместим с вебхуком: снимаем его, если был установлен.
	if _, err := p.bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		p.log.Warn().Err(err).Msg("не удалось удалить вебхук")
	}
	p.log.Info().Str("bot", p.bot.Self.UserName).Msg("бот запущен, поллинг апдейтов")

	for {
		if ctx.Err() != nil {
			p.log.Info().Msg("поллинг остановлен")
			return
		}

		updates, err := p.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				p.log.Info().Msg("поллинг остановлен")
				return
			}
			p.log.Error().Err(err).Msg("ошибка получения апдейтов")
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, upd := range updates {
			p.handler.HandleUpdate(ctx, upd)
			p.offset = upd.UpdateID
		}
	}
}

// poll выполняет длинный опрос в отдельной горутине, чтобы отмена контекста
// не ждала истечения таймаута опроса. Брошенный в полёте запрос безопасен:
// курсор двигается только после обработки, апдейты придут повторно.
func (p *Poller) poll(ctx context.Context) ([]tgbotapi.Update, error) {
	cfg := tgbotapi.NewUpdate(p.offset + 1)
	cfg.Timeout = 10

	type pollResult struct {
		updates []tgbotapi.Update
		err     error
	}
	done := make(chan pollResult, 1)
	go func() {
		updates, err := p.bot.GetUpdates(cfg)
		done <- pollResult{updates: updates, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		return res.updates, res.err
	}
}
