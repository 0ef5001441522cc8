package telegram

import (
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"markettwits-summarizer/internal/infra/metrics"
)

// BotSender отправляет сообщения через Bot API, разбивая длинные тексты.
type BotSender struct {
	bot *tgbotapi.BotAPI
}

// NewBotSender создаёт отправителя.
func NewBotSender(bot *tgbotapi.BotAPI) *BotSender {
	return &BotSender{bot: bot}
}

// Send отправляет текст получателю. Длинный текст уходит несколькими
// сообщениями; первая же ошибка прерывает отправку остатка.
func (s *BotSender) Send(chatID int64, text string) error {
	for _, part := range SplitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		start := time.Now()
		_, err := s.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			return err
		}
	}
	return nil
}
