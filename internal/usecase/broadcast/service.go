package broadcast

import (
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"markettwits-summarizer/internal/adapters/telegram"
	"markettwits-summarizer/internal/domain"
	"markettwits-summarizer/internal/infra/metrics"
)

// Sender отправляет одно сообщение получателю.
type Sender interface {
	Send(chatID int64, text string) error
}

// Service рассылает готовый дайджест всем активным подписчикам.
// Доставка best-effort: неудачная отправка не повторяется в рамках рассылки.
type Service struct {
	roster domain.SubscriberRepo
	sender Sender
	log    zerolog.Logger
}

// NewService создаёт диспетчера рассылки.
func NewService(roster domain.SubscriberRepo, sender Sender, log zerolog.Logger) *Service {
	return &Service{
		roster: roster,
		sender: sender,
		log:    log.With().Str("component", "broadcast").Logger(),
	}
}

// Broadcast отправляет дайджест каждому участнику ростера и возвращает число
// успешных отправок. Получатели, недоступные навсегда (бот заблокирован,
// аккаунт деактивирован, чат не найден), удаляются из ростера; временные
// ошибки только логируются.
func (s *Service) Broadcast(summary domain.Summary) int {
	runLog := s.log.With().Str("run_id", uuid.NewString()).Logger()

	ids := s.roster.List()
	if len(ids) == 0 {
		runLog.Info().Msg("ростер пуст, рассылать некому")
		return 0
	}

	message := telegram.FormatSummary(summary)
	success := 0
	for _, id := range ids {
		err := s.sender.Send(id, message)
		if err == nil {
			metrics.BroadcastSends.WithLabelValues("ok").Inc()
			success++
			continue
		}
		metrics.BroadcastSends.WithLabelValues("error").Inc()
		if IsPermanentRecipientError(err) {
			runLog.Warn().Err(err).Int64("user", id).Msg("получатель недоступен, убираем из ростера")
			if s.roster.Remove(id) {
				metrics.SubscribersPruned.Inc()
			}
			continue
		}
		runLog.Warn().Err(err).Int64("user", id).Msg("не удалось отправить дайджест")
	}

	runLog.Info().Int("sent", success).Int("total", len(ids)).Msg("рассылка завершена")
	return success
}

// IsPermanentRecipientError распознаёт ошибки, означающие, что получатель
// больше никогда не примет сообщение.
func IsPermanentRecipientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "chat not found") ||
		strings.Contains(msg, "user is deactivated") ||
		strings.Contains(msg, "bot was blocked")
}
