package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"markettwits-summarizer/internal/adapters/telegram"
	"markettwits-summarizer/internal/domain"
)

const (
	generateRetries = 3
	generateBackoff = 2 * time.Second
)

// Handler обслуживает команды и колбэки бота.
type Handler struct {
	bot        *tgbotapi.BotAPI
	log        zerolog.Logger
	roster     domain.SubscriberRepo
	store      domain.NewsStore
	summarizer domain.Summarizer
	summaries  domain.SummaryCache
}

// NewHandler создаёт обработчик.
func NewHandler(botAPI *tgbotapi.BotAPI, log zerolog.Logger, roster domain.SubscriberRepo, store domain.NewsStore, summarizer domain.Summarizer, summaries domain.SummaryCache) *Handler {
	return &Handler{
		bot:        botAPI,
		log:        log.With().Str("component", "bot").Logger(),
		roster:     roster,
		store:      store,
		summarizer: summarizer,
		summaries:  summaries,
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		h.handleFreeText(ctx, msg, strings.ToLower(text))
		return
	}
	switch {
	case strings.HasPrefix(text, "/start"):
		h.handleStart(msg)
	case strings.HasPrefix(text, "/help"):
		h.reply(msg.Chat.ID, helpMessage, nil)
	case strings.HasPrefix(text, "/subscribe"):
		h.handleSubscribe(msg)
	case strings.HasPrefix(text, "/unsubscribe"):
		h.handleUnsubscribe(msg)
	case strings.HasPrefix(text, "/summary"):
		h.reply(msg.Chat.ID, h.summaryMessage(yesterday()), nil)
	case strings.HasPrefix(text, "/latest"):
		h.reply(msg.Chat.ID, h.latestMessage(), nil)
	case strings.HasPrefix(text, "/generate"):
		h.handleGenerate(ctx, msg.Chat.ID)
	case strings.HasPrefix(text, "/stats"):
		h.reply(msg.Chat.ID, h.statsMessage(), nil)
	default:
		h.reply(msg.Chat.ID, "Неизвестная команда. Используйте /help", nil)
	}
}

// handleFreeText маршрутизирует обычный текст по ключевым словам.
func (h *Handler) handleFreeText(ctx context.Context, msg *tgbotapi.Message, lower string) {
	switch {
	case containsAny(lower, "summary", "news", "дайджест", "новост"):
		h.reply(msg.Chat.ID, h.summaryMessage(yesterday()), nil)
	case containsAny(lower, "subscribe", "подпис"):
		h.handleSubscribe(msg)
	case containsAny(lower, "unsubscribe", "отпис", "stop"):
		h.handleUnsubscribe(msg)
	case containsAny(lower, "help", "помощь"):
		h.reply(msg.Chat.ID, helpMessage, nil)
	default:
		h.reply(msg.Chat.ID, "🤔 Не понял. Используйте /help, чтобы увидеть команды.", nil)
	}
}

func (h *Handler) handleStart(msg *tgbotapi.Message) {
	userID := msg.From.ID
	var text string
	if existing := h.roster.Get(userID); existing != nil {
		text = fmt.Sprintf("👋 С возвращением, %s!\n\nВы уже подписаны на ежедневные дайджесты.\n\nИспользуйте /help для списка команд.", msg.From.FirstName)
	} else {
		sub := domain.Subscriber{
			UserID:       userID,
			Username:     msg.From.UserName,
			SubscribedAt: time.Now().UTC(),
			IsActive:     true,
		}
		if !h.roster.Subscribe(sub) {
			h.reply(msg.Chat.ID, "Не удалось оформить подписку, попробуйте позже.", nil)
			return
		}
		text = fmt.Sprintf("🎉 Добро пожаловать, %s!\n\nВы подписаны на ежедневные дайджесты рынка.\n\nИспользуйте /help для списка команд.", msg.From.FirstName)
		h.log.Info().Int64("user", userID).Str("username", msg.From.UserName).Msg("пользователь запустил бота")
	}
	h.reply(msg.Chat.ID, text, h.startKeyboard())
}

func (h *Handler) handleSubscribe(msg *tgbotapi.Message) {
	userID := msg.From.ID
	if existing := h.roster.Get(userID); existing != nil && existing.IsActive {
		h.reply(msg.Chat.ID, "✅ Вы уже подписаны на ежедневные дайджесты!", nil)
		return
	}
	sub := domain.Subscriber{
		UserID:       userID,
		Username:     msg.From.UserName,
		SubscribedAt: time.Now().UTC(),
		IsActive:     true,
	}
	if !h.roster.Subscribe(sub) {
		h.reply(msg.Chat.ID, "Не удалось оформить подписку, попробуйте позже.", nil)
		return
	}
	h.reply(msg.Chat.ID, "🎉 Подписка оформлена! Дайджест будет приходить ежедневно.", nil)
}

func (h *Handler) handleUnsubscribe(msg *tgbotapi.Message) {
	h.roster.Unsubscribe(msg.From.ID)
	h.reply(msg.Chat.ID, "😢 Вы отписаны от рассылки.\n\nВернуться можно командой /subscribe.", nil)
}

// handleGenerate принудительно перегенерирует дайджест за вчера.
// Интерактивный вызов: допускаем ограниченное число повторов с паузой.
func (h *Handler) handleGenerate(ctx context.Context, chatID int64) {
	h.reply(chatID, "🤖 Генерирую свежий дайджест за вчера...\nЭто может занять немного времени.", nil)

	batch := h.store.ForDate(yesterday())
	if batch == nil {
		h.reply(chatID, "📭 За вчера новостей не найдено.", nil)
		return
	}

	var summary *domain.Summary
	for attempt := 1; attempt <= generateRetries; attempt++ {
		summary = h.summarizer.ProcessForced(ctx, *batch)
		if summary != nil {
			break
		}
		h.log.Warn().Int("attempt", attempt).Msg("перегенерация не удалась")
		if attempt < generateRetries {
			time.Sleep(generateBackoff)
		}
	}
	if summary == nil {
		h.reply(chatID, "❌ Не удалось построить дайджест. Попробуйте позже.", nil)
		return
	}
	h.reply(chatID, telegram.FormatSummary(*summary), nil)
}

func (h *Handler) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if _, err := h.bot.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		h.log.Warn().Err(err).Msg("не удалось подтвердить колбэк")
	}
	if query.Message == nil {
		return
	}
	chatID := query.Message.Chat.ID
	switch query.Data {
	case "latest_summary":
		h.reply(chatID, h.latestMessage(), nil)
	case "stats":
		h.reply(chatID, h.statsMessage(), nil)
	case "help":
		h.reply(chatID, helpMessage, nil)
	}
}

// summaryMessage возвращает текст дайджеста за дату с откатом к последнему.
func (h *Handler) summaryMessage(date time.Time) string {
	summary := h.summaries.Get(date)
	if summary == nil {
		summary = h.summaries.Latest()
	}
	if summary == nil {
		return "📭 Дайджест пока не готов.\n\nЗагляните позже или используйте /latest."
	}
	return telegram.FormatSummary(*summary)
}

func (h *Handler) latestMessage() string {
	summary := h.summaries.Latest()
	if summary == nil {
		return "📭 Дайджест пока не готов.\n\nЗагляните позже."
	}
	return telegram.FormatSummary(*summary)
}

func (h *Handler) statsMessage() string {
	total := h.store.Count()
	all := h.store.All()

	weekAgo := time.Now().Add(-7 * 24 * time.Hour)
	recent := 0
	for _, item := range all {
		if item.Date.After(weekAgo) {
			recent++
		}
	}

	lastUpdated := "никогда"
	if len(all) > 0 {
		lastUpdated = all[len(all)-1].Date.Format("2006-01-02 15:04")
	}

	return fmt.Sprintf(`📊 **Статистика MarketTwits**

📰 Новости:
• Всего: %d
• За 7 дней: %d
• Обновлено: %s

👥 Подписчиков: %d`, total, recent, lastUpdated, len(h.roster.List()))
}

func (h *Handler) startKeyboard() *tgbotapi.InlineKeyboardMarkup {
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📊 Последний дайджест", "latest_summary")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📈 Статистика", "stats")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("❓ Помощь", "help")),
	)
	return &keyboard
}

func (h *Handler) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	for _, part := range telegram.SplitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if keyboard != nil {
			msg.ReplyMarkup = *keyboard
			keyboard = nil
		}
		if _, err := h.bot.Send(msg); err != nil {
			h.log.Error().Err(err).Int64("chat", chatID).Msg("не удалось отправить ответ")
			return
		}
	}
}

func yesterday() time.Time {
	return time.Now().AddDate(0, 0, -1)
}

func containsAny(text string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

const helpMessage = `🤖 **MarketTwits Summarizer**

Команды:
• /start — запуск и подписка
• /help — эта справка
• /subscribe — подписаться на рассылку
• /unsubscribe — отписаться
• /summary — дайджест за вчера
• /latest — последний доступный дайджест
• /generate — перегенерировать дайджест за вчера
• /stats — статистика новостей

📰 Я собираю новости из канала @MarketTwits,
🤖 строю краткий дайджест с помощью AI
⏰ и присылаю его подписчикам каждый день.`
