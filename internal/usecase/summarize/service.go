package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"markettwits-summarizer/internal/domain"
	"markettwits-summarizer/internal/infra/metrics"
	openai "markettwits-summarizer/internal/infra/openai"
)

const (
	// Суммарный бюджет текста новостей в промпте, в символах.
	promptBudget = 8000

	maxTokens    = 500
	systemPrompt = "You are a professional financial news analyst."
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Service строит дневные дайджесты через LLM и гарантирует идемпотентность:
// подборка за дату суммаризируется не более одного раза.
type Service struct {
	client chatClient
	cache  domain.SummaryCache
	model  string
	log    zerolog.Logger
}

// NewService создаёт движок суммаризации.
func NewService(client chatClient, cache domain.SummaryCache, model string, log zerolog.Logger) *Service {
	if model == "" {
		model = "gpt-3.5-turbo"
	}
	return &Service{
		client: client,
		cache:  cache,
		model:  model,
		log:    log.With().Str("component", "summarizer").Logger(),
	}
}

type summaryPayload struct {
	Summary   string   `json:"summary"`
	KeyTopics []string `json:"key_topics"`
}

// Summarize строит дайджест подборки. Возвращает nil, если в подборке нет
// сообщений с текстом, при ошибке модели или пустом ответе. Если ответ модели
// не разбирается как JSON, сырой текст становится дайджестом с пустыми
// темами: это намеренная деградация, а не отказ.
func (s *Service) Summarize(ctx context.Context, batch domain.NewsBatch) *domain.Summary {
	texts := itemTexts(batch)
	if len(texts) == 0 {
		s.log.Warn().Msg("в подборке нет сообщений с текстом")
		return nil
	}

	combined, truncated := clipTexts(texts)
	if truncated {
		s.log.Debug().Int("budget", promptBudget).Msg("текст новостей усечён под бюджет промпта")
	}
	prompt := buildPrompt(combined, batch.EndDate.Format("2006-01-02"))

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: 0,
		MaxTokens:   maxTokens,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleSystem, Content: systemPrompt},
			{Role: openai.RoleUser, Content: prompt},
		},
	})
	if err != nil {
		s.log.Error().Err(err).Msg("не удалось получить ответ модели")
		return nil
	}
	if len(resp.Choices) == 0 {
		s.log.Error().Msg("модель вернула пустой ответ")
		return nil
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	summaryText := content
	var keyTopics []string
	var parsed summaryPayload
	if err := json.Unmarshal([]byte(content), &parsed); err == nil && parsed.Summary != "" {
		summaryText = parsed.Summary
		keyTopics = filterValues(parsed.KeyTopics)
	} else {
		s.log.Warn().Msg("ответ модели не является ожидаемым JSON, используем сырой текст")
	}

	s.log.Info().Int("news_count", batch.TotalCount).Msg("дайджест построен")
	return &domain.Summary{
		Date:        batch.EndDate,
		SummaryText: summaryText,
		NewsCount:   len(batch.Items),
		KeyTopics:   keyTopics,
		CreatedAt:   time.Now().UTC(),
	}
}

// Process — идемпотентная обёртка: при наличии дайджеста за дату подборки
// возвращает его без обращения к модели. Проверка кэша — единственный
// барьер против параллельных вызовов: два конкурентных промаха могут оба
// дойти до модели, запись в кэш тогда идёт по принципу "последний победил".
func (s *Service) Process(ctx context.Context, batch domain.NewsBatch) *domain.Summary {
	if existing := s.cache.Get(batch.EndDate); existing != nil {
		metrics.SummaryCacheHits.WithLabelValues("hit").Inc()
		s.log.Info().Str("date", domain.DateKey(batch.EndDate)).Msg("дайджест уже есть в кэше")
		return existing
	}
	metrics.SummaryCacheHits.WithLabelValues("miss").Inc()
	return s.summarizeAndPersist(ctx, batch)
}

// ProcessForced перегенерирует дайджест, игнорируя наличие кэша,
// но успешный результат так же записывается в кэш поверх старого.
func (s *Service) ProcessForced(ctx context.Context, batch domain.NewsBatch) *domain.Summary {
	metrics.SummaryCacheHits.WithLabelValues("forced").Inc()
	return s.summarizeAndPersist(ctx, batch)
}

func (s *Service) summarizeAndPersist(ctx context.Context, batch domain.NewsBatch) *domain.Summary {
	summary := s.Summarize(ctx, batch)
	if summary == nil {
		return nil
	}
	if !s.cache.Put(*summary) {
		s.log.Warn().Str("date", domain.DateKey(summary.Date)).Msg("не удалось сохранить дайджест в кэш")
	}
	return summary
}

// BuildPrompt возвращает промпт, который ушёл бы в модель для этой подборки.
// Используется отладочными ручками API. ok=false, если текста нет.
func (s *Service) BuildPrompt(batch domain.NewsBatch) (string, bool, bool) {
	texts := itemTexts(batch)
	if len(texts) == 0 {
		return "", false, false
	}
	combined, truncated := clipTexts(texts)
	return buildPrompt(combined, batch.EndDate.Format("2006-01-02")), truncated, true
}

func itemTexts(batch domain.NewsBatch) []string {
	texts := make([]string, 0, len(batch.Items))
	for _, item := range batch.Items {
		if strings.TrimSpace(item.Text) == "" {
			continue
		}
		texts = append(texts, item.Text)
	}
	return texts
}

// clipTexts объединяет тексты и усекает их под бюджет промпта.
// Бюджет считается в символах, не в байтах: кириллица занимает два байта
// на символ, и байтовый срез к тому же может разрезать руну пополам.
// Усечённый текст передаётся одним блоком с маркером многоточия.
func clipTexts(texts []string) ([]string, bool) {
	combined := strings.Join(texts, "\n\n")
	if utf8.RuneCountInString(combined) <= promptBudget {
		return texts, false
	}
	runes := []rune(combined)
	return []string{string(runes[:promptBudget]) + "..."}, true
}

func buildPrompt(texts []string, lastDate string) string {
	var sb strings.Builder
	for i, text := range texts {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("• ")
		sb.WriteString(text)
	}
	return fmt.Sprintf(`Сегодня %s

Дай мне краткое резюме на основе твитов из новостного канала о финансовых рынках. Дай мне только основные новости о мировом рынке и политике, не используй российские новости, криптовалюты, мемы, кроме случаев, когда они важны.

ВОТ все твиты:
"
%s
"

Используй формат как пронумерованный список кратких новостей, отсортированных от самых важных к менее важным.

Формат ответа в JSON:
{
    "summary": "Краткий обзор самых важных рыночных событий",
    "key_topics": ["1. Самая важная новость", "2. Следующая по важности"]
}

Фокусируйся на:
- Крупных движениях мировых рынков
- Важных политических событиях, влияющих на рынки
- Решениях центральных банков
- Экономических показателях
- Корпоративных доходах и крупных бизнес-новостях
- Геополитических событиях с рыночным воздействием

Исключи:
- Российские внутренние новости (если не глобально значимые)
- Новости о криптовалютах (если не имеют большого рыночного воздействия)
- Мемы и шутки (если не важны)
- Мелкие местные новости
- Спекуляции без содержания

Пиши на русском языке в формате пронумерованного списка.`, lastDate, sb.String())
}

func filterValues(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

var _ domain.Summarizer = (*Service)(nil)
