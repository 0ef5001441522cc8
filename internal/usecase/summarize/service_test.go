package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"markettwits-summarizer/internal/domain"
	openai "markettwits-summarizer/internal/infra/openai"
)

type fakeChat struct {
	calls    int
	response string
	err      error
	lastReq  openai.ChatCompletionRequest
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatMessage{Role: "assistant", Content: f.response}}},
	}, nil
}

type fakeSummaryCache struct {
	byDate map[string]domain.Summary
	latest *domain.Summary
}

func newFakeSummaryCache() *fakeSummaryCache {
	return &fakeSummaryCache{byDate: map[string]domain.Summary{}}
}

func (f *fakeSummaryCache) Put(summary domain.Summary) bool {
	f.byDate[domain.DateKey(summary.Date)] = summary
	copied := summary
	f.latest = &copied
	return true
}

func (f *fakeSummaryCache) Get(date time.Time) *domain.Summary {
	if s, ok := f.byDate[domain.DateKey(date)]; ok {
		copied := s
		return &copied
	}
	return nil
}

func (f *fakeSummaryCache) Latest() *domain.Summary { return f.latest }

func (f *fakeSummaryCache) Delete(date time.Time) bool {
	delete(f.byDate, domain.DateKey(date))
	return true
}

func (f *fakeSummaryCache) DeleteLatest() bool {
	f.latest = nil
	return true
}

func testBatch(texts ...string) domain.NewsBatch {
	date := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	items := make([]domain.NewsItem, 0, len(texts))
	for i, text := range texts {
		items = append(items, domain.NewsItem{MessageID: int64(i + 1), Text: text, Date: date})
	}
	return domain.NewsBatch{Items: items, StartDate: date, EndDate: date, TotalCount: len(items)}
}

func TestProcessUsesCachedSummary(t *testing.T) {
	chat := &fakeChat{response: `{"summary":"обзор","key_topics":["1. тема"]}`}
	cache := newFakeSummaryCache()
	service := NewService(chat, cache, "gpt-3.5-turbo", zerolog.Nop())
	batch := testBatch("ФРС сохранила ставку")

	first := service.Process(context.Background(), batch)
	if first == nil {
		t.Fatalf("ожидали дайджест")
	}
	second := service.Process(context.Background(), batch)
	if second == nil {
		t.Fatalf("ожидали дайджест из кэша")
	}
	if chat.calls != 1 {
		t.Fatalf("модель должна быть вызвана ровно один раз, вызвана %d", chat.calls)
	}
	if second.SummaryText != "обзор" {
		t.Fatalf("ожидали текст из кэша, получили %q", second.SummaryText)
	}
}

func TestProcessForcedIgnoresCache(t *testing.T) {
	chat := &fakeChat{response: `{"summary":"свежий обзор","key_topics":[]}`}
	cache := newFakeSummaryCache()
	service := NewService(chat, cache, "gpt-3.5-turbo", zerolog.Nop())
	batch := testBatch("новость")

	cache.Put(domain.Summary{Date: batch.EndDate, SummaryText: "устаревший"})

	got := service.ProcessForced(context.Background(), batch)
	if got == nil {
		t.Fatalf("ожидали перегенерированный дайджест")
	}
	if chat.calls != 1 {
		t.Fatalf("принудительная генерация обязана дойти до модели")
	}
	if got.SummaryText != "свежий обзор" {
		t.Fatalf("ожидали новый текст, получили %q", got.SummaryText)
	}
	if cached := cache.Get(batch.EndDate); cached == nil || cached.SummaryText != "свежий обзор" {
		t.Fatalf("перегенерация должна перезаписать кэш")
	}
}

func TestSummarizeEmptyBatch(t *testing.T) {
	chat := &fakeChat{}
	service := NewService(chat, newFakeSummaryCache(), "gpt-3.5-turbo", zerolog.Nop())

	if got := service.Summarize(context.Background(), testBatch("", "   ")); got != nil {
		t.Fatalf("подборка без текста не должна давать дайджест")
	}
	if chat.calls != 0 {
		t.Fatalf("модель не должна вызываться для пустой подборки")
	}
}

func TestSummarizeModelError(t *testing.T) {
	chat := &fakeChat{err: errors.New("rate limit")}
	service := NewService(chat, newFakeSummaryCache(), "gpt-3.5-turbo", zerolog.Nop())

	if got := service.Summarize(context.Background(), testBatch("новость")); got != nil {
		t.Fatalf("ошибка модели должна давать nil")
	}
}

func TestSummarizeRawTextFallback(t *testing.T) {
	chat := &fakeChat{response: "1. Рынки выросли\n2. Нефть подешевела"}
	service := NewService(chat, newFakeSummaryCache(), "gpt-3.5-turbo", zerolog.Nop())

	got := service.Summarize(context.Background(), testBatch("новость"))
	if got == nil {
		t.Fatalf("не-JSON ответ должен деградировать, а не падать")
	}
	if got.SummaryText != "1. Рынки выросли\n2. Нефть подешевела" {
		t.Fatalf("ожидали сырой текст модели, получили %q", got.SummaryText)
	}
	if len(got.KeyTopics) != 0 {
		t.Fatalf("при деградации темы должны быть пустыми")
	}
}

func TestSummarizeRequestShape(t *testing.T) {
	chat := &fakeChat{response: `{"summary":"ок","key_topics":[]}`}
	service := NewService(chat, newFakeSummaryCache(), "gpt-3.5-turbo", zerolog.Nop())

	service.Summarize(context.Background(), testBatch("новость"))

	req := chat.lastReq
	if req.Temperature != 0 {
		t.Fatalf("ожидали температуру 0, получили %v", req.Temperature)
	}
	if req.MaxTokens != maxTokens {
		t.Fatalf("ожидали max_tokens %d, получили %d", maxTokens, req.MaxTokens)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != openai.RoleSystem {
		t.Fatalf("ожидали системное сообщение первым")
	}
	if req.Messages[0].Content != systemPrompt {
		t.Fatalf("неожиданный системный промпт: %q", req.Messages[0].Content)
	}
}

func TestBuildPromptTruncatesToBudget(t *testing.T) {
	service := NewService(&fakeChat{}, newFakeSummaryCache(), "gpt-3.5-turbo", zerolog.Nop())
	long := strings.Repeat("a", promptBudget)

	prompt, truncated, ok := service.BuildPrompt(testBatch(long, "хвост, который не влезет"))
	if !ok {
		t.Fatalf("ожидали валидный промпт")
	}
	if !truncated {
		t.Fatalf("ожидали усечение под бюджет")
	}
	if !strings.Contains(prompt, "...") {
		t.Fatalf("усечённый текст должен заканчиваться многоточием")
	}

	_, truncated, ok = service.BuildPrompt(testBatch("короткий текст"))
	if !ok || truncated {
		t.Fatalf("короткий текст не должен усекаться")
	}
}

func TestBuildPromptBudgetCountsRunes(t *testing.T) {
	service := NewService(&fakeChat{}, newFakeSummaryCache(), "gpt-3.5-turbo", zerolog.Nop())

	// 5000 символов кириллицы занимают 10000 байт, но бюджет в символах.
	cyrillic := strings.Repeat("ы", 5000)
	_, truncated, ok := service.BuildPrompt(testBatch(cyrillic))
	if !ok {
		t.Fatalf("ожидали валидный промпт")
	}
	if truncated {
		t.Fatalf("5000 символов не должны усекаться при бюджете %d", promptBudget)
	}
}

func TestBuildPromptTruncationKeepsValidUTF8(t *testing.T) {
	service := NewService(&fakeChat{}, newFakeSummaryCache(), "gpt-3.5-turbo", zerolog.Nop())

	// Нечётный байтовый сдвиг: байтовый срез на границе бюджета разрезал
	// бы двухбайтовую руну пополам.
	long := "a" + strings.Repeat("ы", promptBudget)
	prompt, truncated, ok := service.BuildPrompt(testBatch(long))
	if !ok || !truncated {
		t.Fatalf("ожидали усечённый промпт")
	}
	if !utf8.ValidString(prompt) {
		t.Fatalf("усечение не должно давать невалидный UTF-8")
	}
}

func TestBuildPromptEmptyBatch(t *testing.T) {
	service := NewService(&fakeChat{}, newFakeSummaryCache(), "gpt-3.5-turbo", zerolog.Nop())
	if _, _, ok := service.BuildPrompt(testBatch()); ok {
		t.Fatalf("пустая подборка не должна давать промпт")
	}
}
