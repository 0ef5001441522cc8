package telegram

import (
	"strings"
	"testing"
	"time"

	"markettwits-summarizer/internal/domain"
)

func TestFormatSummary(t *testing.T) {
	summary := domain.Summary{
		Date:        time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC),
		SummaryText: "Рынки выросли на фоне решения ФРС.",
		NewsCount:   42,
		KeyTopics:   []string{"1. Решение ФРС", "2. Отчёты техсектора"},
	}

	text := FormatSummary(summary)
	if !strings.Contains(text, "Daily Market Summary - 2026-04-02") {
		t.Fatalf("ожидали заголовок с датой, получили %q", text)
	}
	if !strings.Contains(text, summary.SummaryText) {
		t.Fatalf("текст дайджеста должен входить в сообщение")
	}
	if !strings.Contains(text, "1. Решение ФРС\n2. Отчёты техсектора") {
		t.Fatalf("темы должны идти по одной на строку")
	}
	if !strings.Contains(text, "Based on 42 news items") {
		t.Fatalf("ожидали счётчик новостей в подвале")
	}
}

func TestFormatSummaryWithoutTopics(t *testing.T) {
	summary := domain.Summary{
		Date:        time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC),
		SummaryText: "сырой текст модели",
		NewsCount:   1,
	}
	if strings.Contains(FormatSummary(summary), "Key Topics") {
		t.Fatalf("без тем блок Key Topics не выводится")
	}
}

func TestSplitMessageShort(t *testing.T) {
	parts := SplitMessage("короткое сообщение")
	if len(parts) != 1 || parts[0] != "короткое сообщение" {
		t.Fatalf("короткий текст отправляется одним сообщением: %v", parts)
	}
}

func TestSplitMessageEmpty(t *testing.T) {
	if parts := SplitMessage("   \n  "); parts != nil {
		t.Fatalf("пустой текст не даёт частей: %v", parts)
	}
}

func TestSplitMessagePrefersNewlines(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 200; i++ {
		sb.WriteString(strings.Repeat("я", 40))
		sb.WriteByte('\n')
	}
	parts := SplitMessage(sb.String())
	if len(parts) < 2 {
		t.Fatalf("длинный текст должен быть разбит, получили %d частей", len(parts))
	}
	for i, part := range parts {
		if len([]rune(part)) > messageLimit {
			t.Fatalf("часть %d превышает лимит: %d рун", i, len([]rune(part)))
		}
		if strings.HasPrefix(part, "\n") || strings.HasSuffix(part, "\n") {
			t.Fatalf("часть %d не должна начинаться или заканчиваться переводом строки", i)
		}
	}
	joined := strings.Join(parts, "\n")
	if !strings.HasPrefix(joined, strings.Repeat("я", 40)) {
		t.Fatalf("содержимое должно сохраняться при разбиении")
	}
}

func TestSplitMessageWithoutNewlines(t *testing.T) {
	long := strings.Repeat("a", messageLimit+100)
	parts := SplitMessage(long)
	if len(parts) != 2 {
		t.Fatalf("ожидали 2 части, получили %d", len(parts))
	}
	if len([]rune(parts[0])) != messageLimit {
		t.Fatalf("первая часть должна быть ровно в лимит, получили %d", len([]rune(parts[0])))
	}
}
