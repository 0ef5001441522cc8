package telegram

import (
	"fmt"
	"strings"

	"markettwits-summarizer/internal/domain"
)

const messageLimit = 4096

// FormatSummary собирает текст дневного дайджеста для отправки в Telegram.
func FormatSummary(summary domain.Summary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📈 **Daily Market Summary - %s**\n\n", summary.Date.Format("2006-01-02"))
	sb.WriteString(summary.SummaryText)
	sb.WriteString("\n\n")
	if len(summary.KeyTopics) > 0 {
		sb.WriteString("🔑 **Key Topics:**\n")
		sb.WriteString(strings.Join(summary.KeyTopics, "\n"))
		sb.WriteString("\n\n")
	}
	fmt.Fprintf(&sb, "📊 Based on %d news items", summary.NewsCount)
	return sb.String()
}

// SplitMessage разбивает текст на части в пределах лимита Telegram,
// предпочитая резать по переводам строк, чтобы не рвать форматирование.
func SplitMessage(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	runes := []rune(trimmed)
	if len(runes) <= messageLimit {
		return []string{trimmed}
	}

	var parts []string
	for start := 0; start < len(runes); {
		end := start + messageLimit
		if end >= len(runes) {
			if chunk := strings.Trim(string(runes[start:]), "\n"); chunk != "" {
				parts = append(parts, chunk)
			}
			break
		}

		split := end
		for i := end; i > start; i-- {
			if runes[i-1] == '\n' {
				split = i
				break
			}
		}

		if chunk := strings.Trim(string(runes[start:split]), "\n"); chunk != "" {
			parts = append(parts, chunk)
		}

		start = split
		for start < len(runes) && runes[start] == '\n' {
			start++
		}
	}

	if len(parts) == 0 {
		return []string{trimmed}
	}
	return parts
}
