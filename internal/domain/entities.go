package domain

import "time"

// NewsItem описывает один пост новостного канала.
// Идентичность задаётся MessageID и после загрузки не меняется.
type NewsItem struct {
	MessageID int64     `json:"message_id"`
	Text      string    `json:"text"`
	Date      time.Time `json:"date"`
	Views     *int      `json:"views,omitempty"`
	Forwards  *int      `json:"forwards,omitempty"`
}

// NewsBatch представляет подборку новостей за период.
// Собирается по запросу из хранилища и отдельно не сохраняется.
type NewsBatch struct {
	Items      []NewsItem `json:"items"`
	StartDate  time.Time  `json:"start_date"`
	EndDate    time.Time  `json:"end_date"`
	TotalCount int        `json:"total_count"`
}

// Summary содержит дневной дайджест, построенный моделью.
type Summary struct {
	Date        time.Time `json:"date"`
	SummaryText string    `json:"summary_text"`
	NewsCount   int       `json:"news_count"`
	KeyTopics   []string  `json:"key_topics"`
	CreatedAt   time.Time `json:"created_at"`
}

// Subscriber описывает получателя ежедневной рассылки.
type Subscriber struct {
	UserID       int64     `json:"user_id"`
	Username     string    `json:"username,omitempty"`
	SubscribedAt time.Time `json:"subscribed_at"`
	IsActive     bool      `json:"is_active"`
}

// DateKey форматирует дату в компактный суффикс ключа кэша YYYYMMDD.
func DateKey(t time.Time) string {
	return t.Format("20060102")
}
