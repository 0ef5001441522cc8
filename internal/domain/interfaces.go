package domain

import (
	"context"
	"time"
)

// NewsStore хранит все загруженные новости и отвечает за дедупликацию.
type NewsStore interface {
	Append(items []NewsItem, endDate time.Time) bool
	All() []NewsItem
	ForDate(date time.Time) *NewsBatch
	LatestWatermark() time.Time
	Count() int
}

// Fetcher выгружает новые сообщения канала начиная с водяного знака.
type Fetcher interface {
	Fetch(ctx context.Context, since time.Time, limit int) []NewsItem
}

// Summarizer строит дневной дайджест по подборке новостей.
type Summarizer interface {
	Summarize(ctx context.Context, batch NewsBatch) *Summary
	Process(ctx context.Context, batch NewsBatch) *Summary
	ProcessForced(ctx context.Context, batch NewsBatch) *Summary
	BuildPrompt(batch NewsBatch) (prompt string, truncated bool, ok bool)
}

// SummaryCache хранит дайджесты по дате и указатель на последний.
type SummaryCache interface {
	Put(summary Summary) bool
	Get(date time.Time) *Summary
	Latest() *Summary
	Delete(date time.Time) bool
	DeleteLatest() bool
}

// SubscriberRepo управляет ростером подписчиков.
type SubscriberRepo interface {
	Subscribe(sub Subscriber) bool
	Unsubscribe(userID int64) bool
	Get(userID int64) *Subscriber
	List() []int64
	Remove(userID int64) bool
}

// Cache используется как простое TTL-хранилище с операциями над множествами.
type Cache interface {
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
	Delete(key string) error
	AddToSet(set string, members ...string) error
	SetMembers(set string) ([]string, error)
	RemoveFromSet(set string, members ...string) error
}
