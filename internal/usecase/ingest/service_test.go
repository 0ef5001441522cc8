package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"markettwits-summarizer/internal/domain"
)

type stubFetcher struct {
	items     []domain.NewsItem
	lastSince time.Time
	lastLimit int
}

func (s *stubFetcher) Fetch(_ context.Context, since time.Time, limit int) []domain.NewsItem {
	s.lastSince = since
	s.lastLimit = limit
	return s.items
}

type stubStore struct {
	watermark time.Time
	appended  []domain.NewsItem
	appendOK  bool
	batch     *domain.NewsBatch
}

func (s *stubStore) Append(items []domain.NewsItem, _ time.Time) bool {
	s.appended = append(s.appended, items...)
	return s.appendOK
}
func (s *stubStore) All() []domain.NewsItem              { return nil }
func (s *stubStore) ForDate(time.Time) *domain.NewsBatch { return s.batch }
func (s *stubStore) LatestWatermark() time.Time          { return s.watermark }
func (s *stubStore) Count() int                          { return len(s.appended) }

func TestRunUsesWatermarkForZeroSince(t *testing.T) {
	watermark := time.Date(2026, 4, 1, 21, 0, 0, 0, time.UTC)
	fetcher := &stubFetcher{items: []domain.NewsItem{{MessageID: 1, Text: "x", Date: watermark.Add(time.Hour)}}}
	store := &stubStore{watermark: watermark, appendOK: true}
	service := NewService(fetcher, store, 1000, zerolog.Nop())

	if !service.Run(context.Background(), time.Time{}) {
		t.Fatalf("не ожидали ошибку")
	}
	if !fetcher.lastSince.Equal(watermark) {
		t.Fatalf("нулевой since должен заменяться водяным знаком, получили %v", fetcher.lastSince)
	}
	if fetcher.lastLimit != 1000 {
		t.Fatalf("ожидали лимит 1000, получили %d", fetcher.lastLimit)
	}
	if len(store.appended) != 1 {
		t.Fatalf("выгруженная пачка должна быть слита в хранилище")
	}
}

func TestRunExplicitSince(t *testing.T) {
	since := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	fetcher := &stubFetcher{}
	store := &stubStore{watermark: since.Add(-48 * time.Hour), appendOK: true}
	service := NewService(fetcher, store, 1000, zerolog.Nop())

	service.Run(context.Background(), since)
	if !fetcher.lastSince.Equal(since) {
		t.Fatalf("явный since не должен подменяться водяным знаком")
	}
}

func TestRunEmptyFetchIsSuccess(t *testing.T) {
	fetcher := &stubFetcher{}
	store := &stubStore{appendOK: true}
	service := NewService(fetcher, store, 1000, zerolog.Nop())

	if !service.Run(context.Background(), time.Now()) {
		t.Fatalf("пустая выгрузка не считается ошибкой")
	}
	if len(store.appended) != 0 {
		t.Fatalf("пустая выгрузка не должна трогать хранилище")
	}
}

func TestRunStoreFailure(t *testing.T) {
	fetcher := &stubFetcher{items: []domain.NewsItem{{MessageID: 1, Text: "x", Date: time.Now()}}}
	store := &stubStore{appendOK: false}
	service := NewService(fetcher, store, 1000, zerolog.Nop())

	if service.Run(context.Background(), time.Now()) {
		t.Fatalf("ошибка слияния должна проваливать запуск")
	}
}

func TestSelectDateDelegatesToStore(t *testing.T) {
	batch := &domain.NewsBatch{TotalCount: 2}
	store := &stubStore{batch: batch, appendOK: true}
	service := NewService(&stubFetcher{}, store, 1000, zerolog.Nop())

	if got := service.SelectDate(time.Now()); got != batch {
		t.Fatalf("ожидали подборку из хранилища")
	}
}
