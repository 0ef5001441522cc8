package summarycache

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"markettwits-summarizer/internal/domain"
)

type fakeCache struct {
	values map[string][]byte
	ttls   map[string]time.Duration
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeCache) Set(key string, value []byte, ttl time.Duration) error {
	f.values[key] = append([]byte(nil), value...)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeCache) Get(key string) ([]byte, error) {
	data, ok := f.values[key]
	if !ok {
		return nil, errors.New("не найдено")
	}
	return data, nil
}

func (f *fakeCache) Delete(key string) error {
	delete(f.values, key)
	return nil
}

func (f *fakeCache) AddToSet(string, ...string) error      { return nil }
func (f *fakeCache) SetMembers(string) ([]string, error)   { return nil, nil }
func (f *fakeCache) RemoveFromSet(string, ...string) error { return nil }

func testSummary(date time.Time) domain.Summary {
	return domain.Summary{
		Date:        date,
		SummaryText: "обзор",
		NewsCount:   5,
		KeyTopics:   []string{"1. тема"},
		CreatedAt:   time.Now().UTC(),
	}
}

func TestPutWritesDateAndLatestKeys(t *testing.T) {
	cache := newFakeCache()
	repo := New(cache, zerolog.Nop())
	date := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)

	if !repo.Put(testSummary(date)) {
		t.Fatalf("не ожидали ошибку записи")
	}
	if _, ok := cache.values["summary:20260402"]; !ok {
		t.Fatalf("ожидали запись под ключом даты")
	}
	if _, ok := cache.values[latestKey]; !ok {
		t.Fatalf("ожидали обновление указателя последнего дайджеста")
	}
	if cache.ttls["summary:20260402"] != dateTTL {
		t.Fatalf("неверный TTL для ключа даты: %v", cache.ttls["summary:20260402"])
	}
	if cache.ttls[latestKey] != latestTTL {
		t.Fatalf("неверный TTL для последнего дайджеста: %v", cache.ttls[latestKey])
	}
}

func TestGetRoundTrip(t *testing.T) {
	repo := New(newFakeCache(), zerolog.Nop())
	date := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	want := testSummary(date)
	repo.Put(want)

	got := repo.Get(date)
	if got == nil {
		t.Fatalf("ожидали дайджест за дату")
	}
	if got.SummaryText != want.SummaryText || got.NewsCount != want.NewsCount {
		t.Fatalf("дайджест изменился при чтении: %+v", got)
	}

	latest := repo.Latest()
	if latest == nil || latest.SummaryText != want.SummaryText {
		t.Fatalf("последний дайджест должен совпадать с записанным")
	}
}

func TestPutDoesNotRollBackLatestPointer(t *testing.T) {
	repo := New(newFakeCache(), zerolog.Nop())
	fresh := time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC)
	stale := fresh.AddDate(0, 0, -5)

	repo.Put(testSummary(fresh))
	older := testSummary(stale)
	older.SummaryText = "перегенерация за прошлую дату"
	repo.Put(older)

	if got := repo.Get(stale); got == nil || got.SummaryText != older.SummaryText {
		t.Fatalf("запись по дате должна быть перезаписана")
	}
	latest := repo.Latest()
	if latest == nil || !latest.Date.Equal(fresh) {
		t.Fatalf("указатель последнего не должен откатываться на прошлую дату: %+v", latest)
	}

	// Перегенерация за ту же дату обновляет указатель.
	refreshed := testSummary(fresh)
	refreshed.SummaryText = "обновлённый обзор"
	repo.Put(refreshed)
	if latest := repo.Latest(); latest == nil || latest.SummaryText != "обновлённый обзор" {
		t.Fatalf("перегенерация за дату указателя должна его обновить")
	}
}

func TestGetMissingDate(t *testing.T) {
	repo := New(newFakeCache(), zerolog.Nop())
	if got := repo.Get(time.Now()); got != nil {
		t.Fatalf("за пустую дату должен возвращаться nil")
	}
	if got := repo.Latest(); got != nil {
		t.Fatalf("без записей последнего дайджеста нет")
	}
}

func TestGetCorruptedRecord(t *testing.T) {
	cache := newFakeCache()
	repo := New(cache, zerolog.Nop())
	date := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	cache.values[dateKey(date)] = []byte("{broken json")

	if got := repo.Get(date); got != nil {
		t.Fatalf("повреждённая запись считается отсутствующей")
	}
}

func TestDelete(t *testing.T) {
	cache := newFakeCache()
	repo := New(cache, zerolog.Nop())
	date := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	repo.Put(testSummary(date))

	if !repo.Delete(date) {
		t.Fatalf("не ожидали ошибку удаления")
	}
	if repo.Get(date) != nil {
		t.Fatalf("дайджест должен быть удалён")
	}
	if repo.Latest() == nil {
		t.Fatalf("удаление по дате не трогает указатель последнего")
	}
	if !repo.DeleteLatest() {
		t.Fatalf("не ожидали ошибку сброса указателя")
	}
	if repo.Latest() != nil {
		t.Fatalf("указатель последнего должен быть сброшен")
	}
}
