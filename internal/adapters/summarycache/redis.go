package summarycache

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"markettwits-summarizer/internal/domain"
)

const (
	latestKey = "latest_summary"
	dateTTL   = 30 * 24 * time.Hour
	latestTTL = 7 * 24 * time.Hour
)

// Redis хранит дайджесты в кэше: по ключу даты и под указателем "последний".
// Конкурентные записи за одну дату разрешаются по принципу "последний
// победил"; проверка в движке суммаризации делает такие гонки редкими.
type Redis struct {
	cache domain.Cache
	log   zerolog.Logger
}

// New создаёт кэш дайджестов.
func New(cache domain.Cache, log zerolog.Logger) *Redis {
	return &Redis{cache: cache, log: log.With().Str("component", "summary_cache").Logger()}
}

func dateKey(date time.Time) string {
	return "summary:" + domain.DateKey(date)
}

// Put записывает дайджест под ключом даты и обновляет указатель "последний".
// Указатель не откатывается: перегенерация за прошлую дату оставляет
// последним более свежий дайджест.
func (r *Redis) Put(summary domain.Summary) bool {
	data, err := json.Marshal(summary)
	if err != nil {
		r.log.Error().Err(err).Msg("не удалось сериализовать дайджест")
		return false
	}
	if err := r.cache.Set(dateKey(summary.Date), data, dateTTL); err != nil {
		r.log.Error().Err(err).Msg("не удалось сохранить дайджест по дате")
		return false
	}
	if latest := r.Latest(); latest != nil && domain.DateKey(latest.Date) > domain.DateKey(summary.Date) {
		r.log.Info().Str("date", domain.DateKey(summary.Date)).Msg("дайджест сохранён, указатель последнего не тронут")
		return true
	}
	if err := r.cache.Set(latestKey, data, latestTTL); err != nil {
		r.log.Error().Err(err).Msg("не удалось обновить последний дайджест")
		return false
	}
	r.log.Info().Str("date", domain.DateKey(summary.Date)).Msg("дайджест сохранён в кэш")
	return true
}

// Get возвращает дайджест за дату или nil.
func (r *Redis) Get(date time.Time) *domain.Summary {
	return r.read(dateKey(date))
}

// Latest возвращает последний сохранённый дайджест или nil.
func (r *Redis) Latest() *domain.Summary {
	return r.read(latestKey)
}

func (r *Redis) read(key string) *domain.Summary {
	data, err := r.cache.Get(key)
	if err != nil {
		return nil
	}
	var summary domain.Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("повреждённый дайджест в кэше")
		return nil
	}
	return &summary
}

// Delete удаляет дайджест за дату.
func (r *Redis) Delete(date time.Time) bool {
	if err := r.cache.Delete(dateKey(date)); err != nil {
		r.log.Error().Err(err).Msg("не удалось удалить дайджест")
		return false
	}
	return true
}

// DeleteLatest сбрасывает указатель "последний".
func (r *Redis) DeleteLatest() bool {
	if err := r.cache.Delete(latestKey); err != nil {
		r.log.Error().Err(err).Msg("не удалось удалить последний дайджест")
		return false
	}
	return true
}

var _ domain.SummaryCache = (*Redis)(nil)
