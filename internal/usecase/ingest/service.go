package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"markettwits-summarizer/internal/domain"
)

// Service связывает выгрузку сообщений канала со слиянием в хранилище.
type Service struct {
	fetcher domain.Fetcher
	store   domain.NewsStore
	limit   int
	log     zerolog.Logger
}

// NewService создаёт пайплайн выгрузки.
func NewService(fetcher domain.Fetcher, store domain.NewsStore, limit int, log zerolog.Logger) *Service {
	if limit <= 0 {
		limit = 1000
	}
	return &Service{
		fetcher: fetcher,
		store:   store,
		limit:   limit,
		log:     log.With().Str("component", "ingest").Logger(),
	}
}

// Run выгружает сообщения новее since и сливает их в хранилище.
// Нулевой since означает "от последнего водяного знака". Слияние обязано
// завершиться до продвижения водяного знака: при падении между выгрузкой и
// слиянием теряется только перевыгружаемая пачка, но не прогресс.
func (s *Service) Run(ctx context.Context, since time.Time) bool {
	if since.IsZero() {
		since = s.store.LatestWatermark()
	}
	s.log.Info().Time("since", since).Msg("старт выгрузки новостей")

	items := s.fetcher.Fetch(ctx, since, s.limit)
	if len(items) == 0 {
		s.log.Warn().Msg("новых сообщений не найдено")
		return true
	}

	if !s.store.Append(items, time.Now()) {
		s.log.Error().Msg("не удалось сохранить выгруженную пачку")
		return false
	}
	s.log.Info().Int("count", len(items)).Msg("выгрузка завершена")
	return true
}

// SelectDate собирает подборку за календарный день.
// Чистая проекция над хранилищем, собственного состояния нет.
func (s *Service) SelectDate(date time.Time) *domain.NewsBatch {
	return s.store.ForDate(date)
}
