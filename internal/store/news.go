package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"markettwits-summarizer/internal/domain"
	"markettwits-summarizer/internal/infra/metrics"
)

const (
	allNewsKey   = "all_news"
	watermarkKey = "latest_news_timestamp"

	mirrorTTL = 7 * 24 * time.Hour

	// При полном отсутствии состояния выгружаем историю за 10 дней.
	defaultLookback = 10 * 24 * time.Hour
)

// News хранит все загруженные новости в одном JSON-документе
// и зеркалирует их в кэш для быстрого доступа.
// Файл рассчитан на единственный пишущий процесс.
type News struct {
	path  string
	cache domain.Cache
	log   zerolog.Logger
	mu    sync.Mutex
}

type newsDocument struct {
	NewsItems   []json.RawMessage `json:"news_items"`
	LastUpdated *time.Time        `json:"last_updated"`
	TotalCount  int               `json:"total_count"`
}

// NewNews создаёт хранилище и инициализирует пустой документ, если его нет.
func NewNews(dataDir string, cache domain.Cache, log zerolog.Logger) (*News, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("создание каталога данных: %w", err)
	}
	s := &News{
		path:  filepath.Join(dataDir, "all_news.json"),
		cache: cache,
		log:   log.With().Str("component", "news_store").Logger(),
	}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

// init создаёт пустой документ. Повторный и конкурентный вызов безопасен:
// существующий файл никогда не перезаписывается.
func (s *News) init() error {
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("инициализация файла новостей: %w", err)
	}
	defer f.Close()
	empty := newsDocument{NewsItems: []json.RawMessage{}}
	if err := json.NewEncoder(f).Encode(&empty); err != nil {
		return fmt.Errorf("запись пустого документа: %w", err)
	}
	s.log.Info().Str("path", s.path).Msg("инициализирован файл новостей")
	return nil
}

func (s *News) load() newsDocument {
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.log.Error().Err(err).Msg("не удалось прочитать файл новостей")
		return newsDocument{NewsItems: []json.RawMessage{}}
	}
	var doc newsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		s.log.Error().Err(err).Msg("не удалось разобрать файл новостей")
		return newsDocument{NewsItems: []json.RawMessage{}}
	}
	return doc
}

// save пишет документ во временный файл и атомарно подменяет текущий,
// чтобы читатели не видели частичную запись.
func (s *News) save(doc newsDocument) error {
	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return fmt.Errorf("сериализация документа: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("запись временного файла: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("подмена файла новостей: %w", err)
	}
	return nil
}

// Append сливает новые сообщения в документ, отбрасывая дубликаты по
// message_id (выигрывает первое увиденное), и зеркалирует коллекцию в кэш.
// Возвращает false при ошибке персистентности; состояние при этом не меняется.
func (s *News) Append(items []domain.NewsItem, endDate time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()

	seen := make(map[int64]struct{}, len(doc.NewsItems)+len(items))
	for _, raw := range doc.NewsItems {
		var probe struct {
			MessageID int64 `json:"message_id"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			continue
		}
		seen[probe.MessageID] = struct{}{}
	}

	added := 0
	for _, item := range items {
		if _, ok := seen[item.MessageID]; ok {
			continue
		}
		raw, err := json.Marshal(item)
		if err != nil {
			s.log.Warn().Err(err).Int64("message_id", item.MessageID).Msg("пропущена несериализуемая новость")
			continue
		}
		seen[item.MessageID] = struct{}{}
		doc.NewsItems = append(doc.NewsItems, raw)
		added++
	}

	updated := endDate
	doc.LastUpdated = &updated
	doc.TotalCount = len(doc.NewsItems)

	if err := s.save(doc); err != nil {
		metrics.StoreWriteErrors.Inc()
		s.log.Error().Err(err).Msg("не удалось сохранить файл новостей")
		return false
	}

	metrics.MergedItems.Add(float64(added))
	s.log.Info().Int("new", added).Int("total", doc.TotalCount).Msg("новости слиты в хранилище")

	s.mirror(doc, endDate)
	return true
}

// mirror дублирует коллекцию и водяной знак в кэш. Ошибки кэша не считаются
// ошибками персистентности: основная копия уже на диске. Но устаревшее
// зеркало при этом оставаться не должно, иначе читатели будут видеть
// старый день до следующего успешного слияния.
func (s *News) mirror(doc newsDocument, endDate time.Time) {
	data, err := json.Marshal(&doc)
	if err != nil {
		s.log.Warn().Err(err).Msg("не удалось сериализовать зеркало новостей")
		s.dropMirror()
		return
	}
	if err := s.cache.Set(allNewsKey, data, mirrorTTL); err != nil {
		s.log.Warn().Err(err).Msg("не удалось обновить зеркало новостей в кэше")
		s.dropMirror()
	}
	if err := s.cache.Set(watermarkKey, []byte(endDate.Format(time.RFC3339Nano)), 0); err != nil {
		s.log.Warn().Err(err).Msg("не удалось обновить водяной знак в кэше")
	}
}

func (s *News) dropMirror() {
	if err := s.cache.Delete(allNewsKey); err != nil {
		s.log.Warn().Err(err).Msg("не удалось сбросить устаревшее зеркало новостей")
	}
}

// All возвращает все сохранённые новости. Повреждённые записи
// пропускаются с предупреждением, чтение не прерывается.
func (s *News) All() []domain.NewsItem {
	doc := s.load()
	items := make([]domain.NewsItem, 0, len(doc.NewsItems))
	for _, raw := range doc.NewsItems {
		var item domain.NewsItem
		if err := json.Unmarshal(raw, &item); err != nil {
			s.log.Warn().Err(err).Msg("пропущена повреждённая запись новости")
			continue
		}
		items = append(items, item)
	}
	return items
}

// ForDate собирает подборку за календарный день. Сравнивается только дата,
// время суток не учитывается. Возвращает nil, если новостей нет.
func (s *News) ForDate(date time.Time) *domain.NewsBatch {
	items := s.itemsFromCacheOrFile()
	var filtered []domain.NewsItem
	for _, item := range items {
		if sameDay(item.Date, date) {
			filtered = append(filtered, item)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return &domain.NewsBatch{
		Items:      filtered,
		StartDate:  date,
		EndDate:    date,
		TotalCount: len(filtered),
	}
}

// itemsFromCacheOrFile читает зеркало из кэша и откатывается к файлу.
func (s *News) itemsFromCacheOrFile() []domain.NewsItem {
	data, err := s.cache.Get(allNewsKey)
	if err == nil {
		var doc newsDocument
		if err := json.Unmarshal(data, &doc); err == nil {
			items := make([]domain.NewsItem, 0, len(doc.NewsItems))
			for _, raw := range doc.NewsItems {
				var item domain.NewsItem
				if err := json.Unmarshal(raw, &item); err != nil {
					s.log.Warn().Err(err).Msg("пропущена повреждённая запись в зеркале")
					continue
				}
				items = append(items, item)
			}
			return items
		}
		s.log.Warn().Msg("зеркало новостей в кэше повреждено, читаем файл")
	}
	return s.All()
}

// LatestWatermark возвращает конец последней успешно слитой выборки:
// сначала из кэша, затем из файла, иначе точку отсчёта 10 дней назад.
func (s *News) LatestWatermark() time.Time {
	if data, err := s.cache.Get(watermarkKey); err == nil {
		if ts, err := time.Parse(time.RFC3339Nano, string(data)); err == nil {
			return ts
		}
		s.log.Warn().Str("value", string(data)).Msg("повреждённый водяной знак в кэше")
	}
	doc := s.load()
	if doc.LastUpdated != nil {
		return *doc.LastUpdated
	}
	return time.Now().Add(-defaultLookback)
}

// Count возвращает общее количество сохранённых новостей.
func (s *News) Count() int {
	return s.load().TotalCount
}

func sameDay(a, b time.Time) bool {
	a = a.In(b.Location())
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

var _ domain.NewsStore = (*News)(nil)
