package subscribers

import (
	"encoding/json"
	"strconv"

	"github.com/rs/zerolog"

	"markettwits-summarizer/internal/domain"
)

const rosterKey = "subscribers"

// Redis хранит ростер рассылки: множество идентификаторов плюс
// запись user:<id> на каждого подписчика.
type Redis struct {
	cache domain.Cache
	log   zerolog.Logger
}

// New создаёт репозиторий подписчиков.
func New(cache domain.Cache, log zerolog.Logger) *Redis {
	return &Redis{cache: cache, log: log.With().Str("component", "subscribers").Logger()}
}

func userKey(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}

// Subscribe сохраняет подписчика и добавляет его в ростер.
func (r *Redis) Subscribe(sub domain.Subscriber) bool {
	data, err := json.Marshal(sub)
	if err != nil {
		r.log.Error().Err(err).Msg("не удалось сериализовать подписчика")
		return false
	}
	if err := r.cache.Set(userKey(sub.UserID), data, 0); err != nil {
		r.log.Error().Err(err).Int64("user", sub.UserID).Msg("не удалось сохранить подписчика")
		return false
	}
	if err := r.cache.AddToSet(rosterKey, strconv.FormatInt(sub.UserID, 10)); err != nil {
		r.log.Error().Err(err).Int64("user", sub.UserID).Msg("не удалось добавить в ростер")
		return false
	}
	r.log.Info().Int64("user", sub.UserID).Str("username", sub.Username).Msg("подписчик добавлен")
	return true
}

// Unsubscribe убирает подписчика по его собственной просьбе.
func (r *Redis) Unsubscribe(userID int64) bool {
	return r.Remove(userID)
}

// Remove удаляет подписчика из ростера и стирает его запись.
// Используется и при самостоятельной отписке, и при недоступности получателя.
func (r *Redis) Remove(userID int64) bool {
	ok := true
	if err := r.cache.RemoveFromSet(rosterKey, strconv.FormatInt(userID, 10)); err != nil {
		r.log.Error().Err(err).Int64("user", userID).Msg("не удалось убрать из ростера")
		ok = false
	}
	if err := r.cache.Delete(userKey(userID)); err != nil {
		r.log.Error().Err(err).Int64("user", userID).Msg("не удалось удалить запись подписчика")
		ok = false
	}
	return ok
}

// Get возвращает запись подписчика или nil. Повреждённые записи
// логируются и считаются отсутствующими.
func (r *Redis) Get(userID int64) *domain.Subscriber {
	data, err := r.cache.Get(userKey(userID))
	if err != nil {
		return nil
	}
	var sub domain.Subscriber
	if err := json.Unmarshal(data, &sub); err != nil {
		r.log.Warn().Err(err).Int64("user", userID).Msg("повреждённая запись подписчика")
		return nil
	}
	return &sub
}

// List возвращает идентификаторы всех участников ростера.
func (r *Redis) List() []int64 {
	members, err := r.cache.SetMembers(rosterKey)
	if err != nil {
		r.log.Error().Err(err).Msg("не удалось прочитать ростер")
		return nil
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			r.log.Warn().Str("member", m).Msg("нечисловой идентификатор в ростере")
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

var _ domain.SubscriberRepo = (*Redis)(nil)
