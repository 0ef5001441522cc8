package mtproto

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"

	"markettwits-summarizer/internal/domain"
	"markettwits-summarizer/internal/infra/metrics"
)

const (
	connectTimeout = 15 * time.Second
	historyPage    = 100
)

// Fetcher выгружает сообщения канала через MTProto.
// Подключение устанавливается лениво и переиспользуется между вызовами;
// переходы connect/disconnect сериализованы мьютексом.
type Fetcher struct {
	client      *telegram.Client
	channel     string
	sessionPath string
	log         zerolog.Logger

	mu        sync.Mutex
	connected bool
	stop      context.CancelFunc
	runDone   chan error

	peerMu sync.Mutex
	peer   *tg.InputPeerChannel
}

// NewFetcher создаёт MTProto клиента с файловой сессией.
func NewFetcher(apiID int, apiHash, sessionPath, channel string, log zerolog.Logger) *Fetcher {
	storage := &session.FileStorage{Path: sessionPath}
	client := telegram.NewClient(apiID, apiHash, telegram.Options{SessionStorage: storage})
	return &Fetcher{
		client:      client,
		channel:     strings.TrimPrefix(channel, "@"),
		sessionPath: sessionPath,
		log:         log.With().Str("component", "mtproto_fetcher").Logger(),
	}
}

// ensureConnected поднимает фоновую сессию, если её ещё нет.
// Конкурентные вызовы не открывают дублирующих соединений.
func (f *Fetcher) ensureConnected(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connected {
		return nil
	}

	// Сессия могла быть перенесена из Telethon, gotd её не прочитает.
	if err := ensureGotdSession(f.sessionPath, f.log); err != nil {
		f.log.Warn().Err(err).Msg("не удалось нормализовать файл сессии")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- f.client.Run(runCtx, func(ctx context.Context) error {
			close(ready)
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	select {
	case <-ready:
		f.connected = true
		f.stop = cancel
		f.runDone = done
		f.log.Info().Msg("подключение к Telegram установлено")
		return nil
	case err := <-done:
		cancel()
		if err == nil {
			err = errors.New("сессия завершилась до инициализации")
		}
		return fmt.Errorf("подключение к Telegram: %w", err)
	case <-time.After(connectTimeout):
		cancel()
		<-done
		return errors.New("таймаут подключения к Telegram")
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

// Close разрывает соединение.
func (f *Fetcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return
	}
	f.stop()
	<-f.runDone
	f.connected = false
	f.peerMu.Lock()
	f.peer = nil
	f.peerMu.Unlock()
	f.log.Info().Msg("подключение к Telegram закрыто")
}

// resolvePeer находит канал по имени и кэширует InputPeer.
func (f *Fetcher) resolvePeer(ctx context.Context) (*tg.InputPeerChannel, error) {
	f.peerMu.Lock()
	defer f.peerMu.Unlock()
	if f.peer != nil {
		return f.peer, nil
	}

	start := time.Now()
	resolved, err := f.client.API().ContactsResolveUsername(ctx, f.channel)
	metrics.ObserveNetworkRequest("mtproto", "resolve_username", f.channel, start, err)
	if err != nil {
		return nil, fmt.Errorf("резолв канала %s: %w", f.channel, err)
	}
	for _, chat := range resolved.Chats {
		channel, ok := chat.(*tg.Channel)
		if !ok {
			continue
		}
		f.peer = &tg.InputPeerChannel{ChannelID: channel.ID, AccessHash: channel.AccessHash}
		return f.peer, nil
	}
	return nil, fmt.Errorf("канал %s не найден среди чатов", f.channel)
}

// Fetch возвращает до limit последних сообщений новее since, оставляя только
// сообщения с непустым текстом. Любой сбой соединения или протокола логируется
// и превращается в пустой результат: вызывающий пайплайн не должен падать
// из-за временной недоступности источника.
func (f *Fetcher) Fetch(ctx context.Context, since time.Time, limit int) []domain.NewsItem {
	if err := f.ensureConnected(ctx); err != nil {
		metrics.FetchErrors.Inc()
		f.log.Error().Err(err).Msg("не удалось подключиться к Telegram")
		return nil
	}

	peer, err := f.resolvePeer(ctx)
	if err != nil {
		metrics.FetchErrors.Inc()
		f.log.Error().Err(err).Msg("не удалось получить канал")
		return nil
	}

	var items []domain.NewsItem
	offsetID := 0

	// История отдаётся от новых к старым: идём страницами назад,
	// пока не наберём лимит или не дойдём до водяного знака.
	for len(items) < limit {
		page := historyPage
		if rest := limit - len(items); rest < page {
			page = rest
		}

		start := time.Now()
		history, err := f.client.API().MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:     peer,
			OffsetID: offsetID,
			Limit:    page,
		})
		metrics.ObserveNetworkRequest("mtproto", "get_history", f.channel, start, err)
		if err != nil {
			metrics.FetchErrors.Inc()
			f.log.Error().Err(err).Msg("не удалось получить историю канала")
			return nil
		}

		messages, ok := history.(*tg.MessagesChannelMessages)
		if !ok {
			f.log.Error().Str("type", fmt.Sprintf("%T", history)).Msg("неожиданный формат истории")
			return nil
		}
		if len(messages.Messages) == 0 {
			break
		}

		var nextOffset int
		var reachedSince bool
		items, nextOffset, reachedSince = mergePage(items, messages.Messages, since, limit)
		if reachedSince {
			break
		}
		// Страница без продвижения курсора зациклила бы запросы.
		if nextOffset == 0 || nextOffset == offsetID {
			f.log.Warn().Int("offset_id", offsetID).Msg("страница истории не продвинула курсор")
			break
		}
		offsetID = nextOffset
	}

	metrics.FetchedItems.Add(float64(len(items)))
	f.log.Info().Int("count", len(items)).Time("since", since).Msg("сообщения канала выгружены")
	return items
}

// mergePage переносит пригодные сообщения страницы в накопитель и возвращает
// курсор для следующего запроса. Курсор двигается по каждому элементу с
// идентификатором: служебные и пустые сообщения не содержат текста, но
// пропускать их без продвижения курсора нельзя, иначе та же страница
// запрашивалась бы бесконечно.
func mergePage(items []domain.NewsItem, page []tg.MessageClass, since time.Time, limit int) ([]domain.NewsItem, int, bool) {
	offsetID := 0
	for _, raw := range page {
		if withID, ok := raw.(interface{ GetID() int }); ok {
			offsetID = withID.GetID()
		}
		msg, ok := raw.(*tg.Message)
		if !ok {
			continue
		}
		published := time.Unix(int64(msg.Date), 0)
		if !published.After(since) {
			return items, offsetID, true
		}
		if strings.TrimSpace(msg.Message) == "" {
			continue
		}
		items = append(items, mapMessage(msg, published))
		if len(items) >= limit {
			break
		}
	}
	return items, offsetID, false
}

func mapMessage(msg *tg.Message, published time.Time) domain.NewsItem {
	item := domain.NewsItem{
		MessageID: int64(msg.ID),
		Text:      msg.Message,
		Date:      published,
	}
	if views, ok := msg.GetViews(); ok {
		item.Views = &views
	}
	if forwards, ok := msg.GetForwards(); ok {
		item.Forwards = &forwards
	}
	return item
}

var _ domain.Fetcher = (*Fetcher)(nil)
