package mtproto

import (
	"testing"
	"time"

	"github.com/gotd/td/tg"

	"markettwits-summarizer/internal/domain"
)

func TestMergePageAdvancesCursorPastServiceMessages(t *testing.T) {
	now := int(time.Now().Unix())
	page := []tg.MessageClass{
		&tg.MessageService{ID: 50, Date: now},
		&tg.MessageEmpty{ID: 49},
		&tg.MessageService{ID: 48, Date: now},
	}

	items, offset, reached := mergePage(nil, page, time.Time{}, 10)
	if len(items) != 0 {
		t.Fatalf("служебные сообщения не дают новостей: %v", items)
	}
	if reached {
		t.Fatalf("водяной знак не должен считаться достигнутым")
	}
	if offset != 48 {
		t.Fatalf("курсор должен пройти всю страницу, получили %d", offset)
	}
}

func TestMergePageCollectsAndStopsAtWatermark(t *testing.T) {
	since := time.Date(2026, 4, 2, 21, 0, 0, 0, time.UTC)
	newer := int(since.Add(time.Hour).Unix())
	older := int(since.Add(-time.Hour).Unix())
	page := []tg.MessageClass{
		&tg.Message{ID: 10, Message: "свежая новость", Date: newer},
		&tg.Message{ID: 9, Message: "   ", Date: newer},
		&tg.MessageService{ID: 8, Date: newer},
		&tg.Message{ID: 7, Message: "уже слитая новость", Date: older},
		&tg.Message{ID: 6, Message: "ещё старее", Date: older},
	}

	items, offset, reached := mergePage(nil, page, since, 10)
	if len(items) != 1 {
		t.Fatalf("ожидали 1 новость до водяного знака, получили %d", len(items))
	}
	if items[0].MessageID != 10 {
		t.Fatalf("ожидали сообщение 10, получили %d", items[0].MessageID)
	}
	if !reached {
		t.Fatalf("водяной знак должен останавливать обход")
	}
	if offset != 7 {
		t.Fatalf("курсор должен указывать на первое сообщение не новее since, получили %d", offset)
	}
}

func TestMergePageRespectsLimit(t *testing.T) {
	now := int(time.Now().Unix())
	page := []tg.MessageClass{
		&tg.Message{ID: 3, Message: "первая", Date: now},
		&tg.Message{ID: 2, Message: "вторая", Date: now},
		&tg.Message{ID: 1, Message: "третья", Date: now},
	}

	var items []domain.NewsItem
	items, offset, reached := mergePage(items, page, time.Time{}, 2)
	if len(items) != 2 {
		t.Fatalf("лимит должен останавливать набор, получили %d", len(items))
	}
	if reached {
		t.Fatalf("лимит не является водяным знаком")
	}
	if offset != 2 {
		t.Fatalf("курсор должен стоять на последнем взятом сообщении, получили %d", offset)
	}
}

func TestMergePageEmptyOffsetSignalsNoProgress(t *testing.T) {
	_, offset, _ := mergePage(nil, nil, time.Time{}, 10)
	if offset != 0 {
		t.Fatalf("пустая страница не даёт курсора, получили %d", offset)
	}
}
