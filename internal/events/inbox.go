package events

import (
	"context"
	"sync"
)

// DefaultInboxSize: сколько последних событий хранится для одного пользователя.
const DefaultInboxSize = 50

// Inbox хранит ленту уведомлений пользователей в памяти процесса. Для каждого
// пользователя хранится не больше size последних событий, старые вытесняются.
type Inbox struct {
	mu    sync.RWMutex
	size  int
	feeds map[int64][]Event
}

// NewInbox создаёт ленту с ограничением size событий на пользователя.
func NewInbox(size int) *Inbox {
	if size <= 0 {
		size = DefaultInboxSize
	}
	return &Inbox{size: size, feeds: make(map[int64][]Event)}
}

// Publish добавляет события в ленты их получателей.
func (in *Inbox) Publish(_ context.Context, evs ...Event) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	for _, e := range evs {
		if e.UserID == 0 {
			continue
		}
		feed := append(in.feeds[e.UserID], e)
		if len(feed) > in.size {
			feed = append(feed[:0:0], feed[len(feed)-in.size:]...)
		}
		in.feeds[e.UserID] = feed
	}
	return nil
}

// For возвращает до limit последних событий пользователя, начиная с новых.
// При limit <= 0 возвращаются все сохранённые.
func (in *Inbox) For(userID int64, limit int) []Event {
	in.mu.RLock()
	defer in.mu.RUnlock()

	feed := in.feeds[userID]
	if limit <= 0 || limit > len(feed) {
		limit = len(feed)
	}
	res := make([]Event, 0, limit)
	for i := len(feed) - 1; i >= 0 && len(res) < limit; i-- {
		res = append(res, feed[i])
	}
	return res
}
