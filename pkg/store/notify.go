package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// broadcaster fans change notifications out to subscribers.
//
// Each subscriber owns a channel with room for one pending notification.
// Publishing never blocks: a subscriber that has not consumed its previous
// notification keeps that one, which already tells it to re-read.
type broadcaster struct {
	mu   sync.Mutex
	seq  uint64
	subs map[uuid.UUID]chan Notification
}

func newBroadcaster() *broadcaster {
	return &broadcaster{
		subs: make(map[uuid.UUID]chan Notification),
	}
}

func (b *broadcaster) subscribe() (<-chan Notification, func()) {
	id := uuid.New()
	ch := make(chan Notification, 1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

func (b *broadcaster) publish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	n := Notification{Seq: b.seq, At: time.Now()}
	for _, ch := range b.subs {
		select {
		case ch <- n:
		default:
		}
	}
}

func (b *broadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subs)
}

// Wait blocks until the next committed change or until ctx is done. The
// subscription is always released before Wait returns.
func (s *Store) Wait(ctx context.Context) (Notification, error) {
	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	select {
	case <-ctx.Done():
		return Notification{}, ctx.Err()
	case n := <-ch:
		return n, nil
	}
}
