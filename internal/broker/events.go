package broker

import (
	"sync"

	"github.com/rs/zerolog"
)

// Updated is published after a message envelope has been durably appended.
type Updated struct {
	ID       string // chat id
	Time     int64  // modified timestamp, unix seconds
	Envelope string // the stored envelope, sg already transformed
}

// Subscription delivers Updated events for a single chat. Events arrive on
// C; Cancel unregisters the subscription and closes C.
type Subscription struct {
	C      <-chan Updated
	ch     chan Updated
	cancel func()
	once   sync.Once
}

// Cancel unregisters the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// subscriptionBuffer bounds how far a slow consumer may lag before events
// are dropped for it. Dropping beats blocking the write path.
const subscriptionBuffer = 16

// registry keeps the per-chat subscriber lists. Keying by chat id bounds
// publish cost to the room's own subscribers instead of every live
// connection in the process.
type registry struct {
	mu     sync.RWMutex
	chats  map[string]map[*Subscription]struct{}
	logger zerolog.Logger
}

func newRegistry(logger zerolog.Logger) *registry {
	return &registry{
		chats:  make(map[string]map[*Subscription]struct{}),
		logger: logger.With().Str("component", "events").Logger(),
	}
}

func (r *registry) subscribe(chatID string) *Subscription {
	sub := &Subscription{ch: make(chan Updated, subscriptionBuffer)}
	sub.C = sub.ch
	sub.cancel = func() {
		r.mu.Lock()
		if subs, ok := r.chats[chatID]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(r.chats, chatID)
			}
		}
		r.mu.Unlock()
		close(sub.ch)
	}

	r.mu.Lock()
	subs, ok := r.chats[chatID]
	if !ok {
		subs = make(map[*Subscription]struct{})
		r.chats[chatID] = subs
	}
	subs[sub] = struct{}{}
	r.mu.Unlock()
	return sub
}

func (r *registry) publish(ev Updated) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for sub := range r.chats[ev.ID] {
		select {
		case sub.ch <- ev:
		default:
			r.logger.Warn().Str("chat", ev.ID).Msg("dropping update for slow subscriber")
		}
	}
}
