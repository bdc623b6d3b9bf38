package bus

import (
	"sync"

	"storefront-gateway/internal/models"
)

// Event names the UI collaborators bind to.
const (
	EventLoginRequired   = "login-required"
	EventLoginCompleted  = "login-completed"
	EventLogoutCompleted = "logout-completed"
)

// LoginRequired asks the UI to show a login prompt without navigating
// away from the current page.
type LoginRequired struct {
	Message     string `json:"message"`
	RedirectURL string `json:"redirect_url"`
}

// LoginCompleted carries the freshly authenticated user.
type LoginCompleted struct {
	User *models.User `json:"user"`
}

// LogoutCompleted signals that the session was cleared.
type LogoutCompleted struct {
	ResetCounters bool `json:"reset_counters"`
}

// Handler receives an event payload.
type Handler func(payload interface{})

type subscription struct {
	id int
	fn Handler
}

// Bus is a minimal in-process publish/subscribe service. Publish is
// synchronous and fires current subscribers in registration order.
// Events are not replayed: a subscriber registered after an event
// fired will not see it.
type Bus struct {
	mu   sync.Mutex
	next int
	subs map[string][]subscription
}

func New() *Bus {
	return &Bus{subs: make(map[string][]subscription)}
}

// Subscribe registers fn for the named event and returns a disposer
// that removes the subscription. The disposer is safe to call more
// than once.
func (b *Bus) Subscribe(event string, fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	id := b.next
	b.subs[event] = append(b.subs[event], subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[event]
		for i, s := range list {
			if s.id == id {
				b.subs[event] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers payload to every current subscriber of the named
// event, in registration order, on the caller's goroutine.
func (b *Bus) Publish(event string, payload interface{}) {
	b.mu.Lock()
	list := make([]subscription, len(b.subs[event]))
	copy(list, b.subs[event])
	b.mu.Unlock()

	for _, s := range list {
		s.fn(payload)
	}
}
