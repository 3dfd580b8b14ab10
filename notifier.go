package identity

import (
	"context"
	"sync"
)

// Event names dispatched by the identity service.
const (
	EventSignup                       = "auth/signup"
	EventSignin                       = "auth/signin"
	EventRefresh                      = "auth/refresh"
	EventChangePassword               = "auth/change-password"
	EventUpsert                       = "auth/upsert"
	EventRemove                       = "auth/remove"
	EventConfirmEmailTokenGenerated   = "auth/confirm-email-token-generated"
	EventConfirmEmailTokenConfirmed   = "auth/confirm-email-token-confirmed"
	EventForgotPasswordTokenGenerated = "auth/forgot-password-token-generated"
	EventForgotPasswordTokenConfirmed = "auth/forgot-password-token-confirmed"
)

// Notification is handed to each subscriber in turn during a dispatch.
type Notification struct {
	Name    string
	Payload map[string]any

	stopped bool
}

// StopPropagation prevents subscribers registered before this one from
// running in the current dispatch.
func (n *Notification) StopPropagation() {
	n.stopped = true
}

// Subscriber consumes a notification. A returned error is logged and
// swallowed; it never reaches the dispatching flow.
type Subscriber func(ctx context.Context, n *Notification) error

// Notifier is an explicit per-application registry for named events.
// Construct one per application instance and pass it by reference; it is
// never a process-wide singleton, so separate instances (e.g. in tests)
// cannot cross-talk.
//
// Delivery is sequential and last-registered-first-served; a subscriber may
// stop propagation to earlier-registered subscribers.
type Notifier struct {
	mu          sync.RWMutex
	subscribers map[string][]subscription
	nextID      int64
	logger      Logger
}

type subscription struct {
	id int64
	fn Subscriber
}

// NewNotifier creates an empty registry.
func NewNotifier(logger Logger) *Notifier {
	if logger == nil {
		logger = defLogger{}
	}
	return &Notifier{
		subscribers: make(map[string][]subscription),
		logger:      logger,
	}
}

// Subscribe registers fn for event and returns an unsubscribe function.
func (n *Notifier) Subscribe(event string, fn Subscriber) func() {
	if fn == nil {
		return func() {}
	}

	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.subscribers[event] = append(n.subscribers[event], subscription{id: id, fn: fn})
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		subs := n.subscribers[event]
		for i, s := range subs {
			if s.id == id {
				n.subscribers[event] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// HasSubscribers reports whether a dispatch for event would reach anyone.
// Non-critical flows check this before building payloads.
func (n *Notifier) HasSubscribers(event string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subscribers[event]) > 0
}

// Dispatch delivers the payload to every subscriber of event, most recently
// registered first. Subscriber errors and panics are logged and swallowed: a
// misbehaving subscriber must not crash the dispatching flow.
func (n *Notifier) Dispatch(ctx context.Context, event string, payload map[string]any) {
	n.mu.RLock()
	subs := make([]subscription, len(n.subscribers[event]))
	copy(subs, n.subscribers[event])
	n.mu.RUnlock()

	note := &Notification{Name: event, Payload: payload}
	for i := len(subs) - 1; i >= 0; i-- {
		n.notify(ctx, subs[i].fn, note)
		if note.stopped {
			return
		}
	}
}

func (n *Notifier) notify(ctx context.Context, fn Subscriber, note *Notification) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("subscriber panicked", "event", note.Name, "panic", r)
		}
	}()

	if err := fn(ctx, note); err != nil {
		n.logger.Error("subscriber failed", "event", note.Name, "error", err)
	}
}
