package broadcast

import (
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"wagate/internal/logging"
	"wagate/internal/provider"
)

// subscriberBuffer is the per-subscription channel depth. A subscriber that
// falls this far behind is pruned rather than allowed to block the account's
// event stream.
const subscriberBuffer = 64

// Subscription is one listener on one account's event stream.
type Subscription struct {
	ID        string
	AccountID string

	// C delivers events in publish order. It is closed when the
	// subscription is removed.
	C <-chan provider.Event

	ch   chan provider.Event
	done bool // guarded by the broadcaster mutex
}

// Broadcaster fans per-account lifecycle events out to zero or more
// subscribers. It holds no account state and never replays past events.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[string][]*Subscription
	logger logging.Logger

	published prometheus.Counter
	dropped   prometheus.Counter
	active    prometheus.Gauge
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithMetrics registers the broadcaster's counters with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(b *Broadcaster) {
		if reg != nil {
			reg.MustRegister(b.published, b.dropped, b.active)
		}
	}
}

// WithLogger overrides the default component logger.
func WithLogger(logger logging.Logger) Option {
	return func(b *Broadcaster) {
		b.logger = logging.OrNop(logger)
	}
}

func New(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		subs:   make(map[string][]*Subscription),
		logger: logging.NewComponentLogger("Broadcaster"),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wagate_events_published_total",
			Help: "Lifecycle events delivered to subscribers.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wagate_events_dropped_total",
			Help: "Lifecycle events dropped because a subscriber fell behind.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wagate_event_subscribers",
			Help: "Currently connected event subscribers.",
		}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a new listener for accountID. The caller must
// Unsubscribe when the underlying connection closes.
func (b *Broadcaster) Subscribe(accountID string) *Subscription {
	ch := make(chan provider.Event, subscriberBuffer)
	sub := &Subscription{
		ID:        uuid.NewString(),
		AccountID: accountID,
		C:         ch,
		ch:        ch,
	}

	b.mu.Lock()
	b.subs[accountID] = append(b.subs[accountID], sub)
	total := len(b.subs[accountID])
	b.mu.Unlock()

	b.active.Inc()
	b.logger.Info("Subscriber %s registered for account %s (total: %d)", sub.ID, accountID, total)
	return sub
}

// Unsubscribe removes the subscription and closes its channel. Calling it
// again, or with a subscription already pruned by Publish, is a no-op.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	removed := b.removeLocked(sub)
	b.mu.Unlock()

	if removed {
		b.active.Dec()
		b.logger.Info("Subscriber %s unregistered from account %s", sub.ID, sub.AccountID)
	}
}

// removeLocked drops sub from its account's list and closes the channel.
// Caller holds b.mu.
func (b *Broadcaster) removeLocked(sub *Subscription) bool {
	if sub.done {
		return false
	}
	list := b.subs[sub.AccountID]
	for i, s := range list {
		if s.ID == sub.ID {
			b.subs[sub.AccountID] = append(list[:i], list[i+1:]...)
			if len(b.subs[sub.AccountID]) == 0 {
				delete(b.subs, sub.AccountID)
			}
			sub.done = true
			close(sub.ch)
			return true
		}
	}
	return false
}

// Publish delivers ev to every live subscriber of accountID in call order.
// Subscribers whose buffers are full are pruned; delivery to the rest is
// never blocked by one dead connection. With no subscribers it is a no-op.
func (b *Broadcaster) Publish(accountID string, ev provider.Event) {
	// Channels are only closed under the write lock, so sending while the
	// read lock is held can never hit a closed channel. The sends are
	// non-blocking selects, so the lock is never held across real I/O.
	b.mu.RLock()
	snapshot := make([]*Subscription, len(b.subs[accountID]))
	copy(snapshot, b.subs[accountID])

	var stale []*Subscription
	for _, sub := range snapshot {
		select {
		case sub.ch <- ev:
			b.published.Inc()
		default:
			b.logger.Warn("Subscriber %s for account %s fell behind, pruning (event %s)", sub.ID, accountID, ev.Kind())
			b.dropped.Inc()
			stale = append(stale, sub)
		}
	}
	b.mu.RUnlock()

	if len(stale) > 0 {
		b.mu.Lock()
		for _, sub := range stale {
			if b.removeLocked(sub) {
				b.active.Dec()
			}
		}
		b.mu.Unlock()
	}
}

// SubscriberCount returns the number of live subscriptions for accountID.
func (b *Broadcaster) SubscriberCount(accountID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[accountID])
}
