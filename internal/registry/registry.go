// Package registry owns the one-to-one mapping of account identifiers to
// live provider clients and relays their lifecycle events to the broadcaster
// and the account directory.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"wagate/internal/broadcast"
	"wagate/internal/logging"
	"wagate/internal/provider"
	"wagate/internal/store"
)

var (
	// ErrInvalidAccountID indicates a malformed account identifier.
	ErrInvalidAccountID = errors.New("invalid account id")

	// ErrNoSession indicates no active session exists for the account.
	ErrNoSession = errors.New("no active session")
)

// statusUpdateTimeout bounds directory writes triggered by lifecycle events
// so a slow store cannot stall the provider's event loop.
const statusUpdateTimeout = 5 * time.Second

// ValidateAccountID enforces the identifier contract: non-empty, no
// embedded whitespace.
func ValidateAccountID(accountID string) error {
	if accountID == "" {
		return fmt.Errorf("%w: empty", ErrInvalidAccountID)
	}
	if strings.IndexFunc(accountID, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidAccountID, accountID)
	}
	return nil
}

// Session pairs an account with its live provider client. At most one exists
// per account at a time.
type Session struct {
	AccountID string
	CreatedAt time.Time

	mu     sync.RWMutex
	client provider.Client
	ready  bool
}

// Client returns the provider client, which may briefly be nil while the
// session is still being constructed.
func (s *Session) Client() provider.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// Ready reports whether the provider client has reached the ready state.
func (s *Session) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

func (s *Session) setClient(c provider.Client) {
	s.mu.Lock()
	s.client = c
	s.mu.Unlock()
}

func (s *Session) setReady(ready bool) {
	s.mu.Lock()
	s.ready = ready
	s.mu.Unlock()
}

// ReconnectPolicy schedules reinitialization after a disconnect. A nil
// policy disables automatic reconnection (the default in tests).
type ReconnectPolicy struct {
	// MaxAttempts caps consecutive reconnects; 0 means unlimited.
	MaxAttempts int
	// Backoff returns the delay before attempt n (1-based).
	Backoff func(attempt int) time.Duration
}

// DefaultReconnectPolicy doubles a 5s delay per attempt, capped at 5m.
func DefaultReconnectPolicy() *ReconnectPolicy {
	return &ReconnectPolicy{
		MaxAttempts: 10,
		Backoff: func(attempt int) time.Duration {
			delay := 5 * time.Second << (attempt - 1)
			if delay > 5*time.Minute || delay <= 0 {
				delay = 5 * time.Minute
			}
			return delay
		},
	}
}

// Registry is the process-wide session table. All dependencies are injected
// so independent registries can coexist in tests.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	attempts map[string]int

	factory     provider.Factory
	broadcaster *broadcast.Broadcaster
	accounts    store.AccountStore // optional
	policy      *ReconnectPolicy   // optional
	logger      logging.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithAccountStore wires the durable account directory.
func WithAccountStore(accounts store.AccountStore) Option {
	return func(r *Registry) { r.accounts = accounts }
}

// WithReconnectPolicy enables automatic reinitialization after disconnects.
func WithReconnectPolicy(policy *ReconnectPolicy) Option {
	return func(r *Registry) { r.policy = policy }
}

// WithLogger overrides the default component logger.
func WithLogger(logger logging.Logger) Option {
	return func(r *Registry) { r.logger = logging.OrNop(logger) }
}

func New(factory provider.Factory, broadcaster *broadcast.Broadcaster, opts ...Option) *Registry {
	r := &Registry{
		sessions:    make(map[string]*Session),
		attempts:    make(map[string]int),
		factory:     factory,
		broadcaster: broadcaster,
		logger:      logging.NewComponentLogger("Registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the existing session for accountID or constructs a new
// one. The second return value reports whether a session was created.
// Creation wires lifecycle events exactly once and starts initialization
// asynchronously; initialization failures surface as error events, never as
// a synchronous error here.
func (r *Registry) GetOrCreate(ctx context.Context, accountID string) (*Session, bool, error) {
	if err := ValidateAccountID(accountID); err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	if existing, ok := r.sessions[accountID]; ok {
		r.mu.Unlock()
		return existing, false, nil
	}
	// Reserve the slot before constructing the client so a concurrent call
	// for the same account returns this session instead of building a
	// duplicate. The mutex is never held across the factory call.
	session := &Session{AccountID: accountID, CreatedAt: time.Now()}
	r.sessions[accountID] = session
	r.mu.Unlock()

	client, err := r.factory.New(accountID, func(ev provider.Event) {
		r.handleEvent(accountID, ev)
	})
	if err != nil {
		r.mu.Lock()
		delete(r.sessions, accountID)
		r.mu.Unlock()
		return nil, false, fmt.Errorf("create provider client for %q: %w", accountID, err)
	}
	session.setClient(client)

	r.setStatus(accountID, store.StatusInitialized)

	if err := client.Start(ctx); err != nil {
		// Start only fails on wiring problems; the session stays so callers
		// observe the failure through the error event stream.
		r.logger.Error("Failed to start client for account %s: %v", accountID, err)
		r.broadcaster.Publish(accountID, provider.ErrorEvent{Message: err.Error()})
	}

	r.logger.Info("Session created for account %s", accountID)
	return session, true, nil
}

// Get returns the active session or ErrNoSession.
func (r *Registry) Get(accountID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[accountID]
	if !ok {
		return nil, fmt.Errorf("account %q: %w", accountID, ErrNoSession)
	}
	return session, nil
}

// Remove tears down the session and deletes its credential artifacts.
// Returns false when no session was active. The registry entry is dropped
// even when teardown fails, so the account can always be recreated.
func (r *Registry) Remove(ctx context.Context, accountID string) (bool, error) {
	r.mu.Lock()
	session, ok := r.sessions[accountID]
	delete(r.sessions, accountID)
	delete(r.attempts, accountID)
	r.mu.Unlock()

	if !ok {
		return false, nil
	}

	if client := session.Client(); client != nil {
		if err := client.Logout(ctx); err != nil {
			r.logger.Warn("Teardown for account %s reported: %v", accountID, err)
		}
		client.Close()
	}

	r.setStatus(accountID, store.StatusDisconnected)
	r.logger.Info("Session removed for account %s", accountID)
	return true, nil
}

// handleEvent is the single exhaustive consumer of provider lifecycle
// events: it updates the session's ready flag and the account directory,
// applies the disconnect policy, then fans the event out to subscribers.
func (r *Registry) handleEvent(accountID string, ev provider.Event) {
	switch e := ev.(type) {
	case provider.QrEvent:
		r.setStatus(accountID, store.StatusInitialized)
	case provider.AuthenticatedEvent:
		r.setStatus(accountID, store.StatusAuthenticated)
	case provider.ReadyEvent:
		r.markReady(accountID, true)
		r.resetAttempts(accountID)
		r.setStatus(accountID, store.StatusReady)
	case provider.AuthFailureEvent:
		r.markReady(accountID, false)
		r.setStatus(accountID, store.StatusAuthFailure)
	case provider.ErrorEvent:
		r.markReady(accountID, false)
	case provider.DisconnectedEvent:
		r.markReady(accountID, false)
		r.setStatus(accountID, store.StatusDisconnected)
		r.dropSession(accountID, e.Reason)
	case provider.LoadingEvent, provider.MessageEvent:
		// informational only
	}

	r.broadcaster.Publish(accountID, ev)
}

// dropSession removes the in-memory entry after a disconnect so the next
// request recreates it, and schedules a reconnect when a policy is set.
func (r *Registry) dropSession(accountID, reason string) {
	r.mu.Lock()
	session, ok := r.sessions[accountID]
	if ok {
		delete(r.sessions, accountID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	if client := session.Client(); client != nil {
		client.Close()
	}
	r.logger.Info("Session dropped for account %s (%s)", accountID, reason)
	r.scheduleReconnect(accountID)
}

func (r *Registry) scheduleReconnect(accountID string) {
	if r.policy == nil {
		return
	}

	r.mu.Lock()
	r.attempts[accountID]++
	attempt := r.attempts[accountID]
	r.mu.Unlock()

	if r.policy.MaxAttempts > 0 && attempt > r.policy.MaxAttempts {
		r.logger.Warn("Giving up on account %s after %d reconnect attempts", accountID, attempt-1)
		return
	}

	delay := r.policy.Backoff(attempt)
	r.logger.Info("Scheduling reconnect for account %s in %s (attempt %d)", accountID, delay, attempt)
	time.AfterFunc(delay, func() {
		if _, _, err := r.GetOrCreate(context.Background(), accountID); err != nil {
			r.logger.Error("Reconnect for account %s failed: %v", accountID, err)
		}
	})
}

func (r *Registry) resetAttempts(accountID string) {
	r.mu.Lock()
	delete(r.attempts, accountID)
	r.mu.Unlock()
}

func (r *Registry) markReady(accountID string, ready bool) {
	r.mu.Lock()
	session, ok := r.sessions[accountID]
	r.mu.Unlock()
	if ok {
		session.setReady(ready)
	}
}

func (r *Registry) setStatus(accountID, status string) {
	if r.accounts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), statusUpdateTimeout)
	defer cancel()
	if err := r.accounts.UpdateStatus(ctx, accountID, status); err != nil && !errors.Is(err, store.ErrNotFound) {
		r.logger.Warn("Failed to record status %s for account %s: %v", status, accountID, err)
	}
}

// ActiveAccounts returns the account IDs with a live session.
func (r *Registry) ActiveAccounts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown closes every live client without logging accounts out, for
// graceful process exit.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		if client := s.Client(); client != nil {
			client.Close()
		}
	}
}
