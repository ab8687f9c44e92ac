package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wagate/internal/broadcast"
	"wagate/internal/logging"
	"wagate/internal/provider"
	"wagate/internal/provider/providertest"
)

func newTestRegistry(opts ...Option) (*Registry, *providertest.Factory, *broadcast.Broadcaster) {
	factory := providertest.NewFactory()
	broadcaster := broadcast.New(broadcast.WithLogger(logging.Nop()))
	opts = append(opts, WithLogger(logging.Nop()))
	return New(factory, broadcaster, opts...), factory, broadcaster
}

func TestValidateAccountID(t *testing.T) {
	valid := []string{"alice", "shop-01", "user_42", "ACME"}
	for _, id := range valid {
		if err := ValidateAccountID(id); err != nil {
			t.Errorf("Expected %q to be valid, got %v", id, err)
		}
	}

	invalid := []string{"", "with space", "tab\there", "new\nline"}
	for _, id := range invalid {
		if err := ValidateAccountID(id); !errors.Is(err, ErrInvalidAccountID) {
			t.Errorf("Expected %q to be invalid, got %v", id, err)
		}
	}
}

func TestRegistry_GetOrCreateIsIdempotent(t *testing.T) {
	reg, factory, _ := newTestRegistry()
	ctx := context.Background()

	first, created, err := reg.GetOrCreate(ctx, "alice")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if !created {
		t.Error("Expected first call to create a session")
	}

	second, created, err := reg.GetOrCreate(ctx, "alice")
	if err != nil {
		t.Fatalf("Second GetOrCreate failed: %v", err)
	}
	if created {
		t.Error("Expected second call to reuse the session")
	}
	if first != second {
		t.Error("Expected both calls to return the same session")
	}
	if got := factory.Created("alice"); got != 1 {
		t.Errorf("Expected exactly 1 client, got %d", got)
	}
	if !factory.Client("alice").Started() {
		t.Error("Expected the client to be started")
	}
}

func TestRegistry_ConcurrentGetOrCreateBuildsOneClient(t *testing.T) {
	reg, factory, _ := newTestRegistry()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := reg.GetOrCreate(ctx, "alice"); err != nil {
				t.Errorf("GetOrCreate failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := factory.Created("alice"); got != 1 {
		t.Errorf("Expected exactly 1 client under concurrency, got %d", got)
	}
}

func TestRegistry_GetOrCreateRejectsInvalidID(t *testing.T) {
	reg, factory, _ := newTestRegistry()

	if _, _, err := reg.GetOrCreate(context.Background(), "bad id"); !errors.Is(err, ErrInvalidAccountID) {
		t.Errorf("Expected ErrInvalidAccountID, got %v", err)
	}
	if got := factory.Created("bad id"); got != 0 {
		t.Errorf("Expected no clients, got %d", got)
	}
}

func TestRegistry_FactoryFailureLeavesNoEntry(t *testing.T) {
	reg, factory, _ := newTestRegistry()
	factory.NewErr = errors.New("boom")

	if _, _, err := reg.GetOrCreate(context.Background(), "alice"); err == nil {
		t.Fatal("Expected an error from GetOrCreate")
	}

	// The placeholder must be gone so a later call can succeed.
	factory.NewErr = nil
	if _, created, err := reg.GetOrCreate(context.Background(), "alice"); err != nil || !created {
		t.Errorf("Expected a fresh session after failure, got created=%v err=%v", created, err)
	}
}

func TestRegistry_ReadyTransitions(t *testing.T) {
	reg, factory, _ := newTestRegistry()
	ctx := context.Background()

	session, _, err := reg.GetOrCreate(ctx, "alice")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if session.Ready() {
		t.Error("Expected a new session to not be ready")
	}

	client := factory.Client("alice")
	client.Emit(provider.QrEvent{Code: "qr-data"})
	if session.Ready() {
		t.Error("Expected qr to leave the session not ready")
	}

	client.Emit(provider.AuthenticatedEvent{})
	client.Emit(provider.ReadyEvent{})
	if !session.Ready() {
		t.Error("Expected ready after ReadyEvent")
	}

	client.Emit(provider.AuthFailureEvent{Message: "denied"})
	if session.Ready() {
		t.Error("Expected auth failure to clear readiness")
	}
}

func TestRegistry_DisconnectDropsSession(t *testing.T) {
	reg, factory, broadcaster := newTestRegistry()
	ctx := context.Background()

	if _, _, err := reg.GetOrCreate(ctx, "alice"); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	client := factory.Client("alice")
	client.Emit(provider.ReadyEvent{})

	// Subscribe after setup so the disconnected event is the first one seen.
	sub := broadcaster.Subscribe("alice")
	defer broadcaster.Unsubscribe(sub)

	client.Emit(provider.DisconnectedEvent{Reason: "stream replaced"})

	select {
	case ev := <-sub.C:
		if ev.Kind() != "disconnected" {
			t.Fatalf("Expected disconnected, got %s", ev.Kind())
		}
		// A subscriber observing the event must find the session gone.
		if _, err := reg.Get("alice"); !errors.Is(err, ErrNoSession) {
			t.Errorf("Expected ErrNoSession after disconnect, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for the disconnected event")
	}

	if !client.Closed() {
		t.Error("Expected the dropped client to be closed")
	}
}

func TestRegistry_ReconnectPolicyRebuildsSession(t *testing.T) {
	policy := &ReconnectPolicy{
		MaxAttempts: 3,
		Backoff:     func(int) time.Duration { return time.Millisecond },
	}
	reg, factory, _ := newTestRegistry(WithReconnectPolicy(policy))
	ctx := context.Background()

	if _, _, err := reg.GetOrCreate(ctx, "alice"); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	factory.Client("alice").Emit(provider.DisconnectedEvent{Reason: "network"})

	deadline := time.After(2 * time.Second)
	for factory.Created("alice") < 2 {
		select {
		case <-deadline:
			t.Fatal("Timed out waiting for the reconnect attempt")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRegistry_ReadyResetsReconnectAttempts(t *testing.T) {
	policy := &ReconnectPolicy{
		MaxAttempts: 2,
		Backoff:     func(int) time.Duration { return time.Millisecond },
	}
	reg, factory, _ := newTestRegistry(WithReconnectPolicy(policy))
	ctx := context.Background()

	if _, _, err := reg.GetOrCreate(ctx, "alice"); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	// Two full disconnect/reconnect cycles, each healed by a ready event, must
	// not exhaust a MaxAttempts of 2.
	for cycle := 0; cycle < 3; cycle++ {
		client := factory.Client("alice")
		client.Emit(provider.ReadyEvent{})
		client.Emit(provider.DisconnectedEvent{Reason: "network"})

		want := cycle + 2
		deadline := time.After(2 * time.Second)
		for factory.Created("alice") < want {
			select {
			case <-deadline:
				t.Fatalf("Cycle %d: timed out waiting for client %d", cycle, want)
			case <-time.After(5 * time.Millisecond):
			}
		}
	}
}

func TestRegistry_RemoveLogsOutAndReports(t *testing.T) {
	reg, factory, _ := newTestRegistry()
	ctx := context.Background()

	if _, _, err := reg.GetOrCreate(ctx, "alice"); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	wasActive, err := reg.Remove(ctx, "alice")
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if !wasActive {
		t.Error("Expected wasActive for a live session")
	}

	client := factory.Client("alice")
	if !client.LoggedOut() {
		t.Error("Expected Logout to be called")
	}
	if !client.Closed() {
		t.Error("Expected Close to be called")
	}

	wasActive, err = reg.Remove(ctx, "alice")
	if err != nil {
		t.Fatalf("Second Remove failed: %v", err)
	}
	if wasActive {
		t.Error("Expected wasActive=false for a missing session")
	}
}

func TestRegistry_RemoveSucceedsWhenLogoutFails(t *testing.T) {
	reg, factory, _ := newTestRegistry()
	ctx := context.Background()

	if _, _, err := reg.GetOrCreate(ctx, "alice"); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	factory.Client("alice").LogoutErr = errors.New("transport gone")

	wasActive, err := reg.Remove(ctx, "alice")
	if err != nil {
		t.Fatalf("Remove must not propagate logout errors, got %v", err)
	}
	if !wasActive {
		t.Error("Expected wasActive despite the logout failure")
	}
	if _, err := reg.Get("alice"); !errors.Is(err, ErrNoSession) {
		t.Error("Expected the session to be gone")
	}
}

func TestRegistry_ActiveAccounts(t *testing.T) {
	reg, _, _ := newTestRegistry()
	ctx := context.Background()

	for _, id := range []string{"alice", "bob"} {
		if _, _, err := reg.GetOrCreate(ctx, id); err != nil {
			t.Fatalf("GetOrCreate(%s) failed: %v", id, err)
		}
	}

	ids := reg.ActiveAccounts()
	if len(ids) != 2 {
		t.Errorf("Expected 2 active accounts, got %d", len(ids))
	}
}

func TestRegistry_ShutdownClosesClients(t *testing.T) {
	reg, factory, _ := newTestRegistry()
	ctx := context.Background()

	if _, _, err := reg.GetOrCreate(ctx, "alice"); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	client := factory.Client("alice")

	reg.Shutdown()

	if !client.Closed() {
		t.Error("Expected Shutdown to close the client")
	}
	if client.LoggedOut() {
		t.Error("Shutdown must not log accounts out")
	}
	if len(reg.ActiveAccounts()) != 0 {
		t.Error("Expected no active accounts after Shutdown")
	}
}
