package conn

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/homelink/internal/core/domain"
	"github.com/vietddude/homelink/internal/infra/netmon"
	"github.com/vietddude/homelink/internal/infra/storage/memory"
)

// stubProber answers from a fixed health map and counts network calls.
type stubProber struct {
	mu      sync.Mutex
	healthy map[string]bool // by server name
	calls   map[string]int
}

func newStubProber(healthy map[string]bool) *stubProber {
	return &stubProber{healthy: healthy, calls: make(map[string]int)}
}

func (p *stubProber) Probe(ctx context.Context, server *domain.ServerConfig) ProbeResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[server.Name]++
	if p.healthy[server.Name] {
		return ProbeResult{Status: domain.StatusOnline, Version: "2.0.0"}
	}
	return ProbeResult{Status: domain.StatusOffline}
}

func (p *stubProber) callCount(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[name]
}

func testServer(id, name string, priority int, isDefault bool) *domain.ServerConfig {
	return &domain.ServerConfig{
		ID:             id,
		Name:           name,
		BaseURL:        "https://" + name + ".example.com",
		Token:          "token-" + name + "-12345",
		IsDefault:      isDefault,
		IsEnabled:      true,
		Priority:       priority,
		TimeoutSeconds: 30,
	}
}

func newTestCoordinator(t *testing.T, prober Prober, servers ...*domain.ServerConfig) *Coordinator {
	t.Helper()
	ctx := context.Background()

	repo := memory.NewServerRepo()
	for _, s := range servers {
		if err := repo.Save(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	observer := netmon.NewManualObserver(domain.NetworkState{
		Connected: true,
		Type:      domain.NetWifi,
	})
	t.Cleanup(observer.Close)

	c := New(repo, prober, observer, Config{DebounceWindow: 50 * time.Millisecond}, nil)
	if err := c.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestInitializeSelectsDefault(t *testing.T) {
	prober := newStubProber(nil)
	c := newTestCoordinator(t, prober,
		testServer("a", "alpha", 1, false),
		testServer("b", "beta", 5, true),
	)

	st := c.Snapshot()
	if st.Server == nil || st.Server.ID != "b" {
		t.Fatalf("current = %+v, want the default server", st.Server)
	}
	if st.Status != domain.ConnConnecting {
		t.Errorf("status = %s, want connecting", st.Status)
	}
}

func TestInitializeWithoutServersStaysDisconnected(t *testing.T) {
	c := newTestCoordinator(t, newStubProber(nil))

	st := c.Snapshot()
	if st.Server != nil {
		t.Errorf("current = %+v, want nil", st.Server)
	}
	if st.Status != domain.ConnDisconnected {
		t.Errorf("status = %s, want disconnected", st.Status)
	}
}

func TestFailoverPicksHealthyAlternate(t *testing.T) {
	prober := newStubProber(map[string]bool{"alpha": false, "beta": true})
	c := newTestCoordinator(t, prober,
		testServer("a", "alpha", 1, true),
		testServer("b", "beta", 5, false),
	)

	if err := c.SwitchToNextAvailable(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st := c.Snapshot()
	if st.Server == nil || st.Server.ID != "b" {
		t.Fatalf("current = %+v, want beta", st.Server)
	}
	if st.Status != domain.ConnFallback {
		t.Errorf("status = %s, want fallback", st.Status)
	}
}

func TestFailoverWithNoHealthyServerDisconnects(t *testing.T) {
	prober := newStubProber(map[string]bool{"alpha": false, "beta": false})
	c := newTestCoordinator(t, prober,
		testServer("a", "alpha", 1, true),
		testServer("b", "beta", 5, false),
	)

	err := c.SwitchToNextAvailable(context.Background())
	if !errors.Is(err, ErrNoServerAvailable) {
		t.Fatalf("error = %v, want ErrNoServerAvailable", err)
	}

	st := c.Snapshot()
	if st.Server != nil {
		t.Errorf("current = %+v, want nil", st.Server)
	}
	if st.Status != domain.ConnDisconnected {
		t.Errorf("status = %s, want disconnected", st.Status)
	}
}

func TestCheckForBetterServerUpgrades(t *testing.T) {
	prober := newStubProber(map[string]bool{"alpha": true, "beta": true})
	c := newTestCoordinator(t, prober,
		testServer("a", "alpha", 10, false),
		testServer("b", "beta", 5, true),
	)

	// Establish a healthy connection to the default first.
	if err := c.ForceReconnect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if st := c.Snapshot(); st.Status != domain.ConnConnected {
		t.Fatalf("status = %s, want connected before upgrade check", st.Status)
	}

	// Debounce window must not suppress the upgrade probe.
	time.Sleep(60 * time.Millisecond)

	if err := c.CheckForBetterServer(context.Background()); err != nil {
		t.Fatal(err)
	}

	st := c.Snapshot()
	if st.Server == nil || st.Server.ID != "a" {
		t.Fatalf("current = %+v, want the higher-priority alpha", st.Server)
	}
	if st.Status != domain.ConnConnected {
		t.Errorf("status = %s, want connected", st.Status)
	}
}

func TestCheckForBetterServerIgnoresLowerPriority(t *testing.T) {
	prober := newStubProber(map[string]bool{"alpha": true, "beta": true})
	c := newTestCoordinator(t, prober,
		testServer("a", "alpha", 1, false),
		testServer("b", "beta", 5, true),
	)

	if err := c.ForceReconnect(context.Background()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(60 * time.Millisecond)

	if err := c.CheckForBetterServer(context.Background()); err != nil {
		t.Fatal(err)
	}

	if st := c.Snapshot(); st.Server == nil || st.Server.ID != "b" {
		t.Fatalf("current = %+v, want beta unchanged", st.Server)
	}
	if prober.callCount("alpha") != 0 {
		t.Errorf("alpha probed %d times, want 0", prober.callCount("alpha"))
	}
}

func TestProbeDebounce(t *testing.T) {
	prober := newStubProber(map[string]bool{"alpha": true})
	server := testServer("a", "alpha", 1, true)
	c := newTestCoordinator(t, prober, server)

	first := c.probeAndRecord(context.Background(), server, false)
	if !first.Healthy() {
		t.Fatal("first probe should succeed")
	}

	// Within the debounce window: no network access, reported as failed.
	second := c.probeAndRecord(context.Background(), server, false)
	if second.Healthy() {
		t.Error("debounced probe must report failure")
	}
	if got := prober.callCount("alpha"); got != 1 {
		t.Errorf("network calls = %d, want 1", got)
	}

	// A forced probe bypasses the window.
	third := c.probeAndRecord(context.Background(), server, true)
	if !third.Healthy() {
		t.Error("forced probe should succeed")
	}
	if got := prober.callCount("alpha"); got != 2 {
		t.Errorf("network calls = %d, want 2", got)
	}
}

func TestProbeRecordsStatusOnStore(t *testing.T) {
	prober := newStubProber(map[string]bool{"alpha": true})
	server := testServer("a", "alpha", 1, true)
	c := newTestCoordinator(t, prober, server)

	c.probeAndRecord(context.Background(), server, true)

	stored, err := c.repo.GetByID(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.StatusOnline {
		t.Errorf("stored status = %s, want online", stored.Status)
	}
	if stored.LastStatusCheck.IsZero() {
		t.Error("LastStatusCheck not stamped")
	}
	if stored.LastConnected.IsZero() {
		t.Error("LastConnected not stamped on a healthy probe")
	}
	if stored.Version != "2.0.0" {
		t.Errorf("version = %q, want 2.0.0", stored.Version)
	}
}

func TestDeleteLastServerRejected(t *testing.T) {
	c := newTestCoordinator(t, newStubProber(nil), testServer("a", "alpha", 1, true))

	err := c.DeleteServer(context.Background(), "a")
	if !errors.Is(err, ErrLastServer) {
		t.Fatalf("error = %v, want ErrLastServer", err)
	}
}

func TestDeleteDefaultReassignsFirst(t *testing.T) {
	prober := newStubProber(map[string]bool{"beta": true})
	c := newTestCoordinator(t, prober,
		testServer("a", "alpha", 1, true),
		testServer("b", "beta", 5, false),
	)

	if err := c.DeleteServer(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}

	remaining, err := c.repo.All(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 || remaining[0].ID != "b" {
		t.Fatalf("remaining = %+v, want only beta", remaining)
	}
	if !remaining[0].IsDefault {
		t.Error("beta should have been promoted to default")
	}
}

func TestDeleteCurrentTriggersFailover(t *testing.T) {
	prober := newStubProber(map[string]bool{"alpha": true, "beta": true})
	c := newTestCoordinator(t, prober,
		testServer("a", "alpha", 1, true),
		testServer("b", "beta", 5, false),
	)

	if err := c.DeleteServer(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}

	st := c.Snapshot()
	if st.Server == nil || st.Server.ID != "b" {
		t.Fatalf("current = %+v, want beta after failover", st.Server)
	}
}

func TestSwitchToDisabledServerRefusedSilently(t *testing.T) {
	disabled := testServer("b", "beta", 5, false)
	disabled.IsEnabled = false

	prober := newStubProber(map[string]bool{"alpha": true, "beta": true})
	c := newTestCoordinator(t, prober, testServer("a", "alpha", 1, true), disabled)

	if err := c.SwitchToServer(context.Background(), "b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if st := c.Snapshot(); st.Server == nil || st.Server.ID != "a" {
		t.Fatalf("current = %+v, want alpha unchanged", st.Server)
	}
	if prober.callCount("beta") != 0 {
		t.Error("disabled server must not be probed")
	}
}

func TestSwitchToUnhealthyServerKeepsCurrent(t *testing.T) {
	prober := newStubProber(map[string]bool{"alpha": true, "beta": false})
	c := newTestCoordinator(t, prober,
		testServer("a", "alpha", 1, true),
		testServer("b", "beta", 5, false),
	)

	err := c.SwitchToServer(context.Background(), "b")
	if !errors.Is(err, ErrServerUnavailable) {
		t.Fatalf("error = %v, want ErrServerUnavailable", err)
	}

	st := c.Snapshot()
	if st.Server == nil || st.Server.ID != "a" {
		t.Fatalf("current = %+v, want alpha unchanged", st.Server)
	}
	if st.Status != domain.ConnError {
		t.Errorf("status = %s, want error", st.Status)
	}
}

func TestAddServerValidates(t *testing.T) {
	c := newTestCoordinator(t, newStubProber(nil))

	bad := testServer("", "gamma", 1, false)
	bad.Token = "short"

	err := c.AddServer(context.Background(), bad)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if len(verr.Violations) == 0 {
		t.Error("expected at least one violation")
	}
}

func TestAddFirstServerBecomesDefault(t *testing.T) {
	prober := newStubProber(map[string]bool{"gamma": true})
	c := newTestCoordinator(t, prober)

	s := testServer("", "gamma", 1, false)
	if err := c.AddServer(context.Background(), s); err != nil {
		t.Fatal(err)
	}

	all, err := c.repo.All(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("stored %d servers, want 1", len(all))
	}
	if !all[0].IsDefault {
		t.Error("first server must become default")
	}
	if all[0].ID == "" {
		t.Error("expected a generated id")
	}
	if prober.callCount("gamma") != 1 {
		t.Errorf("probes after add = %d, want 1", prober.callCount("gamma"))
	}
}

func TestUpdateServerKeepsObservedState(t *testing.T) {
	prober := newStubProber(map[string]bool{"alpha": true})
	server := testServer("a", "alpha", 1, true)
	c := newTestCoordinator(t, prober, server)

	c.probeAndRecord(context.Background(), server, true)

	edited := testServer("a", "alpha", 3, true)
	edited.Name = "alpha renamed"
	if err := c.UpdateServer(context.Background(), edited); err != nil {
		t.Fatal(err)
	}

	stored, err := c.repo.GetByID(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Name != "alpha renamed" {
		t.Errorf("name = %q, update not applied", stored.Name)
	}
	if stored.Version != "2.0.0" {
		t.Errorf("version = %q, observed state must carry over", stored.Version)
	}
}

func TestNetworkReconnectTriggersRecheck(t *testing.T) {
	prober := newStubProber(map[string]bool{"alpha": true})
	server := testServer("a", "alpha", 1, true)

	ctx := context.Background()
	repo := memory.NewServerRepo()
	if err := repo.Save(ctx, server); err != nil {
		t.Fatal(err)
	}

	observer := netmon.NewManualObserver(domain.Offline())
	c := New(repo, prober, observer, Config{DebounceWindow: 10 * time.Millisecond}, nil)
	if err := c.Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	c.Start()
	defer c.Stop()

	// Give the network loop a moment to subscribe before publishing.
	time.Sleep(20 * time.Millisecond)
	observer.Set(domain.NetworkState{Connected: true, Type: domain.NetWifi})

	deadline := time.After(2 * time.Second)
	for prober.callCount("alpha") == 0 {
		select {
		case <-deadline:
			t.Fatal("reconnect did not trigger a probe of the current server")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// The recheck runs asynchronously; wait for the state write too.
	for c.Snapshot().Status != domain.ConnConnected {
		select {
		case <-deadline:
			t.Fatalf("status = %s, want connected after reconnect", c.Snapshot().Status)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
