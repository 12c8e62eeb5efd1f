package conn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/homelink/internal/core/domain"
	"github.com/vietddude/homelink/internal/infra/netmon"
	"github.com/vietddude/homelink/internal/infra/storage"
	"github.com/vietddude/homelink/internal/metrics"
	"github.com/vietddude/homelink/internal/pubsub"
)

var (
	// ErrLastServer is returned when deleting the only remaining server.
	ErrLastServer = errors.New("cannot delete the last remaining server")

	// ErrServerUnavailable is returned when an explicit switch target fails
	// its health probe.
	ErrServerUnavailable = errors.New("server did not respond to health check")

	// ErrNoServerAvailable is returned when no enabled server answers.
	ErrNoServerAvailable = errors.New("no enabled server is reachable")
)

// ValidationError carries the full violation list from a rejected add or
// update.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "invalid server configuration: " + strings.Join(e.Violations, "; ")
}

// Config tunes the coordinator's scheduling behavior.
type Config struct {
	ProbeInterval   time.Duration `yaml:"probe_interval"`   // scheduler tick
	FreshnessWindow time.Duration `yaml:"freshness_window"` // re-probe servers staler than this
	DebounceWindow  time.Duration `yaml:"debounce_window"`  // skip repeat probes within this
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultConfig provides the standard scheduling windows.
var DefaultConfig = Config{
	ProbeInterval:   30 * time.Second,
	FreshnessWindow: 5 * time.Minute,
	DebounceWindow:  5 * time.Second,
	ShutdownTimeout: 5 * time.Second,
}

// State is the atomically-swapped (current server, status) pair. Server is
// nil while disconnected.
type State struct {
	Server *domain.ServerConfig
	Status domain.ConnectionStatus
}

// Coordinator owns the current server, runs the periodic health-check
// scheduler and executes the failover algorithm.
type Coordinator struct {
	cfg      Config
	repo     storage.ServerRepository
	prober   Prober
	observer netmon.Observer
	log      *slog.Logger

	state      atomic.Pointer[State]
	transition sync.Mutex // serializes state machine writes

	probeMu   sync.Mutex
	lastProbe map[string]time.Time
	inflight  map[string]*probeHandle

	stateBus   *pubsub.Broadcaster[State]
	serversBus *pubsub.Broadcaster[[]*domain.ServerConfig]

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires a coordinator. Zero config fields fall back to the defaults.
func New(repo storage.ServerRepository, prober Prober, observer netmon.Observer, cfg Config, log *slog.Logger) *Coordinator {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultConfig.ProbeInterval
	}
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = DefaultConfig.FreshnessWindow
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = DefaultConfig.DebounceWindow
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultConfig.ShutdownTimeout
	}
	if log == nil {
		log = slog.Default()
	}

	c := &Coordinator{
		cfg:        cfg,
		repo:       repo,
		prober:     prober,
		observer:   observer,
		log:        log,
		lastProbe:  make(map[string]time.Time),
		inflight:   make(map[string]*probeHandle),
		stateBus:   pubsub.NewBroadcaster[State](),
		serversBus: pubsub.NewBroadcaster[[]*domain.ServerConfig](),
	}
	c.state.Store(&State{Status: domain.ConnDisconnected})
	return c
}

// Snapshot returns the current (server, status) pair without blocking.
func (c *Coordinator) Snapshot() State {
	s := c.state.Load()
	return State{Server: s.Server.Clone(), Status: s.Status}
}

// CurrentServer returns a copy of the current server, or nil.
func (c *Coordinator) CurrentServer() *domain.ServerConfig {
	return c.state.Load().Server.Clone()
}

// SubscribeState streams (server, status) changes.
func (c *Coordinator) SubscribeState() (<-chan State, func()) {
	return c.stateBus.Subscribe()
}

// SubscribeServers streams server list changes.
func (c *Coordinator) SubscribeServers() (<-chan []*domain.ServerConfig, func()) {
	return c.serversBus.Subscribe()
}

func (c *Coordinator) setState(server *domain.ServerConfig, status domain.ConnectionStatus) {
	next := &State{Server: server.Clone(), Status: status}
	prev := c.state.Swap(next)

	metrics.ConnectionStatus.Set(float64(status))

	if prev.Status != status || !sameServer(prev.Server, server) {
		c.log.Info("connection state changed",
			"status", status.String(),
			"server", serverName(server))
		c.stateBus.Publish(*next)
	}
}

func sameServer(a, b *domain.ServerConfig) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID == b.ID
}

func serverName(s *domain.ServerConfig) string {
	if s == nil {
		return ""
	}
	return s.Name
}

// Initialize loads all servers and selects the enabled default, else the
// highest-priority enabled server. With nothing selectable the coordinator
// stays disconnected.
func (c *Coordinator) Initialize(ctx context.Context) error {
	c.transition.Lock()
	defer c.transition.Unlock()

	enabled, err := c.repo.EnabledByPriority(ctx)
	if err != nil {
		return fmt.Errorf("failed to load servers: %w", err)
	}

	var selected *domain.ServerConfig
	for _, s := range enabled {
		if s.IsDefault {
			selected = s
			break
		}
	}
	if selected == nil && len(enabled) > 0 {
		selected = enabled[0]
	}

	if selected == nil {
		c.setState(nil, domain.ConnDisconnected)
		return nil
	}

	c.setState(selected, domain.ConnConnecting)
	return c.refreshServers(ctx)
}

// AddServer validates, persists and probes a new server. The first server
// ever added becomes the default.
func (c *Coordinator) AddServer(ctx context.Context, server *domain.ServerConfig) error {
	server.BaseURL = domain.NormalizeURL(server.BaseURL)
	if v := server.Validate(); len(v) > 0 {
		return &ValidationError{Violations: v}
	}

	all, err := c.repo.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to load servers: %w", err)
	}

	if server.ID == "" {
		server.ID = uuid.NewString()
	}
	if len(all) == 0 {
		server.IsDefault = true
	}
	server.Status = domain.StatusUnknown

	if err := c.repo.Save(ctx, server); err != nil {
		return fmt.Errorf("failed to save server: %w", err)
	}

	c.probeAndRecord(ctx, server, true)
	return c.refreshServers(ctx)
}

// UpdateServer validates and persists changes to an existing server, then
// probes it once. Observed state carries over from the stored copy.
func (c *Coordinator) UpdateServer(ctx context.Context, server *domain.ServerConfig) error {
	server.BaseURL = domain.NormalizeURL(server.BaseURL)
	if v := server.Validate(); len(v) > 0 {
		return &ValidationError{Violations: v}
	}

	stored, err := c.repo.GetByID(ctx, server.ID)
	if err != nil {
		return err
	}
	server.Status = stored.Status
	server.LastStatusCheck = stored.LastStatusCheck
	server.LastConnected = stored.LastConnected
	server.Version = stored.Version

	if err := c.repo.Save(ctx, server); err != nil {
		return fmt.Errorf("failed to save server: %w", err)
	}

	c.probeAndRecord(ctx, server, true)
	return c.refreshServers(ctx)
}

// DeleteServer removes a server. The last remaining server is protected; a
// deleted default hands the flag to another enabled server first, and
// deleting the current server triggers failover before removal.
func (c *Coordinator) DeleteServer(ctx context.Context, id string) error {
	all, err := c.repo.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to load servers: %w", err)
	}
	if len(all) <= 1 {
		return ErrLastServer
	}

	target, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if target.IsDefault {
		for _, s := range all {
			if s.ID != id && s.IsEnabled {
				if err := c.SetDefault(ctx, s.ID); err != nil {
					return err
				}
				break
			}
		}
	}

	if cur := c.state.Load().Server; cur != nil && cur.ID == id {
		if err := c.SwitchToNextAvailable(ctx); err != nil && !errors.Is(err, ErrNoServerAvailable) {
			return err
		}
	}

	if err := c.repo.Delete(ctx, id); err != nil {
		return err
	}
	return c.refreshServers(ctx)
}

// SetDefault makes the given server the single default.
func (c *Coordinator) SetDefault(ctx context.Context, id string) error {
	target, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := c.repo.ClearDefault(ctx); err != nil {
		return err
	}
	target.IsDefault = true
	if err := c.repo.Save(ctx, target); err != nil {
		return fmt.Errorf("failed to save server: %w", err)
	}
	return c.refreshServers(ctx)
}

// SwitchToServer probes the target and, on success, makes it current.
// Disabled targets are refused silently. On failure the current server is
// left unchanged and the status becomes error.
func (c *Coordinator) SwitchToServer(ctx context.Context, id string) error {
	target, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !target.IsEnabled {
		c.log.Debug("refusing switch to disabled server", "server", target.Name)
		return nil
	}

	c.transition.Lock()
	defer c.transition.Unlock()

	cur := c.state.Load().Server
	c.setState(cur, domain.ConnSwitching)

	if res := c.probeAndRecord(ctx, target, true); res.Healthy() {
		c.setState(target, domain.ConnConnected)
		return nil
	}

	c.setState(cur, domain.ConnError)
	return ErrServerUnavailable
}

// SwitchToNextAvailable fails over to the first healthy enabled server in
// descending priority order, skipping the current one. With no healthy
// alternate the coordinator disconnects.
func (c *Coordinator) SwitchToNextAvailable(ctx context.Context) error {
	c.transition.Lock()
	defer c.transition.Unlock()
	return c.switchToNextLocked(ctx)
}

func (c *Coordinator) switchToNextLocked(ctx context.Context) error {
	enabled, err := c.repo.EnabledByPriority(ctx)
	if err != nil {
		return fmt.Errorf("failed to load servers: %w", err)
	}

	cur := c.state.Load().Server
	for _, s := range enabled {
		if cur != nil && s.ID == cur.ID {
			continue
		}
		if c.probeAndRecord(ctx, s, false).Healthy() {
			c.setState(s, domain.ConnFallback)
			metrics.FailoversTotal.Inc()
			c.log.Warn("failed over to alternate server", "server", s.Name, "priority", s.Priority)
			return nil
		}
	}

	c.setState(nil, domain.ConnDisconnected)
	return ErrNoServerAvailable
}

// CheckForBetterServer opportunistically probes enabled servers with
// strictly higher priority than the current one and switches to the first
// healthy candidate.
func (c *Coordinator) CheckForBetterServer(ctx context.Context) error {
	c.transition.Lock()
	defer c.transition.Unlock()

	st := c.state.Load()
	cur := st.Server
	if cur == nil || (st.Status != domain.ConnConnected && st.Status != domain.ConnFallback) {
		return nil
	}

	enabled, err := c.repo.EnabledByPriority(ctx)
	if err != nil {
		return fmt.Errorf("failed to load servers: %w", err)
	}

	for _, s := range enabled {
		if s.Priority <= cur.Priority || s.ID == cur.ID {
			continue
		}
		if c.probeAndRecord(ctx, s, false).Healthy() {
			c.log.Info("switching to higher-priority server", "server", s.Name, "priority", s.Priority)
			c.setState(s, domain.ConnConnected)
			return nil
		}
	}
	return nil
}

// ForceReconnect re-probes the current server immediately, bypassing the
// debounce window, and fails over when it does not answer.
func (c *Coordinator) ForceReconnect(ctx context.Context) error {
	c.transition.Lock()
	defer c.transition.Unlock()
	return c.checkCurrentLocked(ctx, true)
}

func (c *Coordinator) checkCurrentLocked(ctx context.Context, force bool) error {
	st := c.state.Load()
	cur := st.Server
	if cur == nil {
		return nil
	}

	if c.probeAndRecord(ctx, cur, force).Healthy() {
		status := domain.ConnConnected
		if st.Status == domain.ConnFallback {
			status = domain.ConnFallback
		}
		c.setState(cur, status)
		return nil
	}

	c.log.Warn("current server unhealthy, failing over", "server", cur.Name)
	return c.switchToNextLocked(ctx)
}

// probeAndRecord runs one health check and writes the observed status back
// onto the stored config. A probe within the debounce window of the previous
// one for the same server performs no network access and reports failure; a
// superseding probe cancels any probe still in flight for that server.
func (c *Coordinator) probeAndRecord(ctx context.Context, server *domain.ServerConfig, force bool) ProbeResult {
	now := time.Now()

	c.probeMu.Lock()
	if !force {
		if last, ok := c.lastProbe[server.ID]; ok && now.Sub(last) < c.cfg.DebounceWindow {
			c.probeMu.Unlock()
			c.log.Debug("probe debounced", "server", server.Name)
			return ProbeResult{Status: domain.StatusUnknown}
		}
	}
	if prev, ok := c.inflight[server.ID]; ok {
		prev.cancel() // superseding probe replaces the in-flight one
	}
	probeCtx, cancel := context.WithCancel(ctx)
	handle := &probeHandle{cancel: cancel}
	c.inflight[server.ID] = handle
	c.lastProbe[server.ID] = now
	c.probeMu.Unlock()

	result := c.prober.Probe(probeCtx, server)

	c.probeMu.Lock()
	if c.inflight[server.ID] == handle {
		delete(c.inflight, server.ID)
	}
	c.probeMu.Unlock()
	cancel()

	c.recordResult(ctx, server, result)
	return result
}

type probeHandle struct {
	cancel context.CancelFunc
}

// recordResult writes the probe outcome onto the stored config. Writes are
// wall-clock last-write-wins on LastStatusCheck; out-of-order completions
// across call sites are tolerated.
func (c *Coordinator) recordResult(ctx context.Context, server *domain.ServerConfig, result ProbeResult) {
	stored, err := c.repo.GetByID(ctx, server.ID)
	if err != nil {
		if errors.Is(err, storage.ErrServerNotFound) {
			return // deleted while the probe was in flight
		}
		c.log.Warn("failed to load server for status write", "server", server.Name, "error", err)
		return
	}

	stored.Status = result.Status
	stored.LastStatusCheck = time.Now()
	if result.Status == domain.StatusOnline {
		stored.LastConnected = stored.LastStatusCheck
		if result.Version != "" {
			stored.Version = result.Version
		}
	}

	if err := c.repo.Save(ctx, stored); err != nil {
		c.log.Warn("failed to persist server status", "server", server.Name, "error", err)
		return
	}
	_ = c.refreshServers(ctx)
}

func (c *Coordinator) refreshServers(ctx context.Context) error {
	all, err := c.repo.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to load servers: %w", err)
	}
	c.serversBus.Publish(all)
	return nil
}
