package netmon

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/homelink/internal/core/domain"
	"github.com/vietddude/homelink/internal/pubsub"
)

// PollingConfig tunes the interface-polling observer.
type PollingConfig struct {
	Interval time.Duration `yaml:"interval"`
	// ValidateURL, when set, is fetched on each poll to confirm the link
	// actually reaches the internet. A 2xx/3xx answer marks the state
	// validated.
	ValidateURL     string        `yaml:"validate_url"`
	ValidateTimeout time.Duration `yaml:"validate_timeout"`
}

// PollingObserver derives connectivity from the host's network interfaces at
// a fixed interval. Link classification is by interface name: wl*/wlan →
// wifi, ww*/rmnet → cellular (treated as metered), en*/eth → ethernet.
type PollingObserver struct {
	cfg    PollingConfig
	client *http.Client

	mu      sync.RWMutex
	current domain.NetworkState
	bus     *pubsub.Broadcaster[domain.NetworkState]

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPollingObserver starts the poll loop immediately.
func NewPollingObserver(cfg PollingConfig) *PollingObserver {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.ValidateTimeout <= 0 {
		cfg.ValidateTimeout = 3 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &PollingObserver{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.ValidateTimeout},
		current: domain.Offline(),
		bus:     pubsub.NewBroadcaster[domain.NetworkState](),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	o.poll(ctx)
	go o.loop(ctx)
	return o
}

func (o *PollingObserver) loop(ctx context.Context) {
	defer close(o.done)

	ticker := time.NewTicker(o.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.poll(ctx)
		}
	}
}

func (o *PollingObserver) poll(ctx context.Context) {
	state := o.probeInterfaces()
	if state.Connected && o.cfg.ValidateURL != "" {
		state.Validated = o.validate(ctx)
	}
	state.Timestamp = time.Now()

	o.mu.Lock()
	prev := o.current
	o.current = state
	o.mu.Unlock()

	if !sameState(prev, state) {
		o.bus.Publish(state)
	}
}

func (o *PollingObserver) probeInterfaces() domain.NetworkState {
	ifaces, err := net.Interfaces()
	if err != nil {
		return domain.NetworkState{Connected: false, Type: domain.NetNone}
	}

	state := domain.NetworkState{Connected: false, Type: domain.NetNone}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}

		linkType := classifyInterface(iface.Name)
		if !state.Connected || rank(linkType) > rank(state.Type) {
			state.Connected = true
			state.Type = linkType
			state.Metered = linkType == domain.NetCellular
		}
	}
	return state
}

func (o *PollingObserver) validate(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.cfg.ValidateURL, nil)
	if err != nil {
		return false
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400
}

func classifyInterface(name string) domain.ConnectionType {
	n := strings.ToLower(name)
	switch {
	case strings.HasPrefix(n, "wl"):
		return domain.NetWifi
	case strings.HasPrefix(n, "ww"), strings.HasPrefix(n, "rmnet"):
		return domain.NetCellular
	case strings.HasPrefix(n, "en"), strings.HasPrefix(n, "eth"):
		return domain.NetEthernet
	default:
		return domain.NetOther
	}
}

// Preference order when multiple links are up.
func rank(t domain.ConnectionType) int {
	switch t {
	case domain.NetEthernet:
		return 4
	case domain.NetWifi:
		return 3
	case domain.NetCellular:
		return 2
	case domain.NetOther:
		return 1
	default:
		return 0
	}
}

func (o *PollingObserver) Snapshot() domain.NetworkState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.current
}

func (o *PollingObserver) Subscribe() (<-chan domain.NetworkState, func()) {
	return o.bus.Subscribe()
}

// Close stops the poll loop and waits for it to exit.
func (o *PollingObserver) Close() {
	o.cancel()
	<-o.done
	o.bus.Close()
}
