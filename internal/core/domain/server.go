// Package domain defines the core entities shared across the connection layer.
package domain

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ServerStatus is the last observed health classification of a server.
type ServerStatus string

const (
	StatusUnknown      ServerStatus = "unknown"
	StatusOnline       ServerStatus = "online"
	StatusOffline      ServerStatus = "offline"
	StatusError        ServerStatus = "error"
	StatusUnauthorized ServerStatus = "unauthorized"
	StatusOutdated     ServerStatus = "outdated"
)

// ServerConfig describes one configured backend endpoint.
type ServerConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	BaseURL  string `yaml:"base_url"`
	Token    string `yaml:"token"`
	Username string `yaml:"username"`

	IsDefault bool `yaml:"is_default"`
	IsEnabled bool `yaml:"is_enabled"`
	Priority  int  `yaml:"priority"` // higher preferred

	TimeoutSeconds  int  `yaml:"timeout_seconds"`
	AllowSelfSigned bool `yaml:"allow_self_signed"`
	SyncEnabled     bool `yaml:"sync_enabled"`

	Status          ServerStatus `yaml:"-"`
	LastStatusCheck time.Time    `yaml:"-"`
	LastConnected   time.Time    `yaml:"-"`
	Version         string       `yaml:"-"`
}

const (
	MinTokenLength = 10
	MinTimeoutSec  = 5
	MaxTimeoutSec  = 300
)

// NormalizeURL trims the input, injects https when no scheme is present and
// strips a trailing slash. Applied on every base-URL write, not only during
// validation.
func NormalizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	return strings.TrimRight(s, "/")
}

// Validate returns the list of violations for this config. An empty slice
// means the config is acceptable.
func (s *ServerConfig) Validate() []string {
	var violations []string

	if strings.TrimSpace(s.Name) == "" {
		violations = append(violations, "name is required")
	}

	u, err := url.Parse(s.BaseURL)
	switch {
	case s.BaseURL == "" || err != nil:
		violations = append(violations, "base URL must be a valid URL")
	case u.Scheme != "http" && u.Scheme != "https":
		violations = append(violations, fmt.Sprintf("base URL scheme must be http or https, got %q", u.Scheme))
	case u.Hostname() == "":
		violations = append(violations, "base URL must include a host")
	default:
		if port := u.Port(); port != "" {
			if p, perr := strconv.Atoi(port); perr != nil || p < 1 || p > 65535 {
				violations = append(violations, fmt.Sprintf("base URL port %q is out of range", port))
			}
		}
	}

	if len(s.Token) < MinTokenLength {
		violations = append(violations, fmt.Sprintf("token must be at least %d characters", MinTokenLength))
	}

	if s.TimeoutSeconds < MinTimeoutSec || s.TimeoutSeconds > MaxTimeoutSec {
		violations = append(violations, fmt.Sprintf("timeout must be between %d and %d seconds", MinTimeoutSec, MaxTimeoutSec))
	}

	return violations
}

// Timeout returns the per-server request timeout as a duration.
func (s *ServerConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// IsLocal reports whether the configured host is on the local machine or a
// private network range.
func (s *ServerConfig) IsLocal() bool {
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" || strings.HasSuffix(host, ".local") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
}

// IsEquivalentTo compares only the connection-relevant fields, ignoring
// identity, placement and observed state. Lets callers detect that nothing
// affecting the actual connection changed.
func (s *ServerConfig) IsEquivalentTo(other *ServerConfig) bool {
	if other == nil {
		return false
	}
	return NormalizeURL(s.BaseURL) == NormalizeURL(other.BaseURL) &&
		s.Token == other.Token &&
		s.Username == other.Username &&
		s.AllowSelfSigned == other.AllowSelfSigned &&
		s.TimeoutSeconds == other.TimeoutSeconds
}

// Clone returns a deep copy. The coordinator hands copies to subscribers so
// observed state can never be mutated from outside.
func (s *ServerConfig) Clone() *ServerConfig {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
