// Package security decides whether an accepted connection is worth a
// handshake at all.
package security

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"
)

var (
	ErrBlocked     = errors.New("ip address blocked")
	ErrRateLimited = errors.New("rate limit exceeded")
)

// DefaultFailureWindow is how long a failure count survives without a new
// failure when AdmissionConfig.FailureWindow is unset.
const DefaultFailureWindow = 5 * time.Minute

// AdmissionConfig configures an Admission. Zero values disable the
// corresponding check.
type AdmissionConfig struct {
	// RequestsPerSecond and Burst size the per-IP token bucket.
	RequestsPerSecond float64
	Burst             int64

	// FailureThreshold consecutive handshake failures block an IP for
	// BlockDuration. A count is forgotten after FailureWindow without
	// further failures.
	FailureThreshold int
	BlockDuration    time.Duration
	FailureWindow    time.Duration

	// Deny lists IPs that are never admitted.
	Deny []string
}

type failureCount struct {
	n    int
	last time.Time
}

// Admission gates new connections by source IP.
type Admission struct {
	limiter   RateLimiter
	blocklist *IPBlocklist
	cfg       AdmissionConfig
	logger    *slog.Logger

	mu            sync.Mutex
	failures      map[string]*failureCount
	sweepInterval time.Duration
}

// NewAdmission starts the background sweepers; they stop when ctx is done.
func NewAdmission(ctx context.Context, cfg AdmissionConfig, logger *slog.Logger) *Admission {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FailureWindow <= 0 {
		cfg.FailureWindow = DefaultFailureWindow
	}

	a := &Admission{
		blocklist:     NewIPBlocklist(ctx, logger),
		cfg:           cfg,
		logger:        logger,
		failures:      make(map[string]*failureCount),
		sweepInterval: time.Minute,
	}

	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = int64(cfg.RequestsPerSecond)
		}
		a.limiter = NewTokenBucket(ctx, cfg.RequestsPerSecond, max(burst, 1))
	}

	for _, ip := range cfg.Deny {
		a.blocklist.BlockPermanent(normalizeIP(ip))
	}

	if cfg.FailureThreshold > 0 {
		go a.sweepPeriodically(ctx)
	}

	return a
}

// Allow returns nil when a connection from ip may proceed to the handshake.
func (a *Admission) Allow(ip string) error {
	if a.blocklist.IsBlocked(ip) {
		return ErrBlocked
	}

	if a.limiter != nil && !a.limiter.Allow(ip) {
		return ErrRateLimited
	}
	return nil
}

// RecordFailure counts a failed handshake from ip and blocks it once the
// threshold is reached.
func (a *Admission) RecordFailure(ip string) {
	if a.cfg.FailureThreshold <= 0 || a.cfg.BlockDuration <= 0 {
		return
	}

	now := time.Now()

	a.mu.Lock()
	fc, ok := a.failures[ip]
	if !ok || now.Sub(fc.last) > a.cfg.FailureWindow {
		fc = &failureCount{}
		a.failures[ip] = fc
	}
	fc.n++
	fc.last = now
	n := fc.n
	if n >= a.cfg.FailureThreshold {
		delete(a.failures, ip)
	}
	a.mu.Unlock()

	if n >= a.cfg.FailureThreshold {
		a.logger.Warn("blocking peer after repeated handshake failures", "ip", ip, "failures", n)
		a.blocklist.Block(ip, a.cfg.BlockDuration)
	}
}

// RecordSuccess clears the failure count of ip.
func (a *Admission) RecordSuccess(ip string) {
	a.mu.Lock()
	delete(a.failures, ip)
	a.mu.Unlock()
}

func (a *Admission) sweepPeriodically(ctx context.Context) {
	ticker := time.NewTicker(a.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.sweep(now)
		}
	}
}

// sweep forgets failure counts whose last failure is older than the window.
func (a *Admission) sweep(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for ip, fc := range a.failures {
		if now.Sub(fc.last) > a.cfg.FailureWindow {
			delete(a.failures, ip)
		}
	}
}

// HostOf returns the IP part of addr, or its string form when it has no port.
func HostOf(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}

	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// normalizeIP returns ip in the form HostOf produces.
func normalizeIP(ip string) string {
	if parsed := net.ParseIP(ip); parsed != nil {
		return parsed.String()
	}
	return ip
}
