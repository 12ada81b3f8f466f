package security

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// IPBlocklist refuses connections from blocked addresses before any
// handshake work is done for them.
type IPBlocklist struct {
	mu sync.RWMutex

	// blocked maps IP addresses to block expiry time
	blocked map[string]time.Time

	// Permanent blocks (never expire)
	permanent map[string]bool

	sweepInterval time.Duration
	logger        *slog.Logger
}

// NewIPBlocklist starts the expiry sweeper; it stops when ctx is done.
func NewIPBlocklist(ctx context.Context, logger *slog.Logger) *IPBlocklist {
	if logger == nil {
		logger = slog.Default()
	}

	bl := &IPBlocklist{
		blocked:       make(map[string]time.Time),
		permanent:     make(map[string]bool),
		sweepInterval: time.Minute,
		logger:        logger,
	}

	go bl.sweepPeriodically(ctx)
	return bl
}

func (bl *IPBlocklist) sweepPeriodically(ctx context.Context) {
	ticker := time.NewTicker(bl.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			bl.sweep(now)
		}
	}
}

// sweep drops temporary blocks that expired before now.
func (bl *IPBlocklist) sweep(now time.Time) {
	bl.mu.Lock()
	defer bl.mu.Unlock()

	for ip, expiry := range bl.blocked {
		if now.After(expiry) {
			delete(bl.blocked, ip)
		}
	}
}

// IsBlocked checks if an IP address is blocked
func (bl *IPBlocklist) IsBlocked(ip string) bool {
	bl.mu.RLock()
	defer bl.mu.RUnlock()

	if bl.permanent[ip] {
		return true
	}

	expiry, exists := bl.blocked[ip]
	return exists && time.Now().Before(expiry)
}

// Block blocks ip for d. A later call extends or shortens the block.
func (bl *IPBlocklist) Block(ip string, d time.Duration) {
	bl.mu.Lock()
	defer bl.mu.Unlock()

	bl.blocked[ip] = time.Now().Add(d)
	bl.logger.Info("Temporarily blocked", "IP", ip, "duration", d)
}

// BlockPermanent permanently blocks an IP address
func (bl *IPBlocklist) BlockPermanent(ip string) {
	bl.mu.Lock()
	defer bl.mu.Unlock()

	bl.permanent[ip] = true
	bl.logger.Info("Permanently blocked", "IP", ip)
}
