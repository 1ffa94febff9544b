package security

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"querygate/internal/utils"
)

// RateLimiterConfig configures the per-scope request budgets.
type RateLimiterConfig struct {
	// Requests per minute per user identity
	UserRPM int `json:"userRpm"`
	// Requests per minute per client address
	AddressRPM int `json:"addressRpm"`
	// Cleanup interval for inactive clients
	CleanupInterval time.Duration `json:"cleanupInterval"`
}

// DefaultRateLimiterConfig returns the default budgets.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		UserRPM:         30,
		AddressRPM:      50,
		CleanupInterval: 5 * time.Minute,
	}
}

// ClientLimiter tracks one client key. window holds the admission
// timestamps inside the trailing minute; the token bucket smooths bursts
// on top of the strict count.
type ClientLimiter struct {
	limiter  *rate.Limiter
	window   []time.Time
	lastSeen time.Time
}

// RateLimiter enforces independent per-user and per-address budgets over a
// sliding 60-second window. Both budgets must have capacity for a request
// to pass; capacity returns only when earlier admissions slide out of the
// window, never by refill.
type RateLimiter struct {
	config  RateLimiterConfig
	clients map[string]*ClientLimiter
	mutex   sync.RWMutex
	now     func() time.Time
}

// NewRateLimiter creates a rate limiter with the given budgets.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.UserRPM <= 0 {
		config.UserRPM = 30
	}
	if config.AddressRPM <= 0 {
		config.AddressRPM = 50
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}

	return &RateLimiter{
		config:  config,
		clients: make(map[string]*ClientLimiter),
		now:     time.Now,
	}
}

// Start runs the background cleanup of inactive client entries until the
// context is cancelled.
func (rl *RateLimiter) Start(ctx context.Context) {
	go rl.cleanup(ctx)
}

// Allow consumes one token from the user budget and, when clientAddr is
// set, one from the address budget. It returns a rate-limit error naming
// the scope that ran out first.
func (rl *RateLimiter) Allow(userID, clientAddr string) error {
	if userID == "" {
		userID = "anonymous"
	}
	if !rl.take("user:"+userID, rl.config.UserRPM) {
		return utils.NewRateLimitError("user")
	}
	if clientAddr != "" && !rl.take("ip:"+clientAddr, rl.config.AddressRPM) {
		return utils.NewRateLimitError("address")
	}
	return nil
}

func (rl *RateLimiter) take(key string, rpm int) bool {
	now := rl.now()

	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	client, exists := rl.clients[key]
	if !exists {
		// Burst equals the per-minute budget so a full minute's quota can
		// be spent at once.
		client = &ClientLimiter{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm),
			window:  make([]time.Time, 0, rpm),
		}
		rl.clients[key] = client
	}
	client.lastSeen = now

	// Drop admissions that slid out of the trailing minute. Denied
	// requests are never recorded, so probing while limited does not
	// extend the limit.
	cutoff := now.Add(-time.Minute)
	kept := client.window[:0]
	for _, ts := range client.window {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	client.window = kept

	// The window count is the budget; the token bucket only shapes
	// sub-window bursts and cannot admit past the count.
	if len(client.window) >= rpm {
		return false
	}
	if !client.limiter.AllowN(now, 1) {
		return false
	}
	client.window = append(client.window, now)
	return true
}

// cleanup removes clients not seen within the cleanup interval.
func (rl *RateLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.mutex.Lock()
			now := time.Now()
			for key, client := range rl.clients {
				if now.Sub(client.lastSeen) > rl.config.CleanupInterval {
					delete(rl.clients, key)
				}
			}
			rl.mutex.Unlock()
		}
	}
}

// RateLimitStats contains rate limiting statistics.
type RateLimitStats struct {
	ActiveClients int               `json:"activeClients"`
	Config        RateLimiterConfig `json:"config"`
}

// GetStats returns current rate limiting statistics.
func (rl *RateLimiter) GetStats() RateLimitStats {
	rl.mutex.RLock()
	defer rl.mutex.RUnlock()

	return RateLimitStats{
		ActiveClients: len(rl.clients),
		Config:        rl.config,
	}
}
