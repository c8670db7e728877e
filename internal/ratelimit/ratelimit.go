package ratelimit

import (
	"sync"
	"time"
)

// RateLimiter tracks and enforces request rate limits per client key
type RateLimiter struct {
	requestsPerMinute int
	requestsPerHour   int
	requestsPerDay    int
	enabled           bool

	clients map[string]*windows
	now     func() time.Time
	mu      sync.Mutex
}

type windows struct {
	minute []time.Time
	hour   []time.Time
	day    []time.Time
}

// NewRateLimiter creates a new rate limiter with the given limits. A zero
// limit disables that window.
func NewRateLimiter(requestsPerMinute, requestsPerHour, requestsPerDay int, enabled bool) *RateLimiter {
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		requestsPerHour:   requestsPerHour,
		requestsPerDay:    requestsPerDay,
		enabled:           enabled,
		clients:           make(map[string]*windows),
		now:               time.Now,
	}
}

// WithClock replaces the time source
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.now = now
	return rl
}

// AllowRequest checks if a request from key is allowed and records it.
// Returns false if any window is full.
func (rl *RateLimiter) AllowRequest(key string) bool {
	if !rl.enabled {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w := rl.windowsFor(key)
	w.cleanup(now)

	if rl.requestsPerMinute > 0 && len(w.minute) >= rl.requestsPerMinute {
		return false
	}
	if rl.requestsPerHour > 0 && len(w.hour) >= rl.requestsPerHour {
		return false
	}
	if rl.requestsPerDay > 0 && len(w.day) >= rl.requestsPerDay {
		return false
	}

	w.minute = append(w.minute, now)
	w.hour = append(w.hour, now)
	w.day = append(w.day, now)

	return true
}

func (rl *RateLimiter) windowsFor(key string) *windows {
	w, ok := rl.clients[key]
	if !ok {
		w = &windows{}
		rl.clients[key] = w
	}
	return w
}

// cleanup removes expired entries from the time windows
func (w *windows) cleanup(now time.Time) {
	w.minute = filterTimes(w.minute, now.Add(-1*time.Minute))
	w.hour = filterTimes(w.hour, now.Add(-1*time.Hour))
	w.day = filterTimes(w.day, now.Add(-24*time.Hour))
}

// filterTimes keeps only times after the cutoff
func filterTimes(times []time.Time, cutoff time.Time) []time.Time {
	result := make([]time.Time, 0, len(times))
	for _, t := range times {
		if t.After(cutoff) {
			result = append(result, t)
		}
	}
	return result
}

// GetStats returns current statistics for key. An unknown key reports
// empty windows and is not tracked.
func (rl *RateLimiter) GetStats(key string) Stats {
	if !rl.enabled {
		return Stats{Enabled: false}
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.clients[key]
	if !ok {
		w = &windows{}
	}
	w.cleanup(rl.now())

	return Stats{
		Enabled:             true,
		Client:              key,
		TrackedClients:      len(rl.clients),
		RequestsLastMinute:  len(w.minute),
		RequestsLastHour:    len(w.hour),
		RequestsLastDay:     len(w.day),
		LimitPerMinute:      rl.requestsPerMinute,
		LimitPerHour:        rl.requestsPerHour,
		LimitPerDay:         rl.requestsPerDay,
		RemainingThisMinute: remaining(rl.requestsPerMinute, len(w.minute)),
		RemainingThisHour:   remaining(rl.requestsPerHour, len(w.hour)),
		RemainingThisDay:    remaining(rl.requestsPerDay, len(w.day)),
	}
}

// Stats contains rate limiter statistics for one client
type Stats struct {
	Enabled             bool   `json:"enabled"`
	Client              string `json:"client,omitempty"`
	TrackedClients      int    `json:"tracked_clients"`
	RequestsLastMinute  int    `json:"requests_last_minute"`
	RequestsLastHour    int    `json:"requests_last_hour"`
	RequestsLastDay     int    `json:"requests_last_day"`
	LimitPerMinute      int    `json:"limit_per_minute"`
	LimitPerHour        int    `json:"limit_per_hour"`
	LimitPerDay         int    `json:"limit_per_day"`
	RemainingThisMinute int    `json:"remaining_this_minute"`
	RemainingThisHour   int    `json:"remaining_this_hour"`
	RemainingThisDay    int    `json:"remaining_this_day"`
}

// Prune drops clients with no request in the last day and returns how many
// were dropped
func (rl *RateLimiter) Prune() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	dropped := 0
	for key, w := range rl.clients {
		w.cleanup(now)
		if len(w.day) == 0 {
			delete(rl.clients, key)
			dropped++
		}
	}
	return dropped
}

// remaining is -1 for an unlimited window
func remaining(limit, used int) int {
	if limit <= 0 {
		return -1
	}
	return max(0, limit-used)
}
