package server

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// rateLimiter caps subscribe/unsubscribe attempts at 10 per IP per hour to
// slow down token enumeration and subscription spam.
type rateLimiter struct {
	mu      sync.Mutex
	clients map[string][]time.Time
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{
		clients: make(map[string][]time.Time),
	}
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-time.Hour)

	var recent []time.Time
	for _, ts := range rl.clients[ip] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= 10 {
		return false
	}

	recent = append(recent, now)
	rl.clients[ip] = recent
	return true
}

func clientIP(r *http.Request) string {
	// X-Forwarded-For is set by the Cloud Run front end
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
