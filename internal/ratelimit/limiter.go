// Package ratelimit caps outbound sends per recipient domain so a
// single campaign cannot burn a mailbox provider's goodwill. Counters
// survive restarts via bbolt.
package ratelimit

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/bpr-rehab/campaigner/internal/config"
)

var bucketRateLimits = []byte("rate_limits")

// Counter tracks sends into the current hour and day windows.
type Counter struct {
	HourlyCount int       `json:"hourly_count"`
	DailyCount  int       `json:"daily_count"`
	HourStart   time.Time `json:"hour_start"`
	DayStart    time.Time `json:"day_start"`
}

// Result of a rate limit check.
type Result struct {
	Allowed    bool
	Domain     string
	RetryAfter time.Duration
}

// Limiter enforces per-recipient-domain hourly and daily send caps.
type Limiter struct {
	db       *bolt.DB
	cfg      config.RateLimitConfig
	counters map[string]*Counter // recipient domain -> counter
	mu       sync.RWMutex
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewLimiter creates a limiter backed by the bbolt database at the
// configured path. Persisted counters are reloaded so restarting the
// dispatcher does not reset the windows.
func NewLimiter(cfg config.RateLimitConfig) (*Limiter, error) {
	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open rate limit database: %w", err)
	}
	return newLimiter(db, cfg)
}

func newLimiter(db *bolt.DB, cfg config.RateLimitConfig) (*Limiter, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRateLimits)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limits bucket: %w", err)
	}

	l := &Limiter{
		db:       db,
		cfg:      cfg,
		counters: make(map[string]*Counter),
		stopCh:   make(chan struct{}),
	}

	if err := l.loadCounters(); err != nil {
		return nil, fmt.Errorf("failed to load counters: %w", err)
	}

	go l.persistLoop()

	return l, nil
}

// Allow checks the recipient's domain against the caps and, when
// allowed, counts the send. Disabled limiters allow everything.
func (l *Limiter) Allow(recipient string) *Result {
	domain := extractDomain(recipient)
	result := &Result{Allowed: true, Domain: domain}

	if !l.cfg.Enabled || domain == "" {
		return result
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	counter := l.getOrCreateCounter(domain, now)
	resetExpired(counter, now)

	if l.cfg.MessagesPerHour > 0 && counter.HourlyCount >= l.cfg.MessagesPerHour {
		result.Allowed = false
		result.RetryAfter = counter.HourStart.Add(time.Hour).Sub(now)
		return result
	}
	if l.cfg.MessagesPerDay > 0 && counter.DailyCount >= l.cfg.MessagesPerDay {
		result.Allowed = false
		result.RetryAfter = counter.DayStart.Add(24 * time.Hour).Sub(now)
		return result
	}

	counter.HourlyCount++
	counter.DailyCount++
	return result
}

// Stats returns the current counter for a domain.
func (l *Limiter) Stats(domain string) Counter {
	l.mu.RLock()
	defer l.mu.RUnlock()

	counter, ok := l.counters[domain]
	if !ok {
		return Counter{}
	}

	now := time.Now()
	stats := *counter
	if now.Sub(counter.HourStart) >= time.Hour {
		stats.HourlyCount = 0
	}
	if now.Sub(counter.DayStart) >= 24*time.Hour {
		stats.DailyCount = 0
	}
	return stats
}

// Stop persists counters and closes the backing database.
func (l *Limiter) Stop() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	if err := l.persistCounters(); err != nil {
		return err
	}
	return l.db.Close()
}

func (l *Limiter) getOrCreateCounter(domain string, now time.Time) *Counter {
	counter, ok := l.counters[domain]
	if !ok {
		counter = &Counter{HourStart: now, DayStart: now}
		l.counters[domain] = counter
	}
	return counter
}

func resetExpired(counter *Counter, now time.Time) {
	if now.Sub(counter.HourStart) >= time.Hour {
		counter.HourlyCount = 0
		counter.HourStart = now
	}
	if now.Sub(counter.DayStart) >= 24*time.Hour {
		counter.DailyCount = 0
		counter.DayStart = now
	}
}

func (l *Limiter) loadCounters() error {
	return l.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRateLimits)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var counter Counter
			if err := json.Unmarshal(v, &counter); err != nil {
				return nil // Skip invalid entries
			}
			l.counters[string(k)] = &counter
			return nil
		})
	})
}

func (l *Limiter) persistCounters() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRateLimits)
		if bucket == nil {
			return nil
		}
		for domain, counter := range l.counters {
			data, err := json.Marshal(counter)
			if err != nil {
				continue
			}
			if err := bucket.Put([]byte(domain), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (l *Limiter) persistLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.persistCounters()
		}
	}
}

// extractDomain returns the lowercased domain part of an address.
func extractDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}
