package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// requestRecord tracks the number of requests and the window start time
type requestRecord struct {
	count       int
	windowStart time.Time
	mu          sync.Mutex
}

// throttleStore stores rate limit data per key
type throttleStore struct {
	records map[string]*requestRecord
	mu      sync.RWMutex
}

// newThrottleStore creates a new throttle store
func newThrottleStore() *throttleStore {
	store := &throttleStore{
		records: make(map[string]*requestRecord),
	}
	// Start cleanup goroutine to remove old entries
	go store.startCleanup()
	return store
}

// startCleanup periodically cleans up old entries to prevent memory leaks
func (ts *throttleStore) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		ts.cleanupOldRecords()
	}
}

// cleanupOldRecords removes records older than 1 hour
func (ts *throttleStore) cleanupOldRecords() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	oneHourAgo := time.Now().Add(-1 * time.Hour)
	for key, record := range ts.records {
		record.mu.Lock()
		if record.windowStart.Before(oneHourAgo) {
			delete(ts.records, key)
		}
		record.mu.Unlock()
	}
}

// getOrCreateRecord gets or creates a request record for a key
func (ts *throttleStore) getOrCreateRecord(key string) *requestRecord {
	ts.mu.RLock()
	record, exists := ts.records[key]
	ts.mu.RUnlock()

	if exists {
		return record
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	// Double-check after acquiring write lock
	if record, exists := ts.records[key]; exists {
		return record
	}
	record = &requestRecord{
		count:       0,
		windowStart: time.Now(),
	}
	ts.records[key] = record
	return record
}

// checkAndIncrement checks if the key can make a request and increments the counter.
// Returns true if allowed, false if rate limited
func (ts *throttleStore) checkAndIncrement(key string, maxRequests int, period time.Duration) bool {
	record := ts.getOrCreateRecord(key)

	record.mu.Lock()
	defer record.mu.Unlock()

	now := time.Now()
	// If the window has expired, reset it
	if now.Sub(record.windowStart) >= period {
		record.count = 1
		record.windowStart = now
		return true
	}

	// Check if limit is exceeded
	if record.count >= maxRequests {
		return false
	}

	// Increment and allow
	record.count++
	return true
}

// Global throttle store (one per application instance)
var globalThrottleStore = newThrottleStore()

// KeyFunc extracts the throttle key from a request. An empty key skips
// throttling for that request.
type KeyFunc func(*http.Request) string

// DeviceKey throttles by the X-Device-ID header, falling back to the
// remote address for agents that omit it.
func DeviceKey(r *http.Request) string {
	if id := r.Header.Get("X-Device-ID"); id != "" {
		return id
	}
	return r.RemoteAddr
}

// ThrottleMiddleware creates an HTTP middleware that rate limits requests per key.
// maxRequests: maximum number of requests allowed
// period: time window for the rate limit (e.g., time.Minute for per-minute limits)
func ThrottleMiddleware(maxRequests int, period time.Duration, keyFn KeyFunc) func(http.Handler) http.Handler {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	if period <= 0 {
		period = time.Minute
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			// Check rate limit
			allowed := globalThrottleStore.checkAndIncrement(key, maxRequests, period)
			if !allowed {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", formatRetryAfter(period))
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}

			// Request allowed, proceed
			next.ServeHTTP(w, r)
		})
	}
}

// formatRetryAfter formats the period as seconds for Retry-After header
func formatRetryAfter(period time.Duration) string {
	seconds := int(period.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
