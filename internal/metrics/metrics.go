// Package metrics provides the engines' metrics collection and reporting.
// Each engine process writes its counters to Redis under its own key so an
// external dashboard can read them; this is the concrete stand-in for the
// "metrics sink" spec.md treats as an external collaborator.
package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix is the Redis key prefix for engine metrics.
	KeyPrefix = "metrics:"
	// TTL is how long metrics stay in Redis if not refreshed.
	TTL = 2 * time.Minute
	// DefaultReportInterval is the default interval for writing metrics to Redis.
	DefaultReportInterval = 30 * time.Second
)

// Snapshot holds a point-in-time view of a process's counters.
type Snapshot struct {
	EngineName  string            `json:"engine_name"`
	StartedAt   time.Time         `json:"started_at"`
	LastUpdated time.Time         `json:"last_updated"`
	Counters    map[string]uint64 `json:"counters"`
	Timers      map[string]Timer  `json:"timers,omitempty"`
}

// Timer is an accumulated count + total duration, used to derive an average.
type Timer struct {
	Count      uint64 `json:"count"`
	TotalNanos uint64 `json:"total_nanos"`
}

// Collector accumulates counters (optionally dimensioned) and timers for one
// engine process and periodically flushes a snapshot to Redis.
type Collector struct {
	engineName     string
	redis          *redis.Client
	startedAt      time.Time
	reportInterval time.Duration

	mu       sync.RWMutex
	counters map[string]*atomic.Uint64
	timers   map[string]*timerState

	stopCh chan struct{}
	wg     sync.WaitGroup
}

type timerState struct {
	count atomic.Uint64
	total atomic.Uint64
}

// NewCollector creates a new metrics collector for an engine.
func NewCollector(engineName string, redisClient *redis.Client) *Collector {
	return &Collector{
		engineName:     engineName,
		redis:          redisClient,
		startedAt:      time.Now().UTC(),
		reportInterval: DefaultReportInterval,
		counters:       make(map[string]*atomic.Uint64),
		timers:         make(map[string]*timerState),
		stopCh:         make(chan struct{}),
	}
}

// Start begins periodic reporting to Redis. A nil Collector is safe to call
// Start/Stop on so engines can run with metrics disabled.
func (c *Collector) Start(ctx context.Context) {
	if c == nil || c.redis == nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.reportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				c.writeSnapshot(context.Background())
				return
			case <-c.stopCh:
				c.writeSnapshot(context.Background())
				return
			case <-ticker.C:
				c.writeSnapshot(ctx)
			}
		}
	}()
}

// Stop stops periodic reporting and flushes a final snapshot.
func (c *Collector) Stop() {
	if c == nil {
		return
	}
	close(c.stopCh)
	c.wg.Wait()
}

// Increment bumps a named counter by one. dims, if non-empty, are folded into
// the counter's key (e.g. name="notifications_sent", dims={"kind":"email"}).
func (c *Collector) Increment(name string, dims map[string]string) {
	c.Add(name, 1, dims)
}

// Add bumps a named counter by delta.
func (c *Collector) Add(name string, delta uint64, dims map[string]string) {
	if c == nil {
		return
	}
	key := dimensionedKey(name, dims)
	c.mu.RLock()
	counter, ok := c.counters[key]
	c.mu.RUnlock()
	if !ok {
		c.mu.Lock()
		if counter, ok = c.counters[key]; !ok {
			counter = &atomic.Uint64{}
			c.counters[key] = counter
		}
		c.mu.Unlock()
	}
	counter.Add(delta)
}

// Time records a single observation of a named timer.
func (c *Collector) Time(name string, d time.Duration) {
	if c == nil {
		return
	}
	c.mu.RLock()
	t, ok := c.timers[name]
	c.mu.RUnlock()
	if !ok {
		c.mu.Lock()
		if t, ok = c.timers[name]; !ok {
			t = &timerState{}
			c.timers[name] = t
		}
		c.mu.Unlock()
	}
	t.count.Add(1)
	t.total.Add(uint64(d.Nanoseconds()))
}

// GetSnapshot returns the current counters/timers without writing to Redis.
func (c *Collector) GetSnapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	counters := make(map[string]uint64, len(c.counters))
	for k, v := range c.counters {
		counters[k] = v.Load()
	}
	timers := make(map[string]Timer, len(c.timers))
	for k, v := range c.timers {
		timers[k] = Timer{Count: v.count.Load(), TotalNanos: v.total.Load()}
	}

	return &Snapshot{
		EngineName:  c.engineName,
		StartedAt:   c.startedAt,
		LastUpdated: time.Now().UTC(),
		Counters:    counters,
		Timers:      timers,
	}
}

func (c *Collector) writeSnapshot(ctx context.Context) {
	if c.redis == nil {
		return
	}
	snap := c.GetSnapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		slog.Error("Failed to marshal metrics", "engine", c.engineName, "error", err)
		return
	}
	key := KeyPrefix + c.engineName
	if err := c.redis.Set(ctx, key, data, TTL).Err(); err != nil {
		slog.Error("Failed to write metrics to Redis", "engine", c.engineName, "error", err)
		return
	}
	slog.Debug("Metrics written to Redis", "engine", c.engineName, "key", key)
}

// dimensionedKey folds a stable-ordered dimension set into a counter name so
// names like "notification_send_errors{kind=email}" sort and compare cleanly.
func dimensionedKey(name string, dims map[string]string) string {
	if len(dims) == 0 {
		return name
	}
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(dims[k])
	}
	sb.WriteByte('}')
	return sb.String()
}
