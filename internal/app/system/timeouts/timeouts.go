// Package timeouts provides the deadlines applied to study-group operations.
//
// Every service call wraps its context with one of these so a stalled
// database cannot hold a caller forever:
//   - Ping: health checks
//   - Read: single-group or single-user lookups
//   - List: browse, search and per-user listings
//   - Write: multi-collection write sequences (create, approve, delete, repair)
//   - Sweep: one pass of the reminder worker
//
// Values start at the defaults and may be overridden once at startup with
// Configure or ConfigureFromEnv.
package timeouts

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Defaults.
const (
	DefaultPing  = 2 * time.Second
	DefaultRead  = 5 * time.Second
	DefaultList  = 10 * time.Second
	DefaultWrite = 30 * time.Second
	DefaultSweep = 60 * time.Second
)

// Config holds timeout values. Zero values are ignored.
type Config struct {
	Ping  time.Duration
	Read  time.Duration
	List  time.Duration
	Write time.Duration
	Sweep time.Duration
}

var defaults = Config{
	Ping:  DefaultPing,
	Read:  DefaultRead,
	List:  DefaultList,
	Write: DefaultWrite,
	Sweep: DefaultSweep,
}

var (
	mu  sync.RWMutex
	cur = defaults
)

func get(pick func(Config) time.Duration) time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return pick(cur)
}

func Ping() time.Duration  { return get(func(c Config) time.Duration { return c.Ping }) }
func Read() time.Duration  { return get(func(c Config) time.Duration { return c.Read }) }
func List() time.Duration  { return get(func(c Config) time.Duration { return c.List }) }
func Write() time.Duration { return get(func(c Config) time.Duration { return c.Write }) }
func Sweep() time.Duration { return get(func(c Config) time.Duration { return c.Sweep }) }

// fields pairs each value in c with its environment variable.
func fields(c *Config) []struct {
	env string
	dst *time.Duration
} {
	return []struct {
		env string
		dst *time.Duration
	}{
		{"TIMEOUT_PING", &c.Ping},
		{"TIMEOUT_READ", &c.Read},
		{"TIMEOUT_LIST", &c.List},
		{"TIMEOUT_WRITE", &c.Write},
		{"TIMEOUT_SWEEP", &c.Sweep},
	}
}

// Configure overrides the non-zero values in c.
func Configure(c Config) {
	mu.Lock()
	defer mu.Unlock()
	src := fields(&c)
	dst := fields(&cur)
	for i := range src {
		if *src[i].dst > 0 {
			*dst[i].dst = *src[i].dst
		}
	}
}

// ConfigureFromEnv reads TIMEOUT_PING, TIMEOUT_READ, TIMEOUT_LIST,
// TIMEOUT_WRITE and TIMEOUT_SWEEP (Go durations such as "5s" or "500ms").
// Unset or invalid values are ignored. It returns how many were applied.
func ConfigureFromEnv() int {
	mu.Lock()
	defer mu.Unlock()
	n := 0
	for _, f := range fields(&cur) {
		v := os.Getenv(f.env)
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			*f.dst = d
			n++
		}
	}
	return n
}

// Current returns the values in effect.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return cur
}

// Reset restores the defaults.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	cur = defaults
}

// WithTimeout derives a context with timeout. The returned cancel logs a
// warning naming operation when the deadline was what ended it.
//
//	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Write(), log, "approve user")
//	defer cancel()
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if ctx.Err() == context.DeadlineExceeded && log != nil {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout),
			)
		}
		cancel()
	}
}
