// Package limits provides concurrency limiting and timeout enforcement
// for tool calls.
package limits

import (
	"context"
	"fmt"
	"sync"
)

// LimiterConfig configures concurrency caps.
type LimiterConfig struct {
	// MaxGlobal caps concurrently executing tool calls across all tools.
	// Zero or negative means unbounded.
	MaxGlobal int `yaml:"max_global"`

	// PerTool caps concurrently executing calls per tool name. A tool
	// absent from the map is unbounded on that axis.
	PerTool map[string]int `yaml:"per_tool"`
}

// DefaultLimiterConfig returns the default concurrency configuration.
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{MaxGlobal: 8}
}

// LimitError reports a rejected call with the counter state at the time
// of the check.
type LimitError struct {
	Tool    string
	Current int
	Limit   int
}

// Error implements the error interface.
func (e *LimitError) Error() string {
	return fmt.Sprintf("concurrency limit exceeded for %s: %d of %d in flight", e.Tool, e.Current, e.Limit)
}

// Limiter tracks a global in-flight count and per-tool in-flight counts
// against configured caps. All counter mutation happens under one mutex,
// so check-then-start in Execute is race-free.
type Limiter struct {
	mu      sync.Mutex
	global  int
	perTool map[string]int
	config  LimiterConfig
}

// NewLimiter creates a limiter with the given caps.
func NewLimiter(config LimiterConfig) *Limiter {
	return &Limiter{
		perTool: make(map[string]int),
		config:  config,
	}
}

// CanStart reports whether starting a call for the tool would keep both
// the global and the per-tool counters within their caps.
func (l *Limiter) CanStart(tool string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.canStartLocked(tool)
}

func (l *Limiter) canStartLocked(tool string) bool {
	if l.config.MaxGlobal > 0 && l.global >= l.config.MaxGlobal {
		return false
	}
	if limit, ok := l.config.PerTool[tool]; ok && limit > 0 && l.perTool[tool] >= limit {
		return false
	}
	return true
}

// Start unconditionally increments both counters. Callers must have
// checked CanStart, or accept exceeding a cap.
func (l *Limiter) Start(tool string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.global++
	l.perTool[tool]++
}

// Complete decrements both counters. Must be called exactly once per
// Start, on every exit path.
func (l *Limiter) Complete(tool string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.global > 0 {
		l.global--
	}
	if l.perTool[tool] > 0 {
		l.perTool[tool]--
		if l.perTool[tool] == 0 {
			delete(l.perTool, tool)
		}
	}
}

// InFlight returns the current global and per-tool counts.
func (l *Limiter) InFlight(tool string) (global, perTool int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.global, l.perTool[tool]
}

// Execute atomically checks and starts a bracket for the tool, runs op,
// and releases the bracket on any outcome. When the check fails the op
// is not run and a LimitError carrying the counter state is returned.
func (l *Limiter) Execute(ctx context.Context, tool string, op func(ctx context.Context) error) error {
	l.mu.Lock()
	if !l.canStartLocked(tool) {
		current := l.global
		limit := l.config.MaxGlobal
		if perLimit, ok := l.config.PerTool[tool]; ok && perLimit > 0 && l.perTool[tool] >= perLimit {
			current = l.perTool[tool]
			limit = perLimit
		}
		l.mu.Unlock()
		return &LimitError{Tool: tool, Current: current, Limit: limit}
	}
	l.global++
	l.perTool[tool]++
	l.mu.Unlock()

	defer l.Complete(tool)
	return op(ctx)
}
