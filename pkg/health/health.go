// Package health aggregates liveness probes of the router's stores, broker
// connection and in-process components into one report.
package health

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"
)

const DefaultCheckTimeout = 5 * time.Second

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

type Checker interface {
	Check(ctx context.Context) error
	Name() string
}

type Health struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

type CheckResult struct {
	Status   Status        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

type registered struct {
	checker  Checker
	optional bool
}

// CheckerRegistry runs its checkers concurrently, each bounded by timeout.
// Register before serving; the registry is not safe for concurrent
// registration.
type CheckerRegistry struct {
	checkers []registered
	timeout  time.Duration
}

func NewCheckerRegistry() *CheckerRegistry {
	return &CheckerRegistry{timeout: DefaultCheckTimeout}
}

func (r *CheckerRegistry) Register(checker Checker) {
	r.checkers = append(r.checkers, registered{checker: checker})
}

// RegisterOptional adds a checker whose failure only degrades the service,
// e.g. a dead-letter sink or dedup store with a fallback.
func (r *CheckerRegistry) RegisterOptional(checker Checker) {
	r.checkers = append(r.checkers, registered{checker: checker, optional: true})
}

func (r *CheckerRegistry) Check(ctx context.Context) Health {
	var (
		mu      sync.Mutex
		results = make(map[string]CheckResult, len(r.checkers))
		overall = StatusHealthy
	)

	g, gCtx := errgroup.WithContext(ctx)
	for _, reg := range r.checkers {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(gCtx, r.timeout)
			defer cancel()

			start := time.Now()
			err := reg.checker.Check(checkCtx)
			result := CheckResult{Status: StatusHealthy, Duration: time.Since(start)}
			if err != nil {
				result.Message = err.Error()
				result.Status = StatusUnhealthy
				if reg.optional {
					result.Status = StatusDegraded
				}
			}

			mu.Lock()
			defer mu.Unlock()
			results[reg.checker.Name()] = result
			overall = worst(overall, result.Status)
			return nil
		})
	}
	g.Wait()

	return Health{
		Status:    overall,
		Timestamp: time.Now(),
		Checks:    results,
	}
}

func worst(a, b Status) Status {
	rank := func(s Status) int {
		switch s {
		case StatusUnhealthy:
			return 2
		case StatusDegraded:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}

// FuncChecker adapts a function. The store checkers below are FuncCheckers
// too.
type FuncChecker struct {
	name string
	fn   func(ctx context.Context) error
}

func NewFuncChecker(name string, fn func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, fn: fn}
}

func (c *FuncChecker) Name() string {
	return c.name
}

func (c *FuncChecker) Check(ctx context.Context) error {
	return c.fn(ctx)
}

func NewPostgreSQLChecker(db *sql.DB) *FuncChecker {
	return NewFuncChecker("postgresql", func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("postgresql ping failed: %w", err)
		}
		return nil
	})
}

func NewRedisChecker(client *redis.Client) *FuncChecker {
	return NewFuncChecker("redis", func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		return nil
	})
}

func NewMongoDBChecker(client *mongo.Client) *FuncChecker {
	return NewFuncChecker("mongodb", func(ctx context.Context) error {
		if err := client.Ping(ctx, nil); err != nil {
			return fmt.Errorf("mongodb ping failed: %w", err)
		}
		return nil
	})
}

func NewNATSChecker(conn *nats.Conn) *FuncChecker {
	return NewFuncChecker("nats", func(context.Context) error {
		if !conn.IsConnected() {
			return fmt.Errorf("nats connection is %s", conn.Status())
		}
		return nil
	})
}
