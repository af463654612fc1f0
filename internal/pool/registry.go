// Package pool maps routing roles to configured SQLite connection pools.
//
// The Registry is built once at startup and is read-only afterwards, so its
// pool handles are shared by every unit of work. Acquire is the only call in
// the routing path that blocks.
package pool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"rwsplit/internal/config"
	"rwsplit/internal/events"
	"rwsplit/internal/routing"
)

const (
	driverName = "sqlite"
	tracerName = "rwsplit/internal/pool"
)

// Pool is the connection pool for one role
type Pool struct {
	Role     routing.Role
	Endpoint string

	db       *sql.DB
	probe    *sql.DB
	healthy  atomic.Bool
	acquired atomic.Int64
	failures atomic.Int64
}

// DB returns the underlying handle, for migrations and health checks
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Healthy reports the last known health of the pool
func (p *Pool) Healthy() bool {
	return p.healthy.Load()
}

// Registry hands out connections by role and applies the replica fallback
// policy
type Registry struct {
	pools        map[routing.Role]*Pool
	policy       config.FallbackPolicy
	timeout      time.Duration
	events       events.Publisher
	tracer       trace.Tracer
	degradations atomic.Int64
}

// Option configures a Registry
type Option func(*Registry)

// WithPublisher sets where degradation events go
func WithPublisher(pub events.Publisher) Option {
	return func(r *Registry) {
		if pub != nil {
			r.events = pub
		}
	}
}

// WithTracerProvider sets the provider used for acquisition spans
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Registry) {
		if tp != nil {
			r.tracer = tp.Tracer(tracerName)
		}
	}
}

// Open validates cfg, opens a pool per role and warms PoolMinSize
// connections on each. A primary that cannot be reached fails startup. A
// replica that cannot be reached is logged and marked unhealthy; the
// fallback policy decides what acquisitions do about it.
func Open(ctx context.Context, cfg config.DatabaseConfig, opts ...Option) (*Registry, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}

	r := &Registry{
		pools:   make(map[routing.Role]*Pool, len(routing.Roles)),
		policy:  cfg.ReplicaFallbackPolicy,
		timeout: cfg.AcquisitionTimeout(),
		events:  events.Discard,
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}

	endpoints := map[routing.Role]string{
		routing.Primary: cfg.PrimaryEndpoint,
		routing.Replica: cfg.ReplicaEndpoint,
	}
	for _, role := range routing.Roles {
		db, err := sql.Open(driverName, dsn(endpoints[role]))
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("open %s pool: %w", role, err)
		}
		db.SetMaxOpenConns(cfg.PoolMaxSize)
		db.SetMaxIdleConns(cfg.PoolMaxSize)

		// Health probes dial fresh and never wait on pool capacity.
		probe, err := sql.Open(driverName, dsn(endpoints[role]))
		if err != nil {
			db.Close()
			r.Close()
			return nil, fmt.Errorf("open %s probe: %w", role, err)
		}
		probe.SetMaxOpenConns(1)
		probe.SetMaxIdleConns(0)

		p := &Pool{Role: role, Endpoint: endpoints[role], db: db, probe: probe}
		p.healthy.Store(true)
		r.pools[role] = p
	}

	if err := r.warm(ctx, r.pools[routing.Primary], cfg.PoolMinSize); err != nil {
		r.Close()
		return nil, fmt.Errorf("warm primary pool: %w", err)
	}
	if err := r.warm(ctx, r.pools[routing.Replica], cfg.PoolMinSize); err != nil {
		log.Printf("Replica pool warm-up failed, marking unhealthy: %v", err)
		r.SetHealthy(routing.Replica, false)
	}

	log.Printf("Pools ready: primary=%s replica=%s fallback=%s",
		cfg.PrimaryEndpoint, cfg.ReplicaEndpoint, r.policy)
	return r, nil
}

func validate(cfg config.DatabaseConfig) error {
	if strings.TrimSpace(cfg.PrimaryEndpoint) == "" {
		return &ConfigurationError{Field: "primary_endpoint", Reason: "no endpoint configured for primary"}
	}
	if strings.TrimSpace(cfg.ReplicaEndpoint) == "" {
		return &ConfigurationError{Field: "replica_endpoint", Reason: "no endpoint configured for replica"}
	}
	if err := cfg.Validate(); err != nil {
		var ve *config.ValidationError
		if errors.As(err, &ve) {
			return &ConfigurationError{Field: ve.Field, Reason: ve.Reason, Err: err}
		}
		return &ConfigurationError{Field: "database", Reason: err.Error(), Err: err}
	}
	return nil
}

// dsn adds the connection pragmas every pooled SQLite connection needs
func dsn(endpoint string) string {
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

// warm opens n connections and returns them to the idle pool. The first
// connection is opened alone so it can create the database file and switch
// the journal mode before the rest connect concurrently.
func (r *Registry) warm(ctx context.Context, p *Pool, n int) error {
	first, err := r.connect(ctx, p)
	if err != nil {
		return err
	}
	defer first.Close()

	conns := make([]*sql.Conn, max(n-1, 0))

	g, gctx := errgroup.WithContext(ctx)
	for i := range conns {
		g.Go(func() error {
			conn, err := r.connect(gctx, p)
			if err != nil {
				return err
			}
			conns[i] = conn
			return nil
		})
	}
	err = g.Wait()

	for _, conn := range conns {
		if conn != nil {
			conn.Close()
		}
	}
	return err
}

// Get returns the pool for role
func (r *Registry) Get(role routing.Role) (*Pool, error) {
	p, ok := r.pools[role]
	if !ok {
		return nil, &ConfigurationError{Field: "role", Reason: fmt.Sprintf("no pool configured for %s", role)}
	}
	return p, nil
}

// Policy returns the configured replica fallback policy
func (r *Registry) Policy() config.FallbackPolicy {
	return r.policy
}

// Acquire obtains a dedicated connection for role. It returns the role that
// actually served the connection, which differs from role only when the
// replica failed and the policy falls back to the primary.
func (r *Registry) Acquire(ctx context.Context, role routing.Role) (*sql.Conn, routing.Role, error) {
	ctx, span := r.tracer.Start(ctx, "pool.acquire",
		trace.WithAttributes(attribute.String("db.role.requested", role.String())))
	defer span.End()

	conn, err := r.acquire(ctx, role)
	if err != nil && role == routing.Replica && r.policy.Degrades() && errors.Is(err, ErrUnavailable) {
		r.degrade(err)
		span.AddEvent("replica_degraded")
		role = routing.Primary
		conn, err = r.acquire(ctx, role)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, role, err
	}

	span.SetAttributes(attribute.String("db.role.served", role.String()))
	return conn, role, nil
}

func (r *Registry) acquire(ctx context.Context, role routing.Role) (*sql.Conn, error) {
	p, err := r.Get(role)
	if err != nil {
		return nil, err
	}
	if !p.Healthy() {
		p.failures.Add(1)
		return nil, &UnavailableError{Role: role, Endpoint: p.Endpoint, Err: errMarkedDown}
	}

	conn, err := r.connect(ctx, p)
	if err != nil {
		return nil, err
	}
	p.acquired.Add(1)
	return conn, nil
}

// connect takes a connection from p within the acquisition timeout and
// checks that it is alive
func (r *Registry) connect(ctx context.Context, p *Pool) (*sql.Conn, error) {
	actx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	conn, err := p.db.Conn(actx)
	if err == nil {
		if err = conn.PingContext(actx); err != nil {
			conn.Close()
		}
	}
	if err != nil {
		// The caller giving up is not the pool's fault.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.failures.Add(1)
		return nil, &UnavailableError{Role: p.Role, Endpoint: p.Endpoint, Err: err}
	}
	return conn, nil
}

func (r *Registry) degrade(cause error) {
	n := r.degradations.Add(1)
	log.Printf("DEGRADED: replica unavailable, serving read-only work from primary (degradation #%d): %v", n, cause)
	r.events.Publish(events.Event{
		Type: events.EventReplicaDegraded,
		Payload: map[string]any{
			"error":        cause.Error(),
			"degradations": n,
		},
	})
}

// Ping checks that the endpoint behind role accepts connections. It dials
// outside the pool, so a pool with every connection checked out still
// pings healthy.
func (r *Registry) Ping(ctx context.Context, role routing.Role) error {
	p, err := r.Get(role)
	if err != nil {
		return err
	}

	pctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := p.probe.PingContext(pctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.failures.Add(1)
		return &UnavailableError{Role: role, Endpoint: p.Endpoint, Err: err}
	}
	return nil
}

// SetHealthy records the health of role and reports whether it changed
func (r *Registry) SetHealthy(role routing.Role, healthy bool) bool {
	p, ok := r.pools[role]
	if !ok {
		return false
	}
	return p.healthy.CompareAndSwap(!healthy, healthy)
}

// PoolStats is a point-in-time view of one pool
type PoolStats struct {
	Role            string `json:"role"`
	Endpoint        string `json:"endpoint"`
	Healthy         bool   `json:"healthy"`
	Acquired        int64  `json:"acquired"`
	Failures        int64  `json:"failures"`
	OpenConnections int    `json:"open_connections"`
	InUse           int    `json:"in_use"`
	Idle            int    `json:"idle"`
}

// Stats is a point-in-time view of the registry
type Stats struct {
	FallbackPolicy config.FallbackPolicy `json:"fallback_policy"`
	Degradations   int64                 `json:"degradations"`
	Pools          []PoolStats           `json:"pools"`
}

// Stats reports counters and database/sql pool statistics for every role
func (r *Registry) Stats() Stats {
	stats := Stats{
		FallbackPolicy: r.policy,
		Degradations:   r.degradations.Load(),
	}
	for _, role := range routing.Roles {
		p, ok := r.pools[role]
		if !ok {
			continue
		}
		dbStats := p.db.Stats()
		stats.Pools = append(stats.Pools, PoolStats{
			Role:            role.String(),
			Endpoint:        p.Endpoint,
			Healthy:         p.Healthy(),
			Acquired:        p.acquired.Load(),
			Failures:        p.failures.Load(),
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
		})
	}
	return stats
}

// Close closes every pool
func (r *Registry) Close() error {
	var errs []error
	for _, p := range r.pools {
		if err := p.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pool: %w", p.Role, err))
		}
		if err := p.probe.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s probe: %w", p.Role, err))
		}
	}
	return errors.Join(errs...)
}
