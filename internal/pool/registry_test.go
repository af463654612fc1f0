package pool

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"rwsplit/internal/config"
	"rwsplit/internal/events"
	"rwsplit/internal/routing"
)

// testConfig returns a config with both endpoints in a temp dir. An
// unreachable replica points into a directory that does not exist.
func testConfig(t *testing.T, replicaReachable bool, policy config.FallbackPolicy) config.DatabaseConfig {
	t.Helper()
	dir := t.TempDir()
	replica := filepath.Join(dir, "replica.db")
	if !replicaReachable {
		replica = filepath.Join(dir, "missing", "replica.db")
	}
	return config.DatabaseConfig{
		PrimaryEndpoint:       filepath.Join(dir, "primary.db"),
		ReplicaEndpoint:       replica,
		PoolMinSize:           2,
		PoolMaxSize:           4,
		AcquisitionTimeoutMs:  500,
		ReplicaFallbackPolicy: policy,
		HealthCheckInterval:   config.Duration(time.Second),
	}
}

func openRegistry(t *testing.T, cfg config.DatabaseConfig, opts ...Option) *Registry {
	t.Helper()
	reg, err := Open(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		reg.Close()
	})
	return reg
}

// servedFile returns the base name of the database file behind conn
func servedFile(t *testing.T, conn *sql.Conn) string {
	t.Helper()
	var (
		seq        int
		name, file string
	)
	err := conn.QueryRowContext(context.Background(), "PRAGMA database_list").Scan(&seq, &name, &file)
	if err != nil {
		t.Fatalf("PRAGMA database_list: %v", err)
	}
	return filepath.Base(file)
}

func TestOpenMissingEndpoint(t *testing.T) {
	tests := []struct {
		name  string
		clear func(*config.DatabaseConfig)
		field string
	}{
		{"primary", func(c *config.DatabaseConfig) { c.PrimaryEndpoint = "" }, "primary_endpoint"},
		{"replica", func(c *config.DatabaseConfig) { c.ReplicaEndpoint = "  " }, "replica_endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, true, config.FallbackError)
			tt.clear(&cfg)

			_, err := Open(context.Background(), cfg)
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("Open() error = %v, want ErrConfiguration", err)
			}
			var ce *ConfigurationError
			if !errors.As(err, &ce) || ce.Field != tt.field {
				t.Errorf("Open() error = %v, want field %q", err, tt.field)
			}
			if IsRetryable(err) {
				t.Error("configuration errors must not be retryable")
			}
		})
	}
}

func TestOpenInvalidBounds(t *testing.T) {
	cfg := testConfig(t, true, config.FallbackError)
	cfg.PoolMinSize = 8
	cfg.PoolMaxSize = 2

	_, err := Open(context.Background(), cfg)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("Open() error = %v, want ErrConfiguration", err)
	}
	var ve *config.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("Open() error should wrap *config.ValidationError, got %v", err)
	}
}

func TestOpenPrimaryUnreachable(t *testing.T) {
	cfg := testConfig(t, true, config.FallbackToPrimary)
	cfg.PrimaryEndpoint = filepath.Join(t.TempDir(), "missing", "primary.db")

	_, err := Open(context.Background(), cfg)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Open() error = %v, want ErrUnavailable", err)
	}
}

func TestAcquireByRole(t *testing.T) {
	reg := openRegistry(t, testConfig(t, true, config.FallbackError))
	ctx := context.Background()

	tests := []struct {
		role routing.Role
		file string
	}{
		{routing.Primary, "primary.db"},
		{routing.Replica, "replica.db"},
	}

	for _, tt := range tests {
		t.Run(tt.role.String(), func(t *testing.T) {
			conn, served, err := reg.Acquire(ctx, tt.role)
			if err != nil {
				t.Fatalf("Acquire(%s) error = %v", tt.role, err)
			}
			defer conn.Close()

			if served != tt.role {
				t.Errorf("served role = %s, want %s", served, tt.role)
			}
			if got := servedFile(t, conn); got != tt.file {
				t.Errorf("served file = %s, want %s", got, tt.file)
			}
		})
	}
}

func TestAcquireReplicaUnavailableWithErrorPolicy(t *testing.T) {
	bus := events.NewBus()
	ch := make(chan events.Event, 4)
	bus.Subscribe(ch)

	reg := openRegistry(t, testConfig(t, false, config.FallbackError), WithPublisher(bus))
	ctx := context.Background()

	p, err := reg.Get(routing.Replica)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if p.Healthy() {
		t.Error("unreachable replica should be marked unhealthy after warm-up")
	}

	// Once through the health flag, once through a real connection attempt.
	for _, healthy := range []bool{false, true} {
		reg.SetHealthy(routing.Replica, healthy)

		conn, served, err := reg.Acquire(ctx, routing.Replica)
		if conn != nil {
			conn.Close()
			t.Fatal("Acquire() returned a connection for an unreachable replica")
		}
		if !errors.Is(err, ErrUnavailable) {
			t.Fatalf("Acquire() error = %v, want ErrUnavailable", err)
		}
		if !IsRetryable(err) {
			t.Error("unavailability should be retryable")
		}
		var ue *UnavailableError
		if !errors.As(err, &ue) || ue.Role != routing.Replica {
			t.Errorf("Acquire() error = %v, want replica UnavailableError", err)
		}
		if served != routing.Replica {
			t.Errorf("served role = %s, want %s", served, routing.Replica)
		}
	}

	if got := reg.Stats().Degradations; got != 0 {
		t.Errorf("Degradations = %d, want 0", got)
	}
	select {
	case ev := <-ch:
		t.Errorf("unexpected event %s", ev.Type)
	default:
	}
}

func TestAcquireReplicaFallbackToPrimary(t *testing.T) {
	bus := events.NewBus()
	ch := make(chan events.Event, 4)
	bus.Subscribe(ch)

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	reg := openRegistry(t, testConfig(t, false, config.FallbackToPrimary),
		WithPublisher(bus), WithTracerProvider(tp))

	conn, served, err := reg.Acquire(context.Background(), routing.Replica)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer conn.Close()

	if served != routing.Primary {
		t.Errorf("served role = %s, want %s", served, routing.Primary)
	}
	if got := servedFile(t, conn); got != "primary.db" {
		t.Errorf("served file = %s, want primary.db", got)
	}

	if got := reg.Stats().Degradations; got != 1 {
		t.Errorf("Degradations = %d, want 1", got)
	}
	select {
	case ev := <-ch:
		if ev.Type != events.EventReplicaDegraded {
			t.Errorf("event = %s, want %s", ev.Type, events.EventReplicaDegraded)
		}
	default:
		t.Error("expected a degradation event")
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	if spans[0].Name() != "pool.acquire" {
		t.Errorf("span name = %q, want pool.acquire", spans[0].Name())
	}
	attrs := map[attribute.Key]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value.AsString()
	}
	if attrs["db.role.requested"] != "replica" || attrs["db.role.served"] != "primary" {
		t.Errorf("span attributes = %v", attrs)
	}
}

func TestAcquirePrimaryNeverFallsBack(t *testing.T) {
	cfg := testConfig(t, true, config.FallbackToPrimary)
	cfg.PoolMinSize = 1
	cfg.PoolMaxSize = 1
	cfg.AcquisitionTimeoutMs = 50
	reg := openRegistry(t, cfg)
	ctx := context.Background()

	held, _, err := reg.Acquire(ctx, routing.Primary)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer held.Close()

	_, _, err = reg.Acquire(ctx, routing.Primary)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Acquire() on exhausted pool error = %v, want ErrUnavailable", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() error should wrap context.DeadlineExceeded, got %v", err)
	}
	if got := reg.Stats().Degradations; got != 0 {
		t.Errorf("Degradations = %d, want 0", got)
	}
}

func TestAcquireCallerCancelled(t *testing.T) {
	reg := openRegistry(t, testConfig(t, false, config.FallbackToPrimary))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := reg.Acquire(ctx, routing.Primary)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Acquire() error = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrUnavailable) {
		t.Error("caller cancellation must not be reported as unavailability")
	}
}

func TestSetHealthy(t *testing.T) {
	reg := openRegistry(t, testConfig(t, true, config.FallbackError))

	if reg.SetHealthy(routing.Replica, true) {
		t.Error("SetHealthy(true) on a healthy pool should report no change")
	}
	if !reg.SetHealthy(routing.Replica, false) {
		t.Error("SetHealthy(false) should report a change")
	}
	if !reg.SetHealthy(routing.Replica, true) {
		t.Error("SetHealthy(true) should report a change")
	}
	if reg.SetHealthy(routing.Role(9), false) {
		t.Error("unknown role should report no change")
	}
}

func TestPing(t *testing.T) {
	reg := openRegistry(t, testConfig(t, false, config.FallbackError))
	ctx := context.Background()

	if err := reg.Ping(ctx, routing.Primary); err != nil {
		t.Errorf("Ping(primary) error = %v", err)
	}
	if err := reg.Ping(ctx, routing.Replica); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Ping(replica) error = %v, want ErrUnavailable", err)
	}
	if err := reg.Ping(ctx, routing.Role(9)); !errors.Is(err, ErrConfiguration) {
		t.Errorf("Ping(unknown) error = %v, want ErrConfiguration", err)
	}
}

func TestPingSaturatedPool(t *testing.T) {
	cfg := testConfig(t, true, config.FallbackError)
	cfg.PoolMinSize = 1
	cfg.PoolMaxSize = 1
	cfg.AcquisitionTimeoutMs = 200
	reg := openRegistry(t, cfg)
	ctx := context.Background()

	conn, _, err := reg.Acquire(ctx, routing.Replica)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer conn.Close()

	// The only pooled connection is checked out; a pooled acquire times out.
	if _, _, err := reg.Acquire(ctx, routing.Replica); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("second Acquire() error = %v, want ErrUnavailable", err)
	}
	if err := reg.Ping(ctx, routing.Replica); err != nil {
		t.Errorf("Ping() on saturated pool error = %v, want nil", err)
	}
}

func TestStats(t *testing.T) {
	reg := openRegistry(t, testConfig(t, true, config.FallbackError))

	conn, _, err := reg.Acquire(context.Background(), routing.Replica)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer conn.Close()

	stats := reg.Stats()
	if stats.FallbackPolicy != config.FallbackError {
		t.Errorf("FallbackPolicy = %q, want %q", stats.FallbackPolicy, config.FallbackError)
	}
	if len(stats.Pools) != 2 {
		t.Fatalf("Pools = %d, want 2", len(stats.Pools))
	}
	replica := stats.Pools[1]
	if replica.Role != "replica" || replica.Acquired != 1 || replica.InUse != 1 {
		t.Errorf("replica stats = %+v", replica)
	}
	if !replica.Healthy {
		t.Error("replica should be healthy")
	}
}

func TestDSN(t *testing.T) {
	tests := []struct {
		endpoint string
		prefix   string
	}{
		{"/data/primary.db", "/data/primary.db?_pragma="},
		{"file:replica.db?mode=ro", "file:replica.db?mode=ro&_pragma="},
	}

	for _, tt := range tests {
		got := dsn(tt.endpoint)
		if !strings.HasPrefix(got, tt.prefix) {
			t.Errorf("dsn(%q) = %q, want prefix %q", tt.endpoint, got, tt.prefix)
		}
		if !strings.Contains(got, "busy_timeout(5000)") {
			t.Errorf("dsn(%q) = %q, missing busy_timeout", tt.endpoint, got)
		}
	}
}
