// Package gate defers connection acquisition for a unit of work until its
// first statement runs.
//
// Beginning a unit of work only records its routing intent. The role is
// resolved, a connection acquired and a transaction started when the first
// ExecContext or QueryContext arrives, by which time every wrapper that
// adjusts routing (transaction demarcation, primary overrides) has already
// run, whatever order they were applied in. The connection is then pinned to
// the unit until Commit or Rollback.
package gate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"rwsplit/internal/routing"
)

var (
	// ErrUnitFinished is returned for statements issued after Commit or
	// Rollback.
	ErrUnitFinished = errors.New("unit of work already finished")
	// ErrReadOnlyUnit is returned when read-write work tries to join a
	// unit of work that resolves to a replica.
	ErrReadOnlyUnit = errors.New("read-write work inside read-only unit of work")
)

// Acquirer hands out connections by role. *pool.Registry implements it.
type Acquirer interface {
	Acquire(ctx context.Context, role routing.Role) (*sql.Conn, routing.Role, error)
}

// Gate starts units of work against an Acquirer
type Gate struct {
	src Acquirer
}

// New creates a Gate
func New(src Acquirer) *Gate {
	return &Gate{src: src}
}

type unitKey struct{}

// UnitFrom returns the unit of work carried by ctx
func UnitFrom(ctx context.Context) (*Unit, bool) {
	u, ok := ctx.Value(unitKey{}).(*Unit)
	return u, ok && u != nil
}

// Begin starts a unit of work. Nothing is acquired until the first
// statement. The returned context carries both the unit and its routing
// Context and must be used for the unit's statements and overrides.
func (g *Gate) Begin(ctx context.Context, readOnly bool) (context.Context, *Unit) {
	ctx, rc := routing.Begin(ctx, readOnly)
	u := &Unit{
		ID:   uuid.NewString(),
		gate: g,
		rc:   rc,
	}
	ctx = context.WithValue(ctx, unitKey{}, u)
	u.txCtx = ctx
	return ctx, u
}

// Run executes fn inside a unit of work. If ctx already carries one, fn
// joins it. Otherwise a new unit is begun, committed when fn returns nil and
// rolled back when fn fails or panics.
func (g *Gate) Run(ctx context.Context, readOnly bool, fn func(context.Context, *Unit) error) error {
	if u, ok := UnitFrom(ctx); ok {
		if !readOnly && routing.Resolve(u.rc) == routing.Replica {
			return fmt.Errorf("unit of work %s: %w", u.ID, ErrReadOnlyUnit)
		}
		return fn(ctx, u)
	}

	ctx, u := g.Begin(ctx, readOnly)
	finished := false
	defer func() {
		if !finished {
			_ = u.Rollback()
		}
	}()

	if err := fn(ctx, u); err != nil {
		finished = true
		return errors.Join(err, u.Rollback())
	}
	finished = true
	return u.Commit()
}

// Unit is one unit of work. It satisfies the repository Querier interface.
type Unit struct {
	ID string

	gate  *Gate
	rc    *routing.Context
	txCtx context.Context

	mu   sync.Mutex
	conn *sql.Conn
	tx   *sql.Tx
	done bool
}

// Routing returns the unit's routing Context
func (u *Unit) Routing() *routing.Context {
	return u.rc
}

// Role returns the pinned role once the first statement has run
func (u *Unit) Role() (routing.Role, bool) {
	return u.rc.Pinned()
}

// Acquired reports whether a connection has been taken for this unit
func (u *Unit) Acquired() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.tx != nil
}

// ExecContext runs a statement on the unit's pinned transaction
func (u *Unit) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	tx, err := u.acquire(ctx)
	if err != nil {
		return nil, err
	}
	return tx.ExecContext(ctx, query, args...)
}

// QueryContext runs a query on the unit's pinned transaction
func (u *Unit) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	tx, err := u.acquire(ctx)
	if err != nil {
		return nil, err
	}
	return tx.QueryContext(ctx, query, args...)
}

// acquire resolves, acquires and pins on first use. A failed acquisition
// leaves the unit unpinned so a later statement may try again.
func (u *Unit) acquire(ctx context.Context) (*sql.Tx, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.done {
		return nil, ErrUnitFinished
	}
	if u.tx != nil {
		return u.tx, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	want := routing.Resolve(u.rc)
	conn, served, err := u.gate.src.Acquire(ctx, want)
	if err != nil {
		return nil, fmt.Errorf("unit of work %s: acquire %s: %w", u.ID, want, err)
	}

	tx, err := conn.BeginTx(u.txCtx, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("unit of work %s: begin on %s: %w", u.ID, served, err)
	}

	if err := u.rc.Pin(served); err != nil {
		_ = tx.Rollback()
		conn.Close()
		return nil, err
	}

	u.conn = conn
	u.tx = tx
	return tx, nil
}

// Commit commits the pinned transaction and releases the connection. It
// does nothing if no statement ever ran.
func (u *Unit) Commit() error {
	return u.finish(true)
}

// Rollback rolls back the pinned transaction and releases the connection.
// It does nothing if no statement ever ran.
func (u *Unit) Rollback() error {
	return u.finish(false)
}

func (u *Unit) finish(commit bool) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.done {
		return ErrUnitFinished
	}
	u.done = true
	if u.tx == nil {
		return nil
	}

	var err error
	if commit {
		err = u.tx.Commit()
	} else if err = u.tx.Rollback(); errors.Is(err, sql.ErrTxDone) {
		// Already rolled back by cancellation of the unit's context.
		err = nil
	}
	if cerr := u.conn.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	if err != nil {
		return fmt.Errorf("unit of work %s: finish: %w", u.ID, err)
	}
	return nil
}
