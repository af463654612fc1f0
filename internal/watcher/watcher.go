// Package watcher probes the replica pool in the background and records its
// health on the pool registry.
//
// A replica marked unhealthy is treated as unavailable by the registry
// without waiting for the acquisition timeout, so read-only work fails fast
// or falls back to the primary straight away. The watcher marks it healthy
// again once a probe succeeds.
package watcher

import (
	"context"
	"log"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/juju/clock"

	"rwsplit/internal/events"
	"rwsplit/internal/routing"
)

// Checker is the part of *pool.Registry the watcher drives
type Checker interface {
	Ping(ctx context.Context, role routing.Role) error
	SetHealthy(role routing.Role, healthy bool) bool
}

// Watcher periodically probes one role
type Watcher struct {
	reg      Checker
	role     routing.Role
	interval time.Duration
	events   events.Publisher
	clock    clock.Clock

	downSince time.Time
}

// New creates a watcher for the replica
func New(reg Checker, pub events.Publisher) *Watcher {
	if pub == nil {
		pub = events.Discard
	}
	return &Watcher{
		reg:      reg,
		role:     routing.Replica,
		interval: 10 * time.Second,
		events:   pub,
		clock:    clock.WallClock,
	}
}

// WithClock sets the clock used for probe scheduling
func (w *Watcher) WithClock(c clock.Clock) *Watcher {
	if c != nil {
		w.clock = c
	}
	return w
}

// WithInterval sets the time between probes
func (w *Watcher) WithInterval(d time.Duration) *Watcher {
	if d > 0 {
		w.interval = d
	}
	return w
}

// Watch probes immediately and then every interval.
// It blocks until the context is cancelled.
func (w *Watcher) Watch(ctx context.Context) error {
	log.Printf("Watching %s health every %s", w.role, w.interval)

	for {
		w.Check(ctx)
		select {
		case <-w.clock.After(w.interval):
		case <-ctx.Done():
			return nil
		}
	}
}

// Check runs one probe and reports whether the role is healthy. Health
// transitions are logged and published; steady state is silent. Watch is
// the only caller in production, so Check is not safe for concurrent use.
func (w *Watcher) Check(ctx context.Context) bool {
	err := w.reg.Ping(ctx, w.role)
	if ctx.Err() != nil {
		// Shutting down, not a verdict on the pool.
		return err == nil
	}

	if err != nil {
		if w.reg.SetHealthy(w.role, false) {
			w.downSince = w.clock.Now()
			log.Printf("%s marked DOWN: %v", w.role, err)
			w.events.Publish(events.Event{
				Type:    events.EventReplicaDown,
				Payload: map[string]string{"role": w.role.String(), "error": err.Error()},
			})
		}
		return false
	}

	if w.reg.SetHealthy(w.role, true) {
		if w.downSince.IsZero() {
			log.Printf("%s marked UP", w.role)
		} else {
			log.Printf("%s marked UP, down since %s", w.role, humanize.RelTime(w.downSince, w.clock.Now(), "ago", "from now"))
			w.downSince = time.Time{}
		}
		w.events.Publish(events.Event{
			Type:    events.EventReplicaUp,
			Payload: map[string]string{"role": w.role.String()},
		})
	}
	return true
}
