package service

import (
	"context"
	"errors"
	"log"

	"rwsplit/internal/events"
	"rwsplit/internal/gate"
	"rwsplit/internal/routing"
)

// Operation is one piece of service work
type Operation func(ctx context.Context) error

// Middleware wraps an Operation
type Middleware func(Operation) Operation

// Chain applies mws to op. The first middleware is the outermost.
func Chain(op Operation, mws ...Middleware) Operation {
	for i := len(mws) - 1; i >= 0; i-- {
		op = mws[i](op)
	}
	return op
}

// Transactional runs the operation inside a unit of work declared read-only
// or read-write. An enclosing unit of work is joined.
func Transactional(g *gate.Gate, readOnly bool) Middleware {
	return func(next Operation) Operation {
		return func(ctx context.Context) error {
			return g.Run(ctx, readOnly, func(ctx context.Context, _ *gate.Unit) error {
				return next(ctx)
			})
		}
	}
}

// ForcedPrimary routes the operation to the primary regardless of declared
// intent. It composes with Transactional in either order.
func ForcedPrimary() Middleware {
	return func(next Operation) Operation {
		return func(ctx context.Context) error {
			return routing.WithForcedPrimary(ctx, next)
		}
	}
}

// Guard logs routing state corruption loudly and publishes it. The error is
// passed through unchanged.
func Guard(name string, pub events.Publisher) Middleware {
	return func(next Operation) Operation {
		return func(ctx context.Context) error {
			err := next(ctx)
			if errors.Is(err, routing.ErrStateCorruption) {
				log.Printf("ROUTING STATE CORRUPTION in %s: %v", name, err)
				pub.Publish(events.Event{
					Type: events.EventRoutingCorrupted,
					Payload: map[string]string{
						"operation": name,
						"error":     err.Error(),
					},
				})
			}
			return err
		}
	}
}
