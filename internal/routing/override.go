package routing

import (
	"context"
	"errors"
)

// WithForcedPrimary runs fn with Primary forced on the routing Context in
// ctx. The override is popped exactly once whichever way fn exits.
//
// When ctx carries no Context, a read-write scope Context is created so that
// units of work begun inside fn still see the override.
func WithForcedPrimary(ctx context.Context, fn func(context.Context) error) (err error) {
	rc, ok := FromContext(ctx)
	if !ok {
		rc = New(false)
		ctx = NewContext(ctx, rc)
	}

	if err := rc.PushOverride(); err != nil {
		return err
	}
	defer func() {
		if perr := rc.PopOverride(); perr != nil {
			err = errors.Join(err, perr)
		}
	}()

	return fn(ctx)
}
