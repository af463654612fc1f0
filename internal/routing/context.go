package routing

import (
	"context"
	"fmt"
	"sync"
)

// Context is the routing state of one unit of work.
//
// The mutex lets work spawned by the owning unit of work push and pop
// overrides on the same Context; a Context is never handed to a different
// unit of work.
type Context struct {
	mu               sync.Mutex
	declaredReadOnly bool
	overrides        []Intent
	parent           *Context
	pinned           bool
	role             Role
}

// New creates a root Context.
func New(readOnly bool) *Context {
	return &Context{declaredReadOnly: readOnly}
}

// Derive creates a Context for a unit of work started inside c. Overrides
// active on c force Primary on the derived Context as well.
func (c *Context) Derive(readOnly bool) *Context {
	return &Context{declaredReadOnly: readOnly, parent: c}
}

// DeclaredReadOnly reports the intent the unit of work was declared with.
func (c *Context) DeclaredReadOnly() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.declaredReadOnly
}

// CurrentIntent returns the effective intent. A nil Context is read-write.
func (c *Context) CurrentIntent() Intent {
	if c == nil {
		return ReadWrite
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.intentLocked()
}

func (c *Context) intentLocked() Intent {
	if !c.declaredReadOnly || len(c.overrides) > 0 || c.parent.forced() {
		return ReadWrite
	}
	return ReadOnly
}

// forced reports whether c or any ancestor has an active override.
func (c *Context) forced() bool {
	for p := c; p != nil; p = p.parent {
		p.mu.Lock()
		n := len(p.overrides)
		p.mu.Unlock()
		if n > 0 {
			return true
		}
	}
	return false
}

// Depth returns the number of active overrides on c itself.
func (c *Context) Depth() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.overrides)
}

// PushOverride saves the current effective intent and forces read-write.
//
// Once the role is pinned it cannot change for the rest of the unit of work.
// An override on a unit pinned to the replica could no longer take effect
// and is rejected as state corruption. On a unit pinned to the primary the
// override already holds, so it is accepted and changes nothing.
func (c *Context) PushOverride() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pinned && c.role == Replica {
		return &StateCorruptionError{
			Op:     "push override",
			Reason: "unit of work is already pinned to replica",
		}
	}
	c.overrides = append(c.overrides, c.intentLocked())
	return nil
}

// PopOverride removes the most recent override. The effective intent goes
// back to the value saved by the matching PushOverride.
func (c *Context) PopOverride() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.overrides)
	if n == 0 {
		return &StateCorruptionError{
			Op:     "pop override",
			Reason: "override stack is empty",
		}
	}
	c.overrides = c.overrides[:n-1]
	return nil
}

// Pin records the role that served the unit of work. It may be called once.
func (c *Context) Pin(role Role) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pinned {
		return &StateCorruptionError{
			Op:     "pin",
			Reason: fmt.Sprintf("already pinned to %s, refusing %s", c.role, role),
		}
	}
	c.pinned = true
	c.role = role
	return nil
}

// Pinned returns the pinned role, if any.
func (c *Context) Pinned() (Role, bool) {
	if c == nil {
		return Primary, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role, c.pinned
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying rc.
func NewContext(ctx context.Context, rc *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, rc)
}

// FromContext returns the innermost routing Context carried by ctx.
func FromContext(ctx context.Context) (*Context, bool) {
	rc, ok := ctx.Value(ctxKey{}).(*Context)
	return rc, ok && rc != nil
}

// Begin creates the routing Context for a new unit of work. If ctx already
// carries a Context, the new one derives from it so enclosing overrides keep
// applying.
func Begin(ctx context.Context, readOnly bool) (context.Context, *Context) {
	var rc *Context
	if parent, ok := FromContext(ctx); ok {
		rc = parent.Derive(readOnly)
	} else {
		rc = New(readOnly)
	}
	return NewContext(ctx, rc), rc
}
