package routing

import (
	"errors"
	"fmt"
)

// ErrStateCorruption matches every StateCorruptionError.
var ErrStateCorruption = errors.New("routing state corruption")

// StateCorruptionError reports a broken routing invariant. It is a
// programming error and is never recovered locally.
type StateCorruptionError struct {
	Op     string
	Reason string
}

func (e *StateCorruptionError) Error() string {
	return fmt.Sprintf("routing state corruption: %s: %s", e.Op, e.Reason)
}

// Is reports whether target is ErrStateCorruption.
func (e *StateCorruptionError) Is(target error) bool {
	return target == ErrStateCorruption
}
