// Package routing decides whether database work runs against the primary or
// a replica.
//
// Every unit of work owns a Context that records whether it was declared
// read-only and holds a stack of active primary overrides. The Context rides
// along in a context.Context; there is no package-level routing state.
//
// # Resolution
//
// Resolve maps a Context to a Role:
//
//   - declared read-only, no override active: Replica
//   - declared read-write: Primary
//   - any override active (its own or an enclosing scope's): Primary
//   - no Context at all: Primary
//
// # Overrides
//
// WithForcedPrimary forces Primary for the duration of a function so reads
// can observe a write that has not replicated yet. The override is popped by
// a deferred call, so it unwinds on return, error, panic and cancellation.
// Overrides nest; popping restores the enclosing override's state.
//
// # Pinning
//
// Once a connection has been acquired for a unit of work its role is pinned.
// A second pin, popping an empty override stack, or forcing Primary after the
// unit already pinned a Replica are reported as StateCorruptionError.
package routing
