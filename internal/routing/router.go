package routing

// Resolve picks the role for the current state of c. A nil Context means no
// unit of work is active and resolves to Primary, so unrouted writes never
// reach a replica.
func Resolve(c *Context) Role {
	if c.CurrentIntent() == ReadOnly {
		return Replica
	}
	return Primary
}
