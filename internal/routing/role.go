package routing

import "fmt"

// Role identifies a backing store.
type Role int

const (
	Primary Role = iota
	Replica
)

// Roles lists every configured role in startup order.
var Roles = []Role{Primary, Replica}

func (r Role) String() string {
	switch r {
	case Primary:
		return "primary"
	case Replica:
		return "replica"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Intent is the effective read/write intent of a unit of work.
type Intent int

const (
	ReadWrite Intent = iota
	ReadOnly
)

func (i Intent) String() string {
	if i == ReadOnly {
		return "read-only"
	}
	return "read-write"
}
