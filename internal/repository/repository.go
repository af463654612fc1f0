package repository

import (
	"context"
	"database/sql"

	"rwsplit/internal/domain"
)

// Querier runs statements. *sql.DB, *sql.Tx and *gate.Unit satisfy it, so
// repositories never decide which database they talk to.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// AccountFilter narrows ListAccounts
type AccountFilter struct {
	Status domain.AccountStatus
	Limit  int
	Offset int
}

// AccountRepository defines data access for accounts
type AccountRepository interface {
	// Read operations
	GetAccount(ctx context.Context, q Querier, id string) (*domain.Account, error)
	GetAccountByEmail(ctx context.Context, q Querier, email string) (*domain.Account, error)
	ListAccounts(ctx context.Context, q Querier, filter AccountFilter) ([]*domain.Account, error)
	CountAccounts(ctx context.Context, q Querier) (int, error)

	// Write operations
	CreateAccount(ctx context.Context, q Querier, acct *domain.Account) error
	UpdateAccount(ctx context.Context, q Querier, acct *domain.Account) error
	DeleteAccount(ctx context.Context, q Querier, id string) error
}
