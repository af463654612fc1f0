package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"rwsplit/internal/domain"
	"rwsplit/internal/repository"
)

// Repository implements repository.AccountRepository using SQLite. It holds
// no database handle; every call runs against the Querier it is given.
type Repository struct{}

// New creates a new SQLite account repository
func New() *Repository {
	return &Repository{}
}

var _ repository.AccountRepository = (*Repository)(nil)

// GetAccount returns the account with id
func (r *Repository) GetAccount(ctx context.Context, q repository.Querier, id string) (*domain.Account, error) {
	return r.getOne(ctx, q, "id", id)
}

// GetAccountByEmail returns the account with email
func (r *Repository) GetAccountByEmail(ctx context.Context, q repository.Querier, email string) (*domain.Account, error) {
	return r.getOne(ctx, q, "email", strings.TrimSpace(email))
}

func (r *Repository) getOne(ctx context.Context, q repository.Querier, column, value string) (*domain.Account, error) {
	rows, err := q.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM accounts WHERE %s = ?", accountColumns, column), value)
	if err != nil {
		return nil, fmt.Errorf("query account: %w", err)
	}
	accounts, err := scanAccounts(rows)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("account %s=%s: %w", column, value, domain.ErrNotFound)
	}
	return accounts[0], nil
}

// ListAccounts returns accounts ordered by creation time
func (r *Repository) ListAccounts(ctx context.Context, q repository.Querier, filter repository.AccountFilter) ([]*domain.Account, error) {
	query := "SELECT " + accountColumns + " FROM accounts"
	var args []any
	if filter.Status != "" {
		query += " WHERE status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, max(filter.Offset, 0))
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	return scanAccounts(rows)
}

// CountAccounts returns the number of stored accounts
func (r *Repository) CountAccounts(ctx context.Context, q repository.Querier) (int, error) {
	rows, err := q.QueryContext(ctx, "SELECT COUNT(1) FROM accounts")
	if err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	defer rows.Close()

	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, fmt.Errorf("scan count: %w", err)
		}
	}
	return n, rows.Err()
}

// CreateAccount inserts acct. A duplicate ID or email is ErrConflict.
func (r *Repository) CreateAccount(ctx context.Context, q repository.Querier, acct *domain.Account) error {
	args, err := accountInsertArgs(acct)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		"INSERT INTO accounts ("+accountColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)", args...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("account %s: %w", acct.Email, domain.ErrConflict)
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// UpdateAccount overwrites the mutable fields of an existing account
func (r *Repository) UpdateAccount(ctx context.Context, q repository.Querier, acct *domain.Account) error {
	propsJSON, err := marshalToNull(acct.Properties)
	if err != nil {
		return fmt.Errorf("marshal properties: %w", err)
	}

	res, err := q.ExecContext(ctx, `
		UPDATE accounts
		SET email = ?, name = ?, status = ?, properties = ?, updated_at = ?
		WHERE id = ?`,
		acct.Email, acct.Name, string(acct.Status), propsJSON, toMillis(acct.UpdatedAt), acct.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("account %s: %w", acct.Email, domain.ErrConflict)
		}
		return fmt.Errorf("update account: %w", err)
	}
	return expectOne(res, acct.ID)
}

// DeleteAccount removes the account with id
func (r *Repository) DeleteAccount(ctx context.Context, q repository.Querier, id string) error {
	res, err := q.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return expectOne(res, id)
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanAccounts(rows *sql.Rows) ([]*domain.Account, error) {
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		var row accountRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		acct, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}
