package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"rwsplit/internal/domain"
)

// ============================================================================
// Conversion Helpers
// ============================================================================

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// unmarshalJSONField safely unmarshals JSON from nullable string into target
func unmarshalJSONField(ns sql.NullString, target any) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), target)
}

// marshalToNull marshals v to a nullable JSON string.
// Returns empty NullString for nil or empty maps.
func marshalToNull(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	if m, ok := v.(map[string]any); ok && len(m) == 0 {
		return sql.NullString{}, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// isUniqueViolation reports whether err is a primary key or unique
// constraint failure
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// ============================================================================
// Account Row Scanner
// ============================================================================
//
// CRITICAL: Column order must match between accountColumns, scanArgs() and
// accountInsertArgs().

// accountColumns returns the SELECT column list for account queries
const accountColumns = `id, email, name, status, properties, created_at, updated_at`

// accountRow holds all columns from an account query for scanning
type accountRow struct {
	ID             string
	Email          string
	Name           string
	Status         string
	PropertiesJSON sql.NullString
	CreatedAt      int64
	UpdatedAt      int64
}

// scanArgs returns pointers to all fields for sql.Scan()
func (r *accountRow) scanArgs() []any {
	return []any{
		&r.ID,             // 1
		&r.Email,          // 2
		&r.Name,           // 3
		&r.Status,         // 4
		&r.PropertiesJSON, // 5
		&r.CreatedAt,      // 6
		&r.UpdatedAt,      // 7
	}
}

// toDomain converts the scanned row to a domain.Account
func (r *accountRow) toDomain() (*domain.Account, error) {
	acct := &domain.Account{
		ID:        r.ID,
		Email:     r.Email,
		Name:      r.Name,
		Status:    domain.AccountStatus(r.Status),
		CreatedAt: fromMillis(r.CreatedAt),
		UpdatedAt: fromMillis(r.UpdatedAt),
	}
	if acct.Status == "" {
		acct.Status = domain.AccountStatusActive
	}
	if err := unmarshalJSONField(r.PropertiesJSON, &acct.Properties); err != nil {
		return nil, fmt.Errorf("unmarshal properties: %w", err)
	}
	return acct, nil
}

// accountInsertArgs prepares arguments in accountColumns order
func accountInsertArgs(acct *domain.Account) ([]any, error) {
	propsJSON, err := marshalToNull(acct.Properties)
	if err != nil {
		return nil, fmt.Errorf("marshal properties: %w", err)
	}
	return []any{
		acct.ID,
		acct.Email,
		acct.Name,
		string(acct.Status),
		propsJSON,
		toMillis(acct.CreatedAt),
		toMillis(acct.UpdatedAt),
	}, nil
}
