// Package codec imports and exports accounts as YAML or JSON documents.
package codec

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"rwsplit/internal/domain"
)

// Importer interface for importing accounts from various formats
type Importer interface {
	Parse(r io.Reader) ([]*domain.Account, error)
	Format() string
}

// Exporter interface for exporting accounts to various formats
type Exporter interface {
	Export(accounts []*domain.Account, w io.Writer) error
	Format() string
}

// Codec both imports and exports
type Codec interface {
	Importer
	Exporter
}

// ForFormat returns the codec for format ("yaml", "yml" or "json")
func ForFormat(format string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "yaml", "yml":
		return NewYAMLCodec(), nil
	case "json":
		return NewJSONCodec(), nil
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// normalize fills in what an imported record may leave out: ID, status and
// timestamps
func normalize(acct *domain.Account, now time.Time) {
	acct.Email = strings.TrimSpace(acct.Email)
	acct.Name = strings.TrimSpace(acct.Name)
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	if acct.Status == "" {
		acct.Status = domain.AccountStatusActive
	}
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = now
	}
	if acct.UpdatedAt.IsZero() {
		acct.UpdatedAt = acct.CreatedAt
	}
	if acct.Properties == nil {
		acct.Properties = make(map[string]any)
	}
}
