package codec

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"rwsplit/internal/domain"
)

// JSONCodec handles JSON import/export
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// jsonDocument is the JSON envelope for account data
type jsonDocument struct {
	Accounts []*domain.Account `json:"accounts"`
}

// Parse imports accounts from JSON
func (c *JSONCodec) Parse(r io.Reader) ([]*domain.Account, error) {
	var doc jsonDocument
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	now := time.Now().UTC()
	for _, acct := range doc.Accounts {
		normalize(acct, now)
	}
	return doc.Accounts, nil
}

// Export exports accounts to JSON
func (c *JSONCodec) Export(accounts []*domain.Account, w io.Writer) error {
	if accounts == nil {
		accounts = []*domain.Account{}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(jsonDocument{Accounts: accounts}); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
