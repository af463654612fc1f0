package codec

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"rwsplit/internal/domain"
)

// YAMLCodec handles generic YAML import/export
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// yamlDocument represents the YAML structure for account data
type yamlDocument struct {
	Accounts []yamlAccount `yaml:"accounts"`
}

type yamlAccount struct {
	ID         string         `yaml:"id,omitempty"`
	Email      string         `yaml:"email"`
	Name       string         `yaml:"name"`
	Status     string         `yaml:"status,omitempty"`
	Properties map[string]any `yaml:"properties,omitempty"`
	CreatedAt  time.Time      `yaml:"created_at,omitempty"`
	UpdatedAt  time.Time      `yaml:"updated_at,omitempty"`
}

// Parse imports accounts from YAML
func (c *YAMLCodec) Parse(r io.Reader) ([]*domain.Account, error) {
	var doc yamlDocument
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	now := time.Now().UTC()
	accounts := make([]*domain.Account, 0, len(doc.Accounts))
	for _, ya := range doc.Accounts {
		acct := &domain.Account{
			ID:         ya.ID,
			Email:      ya.Email,
			Name:       ya.Name,
			Status:     domain.AccountStatus(ya.Status),
			Properties: ya.Properties,
			CreatedAt:  ya.CreatedAt.UTC(),
			UpdatedAt:  ya.UpdatedAt.UTC(),
		}
		normalize(acct, now)
		accounts = append(accounts, acct)
	}

	return accounts, nil
}

// Export exports accounts to YAML
func (c *YAMLCodec) Export(accounts []*domain.Account, w io.Writer) error {
	doc := yamlDocument{
		Accounts: make([]yamlAccount, 0, len(accounts)),
	}

	for _, acct := range accounts {
		doc.Accounts = append(doc.Accounts, yamlAccount{
			ID:         acct.ID,
			Email:      acct.Email,
			Name:       acct.Name,
			Status:     string(acct.Status),
			Properties: acct.Properties,
			CreatedAt:  acct.CreatedAt,
			UpdatedAt:  acct.UpdatedAt,
		})
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}
