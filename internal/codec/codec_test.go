package codec

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"rwsplit/internal/domain"
)

func TestForFormat(t *testing.T) {
	tests := []struct {
		format  string
		want    string
		wantErr bool
	}{
		{"yaml", "yaml", false},
		{"YML", "yaml", false},
		{"json", "json", false},
		{"csv", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			c, err := ForFormat(tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ForFormat(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
			}
			if err == nil && c.Format() != tt.want {
				t.Errorf("expected format %s, got %s", tt.want, c.Format())
			}
		})
	}
}

func TestYAMLParseFillsDefaults(t *testing.T) {
	input := `
accounts:
  - email: " ada@example.com "
    name: Ada
    properties:
      plan: pro
  - id: fixed-id
    email: grace@example.com
    name: Grace
    status: suspended
    created_at: 2024-01-02T03:04:05Z
`
	accounts, err := NewYAMLCodec().Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}

	ada := accounts[0]
	if ada.ID == "" {
		t.Error("expected generated ID")
	}
	if ada.Email != "ada@example.com" {
		t.Errorf("expected trimmed email, got %q", ada.Email)
	}
	if ada.Status != domain.AccountStatusActive {
		t.Errorf("expected default status, got %s", ada.Status)
	}
	if ada.CreatedAt.IsZero() || !ada.UpdatedAt.Equal(ada.CreatedAt) {
		t.Errorf("expected timestamps to be filled, got %v / %v", ada.CreatedAt, ada.UpdatedAt)
	}
	if ada.Properties["plan"] != "pro" {
		t.Errorf("expected plan=pro, got %v", ada.Properties["plan"])
	}

	grace := accounts[1]
	if grace.ID != "fixed-id" {
		t.Errorf("expected fixed-id, got %s", grace.ID)
	}
	if grace.Status != domain.AccountStatusSuspended {
		t.Errorf("expected suspended, got %s", grace.Status)
	}
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if !grace.CreatedAt.Equal(want) {
		t.Errorf("expected created_at %v, got %v", want, grace.CreatedAt)
	}
	if grace.Properties == nil {
		t.Error("expected Properties to be initialized")
	}
}

func TestRoundTrip(t *testing.T) {
	created := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	original := []*domain.Account{
		{
			ID:         "a1",
			Email:      "ada@example.com",
			Name:       "Ada",
			Status:     domain.AccountStatusActive,
			Properties: map[string]any{"plan": "pro"},
			CreatedAt:  created,
			UpdatedAt:  created.Add(time.Hour),
		},
	}

	for _, c := range []Codec{NewYAMLCodec(), NewJSONCodec()} {
		t.Run(c.Format(), func(t *testing.T) {
			var buf bytes.Buffer
			if err := c.Export(original, &buf); err != nil {
				t.Fatalf("Export() error = %v", err)
			}

			got, err := c.Parse(&buf)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(got) != 1 {
				t.Fatalf("expected 1 account, got %d", len(got))
			}
			a := got[0]
			if a.ID != "a1" || a.Email != "ada@example.com" || a.Name != "Ada" {
				t.Errorf("unexpected account %+v", a)
			}
			if !a.UpdatedAt.Equal(created.Add(time.Hour)) {
				t.Errorf("expected updated_at preserved, got %v", a.UpdatedAt)
			}
			if a.Properties["plan"] != "pro" {
				t.Errorf("expected plan=pro, got %v", a.Properties["plan"])
			}
		})
	}
}

func TestExportEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONCodec().Export(nil, &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !strings.Contains(buf.String(), `"accounts": []`) {
		t.Errorf("expected empty accounts array, got %s", buf.String())
	}
}

func TestParseInvalid(t *testing.T) {
	for _, c := range []Codec{NewYAMLCodec(), NewJSONCodec()} {
		t.Run(c.Format(), func(t *testing.T) {
			if _, err := c.Parse(strings.NewReader("accounts: [unterminated")); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}
