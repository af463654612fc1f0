package domain

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AccountStatus represents the lifecycle state of an account
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
	AccountStatusClosed    AccountStatus = "closed"
)

// Valid reports whether s is a known status
func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusActive, AccountStatusSuspended, AccountStatusClosed:
		return true
	}
	return false
}

// Account is a user account
type Account struct {
	ID         string         `json:"id"`
	Email      string         `json:"email"`
	Name       string         `json:"name"`
	Status     AccountStatus  `json:"status"`
	Properties map[string]any `json:"properties,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// NewAccount creates an active account with a fresh ID
func NewAccount(email, name string) *Account {
	now := time.Now().UTC()
	return &Account{
		ID:         uuid.NewString(),
		Email:      strings.TrimSpace(email),
		Name:       strings.TrimSpace(name),
		Status:     AccountStatusActive,
		Properties: make(map[string]any),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Validate checks required fields
func (a *Account) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return &ValidationError{Field: "id", Message: "is required"}
	}
	if strings.TrimSpace(a.Email) == "" {
		return &ValidationError{Field: "email", Message: "is required"}
	}
	if _, err := mail.ParseAddress(a.Email); err != nil {
		return &ValidationError{Field: "email", Message: "is not a valid address"}
	}
	if strings.TrimSpace(a.Name) == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	if !a.Status.Valid() {
		return &ValidationError{Field: "status", Message: "unknown status " + string(a.Status)}
	}
	return nil
}

// SetProperty sets a property value
func (a *Account) SetProperty(key string, value any) {
	if a.Properties == nil {
		a.Properties = make(map[string]any)
	}
	a.Properties[key] = value
}

// GetProperty gets a property value
func (a *Account) GetProperty(key string) (any, bool) {
	if a.Properties == nil {
		return nil, false
	}
	val, ok := a.Properties[key]
	return val, ok
}

// AccountUpdate is a partial update; nil fields are left alone
type AccountUpdate struct {
	Email      *string        `json:"email,omitempty"`
	Name       *string        `json:"name,omitempty"`
	Status     *AccountStatus `json:"status,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Apply copies the set fields of u onto a and bumps UpdatedAt
func (a *Account) Apply(u AccountUpdate) {
	if u.Email != nil {
		a.Email = strings.TrimSpace(*u.Email)
	}
	if u.Name != nil {
		a.Name = strings.TrimSpace(*u.Name)
	}
	if u.Status != nil {
		a.Status = *u.Status
	}
	for k, v := range u.Properties {
		a.SetProperty(k, v)
	}
	a.UpdatedAt = time.Now().UTC()
}
