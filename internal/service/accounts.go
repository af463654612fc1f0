package service

import (
	"context"
	"fmt"
	"strings"

	"rwsplit/internal/domain"
	"rwsplit/internal/events"
	"rwsplit/internal/gate"
	"rwsplit/internal/repository"
)

// AccountService provides business logic for accounts. Reads run in
// read-only units of work and land on the replica unless the caller asks
// for a consistent read.
type AccountService struct {
	gate   *gate.Gate
	repo   repository.AccountRepository
	events events.Publisher
}

// NewAccountService creates a new account service
func NewAccountService(g *gate.Gate, repo repository.AccountRepository, pub events.Publisher) *AccountService {
	if pub == nil {
		pub = events.Discard
	}
	return &AccountService{
		gate:   g,
		repo:   repo,
		events: pub,
	}
}

// run wraps op in the guard, a unit of work and, for consistent reads, a
// primary override
func (s *AccountService) run(ctx context.Context, name string, readOnly, consistent bool, op Operation) error {
	mws := []Middleware{Guard(name, s.events), Transactional(s.gate, readOnly)}
	if consistent {
		mws = append(mws, ForcedPrimary())
	}
	return Chain(op, mws...)(ctx)
}

// unit returns the unit of work begun by Transactional
func unit(ctx context.Context) (*gate.Unit, error) {
	u, ok := gate.UnitFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("no unit of work in context")
	}
	return u, nil
}

// GetAccount retrieves an account by ID. With consistent set the read goes
// to the primary, so a write that just committed is visible.
func (s *AccountService) GetAccount(ctx context.Context, id string, consistent bool) (*domain.Account, error) {
	var acct *domain.Account
	err := s.run(ctx, "GetAccount", true, consistent, func(ctx context.Context) error {
		u, err := unit(ctx)
		if err != nil {
			return err
		}
		acct, err = s.repo.GetAccount(ctx, u, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// ListAccounts returns accounts matching filter
func (s *AccountService) ListAccounts(ctx context.Context, filter repository.AccountFilter, consistent bool) ([]*domain.Account, int, error) {
	var (
		accounts []*domain.Account
		total    int
	)
	err := s.run(ctx, "ListAccounts", true, consistent, func(ctx context.Context) error {
		u, err := unit(ctx)
		if err != nil {
			return err
		}
		if accounts, err = s.repo.ListAccounts(ctx, u, filter); err != nil {
			return err
		}
		total, err = s.repo.CountAccounts(ctx, u)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return accounts, total, nil
}

// CreateAccount validates and stores a new account
func (s *AccountService) CreateAccount(ctx context.Context, email, name string, props map[string]any) (*domain.Account, error) {
	acct := domain.NewAccount(email, name)
	for k, v := range props {
		acct.SetProperty(k, v)
	}
	if err := acct.Validate(); err != nil {
		return nil, err
	}

	err := s.run(ctx, "CreateAccount", false, false, func(ctx context.Context) error {
		u, err := unit(ctx)
		if err != nil {
			return err
		}
		return s.repo.CreateAccount(ctx, u, acct)
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(events.Event{
		Type:    events.EventAccountCreated,
		Payload: map[string]string{"account_id": acct.ID, "email": acct.Email},
	})
	return acct, nil
}

// UpdateAccount applies a partial update to an existing account. The read
// and the write share one read-write unit of work on the primary.
func (s *AccountService) UpdateAccount(ctx context.Context, id string, update domain.AccountUpdate) (*domain.Account, error) {
	var acct *domain.Account
	err := s.run(ctx, "UpdateAccount", false, false, func(ctx context.Context) error {
		u, err := unit(ctx)
		if err != nil {
			return err
		}
		if acct, err = s.repo.GetAccount(ctx, u, id); err != nil {
			return err
		}
		acct.Apply(update)
		if err := acct.Validate(); err != nil {
			return err
		}
		return s.repo.UpdateAccount(ctx, u, acct)
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(events.Event{
		Type:    events.EventAccountUpdated,
		Payload: map[string]string{"account_id": acct.ID},
	})
	return acct, nil
}

// DeleteAccount removes an account
func (s *AccountService) DeleteAccount(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return &domain.ValidationError{Field: "id", Message: "is required"}
	}

	err := s.run(ctx, "DeleteAccount", false, false, func(ctx context.Context) error {
		u, err := unit(ctx)
		if err != nil {
			return err
		}
		return s.repo.DeleteAccount(ctx, u, id)
	})
	if err != nil {
		return err
	}

	s.events.Publish(events.Event{
		Type:    events.EventAccountDeleted,
		Payload: map[string]string{"account_id": id},
	})
	return nil
}

// ImportAccounts validates accounts and inserts them in one read-write unit
// of work. Any failure rolls back the whole batch.
func (s *AccountService) ImportAccounts(ctx context.Context, accounts []*domain.Account) (int, error) {
	for i, acct := range accounts {
		if err := acct.Validate(); err != nil {
			return 0, fmt.Errorf("account %d: %w", i, err)
		}
	}

	err := s.run(ctx, "ImportAccounts", false, false, func(ctx context.Context) error {
		u, err := unit(ctx)
		if err != nil {
			return err
		}
		for _, acct := range accounts {
			if err := s.repo.CreateAccount(ctx, u, acct); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.events.Publish(events.Event{
		Type:    events.EventAccountsImported,
		Payload: map[string]int{"count": len(accounts)},
	})
	return len(accounts), nil
}

// ExportAccounts returns every account, from the primary when consistent is
// set
func (s *AccountService) ExportAccounts(ctx context.Context, consistent bool) ([]*domain.Account, error) {
	accounts, _, err := s.ListAccounts(ctx, repository.AccountFilter{}, consistent)
	return accounts, err
}
