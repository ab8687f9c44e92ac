package app

import (
	"context"
	"errors"

	"wagate/internal/logging"
	"wagate/internal/registry"
	"wagate/internal/store"
)

// AccountService mediates account registration and teardown between the
// HTTP layer, the session registry and the optional account directory.
type AccountService struct {
	registry *registry.Registry
	accounts store.AccountStore // optional
	logger   logging.Logger
}

// AccountServiceOption configures optional behavior.
type AccountServiceOption func(*AccountService)

// WithAccountDirectory wires the durable account store.
func WithAccountDirectory(accounts store.AccountStore) AccountServiceOption {
	return func(svc *AccountService) { svc.accounts = accounts }
}

func NewAccountService(reg *registry.Registry, opts ...AccountServiceOption) *AccountService {
	svc := &AccountService{
		registry: reg,
		logger:   logging.NewComponentLogger("AccountService"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Create registers a brand-new account and starts its session. Fails with
// ErrValidation when the identifier is malformed or the account already
// exists.
func (svc *AccountService) Create(ctx context.Context, accountID string) error {
	if err := registry.ValidateAccountID(accountID); err != nil {
		return ValidationError(err.Error())
	}

	if svc.accounts != nil {
		if _, err := svc.accounts.Create(ctx, accountID); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return ValidationError("account already exists")
			}
			return PersistenceError(err)
		}
	} else if _, err := svc.registry.Get(accountID); err == nil {
		return ValidationError("account already exists")
	}

	if _, _, err := svc.registry.GetOrCreate(ctx, accountID); err != nil {
		return ProviderError(err)
	}
	return nil
}

// Activate is the idempotent getOrCreate entry point: it ensures the
// account record exists and a session is running.
func (svc *AccountService) Activate(ctx context.Context, accountID string) (created bool, err error) {
	if err := registry.ValidateAccountID(accountID); err != nil {
		return false, ValidationError(err.Error())
	}

	if svc.accounts != nil {
		if _, err := svc.accounts.Upsert(ctx, accountID); err != nil {
			return false, PersistenceError(err)
		}
	}

	_, created, err = svc.registry.GetOrCreate(ctx, accountID)
	if err != nil {
		return false, ProviderError(err)
	}
	return created, nil
}

// Logout tears down the session and its credentials. Always succeeds;
// the result reports whether a session was actually active.
func (svc *AccountService) Logout(ctx context.Context, accountID string) (wasActive bool, err error) {
	if err := registry.ValidateAccountID(accountID); err != nil {
		return false, ValidationError(err.Error())
	}
	wasActive, err = svc.registry.Remove(ctx, accountID)
	if err != nil {
		// Remove never fails by contract; belt and braces.
		svc.logger.Warn("Remove for account %s reported: %v", accountID, err)
	}
	return wasActive, nil
}

// Get returns the durable account record, falling back to a synthesized
// view of the live session when no directory is configured.
func (svc *AccountService) Get(ctx context.Context, accountID string) (*store.Account, error) {
	if err := registry.ValidateAccountID(accountID); err != nil {
		return nil, ValidationError(err.Error())
	}

	if svc.accounts != nil {
		account, err := svc.accounts.Get(ctx, accountID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFoundError("account " + accountID)
		}
		if err != nil {
			return nil, PersistenceError(err)
		}
		return account, nil
	}

	session, err := svc.registry.Get(accountID)
	if err != nil {
		return nil, NotFoundError("account " + accountID)
	}
	status := store.StatusInitialized
	if session.Ready() {
		status = store.StatusReady
	}
	return &store.Account{AccountID: accountID, Status: status, CreatedAt: session.CreatedAt}, nil
}

// List returns all known accounts.
func (svc *AccountService) List(ctx context.Context) ([]store.Account, error) {
	if svc.accounts != nil {
		accounts, err := svc.accounts.List(ctx)
		if err != nil {
			return nil, PersistenceError(err)
		}
		return accounts, nil
	}

	var accounts []store.Account
	for _, id := range svc.registry.ActiveAccounts() {
		if account, err := svc.Get(ctx, id); err == nil {
			accounts = append(accounts, *account)
		}
	}
	return accounts, nil
}
