package api

import (
	"errors"

	"github.com/npnl/enigma-request/internal/services"
)

type identityStoreAdapter struct {
	store Store
}

func newIdentityStoreAdapter(store Store) services.IdentityStore {
	return &identityStoreAdapter{store: store}
}

func (a *identityStoreAdapter) FindAccount(email string) (*services.Account, error) {
	u, err := a.store.FindUserByEmail(email)
	if err != nil || u == nil {
		return nil, err
	}
	return &services.Account{Email: u.Email, PassHash: u.PassHash, CreatedAt: u.CreatedAt}, nil
}

func (a *identityStoreAdapter) AddAccount(acc *services.Account) error {
	if acc == nil {
		return services.NewInvalidError("account required")
	}
	err := a.store.AddUser(&User{Email: acc.Email, PassHash: acc.PassHash, CreatedAt: acc.CreatedAt})
	if errors.Is(err, ErrDuplicate) {
		return services.NewConflictError("email exists")
	}
	return err
}

var _ services.IdentityStore = (*identityStoreAdapter)(nil)
