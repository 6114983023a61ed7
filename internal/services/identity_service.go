package services

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type IdentityStore interface {
	FindAccount(email string) (*Account, error)
	AddAccount(a *Account) error
}

// Roster reports whether an email address belongs to someone the system
// knows about.
type Roster interface {
	IsKnown(email string) (bool, error)
}

type TokenSigner func(email string, ttl time.Duration) (string, error)

// IdentityService is the built-in sign-in provider. Only people already in
// the directory or on an admin list may register.
type IdentityService struct {
	store     IdentityStore
	roster    Roster
	now       func() time.Time
	signToken TokenSigner
	tokenTTL  time.Duration
}

type AuthResult struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

func NewIdentityService(store IdentityStore, roster Roster, signer TokenSigner, ttl time.Duration) *IdentityService {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &IdentityService{
		store:     store,
		roster:    roster,
		now:       func() time.Time { return time.Now().UTC() },
		signToken: signer,
		tokenTTL:  ttl,
	}
}

func (s *IdentityService) Register(email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	if len(password) < 8 {
		return nil, NewInvalidError("password must be at least 8 characters")
	}
	if s.roster != nil {
		known, err := s.roster.IsKnown(email)
		if err != nil {
			return nil, err
		}
		if !known {
			return nil, NewForbiddenError(msgNotAuthorized)
		}
	}
	existing, err := s.store.FindAccount(email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, NewConflictError("email exists")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddAccount(&Account{Email: email, PassHash: hash, CreatedAt: s.now()}); err != nil {
		return nil, err
	}
	return s.issue(email)
}

func (s *IdentityService) Login(email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	a, err := s.store.FindAccount(email)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(a.PassHash, []byte(password)); err != nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	return s.issue(a.Email)
}

func (s *IdentityService) issue(email string) (*AuthResult, error) {
	if s.signToken == nil {
		return nil, NewInvalidError("token signer not configured")
	}
	token, err := s.signToken(email, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, Email: email}, nil
}

func (s *IdentityService) TokenTTL() time.Duration {
	return s.tokenTTL
}
