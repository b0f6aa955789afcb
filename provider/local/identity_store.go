// Package local implements an in-process identity store with bcrypt
// password hashes. It is meant for development setups and tests where
// running a real authentication server is overkill.
package local

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/enoveri/go-access"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 14

// Account is a stored credential set.
type Account struct {
	SubjectID      string
	Email          string
	PasswordHash   string
	EmailConfirmed bool
}

// IdentityStore implements access.IdentityStore against an in-memory
// account table.
type IdentityStore struct {
	mu          sync.Mutex
	accounts    map[string]Account
	current     *access.AuthIdentity
	subscribers map[int]func(access.AuthChange)
	nextID      int
}

var _ access.IdentityStore = (*IdentityStore)(nil)

func NewIdentityStore() *IdentityStore {
	return &IdentityStore{
		accounts:    map[string]Account{},
		subscribers: map[int]func(access.AuthChange){},
	}
}

// Register adds an account with the given password. The subject id is
// generated when empty.
func (s *IdentityStore) Register(email, password string, confirmed bool) (Account, error) {
	email = normalizeEmail(email)
	if email == "" {
		return Account{}, errors.New("local: email is required")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return Account{}, err
	}

	account := Account{
		SubjectID:      uuid.New().String(),
		Email:          email,
		PasswordHash:   hash,
		EmailConfirmed: confirmed,
	}

	s.mu.Lock()
	s.accounts[email] = account
	s.mu.Unlock()

	return account, nil
}

// Confirm marks the account's email as confirmed.
func (s *IdentityStore) Confirm(email string) {
	email = normalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if account, ok := s.accounts[email]; ok {
		account.EmailConfirmed = true
		s.accounts[email] = account
	}
}

func (s *IdentityStore) Authenticate(ctx context.Context, email, password string) (*access.AuthIdentity, error) {
	s.mu.Lock()
	account, ok := s.accounts[normalizeEmail(email)]
	s.mu.Unlock()

	if !ok {
		return nil, access.ErrInvalidCredentials.Clone().WithMetadata(map[string]any{
			"provider": "local",
		})
	}

	if err := ComparePasswordAndHash(password, account.PasswordHash); err != nil {
		return nil, access.ErrInvalidCredentials.Clone().WithMetadata(map[string]any{
			"provider": "local",
		})
	}

	if !account.EmailConfirmed {
		return nil, access.ErrEmailUnconfirmed.Clone().WithMetadata(map[string]any{
			"provider": "local",
		})
	}

	identity := access.AuthIdentity{
		SubjectID:      account.SubjectID,
		Email:          account.Email,
		EmailConfirmed: account.EmailConfirmed,
	}

	s.mu.Lock()
	s.current = &identity
	s.mu.Unlock()

	s.notify(access.AuthChange{Type: access.AuthChangeSignedIn, Identity: &identity})

	return &identity, nil
}

func (s *IdentityStore) CurrentIdentity(ctx context.Context) (*access.AuthIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, nil
}

func (s *IdentityStore) SignOut(ctx context.Context) error {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()

	s.notify(access.AuthChange{Type: access.AuthChangeSignedOut})
	return nil
}

func (s *IdentityStore) Subscribe(fn func(access.AuthChange)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *IdentityStore) notify(change access.AuthChange) {
	s.mu.Lock()
	listeners := make([]func(access.AuthChange), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(change)
	}
}

// HashPassword will generate a password hash
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("local: password must not be empty")
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	return string(h), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
