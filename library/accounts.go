package library

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// RegisterAccount creates an admin account.
func (lm *LibraryManager) RegisterAccount(username, password string) (*Account, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("username and password: %w", ErrEmptyField)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), lm.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	if _, ok := lm.accounts[username]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountExists, username)
	}
	acc := &Account{Username: username, PasswordHash: string(hash)}
	lm.accounts[username] = acc
	if err := lm.persist(func() { delete(lm.accounts, username) }, lm.saveAccounts); err != nil {
		return nil, err
	}
	c := *acc
	return &c, nil
}

// Login checks an admin's credentials. Unknown usernames and wrong passwords
// both yield ErrInvalidCredentials.
func (lm *LibraryManager) Login(username, password string) (*Account, error) {
	lm.mu.RLock()
	acc, ok := lm.accounts[strings.TrimSpace(username)]
	lm.mu.RUnlock()
	if !ok {
		return nil, ErrInvalidCredentials
	}

	err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("check password: %w", err)
	}
	c := *acc
	return &c, nil
}

// HasAccounts reports whether any admin account exists yet.
func (lm *LibraryManager) HasAccounts() bool {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return len(lm.accounts) > 0
}
