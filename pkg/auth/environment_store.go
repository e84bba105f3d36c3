package auth

import (
	"os"
	"time"
)

// CookiesEnv holds a raw cookie header for headless runs
const CookiesEnv = "CAFENOTE_COOKIES"

// EnvironmentStore is a read-only CredentialStore backed by CAFENOTE_COOKIES.
// It answers for any account name.
type EnvironmentStore struct{}

func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

func (e *EnvironmentStore) Store(*Account) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Retrieve(name string) (*Account, error) {
	cookies := os.Getenv(CookiesEnv)
	if cookies == "" {
		return nil, ErrCredentialsNotFound
	}
	if name == "" {
		name = "default"
	}
	return &Account{
		Name:         name,
		Cookies:      cookies,
		UserAgent:    os.Getenv("CAFENOTE_USER_AGENT"),
		LastModified: time.Time{},
	}, nil
}

func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("env")
	if err != nil {
		return nil, nil
	}
	return []*Account{account}, nil
}

func (e *EnvironmentStore) Delete(string) error {
	return ErrStoreUnavailable
}
