package auth

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStore is an in-memory CredentialStore with error injection
type memoryStore struct {
	mu       sync.Mutex
	accounts map[string]Account
	storeErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{accounts: make(map[string]Account)}
}

func (m *memoryStore) Store(a *Account) error {
	if m.storeErr != nil {
		return m.storeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.Name] = *a
	return nil
}

func (m *memoryStore) Retrieve(name string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[name]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &a, nil
}

func (m *memoryStore) List() ([]*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Account
	for _, a := range m.accounts {
		acc := a
		out = append(out, &acc)
	}
	return out, nil
}

func (m *memoryStore) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[name]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.accounts, name)
	return nil
}

const sampleCookies = "NID_AUT=abcdefghijklmnop; NID_SES=qrstuvwxyz0123456789"

func TestManagerRoundTrip(t *testing.T) {
	store := newMemoryStore()
	manager := NewManager(store)

	require.NoError(t, manager.Store(&Account{Name: "main", Cookies: sampleCookies}))

	header, err := manager.CookieHeader("main")
	require.NoError(t, err)
	assert.Equal(t, sampleCookies, header)

	accounts, err := manager.List()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.False(t, accounts[0].LastModified.IsZero())

	require.NoError(t, manager.Delete("main"))
	_, err = manager.Retrieve("main")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	err = manager.Delete("main")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestManagerValidatesAccount(t *testing.T) {
	manager := NewManager(newMemoryStore())
	assert.Error(t, manager.Store(&Account{Cookies: sampleCookies}))
	assert.Error(t, manager.Store(&Account{Name: "x", Cookies: "  "}))
}

func TestManagerFallsBackToNextStore(t *testing.T) {
	broken := newMemoryStore()
	broken.storeErr = errors.New("keychain locked")
	fallback := newMemoryStore()

	manager := NewManager(broken, fallback)
	require.NoError(t, manager.Store(&Account{Name: "main", Cookies: sampleCookies}))

	_, err := fallback.Retrieve("main")
	assert.NoError(t, err)
}

func TestManagerStoreFailsWhenAllStoresFail(t *testing.T) {
	manager := NewManager(NewEnvironmentStore())
	err := manager.Store(&Account{Name: "main", Cookies: sampleCookies})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestSanitizeAccount(t *testing.T) {
	sanitized := SanitizeAccount(&Account{Name: "main", Cookies: sampleCookies})

	assert.Equal(t, "main", sanitized.Name)
	assert.Equal(t, "NID_AUT=abcd...mnop; NID_SES=qrst...6789", sanitized.Cookies)
	assert.Nil(t, SanitizeAccount(nil))
}

func TestEncryptedFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.enc")

	store, err := NewEncryptedFileStore(path, "test-passphrase")
	require.NoError(t, err)

	require.NoError(t, store.Store(&Account{Name: "b", Cookies: sampleCookies}))
	require.NoError(t, store.Store(&Account{Name: "a", Cookies: "NID_AUT=other"}))

	got, err := store.Retrieve("b")
	require.NoError(t, err)
	assert.Equal(t, sampleCookies, got.Cookies)

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(content, []byte("NID_AUT")), "file must not hold plaintext cookies")

	// a second store with the wrong passphrase cannot read it
	wrong, err := NewEncryptedFileStore(path, "nope")
	require.NoError(t, err)
	_, err = wrong.Retrieve("b")
	assert.Error(t, err)

	require.NoError(t, store.Delete("a"))
	require.NoError(t, store.Delete("b"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "file is removed with the last account")

	_, err = store.Retrieve("b")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestEncryptedFileStoreRequiresPassphrase(t *testing.T) {
	_, err := NewEncryptedFileStore(filepath.Join(t.TempDir(), "x.enc"), "")
	assert.Error(t, err)
}

func TestLoadOrCreatePassphrase(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(PassphraseEnv, "")

	first, err := loadOrCreatePassphrase(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := loadOrCreatePassphrase(dir)
	require.NoError(t, err)
	assert.Equal(t, first, second, "generated passphrase is persisted")

	t.Setenv(PassphraseEnv, "from-env")
	fromEnv, err := loadOrCreatePassphrase(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-env", fromEnv)
}

func TestEnvironmentStore(t *testing.T) {
	store := NewEnvironmentStore()

	t.Setenv(CookiesEnv, "")
	_, err := store.Retrieve("any")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	t.Setenv(CookiesEnv, sampleCookies)
	account, err := store.Retrieve("")
	require.NoError(t, err)
	assert.Equal(t, "default", account.Name)
	assert.Equal(t, sampleCookies, account.Cookies)

	assert.ErrorIs(t, store.Store(&Account{}), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete("x"), ErrStoreUnavailable)
}

func TestCookieGuide(t *testing.T) {
	var buf bytes.Buffer
	WriteCookieGuide(&buf)
	assert.Contains(t, buf.String(), "NID_AUT")

	buf.Reset()
	WriteQuickGuide(&buf)
	assert.Contains(t, buf.String(), "Cookie")
}
