// Package session holds the cookie-authenticated platform session shared by
// the crawler and the sender.
package session

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"cafenote/pkg/logger"
)

// Loader yields a raw cookie header, typically from the credential manager
type Loader func(ctx context.Context) (string, error)

// CookieStore is the shared cookie jar behind a session
type CookieStore interface {
	Cookies() ([]*http.Cookie, error)
	SetCookies(cookies []*http.Cookie) error
	Clear() error
}

// Session is the explicit replacement for a process-wide login window: it is
// opened from stored credentials, read by every request, and closed when done.
type Session struct {
	store      CookieStore
	loader     Loader
	domain     string
	authCookie string
	log        logger.Logger
}

// Options configures a Session
type Options struct {
	// Domain is the platform root cookie domain, e.g. ".naver.com"
	Domain string
	// AuthCookie marks an authenticated session, e.g. "NID_AUT"
	AuthCookie string
	Loader     Loader
	Store      CookieStore
	Logger     logger.Logger
}

// New creates a closed session
func New(opts Options) *Session {
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}
	return &Session{
		store:      opts.Store,
		loader:     opts.Loader,
		domain:     normalizeDomain(opts.Domain),
		authCookie: opts.AuthCookie,
		log:        opts.Logger.WithField("component", "session"),
	}
}

// Open loads cookies from the Loader into the store
func (s *Session) Open(ctx context.Context) error {
	if s.loader == nil {
		return fmt.Errorf("session has no cookie loader")
	}
	header, err := s.loader(ctx)
	if err != nil {
		return fmt.Errorf("failed to load cookies: %w", err)
	}
	cookies, err := ParseCookieHeader(header, s.domain)
	if err != nil {
		return err
	}
	if err := s.store.SetCookies(cookies); err != nil {
		return fmt.Errorf("failed to store cookies: %w", err)
	}

	s.log.InfoWithFields("Session opened", map[string]interface{}{
		"cookies":       len(cookies),
		"authenticated": s.IsAuthenticated(),
	})
	return nil
}

// Close forgets every cookie held by the session
func (s *Session) Close() error {
	return s.store.Clear()
}

// IsAuthenticated reports whether the auth cookie is present on the platform
// domain. An unreadable store counts as not authenticated.
func (s *Session) IsAuthenticated() bool {
	cookies, err := s.store.Cookies()
	if err != nil {
		s.log.WithError(err).Warn("Cookie store unreadable")
		return false
	}
	for _, c := range cookies {
		if c.Name == s.authCookie && c.Value != "" && s.inDomain(c) {
			return true
		}
	}
	return false
}

// CookieHeader builds "name=value; ..." from every cookie on the platform domain
func (s *Session) CookieHeader() string {
	cookies, err := s.store.Cookies()
	if err != nil {
		s.log.WithError(err).Warn("Cookie store unreadable")
		return ""
	}
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if s.inDomain(c) {
			parts = append(parts, c.Name+"="+c.Value)
		}
	}
	return strings.Join(parts, "; ")
}

// Update merges cookies set by a platform response
func (s *Session) Update(cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	for _, c := range cookies {
		if c.Domain == "" {
			c.Domain = s.domain
		}
	}
	if err := s.store.SetCookies(cookies); err != nil {
		s.log.WithError(err).Warn("Failed to record response cookies")
	}
}

func (s *Session) inDomain(c *http.Cookie) bool {
	if s.domain == "" {
		return true
	}
	d := normalizeDomain(c.Domain)
	return d == s.domain || strings.HasSuffix(d, "."+s.domain)
}

func normalizeDomain(d string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "."))
}

// ParseCookieHeader splits a "name=value; ..." header into cookies scoped to domain
func ParseCookieHeader(header, domain string) ([]*http.Cookie, error) {
	header = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(header), "Cookie:"))
	if header == "" {
		return nil, fmt.Errorf("cookie header is empty")
	}
	cookies, err := http.ParseCookie(header)
	if err != nil {
		return nil, fmt.Errorf("invalid cookie header: %w", err)
	}
	for _, c := range cookies {
		c.Domain = domain
	}
	return cookies, nil
}

// MemoryStore is an in-process CookieStore keyed by domain and name
type MemoryStore struct {
	mu      sync.RWMutex
	cookies map[string]*http.Cookie
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cookies: make(map[string]*http.Cookie)}
}

func (m *MemoryStore) Cookies() ([]*http.Cookie, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.cookies))
	for k := range m.cookies {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*http.Cookie, 0, len(keys))
	for _, k := range keys {
		c := *m.cookies[k]
		out = append(out, &c)
	}
	return out, nil
}

// SetCookies upserts; a cookie with MaxAge < 0 is removed
func (m *MemoryStore) SetCookies(cookies []*http.Cookie) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range cookies {
		key := normalizeDomain(c.Domain) + "|" + c.Name
		if c.MaxAge < 0 {
			delete(m.cookies, key)
			continue
		}
		cp := *c
		m.cookies[key] = &cp
	}
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cookies = make(map[string]*http.Cookie)
	return nil
}
