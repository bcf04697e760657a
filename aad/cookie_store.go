// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package aad

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

// DefaultCookiePrefix is prepended to artifact names to form cookie names.
const DefaultCookiePrefix = "WPO365_"

// CookieSealKeySize is the size of the key sealing cookie values.
const CookieSealKeySize = chacha20poly1305.KeySize

// CookieStore implements the ArtifactStore interface with cookies for the
// client of a single request/response pair. Artifacts written during the
// request are visible to later reads of the same request.
//
// Values are stored with their expiry, so expired artifacts are ignored even
// when the browser still sends them. They are always encrypted and
// authenticated with XChaCha20-Poly1305, bound to their cookie name: the
// nonce and the local auth marker must never be chosen by the client.
type CookieStore struct {
	w      http.ResponseWriter
	req    *http.Request
	prefix string
	path   string
	secure bool
	aead   cipher.AEAD
	now    func() time.Time

	mu      sync.Mutex
	pending map[string]*memoryArtifact
}

var _ ArtifactStore = (*CookieStore)(nil)

// NewCookieStore creates a CookieStore reading cookies from req and writing
// them to w. sealKey must be CookieSealKeySize bytes; every instance serving
// the application must use the same key.
//
// Supported options: WithCookiePrefix, WithCookiePath, WithCookieInsecure,
// WithNow
func NewCookieStore(w http.ResponseWriter, req *http.Request, sealKey []byte, opt ...Option) (*CookieStore, error) {
	const op = "aad.NewCookieStore"
	switch {
	case w == nil:
		return nil, fmt.Errorf("%s: response writer is nil: %w", op, ErrNilParameter)
	case req == nil:
		return nil, fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	aead, err := newCookieSealer(sealKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := getCookieStoreOpts(opt...)
	return &CookieStore{
		w:       w,
		req:     req,
		prefix:  opts.withPrefix,
		path:    opts.withPath,
		secure:  !opts.withInsecure,
		aead:    aead,
		now:     opts.withNow,
		pending: map[string]*memoryArtifact{},
	}, nil
}

func newCookieSealer(key []byte) (cipher.AEAD, error) {
	if len(key) != CookieSealKeySize {
		return nil, fmt.Errorf("seal key must be %d bytes, got %d: %w", CookieSealKeySize, len(key), ErrInvalidParameter)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("invalid seal key: %w: %s", ErrInvalidParameter, err)
	}
	return aead, nil
}

// ValidateCookieSealKey reports whether key can seal cookies.
func ValidateCookieSealKey(key []byte) error {
	_, err := newCookieSealer(key)
	return err
}

// GenerateCookieSealKey returns a random key for NewCookieStore. Cookies
// sealed with it can't be read once the key is gone, e.g. after a restart.
func GenerateCookieSealKey() ([]byte, error) {
	key := make([]byte, CookieSealKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("unable to generate cookie seal key: %w", err)
	}
	return key, nil
}

// Get returns the artifact's value and whether it exists and hasn't expired.
// Cookies that can't be decoded or fail authentication are treated as
// missing.
func (s *CookieStore) Get(_ context.Context, name string) (string, bool, error) {
	s.mu.Lock()
	a, written := s.pending[name]
	s.mu.Unlock()
	if !written {
		c, err := s.req.Cookie(s.prefix + name)
		if err != nil {
			return "", false, nil
		}
		if a, err = s.decode(s.prefix+name, c.Value); err != nil {
			return "", false, nil
		}
	}
	if a == nil {
		return "", false, nil
	}
	if !a.expiresAt.IsZero() && !s.now().Before(a.expiresAt) {
		return "", false, nil
	}
	return a.value, true, nil
}

// Set writes the artifact's cookie. A zero ttl writes a session cookie.
func (s *CookieStore) Set(_ context.Context, name, value string, ttl time.Duration) error {
	const op = "CookieStore.Set"
	if name == "" {
		return invalidArtifactName(op)
	}
	a := &memoryArtifact{value: value}
	c := s.cookie(name)
	if ttl > 0 {
		a.expiresAt = s.now().Add(ttl).Truncate(time.Second)
		c.Expires = a.expiresAt
		c.MaxAge = int(ttl.Round(time.Second) / time.Second)
	}
	v, err := s.encode(c.Name, a)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	c.Value = v
	http.SetCookie(s.w, c)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[name] = a
	return nil
}

// Delete expires the artifact's cookie.
func (s *CookieStore) Delete(_ context.Context, name string) error {
	c := s.cookie(name)
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	http.SetCookie(s.w, c)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[name] = nil
	return nil
}

func (s *CookieStore) cookie(name string) *http.Cookie {
	c := &http.Cookie{
		Name:     s.prefix + name,
		Path:     s.path,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
	// the provider posts the callback form cross-site, which only carries
	// SameSite=None cookies
	if s.secure {
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}

// encode lays out the artifact as an 8 byte unix expiry (0 for none)
// followed by the value, and seals it.
func (s *CookieStore) encode(cookieName string, a *memoryArtifact) (string, error) {
	payload := make([]byte, 8, 8+len(a.value))
	if !a.expiresAt.IsZero() {
		binary.BigEndian.PutUint64(payload, uint64(a.expiresAt.Unix()))
	}
	payload = append(payload, a.value...)
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(payload)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("unable to generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, payload, []byte(cookieName))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (s *CookieStore) decode(cookieName, v string) (*memoryArtifact, error) {
	raw, err := base64.RawURLEncoding.DecodeString(v)
	if err != nil {
		return nil, err
	}
	if len(raw) < s.aead.NonceSize() {
		return nil, errors.New("sealed value too short")
	}
	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	if raw, err = s.aead.Open(nil, nonce, ciphertext, []byte(cookieName)); err != nil {
		return nil, err
	}
	if len(raw) < 8 {
		return nil, errors.New("value too short")
	}
	a := &memoryArtifact{value: string(raw[8:])}
	if exp := binary.BigEndian.Uint64(raw[:8]); exp != 0 {
		a.expiresAt = time.Unix(int64(exp), 0)
	}
	return a, nil
}

type cookieStoreOptions struct {
	withPrefix   string
	withPath     string
	withInsecure bool
	withNow      func() time.Time
}

func getCookieStoreOpts(opt ...Option) cookieStoreOptions {
	opts := cookieStoreOptions{
		withPrefix: DefaultCookiePrefix,
		withPath:   "/",
		withNow:    time.Now,
	}
	ApplyOpts(&opts, opt...)
	return opts
}

// WithCookiePrefix provides the prefix of the cookie names.
func WithCookiePrefix(prefix string) Option {
	return func(o interface{}) {
		if v, ok := o.(*cookieStoreOptions); ok {
			v.withPrefix = prefix
		}
	}
}

// WithCookiePath provides the path of the cookies. Defaults to "/".
func WithCookiePath(path string) Option {
	return func(o interface{}) {
		if v, ok := o.(*cookieStoreOptions); ok {
			v.withPath = path
		}
	}
}

// WithCookieInsecure writes cookies without the Secure attribute (and with
// SameSite=Lax), for local development over plain http.
func WithCookieInsecure() Option {
	return func(o interface{}) {
		if v, ok := o.(*cookieStoreOptions); ok {
			v.withInsecure = true
		}
	}
}
