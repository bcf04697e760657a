// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	sdkhttp "github.com/asoet/wpo365-login/sdk/http"
)

// maxKeySetSize bounds the size of a key discovery document we are willing
// to read.
const maxKeySetSize = 1 << 20

// JSONWebKey is one entry of the provider's published key set. Only the
// fields needed to locate and load a signing certificate are decoded.
type JSONWebKey struct {
	KeyID   string `json:"kid"`
	KeyType string `json:"kty,omitempty"`
	Use     string `json:"use,omitempty"`
	X5t     string `json:"x5t,omitempty"`

	// X5c is either a JSON array of base64 DER certificates (leaf first) or,
	// for some providers, a single string.
	X5c json.RawMessage `json:"x5c,omitempty"`
}

// KeySet is a provider's key discovery document.
type KeySet struct {
	Keys []JSONWebKey `json:"keys"`
}

// Find returns the raw certificate of the key identified by kid. When the
// key's x5c is an array its first element is returned, when it's a string
// the value itself.
func (ks *KeySet) Find(kid string) (string, error) {
	const op = "KeySet.Find"
	if ks == nil {
		return "", fmt.Errorf("%s: key set is nil: %w", op, ErrNilParameter)
	}
	for _, k := range ks.Keys {
		if k.KeyID != kid {
			continue
		}
		raw := bytes.TrimSpace(k.X5c)
		if len(raw) == 0 {
			break
		}
		var chain []string
		if err := json.Unmarshal(raw, &chain); err == nil {
			if len(chain) > 0 && chain[0] != "" {
				return chain[0], nil
			}
			break
		}
		var single string
		if err := json.Unmarshal(raw, &single); err == nil && single != "" {
			return single, nil
		}
		break
	}
	return "", fmt.Errorf("%s: no certificate for kid %q: %w", op, kid, ErrUnknownKey)
}

// KeySource provides the provider's current signing keys.
type KeySource interface {
	Keys(ctx context.Context) (*KeySet, error)
}

// Refresher is implemented by KeySources that cache and can be told their
// copy is outdated, typically after a token referenced an unknown kid.
type Refresher interface {
	Refresh(ctx context.Context) (*KeySet, error)
}

// RemoteKeySource fetches the key set from the provider on every call, so a
// key rotation is picked up without any invalidation.
type RemoteKeySource struct {
	keysURL string
	client  *http.Client
	logger  hclog.Logger
}

var _ KeySource = (*RemoteKeySource)(nil)

// NewRemoteKeySource creates a KeySource for the key discovery document at
// keysURL.
//
// Supported options: WithProviderCA, WithInsecureSkipVerify, WithHTTPClient,
// WithLogger
func NewRemoteKeySource(keysURL string, opt ...Option) (*RemoteKeySource, error) {
	const op = "jwt.NewRemoteKeySource"
	if keysURL == "" {
		return nil, fmt.Errorf("%s: keys URL is empty: %w", op, ErrInvalidParameter)
	}
	opts := getKeySourceOpts(opt...)
	client := opts.withHTTPClient
	if client == nil {
		var clientOpts []sdkhttp.Option
		if opts.withInsecureSkipVerify {
			opts.withLogger.Warn("TLS verification of the key discovery endpoint is disabled", "url", keysURL)
			clientOpts = append(clientOpts, sdkhttp.WithInsecureSkipVerify())
		}
		var err error
		client, err = sdkhttp.NewClient(opts.withProviderCA, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
		}
	}
	return &RemoteKeySource{
		keysURL: keysURL,
		client:  client,
		logger:  opts.withLogger,
	}, nil
}

// Keys fetches and parses the key discovery document. Transport failures,
// non 200 responses and documents that don't parse are all reported as
// ErrDiscoveryUnavailable.
func (s *RemoteKeySource) Keys(ctx context.Context) (*KeySet, error) {
	const op = "RemoteKeySource.Keys"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.keysURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")

	s.logger.Debug("getting current public keys", "url", s.keysURL)
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error("error occurred whilst getting public keys", "url", s.keysURL, "error", err)
		return nil, fmt.Errorf("%s: %w: %s", op, ErrDiscoveryUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySetSize))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read response: %w: %s", op, ErrDiscoveryUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		s.logger.Error("unexpected key discovery response", "url", s.keysURL, "status", resp.StatusCode)
		return nil, fmt.Errorf("%s: unexpected status %d: %w", op, resp.StatusCode, ErrDiscoveryUnavailable)
	}
	var ks KeySet
	if err := json.Unmarshal(body, &ks); err != nil {
		s.logger.Error("unable to parse key discovery document", "url", s.keysURL, "error", err)
		return nil, fmt.Errorf("%s: unable to parse key set: %w: %s", op, ErrDiscoveryUnavailable, err)
	}
	return &ks, nil
}

// CachingKeySource keeps the last key set fetched by another KeySource and
// only fetches again when it's older than its max age or when Refresh is
// called. It is safe for concurrent use.
type CachingKeySource struct {
	src    KeySource
	maxAge time.Duration
	now    func() time.Time
	logger hclog.Logger

	mu        sync.Mutex
	keys      *KeySet
	fetchedAt time.Time
}

var (
	_ KeySource = (*CachingKeySource)(nil)
	_ Refresher = (*CachingKeySource)(nil)
)

// NewCachingKeySource wraps src.
//
// Supported options: WithMaxAge, WithNow, WithLogger
func NewCachingKeySource(src KeySource, opt ...Option) (*CachingKeySource, error) {
	const op = "jwt.NewCachingKeySource"
	if src == nil {
		return nil, fmt.Errorf("%s: key source is nil: %w", op, ErrNilParameter)
	}
	opts := getKeySourceOpts(opt...)
	return &CachingKeySource{
		src:    src,
		maxAge: opts.withMaxAge,
		now:    opts.withNow,
		logger: opts.withLogger,
	}, nil
}

// Keys returns the cached key set, fetching it first if there is none yet or
// it has outlived the max age.
func (s *CachingKeySource) Keys(ctx context.Context) (*KeySet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys != nil && (s.maxAge == 0 || s.now().Before(s.fetchedAt.Add(s.maxAge))) {
		return s.keys, nil
	}
	return s.fetchLocked(ctx)
}

// Refresh drops the cached key set and fetches a new one. On failure the
// previous key set is kept.
func (s *CachingKeySource) Refresh(ctx context.Context) (*KeySet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Debug("refreshing cached signing keys")
	return s.fetchLocked(ctx)
}

func (s *CachingKeySource) fetchLocked(ctx context.Context) (*KeySet, error) {
	ks, err := s.src.Keys(ctx)
	if err != nil {
		return nil, err
	}
	s.keys = ks
	s.fetchedAt = s.now()
	return ks, nil
}

const (
	pemCertificateHeader = "-----BEGIN CERTIFICATE-----\n"
	pemCertificateFooter = "-----END CERTIFICATE-----\n"
	pemLineLength        = 64
)

// FormatCertificatePEM wraps a base64 DER certificate, as found in a key's
// x5c, into 64 character lines between PEM certificate markers.
func FormatCertificatePEM(raw string) string {
	raw = strings.Join(strings.Fields(raw), "")
	var b strings.Builder
	b.Grow(len(raw) + len(raw)/pemLineLength + len(pemCertificateHeader) + len(pemCertificateFooter) + 1)
	b.WriteString(pemCertificateHeader)
	for len(raw) > pemLineLength {
		b.WriteString(raw[:pemLineLength])
		b.WriteByte('\n')
		raw = raw[pemLineLength:]
	}
	if raw != "" {
		b.WriteString(raw)
		b.WriteByte('\n')
	}
	b.WriteString(pemCertificateFooter)
	return b.String()
}

// ParsePublicKeyPEM is used to parse RSA and ECDSA public keys from PEMs.
// The PEM may hold either an x509 certificate or a PKIX public key. It
// returns a *rsa.PublicKey or *ecdsa.PublicKey.
func ParsePublicKeyPEM(data []byte) (interface{}, error) {
	block, _ := pem.Decode(data)
	if block != nil {
		var rawKey interface{}
		var err error
		if rawKey, err = x509.ParsePKIXPublicKey(block.Bytes); err != nil {
			if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
				rawKey = cert.PublicKey
			} else {
				return nil, err
			}
		}

		if rsaPublicKey, ok := rawKey.(*rsa.PublicKey); ok {
			return rsaPublicKey, nil
		}
		if ecPublicKey, ok := rawKey.(*ecdsa.PublicKey); ok {
			return ecPublicKey, nil
		}
	}

	return nil, errors.New("data does not contain any valid RSA or ECDSA public keys")
}
