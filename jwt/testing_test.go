// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2"
	josejwt "gopkg.in/square/go-jose.v2/jwt"
)

const (
	testKeyID    = "test-key"
	testIssuer   = "https://sts.windows.net/test-tenant/"
	testAudience = "test-application-id"
)

var (
	testRSAKey   *rsa.PrivateKey
	testRSAKey2  *rsa.PrivateKey
	testKeysOnce sync.Once
)

// testRSAKeys generates the RSA keys shared by the tests once.
func testRSAKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PrivateKey) {
	t.Helper()
	testKeysOnce.Do(func() {
		var err error
		testRSAKey, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testRSAKey2, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
	})
	return testRSAKey, testRSAKey2
}

// testCertificate returns the base64 DER of a self-signed certificate for
// priv, as a provider would publish it in x5c.
func testCertificate(t *testing.T, priv crypto.Signer) string {
	t.Helper()
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	require.NoError(t, err)
	tmpl := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "accounts.accesscontrol.windows.net"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, priv.Public(), priv)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(der)
}

func testECDSAKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return k
}

// testSignJWT signs claims with key using alg, setting kid in the header
// when it's not empty.
func testSignJWT(t *testing.T, key interface{}, alg jose.SignatureAlgorithm, kid string, claims map[string]interface{}) string {
	t.Helper()
	opts := (&jose.SignerOptions{}).WithType("JWT")
	if kid != "" {
		opts = opts.WithHeader("kid", kid)
	}
	sig, err := jose.NewSigner(jose.SigningKey{Algorithm: alg, Key: key}, opts)
	require.NoError(t, err)
	raw, err := josejwt.Signed(sig).Claims(claims).CompactSerialize()
	require.NoError(t, err)
	return raw
}

func testClaims(nonce string) map[string]interface{} {
	now := time.Now()
	return map[string]interface{}{
		"iss":         testIssuer,
		"sub":         "alice-subject",
		"aud":         testAudience,
		"iat":         now.Unix(),
		"nbf":         now.Add(-time.Minute).Unix(),
		"exp":         now.Add(time.Hour).Unix(),
		"nonce":       nonce,
		"oid":         "alice-oid",
		"tid":         "test-tenant",
		"upn":         "alice@example.com",
		"unique_name": "alice@example.com",
		"name":        "Alice",
	}
}

func testKeySet(t *testing.T, entries map[string]string) *KeySet {
	t.Helper()
	ks := &KeySet{}
	for kid, cert := range entries {
		x5c, err := json.Marshal([]string{cert})
		require.NoError(t, err)
		ks.Keys = append(ks.Keys, JSONWebKey{KeyID: kid, KeyType: "RSA", Use: "sig", X5c: x5c})
	}
	return ks
}

// testKeySource is an in memory KeySource that counts fetches.
type testKeySource struct {
	mu    sync.Mutex
	ks    *KeySet
	err   error
	calls int
}

func (s *testKeySource) Keys(context.Context) (*KeySet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.ks, nil
}

func (s *testKeySource) set(ks *KeySet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ks = ks
}

func (s *testKeySource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
