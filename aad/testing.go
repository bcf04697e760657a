// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package aad

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"io"
	"math/big"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yhat/scrape"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"gopkg.in/square/go-jose.v2"
	josejwt "gopkg.in/square/go-jose.v2/jwt"
)

// TestGenerateKey will generate a test RSA 2048 key.
func TestGenerateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return k
}

// TestCertificate returns a self-signed certificate for key, base64 DER
// encoded like the x5c values of a key discovery document.
func TestCertificate(t *testing.T, key crypto.Signer) string {
	t.Helper()
	require := require.New(t)
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
	require.NoError(err)
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "accounts.test.local"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	require.NoError(err)
	return base64.StdEncoding.EncodeToString(der)
}

// TestSignIdToken will bundle the provided claims into a test JWT signed
// with key using alg, with kid in its header. An empty kid is omitted.
func TestSignIdToken(t *testing.T, key crypto.Signer, alg jose.SignatureAlgorithm, kid string, claims map[string]interface{}) string {
	t.Helper()
	require := require.New(t)
	opts := (&jose.SignerOptions{}).WithType("JWT")
	if kid != "" {
		opts = opts.WithHeader("kid", kid)
	}
	sig, err := jose.NewSigner(jose.SigningKey{Algorithm: alg, Key: key}, opts)
	require.NoError(err)
	raw, err := josejwt.Signed(sig).Claims(claims).CompactSerialize()
	require.NoError(err)
	return raw
}

// TestParseFormPost parses a form_post response page, returning the form's
// action and its hidden values.
func TestParseFormPost(t *testing.T, page io.Reader) (string, url.Values) {
	t.Helper()
	require := require.New(t)
	root, err := html.Parse(page)
	require.NoError(err)
	form, ok := scrape.Find(root, scrape.ByTag(atom.Form))
	require.True(ok, "page has no form")
	require.Equal("post", strings.ToLower(scrape.Attr(form, "method")))
	action := scrape.Attr(form, "action")
	require.NotEmpty(action)

	values := url.Values{}
	for _, in := range scrape.FindAll(form, scrape.ByTag(atom.Input)) {
		if scrape.Attr(in, "type") != "hidden" {
			continue
		}
		values.Add(scrape.Attr(in, "name"), scrape.Attr(in, "value"))
	}
	return action, values
}
