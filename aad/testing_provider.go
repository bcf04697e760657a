// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package aad

import (
	"bytes"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // x5t is defined as a SHA-1 thumbprint
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2"

	"github.com/asoet/wpo365-login/sdk/id"
)

// Defaults of the TestProvider.
const (
	TestTenantID      = "test-tenant"
	TestApplicationID = "test-application-id"
	TestClientSecret  = "test-application-secret"
	TestKeyID         = "test-kid"
)

// TestProvider is a local Azure AD v1 look-alike serving the authorize,
// token and key discovery endpoints of a single tenant over TLS. It makes
// writing tests of complete logins much easier.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string
	t          *testing.T

	mu                  sync.Mutex
	tenantID            string
	clientID            string
	clientSecret        string
	allowedRedirectURIs []string
	key                 *rsa.PrivateKey
	kid                 string
	cert                string
	x5cScalar           bool
	keysStatus          int
	keysRequests        int
	expectedAuthCode    string
	customClaims        map[string]interface{}
	authError           string
	refreshTokens       map[string]string
	tokenRequests       []url.Values
	tokenResponse       string
	tokenStatus         int
}

// StartTestProvider creates a disposable TestProvider. It's stopped when the
// test ends.
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	require := require.New(t)

	p := &TestProvider{
		t:                   t,
		tenantID:            TestTenantID,
		clientID:            TestApplicationID,
		clientSecret:        TestClientSecret,
		allowedRedirectURIs: []string{"https://example.com/"},
		kid:                 TestKeyID,
		keysStatus:          http.StatusOK,
		refreshTokens:       map[string]string{},
	}
	p.key = TestGenerateKey(t)
	p.cert = TestCertificate(t, p.key)
	code, err := id.New("code")
	require.NoError(err)
	p.expectedAuthCode = code

	p.httpServer = httptest.NewUnstartedServer(p)
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	var buf bytes.Buffer
	err = pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: p.httpServer.Certificate().Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// Addr returns the current base URL for the test provider's running webserver.
// It's the provider's authority.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// CACert returns the pem-encoded CA certificate used by the test provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// HTTPClient returns an http client that trusts the provider.
func (p *TestProvider) HTTPClient() *http.Client { return p.httpServer.Client() }

// TenantID returns the provider's tenant.
func (p *TestProvider) TenantID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tenantID
}

// Issuer returns the "iss" claim of the provider's id_tokens.
func (p *TestProvider) Issuer() string {
	return fmt.Sprintf("https://sts.windows.net/%s/", p.TenantID())
}

// Config returns a Config for the provider's tenant and application that
// trusts the provider's CA.
func (p *TestProvider) Config(redirectURL string, opt ...Option) *Config {
	p.t.Helper()
	p.mu.Lock()
	tenantID, clientID, secret := p.tenantID, p.clientID, p.clientSecret
	p.mu.Unlock()
	opts := append([]Option{
		WithAuthority(p.Addr()),
		WithProviderCA(p.CACert()),
		WithApplicationSecret(ClientSecret(secret)),
	}, opt...)
	c, err := NewConfig(tenantID, clientID, redirectURL, opts...)
	require.NoError(p.t, err)
	return c
}

// SetClientCreds configures the application id and secret.
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// SetAllowedRedirectURIs configures the redirect URIs the provider accepts.
// If not configured "https://example.com/" is used.
func (p *TestProvider) SetAllowedRedirectURIs(uris ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetExpectedAuthCode configures the code returned from the authorize
// endpoint and accepted by the token endpoint.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// ExpectedAuthCode returns the code returned from the authorize endpoint.
func (p *TestProvider) ExpectedAuthCode() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.expectedAuthCode
}

// SetCustomClaims adds claims to, or overrides claims of, the id_tokens
// issued by the authorize endpoint.
func (p *TestProvider) SetCustomClaims(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = claims
}

// SetAuthError makes the authorize endpoint post the error back instead of
// tokens. An empty code turns it off.
func (p *TestProvider) SetAuthError(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authError = code
}

// RotateKeys replaces the provider's signing key with a new one published
// under kid.
func (p *TestProvider) RotateKeys(kid string) {
	p.t.Helper()
	key := TestGenerateKey(p.t)
	cert := TestCertificate(p.t, key)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.key, p.kid, p.cert = key, kid, cert
}

// SigningKey returns the provider's current signing key and its kid.
func (p *TestProvider) SigningKey() (*rsa.PrivateKey, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.key, p.kid
}

// SetX5cScalar publishes the key's x5c as a single string instead of an
// array.
func (p *TestProvider) SetX5cScalar(scalar bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.x5cScalar = scalar
}

// SetKeysStatus makes the key discovery endpoint fail with status.
// http.StatusOK restores it.
func (p *TestProvider) SetKeysStatus(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keysStatus = status
}

// KeysRequests returns how often the key discovery document was requested.
func (p *TestProvider) KeysRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.keysRequests
}

// SetTokenResponse makes the token endpoint reply with body and status
// instead of issuing tokens. An empty body turns it off.
func (p *TestProvider) SetTokenResponse(status int, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenStatus = status
	p.tokenResponse = body
}

// TokenRequests returns the forms posted to the token endpoint.
func (p *TestProvider) TokenRequests() []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]url.Values(nil), p.tokenRequests...)
}

// IdToken returns an id_token for nonce signed with the provider's key,
// with claims added or overriding the defaults.
func (p *TestProvider) IdToken(nonce string, claims map[string]interface{}) string {
	p.t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idTokenLocked(nonce, claims)
}

func (p *TestProvider) idTokenLocked(nonce string, claims map[string]interface{}) string {
	now := time.Now()
	c := map[string]interface{}{
		"iss":         fmt.Sprintf("https://sts.windows.net/%s/", p.tenantID),
		"aud":         p.clientID,
		"sub":         "alice-subject",
		"oid":         "alice-oid",
		"tid":         p.tenantID,
		"upn":         "alice@example.com",
		"unique_name": "alice@example.com",
		"name":        "Alice Example",
		"given_name":  "Alice",
		"family_name": "Example",
		"iat":         now.Unix(),
		"nbf":         now.Unix(),
		"exp":         now.Add(time.Hour).Unix(),
	}
	if nonce != "" {
		c["nonce"] = nonce
	}
	for k, v := range claims {
		if v == nil {
			delete(c, k)
			continue
		}
		c[k] = v
	}
	return TestSignIdToken(p.t, p.key, jose.RS256, p.kid, c)
}

var formPostTemplate = template.Must(template.New("form_post").Parse(`<html>
<head><title>Working...</title></head>
<body>
<form method="POST" name="hiddenform" action="{{.Action}}">
{{range $name, $value := .Values}}<input type="hidden" name="{{$name}}" id="{{$name}}" value="{{$value}}" />
{{end}}<noscript><p>Script is disabled. Click Submit to continue.</p><input type="submit" value="Submit" /></noscript>
</form>
<script>document.forms[0].submit();</script>
</body>
</html>`))

func (p *TestProvider) writeFormPost(w http.ResponseWriter, action string, values map[string]string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = formPostTemplate.Execute(w, struct {
		Action string
		Values map[string]string
	}{Action: action, Values: values})
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, status int, out interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(out)
}

func (p *TestProvider) writeTokenError(w http.ResponseWriter, status int, code, desc string) {
	p.writeJSON(w, status, map[string]string{"error": code, "error_description": desc})
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch req.URL.Path {
	case "/" + p.tenantID + "/oauth2/authorize":
		p.authorize(w, req)
	case "/" + p.tenantID + "/oauth2/token":
		p.token(w, req)
	case "/common/discovery/keys":
		p.keys(w, req)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *TestProvider) authorize(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet && req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	qv := req.URL.Query()
	redirectURI := qv.Get("redirect_uri")
	if !containsString(p.allowedRedirectURIs, redirectURI) {
		// never post anything to a redirect uri that isn't registered
		http.Error(w, "redirect_uri is not allowed", http.StatusBadRequest)
		return
	}
	state := qv.Get("state")
	fail := func(code, desc string) {
		p.writeFormPost(w, redirectURI, map[string]string{"error": code, "error_description": desc, "state": state})
	}
	switch {
	case p.authError != "":
		fail(p.authError, "AADSTS50105: the signed in user is not assigned to a role for the application")
		return
	case qv.Get("client_id") != p.clientID:
		fail("unauthorized_client", "unknown client_id")
		return
	case qv.Get("response_type") != "id_token code":
		fail("unsupported_response_type", "")
		return
	case qv.Get("response_mode") != "form_post":
		fail("invalid_request", "response_mode must be form_post")
		return
	case !containsString(strings.Fields(qv.Get("scope")), "openid"):
		fail("invalid_scope", "")
		return
	case qv.Get("nonce") == "":
		fail("invalid_request", "missing nonce")
		return
	case state == "":
		fail("invalid_request", "missing state")
		return
	}
	p.writeFormPost(w, redirectURI, map[string]string{
		"code":          p.expectedAuthCode,
		"id_token":      p.idTokenLocked(qv.Get("nonce"), p.customClaims),
		"state":         state,
		"session_state": "test-session-state",
	})
}

func (p *TestProvider) token(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := req.ParseForm(); err != nil {
		p.writeTokenError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	p.tokenRequests = append(p.tokenRequests, req.PostForm)
	if p.tokenResponse != "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(p.tokenStatus)
		_, _ = w.Write([]byte(p.tokenResponse))
		return
	}

	form := req.PostForm
	if form.Get("client_id") != p.clientID || form.Get("client_secret") != p.clientSecret {
		p.writeTokenError(w, http.StatusUnauthorized, "invalid_client", "AADSTS7000215: invalid client secret is provided")
		return
	}
	resource := form.Get("resource")
	if resource == "" {
		p.writeTokenError(w, http.StatusBadRequest, "invalid_resource", "AADSTS50001: resource is missing")
		return
	}
	switch form.Get("grant_type") {
	case "authorization_code":
		switch {
		case form.Get("code") != p.expectedAuthCode:
			p.writeTokenError(w, http.StatusBadRequest, "invalid_grant", "AADSTS70008: the provided authorization code is invalid")
			return
		case !containsString(p.allowedRedirectURIs, form.Get("redirect_uri")):
			p.writeTokenError(w, http.StatusBadRequest, "invalid_grant", "AADSTS50011: redirect_uri mismatch")
			return
		}
	case "refresh_token":
		if r, ok := p.refreshTokens[form.Get("refresh_token")]; !ok || !strings.EqualFold(r, resource) {
			p.writeTokenError(w, http.StatusBadRequest, "invalid_grant", "AADSTS70000: the refresh token is invalid")
			return
		}
		delete(p.refreshTokens, form.Get("refresh_token"))
	default:
		p.writeTokenError(w, http.StatusBadRequest, "unsupported_grant_type", "")
		return
	}

	n := len(p.tokenRequests)
	refreshToken := fmt.Sprintf("refresh-%d", n)
	p.refreshTokens[refreshToken] = resource
	p.writeJSON(w, http.StatusOK, map[string]string{
		"token_type":     "Bearer",
		"scope":          "user_impersonation",
		"expires_in":     "3599",
		"ext_expires_in": "3599",
		"expires_on":     strconv.FormatInt(time.Now().Add(3599*time.Second).Unix(), 10),
		"not_before":     strconv.FormatInt(time.Now().Unix(), 10),
		"resource":       resource,
		"access_token":   fmt.Sprintf("access-%d", n),
		"refresh_token":  refreshToken,
	})
}

func (p *TestProvider) keys(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p.keysRequests++
	if p.keysStatus != http.StatusOK {
		w.WriteHeader(p.keysStatus)
		return
	}
	der, err := base64.StdEncoding.DecodeString(p.cert)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	thumb := sha1.Sum(der) //nolint:gosec
	var x5c interface{} = []string{p.cert}
	if p.x5cScalar {
		x5c = p.cert
	}
	p.writeJSON(w, http.StatusOK, map[string]interface{}{
		"keys": []map[string]interface{}{
			{
				"kty": "RSA",
				"use": "sig",
				"kid": p.kid,
				"x5t": base64.RawURLEncoding.EncodeToString(thumb[:]),
				"x5c": x5c,
			},
		},
	})
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
