// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package aad

import (
	"encoding/json"
	"time"

	"golang.org/x/oauth2"
)

// IdToken is an Azure AD id_token
type IdToken string

// RedactedIdToken is the redacted string or json for an id_token
const RedactedIdToken = "[REDACTED: id_token]"

// String will redact the token
func (t IdToken) String() string {
	return RedactedIdToken
}

// MarshalJSON will redact the token
func (t IdToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedIdToken)
}

// RefreshToken is an oauth refresh_token
type RefreshToken string

// RedactedRefreshToken is the redacted string or json for an oauth refresh_token
const RedactedRefreshToken = "[REDACTED: refresh_token]"

// String will redact the token
func (t RefreshToken) String() string {
	return RedactedRefreshToken
}

// MarshalJSON will redact the token
func (t RefreshToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedRefreshToken)
}

// RawAccessToken is an oauth access_token
type RawAccessToken string

// RedactedAccessToken is the redacted string or json for an oauth access_token
const RedactedAccessToken = "[REDACTED: access_token]"

// String will redact the token
func (t RawAccessToken) String() string {
	return RedactedAccessToken
}

// MarshalJSON will redact the token
func (t RawAccessToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedAccessToken)
}

const expirySkew = 10 * time.Second

// AccessToken is the result of a successful token exchange. It's only
// created from provider responses that carry every field.
type AccessToken struct {
	AccessToken  RawAccessToken `json:"access_token"`
	RefreshToken RefreshToken   `json:"refresh_token"`
	TokenType    string         `json:"token_type"`
	Resource     string         `json:"resource"`

	// ExpiresIn is the lifetime in seconds as returned by the provider.
	ExpiresIn int64 `json:"expires_in"`

	// Expiry is computed from ExpiresIn when the response was received.
	Expiry time.Time `json:"expiry"`
}

// Expired will return true if the token is expired. Implementations may use
// a skew when checking expiry.
func (t *AccessToken) Expired() bool {
	if t.Expiry.IsZero() {
		return false
	}
	return t.Expiry.Round(0).Before(time.Now().Add(expirySkew))
}

// Valid will ensure that the access_token is not empty or expired.
func (t *AccessToken) Valid() bool {
	if t == nil {
		return false
	}
	if t.AccessToken == "" {
		return false
	}
	return !t.Expired()
}

// Token converts t for use with golang.org/x/oauth2, e.g. with
// oauth2.StaticTokenSource.
func (t *AccessToken) Token() *oauth2.Token {
	if t == nil {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  string(t.AccessToken),
		TokenType:    "Bearer",
		RefreshToken: string(t.RefreshToken),
		Expiry:       t.Expiry,
	}
}
