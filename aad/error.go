// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package aad

import (
	"errors"
	"strings"

	"github.com/asoet/wpo365-login/jwt"
)

var (
	ErrInvalidParameter     = errors.New("invalid parameter")
	ErrNilParameter         = errors.New("nil parameter")
	ErrInvalidCACert        = errors.New("invalid CA certificate")
	ErrNonceMismatch        = errors.New("nonce mismatch")
	ErrNonceMissing         = errors.New("nonce missing")
	ErrProviderError        = errors.New("provider returned an error")
	ErrNotConfigured        = errors.New("not configured")
	ErrUserResolutionFailed = errors.New("user resolution failed")
	ErrExchangeFailed       = errors.New("token exchange failed")
	ErrProviderRejected     = errors.New("provider rejected the token request")
	ErrInvalidResponseShape = errors.New("invalid token response shape")
	ErrNoCredential         = errors.New("no refresh token or authorization code")
)

// The id_token validation errors are raised by the jwt package; they are
// repeated here so callers only need to import this package.
var (
	ErrMalformedHeader      = jwt.ErrMalformedHeader
	ErrKeyDiscoveryFailed   = jwt.ErrKeyDiscoveryFailed
	ErrDiscoveryUnavailable = jwt.ErrDiscoveryUnavailable
	ErrUnknownKey           = jwt.ErrUnknownKey
	ErrSignatureInvalid     = jwt.ErrSignatureInvalid
)

// LoginErrorCode is the code handed to the local login page when a login
// attempt is terminated. Codes map to generic messages that never include
// details returned by the provider.
type LoginErrorCode string

const (
	CodeNotConfigured LoginErrorCode = "NOT_CONFIGURED"
	CodeCheckLog      LoginErrorCode = "CHECK_LOG"
	CodeTamperedWith  LoginErrorCode = "TAMPERED_WITH"
	CodeUserNotFound  LoginErrorCode = "USER_NOT_FOUND"
)

// LoginErrorsParam is the query parameter of the local login URL carrying
// comma separated LoginErrorCodes.
const LoginErrorsParam = "login_errors"

var loginErrorMessages = map[LoginErrorCode]string{
	CodeNotConfigured: "Office 365 login is not configured yet. Please contact your System Administrator.",
	CodeCheckLog:      "Please contact your System Administrator and check log file.",
	CodeTamperedWith:  "Your login might be tampered with. Please contact your System Administrator.",
	CodeUserNotFound:  "Could not create or retrieve your login. Please contact your System Administrator.",
}

// Message returns the user facing message for the code. Unknown codes get
// the CHECK_LOG message.
func (c LoginErrorCode) Message() string {
	if m, ok := loginErrorMessages[c]; ok {
		return m
	}
	return loginErrorMessages[CodeCheckLog]
}

// LoginMessages returns the messages for the comma separated codes found in
// the local login page's login_errors parameter, in order and without
// duplicates.
func LoginMessages(codes string) []string {
	var msgs []string
	seen := map[LoginErrorCode]bool{}
	for _, c := range strings.Split(codes, ",") {
		code := LoginErrorCode(strings.ToUpper(strings.TrimSpace(c)))
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		msgs = append(msgs, code.Message())
	}
	return msgs
}
