// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package aad

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// OutcomeKind tells the caller of a flow component what to do next.
type OutcomeKind int

const (
	// Continue lets the request through to the host.
	Continue OutcomeKind = iota

	// RedirectToIdP sends the client to the provider's authorize endpoint.
	RedirectToIdP

	// RedirectToLocalLogin sends the client to the host's login page.
	RedirectToLocalLogin

	// RedirectToState sends a freshly logged in client back to the page it
	// requested before login.
	RedirectToState
)

// String returns the kind's name.
func (k OutcomeKind) String() string {
	switch k {
	case Continue:
		return "continue"
	case RedirectToIdP:
		return "redirect_to_idp"
	case RedirectToLocalLogin:
		return "redirect_to_local_login"
	case RedirectToState:
		return "redirect_to_state"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the result of processing a request. Any redirect is terminal:
// the caller must send it and stop handling the request.
type Outcome struct {
	Kind OutcomeKind

	// Location is the redirect target, empty for Continue.
	Location string

	// Code is the login error code of a RedirectToLocalLogin that ends a
	// failed login.
	Code LoginErrorCode

	// Err is the cause of a failed login.
	Err error
}

// IsRedirect reports whether the outcome is a redirect.
func (o Outcome) IsRedirect() bool {
	return o.Kind != Continue
}

func continueOutcome() Outcome {
	return Outcome{Kind: Continue}
}

// localLoginLocation adds code to the login_errors parameter of loginURL,
// keeping any codes and parameters already there.
func localLoginLocation(loginURL string, code LoginErrorCode) string {
	if code == "" {
		return loginURL
	}
	u, err := url.Parse(loginURL)
	if err != nil {
		return DefaultLoginURL + "?" + url.Values{LoginErrorsParam: {string(code)}}.Encode()
	}
	q := u.Query()
	codes := q.Get(LoginErrorsParam)
	switch {
	case codes == "":
		codes = string(code)
	case !containsCode(codes, code):
		codes += "," + string(code)
	}
	q.Set(LoginErrorsParam, codes)
	u.RawQuery = q.Encode()
	return u.String()
}

func containsCode(codes string, code LoginErrorCode) bool {
	for _, c := range strings.Split(codes, ",") {
		if strings.EqualFold(strings.TrimSpace(c), string(code)) {
			return true
		}
	}
	return false
}

// loginFailures ends failed logins: it reports the code and returns the
// redirect to the local login page.
type loginFailures struct {
	loginURL  string
	messenger Messenger
	metrics   *Metrics
}

func (f loginFailures) toLocalLogin(ctx context.Context, code LoginErrorCode, err error) Outcome {
	if f.messenger != nil {
		f.messenger.ReportLoginError(ctx, code)
	}
	f.metrics.RecordLoginError(ctx, code)
	return Outcome{
		Kind:     RedirectToLocalLogin,
		Location: localLoginLocation(f.loginURL, code),
		Code:     code,
		Err:      err,
	}
}
