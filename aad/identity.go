// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package aad

import (
	"context"
	"net/http"

	"github.com/asoet/wpo365-login/jwt"
)

// Principal is a host account.
type Principal struct {
	ID          string
	DisplayName string
}

// IdentityStore maps Azure AD identities to host accounts. It's supplied by
// the host and must be concurrently safe.
type IdentityStore interface {
	// EnsureUser returns the host account for the verified claims, creating
	// it when needed.
	EnsureUser(ctx context.Context, claims *jwt.Claims) (*Principal, error)

	// ResolveCurrentPrincipal returns the id of the host account a client
	// logged in as. marker is the value of the client's local auth marker,
	// which holds the Principal.ID EnsureUser returned.
	ResolveCurrentPrincipal(ctx context.Context, marker string) (string, bool, error)

	// IsProviderLinked reports whether the request's user is (or will be)
	// authenticated with Azure AD. Users that are not are left to the host.
	IsProviderLinked(ctx context.Context, req *http.Request) bool
}

// LocalSession is the host's session of the client making the request.
type LocalSession interface {
	IsLoggedIn(ctx context.Context) bool
	Login(ctx context.Context, principalID string) error
	Logout(ctx context.Context) error
}

// Messenger is told about login errors so the host can show their message
// on the local login page. Messages must come from LoginErrorCode.Message;
// provider details are never shown to users.
type Messenger interface {
	ReportLoginError(ctx context.Context, code LoginErrorCode)
}

// MessengerFunc adapts a func to a Messenger.
type MessengerFunc func(ctx context.Context, code LoginErrorCode)

// ReportLoginError calls f.
func (f MessengerFunc) ReportLoginError(ctx context.Context, code LoginErrorCode) {
	f(ctx, code)
}

// EventSessionValidated is emitted when a client's local session has been
// (re)established from its Azure AD login.
const EventSessionValidated = "session_validated"

// Event is passed to EventHandlers.
type Event struct {
	Name        string
	PrincipalID string
	Request     *http.Request
}

// EventHandler lets the host extend the login flow.
type EventHandler func(ctx context.Context, e Event)
