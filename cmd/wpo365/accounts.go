// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/asoet/wpo365-login/aad"
	"github.com/asoet/wpo365-login/jwt"
)

var errUserNotAllowed = errors.New("user is not allowed")

// accounts is the demo's account database. Users are created on their first
// login, optionally restricted to an allow-list.
type accounts struct {
	allowed map[string]bool

	mu    sync.Mutex
	users map[string]*aad.Principal
}

var _ aad.IdentityStore = (*accounts)(nil)

func newAccounts(allowed []string) *accounts {
	a := &accounts{users: map[string]*aad.Principal{}}
	if len(allowed) > 0 {
		a.allowed = make(map[string]bool, len(allowed))
		for _, u := range allowed {
			a.allowed[strings.ToLower(u)] = true
		}
	}
	return a
}

func (a *accounts) EnsureUser(_ context.Context, c *jwt.Claims) (*aad.Principal, error) {
	name := c.UPN
	for _, alt := range []string{c.UniqueName, c.Email, c.Subject} {
		if name != "" {
			break
		}
		name = alt
	}
	name = strings.ToLower(name)
	if name == "" {
		return nil, errors.New("id token has no user name")
	}
	if a.allowed != nil && !a.allowed[name] {
		return nil, errUserNotAllowed
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.users[name]
	if !ok {
		p = &aad.Principal{ID: name, DisplayName: c.Name}
		a.users[name] = p
	}
	return p, nil
}

func (a *accounts) ResolveCurrentPrincipal(_ context.Context, marker string) (string, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.users[marker]
	if !ok {
		return "", false, nil
	}
	return p.ID, true, nil
}

// IsProviderLinked is true for everyone, all users log in with Azure AD.
func (a *accounts) IsProviderLinked(context.Context, *http.Request) bool { return true }

func (a *accounts) displayName(id string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.users[id]; ok && p.DisplayName != "" {
		return p.DisplayName
	}
	return id
}
