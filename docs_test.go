// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package wpo365_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/asoet/wpo365-login/aad"
	"github.com/asoet/wpo365-login/aad/handler"
	"github.com/asoet/wpo365-login/jwt"
)

// accounts is a host's user database.
type accounts struct{}

func (accounts) EnsureUser(_ context.Context, c *jwt.Claims) (*aad.Principal, error) {
	return &aad.Principal{ID: c.UPN, DisplayName: c.Name}, nil
}

func (accounts) ResolveCurrentPrincipal(_ context.Context, marker string) (string, bool, error) {
	return marker, marker != "", nil
}

func (accounts) IsProviderLinked(context.Context, *http.Request) bool { return true }

// sessions returns the host's session of the request's client.
func sessions(w http.ResponseWriter, req *http.Request) (aad.LocalSession, error) {
	// look up the host's session for req
	return nil, nil
}

func Example_aad() {
	// Create a new Config
	c, err := aad.NewConfig(
		"your_tenant_id",
		"your_application_id",
		"https://your_site/callback",
		aad.WithApplicationSecret("your_application_secret"),
		aad.WithResources(map[string]string{"graph": "https://graph.microsoft.com"}),
	)
	if err != nil {
		// handle error
	}

	// Create a validator, which decides what happens with every request
	v, err := aad.NewSessionValidator(c, accounts{})
	if err != nil {
		// handle error
	}

	// Keep each client's nonce, code and auth marker in sealed cookies
	stores, err := handler.CookieStores([]byte("32-byte-long-secret-key-12345678"))
	if err != nil {
		// handle error
	}

	// Require an Azure AD login for all pages
	protect, err := handler.Middleware(v, stores, sessions)
	if err != nil {
		// handle error
	}
	// Handle the provider's form post
	callback, err := handler.Callback(v, stores, sessions)
	if err != nil {
		// handle error
	}

	// Exchange the login's authorization code for an access token
	exchange, err := aad.NewExchangeClient(c)
	if err != nil {
		// handle error
	}
	tokenHandler := func(w http.ResponseWriter, r *http.Request) {
		artifacts, err := stores(w, r)
		if err != nil {
			// handle error
		}
		tk, err := exchange.GetAccessToken(r.Context(), artifacts, "graph")
		if err != nil {
			// handle error
		}
		enc := json.NewEncoder(w)
		if err := enc.Encode(tk); err != nil {
			// handle error
		}
	}

	http.Handle("/callback", callback)
	http.Handle("/token", protect(http.HandlerFunc(tokenHandler)))
	if err := http.ListenAndServe("localhost:8080", nil); err != nil {
		fmt.Println(err)
	}
}
