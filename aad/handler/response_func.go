// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package handler

import (
	"fmt"
	"net/http"

	"github.com/asoet/wpo365-login/aad"
)

// StoreFunc returns the artifact store of the request's client. It may write
// to the response, e.g. to set a cookie identifying the client.
type StoreFunc func(w http.ResponseWriter, req *http.Request) (aad.ArtifactStore, error)

// SessionFunc returns the host's session of the request's client.
type SessionFunc func(w http.ResponseWriter, req *http.Request) (aad.LocalSession, error)

// ErrorResponseFunc is used by the handlers to create a http response when a
// request can't be handled. The error is never shown to the client by
// DefaultErrorResponse.
type ErrorResponseFunc func(e error, w http.ResponseWriter, req *http.Request)

// DefaultErrorResponse replies with a plain 500.
func DefaultErrorResponse(_ error, w http.ResponseWriter, _ *http.Request) {
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// CookieStores returns a StoreFunc keeping each client's artifacts in
// cookies sealed with sealKey. See aad.NewCookieStore for the supported
// options.
func CookieStores(sealKey []byte, opt ...aad.Option) (StoreFunc, error) {
	const op = "handler.CookieStores"
	if err := aad.ValidateCookieSealKey(sealKey); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return func(w http.ResponseWriter, req *http.Request) (aad.ArtifactStore, error) {
		return aad.NewCookieStore(w, req, sealKey, opt...)
	}, nil
}
