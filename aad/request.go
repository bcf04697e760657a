// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package aad

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// RedirectToParam is the parameter a page may use to name where users go
// after logging in. It's honored when it's part of the state URL.
const RedirectToParam = "redirect_to"

// Request is a client request as seen by the flow components.
type Request struct {
	// HTTP is the client's request. Callback parameters are read with
	// FormValue, so the provider's form post body takes precedence over the
	// query.
	HTTP *http.Request

	// Artifacts is the client's artifact store.
	Artifacts ArtifactStore

	// Session is the client's host session.
	Session LocalSession

	// Privileged marks requests for admin (back-end) pages.
	Privileged bool
}

func (r *Request) validate(op string) error {
	switch {
	case r == nil:
		return fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	case r.HTTP == nil:
		return fmt.Errorf("%s: http request is nil: %w", op, ErrNilParameter)
	case r.Artifacts == nil:
		return fmt.Errorf("%s: artifact store is nil: %w", op, ErrNilParameter)
	case r.Session == nil:
		return fmt.Errorf("%s: local session is nil: %w", op, ErrNilParameter)
	}
	return nil
}

// CurrentURL reconstructs the absolute URL the client requested. The scheme
// is https when the request came over TLS or a proxy says so with
// X-Forwarded-Proto.
func CurrentURL(req *http.Request) string {
	scheme := "http"
	if req.TLS != nil || strings.EqualFold(req.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	u := url.URL{
		Scheme:   scheme,
		Host:     req.Host,
		Path:     req.URL.Path,
		RawPath:  req.URL.RawPath,
		RawQuery: req.URL.RawQuery,
	}
	return u.String()
}

// stateLocation picks where a freshly logged in client goes: the redirect_to
// parameter of the state URL, else the state URL itself. Only absolute
// http(s) URLs on the request's host or an allowed host qualify; anything
// else sends the client to the site URL.
func stateLocation(c *Config, req *http.Request, state string) string {
	u, err := url.Parse(state)
	if err != nil || !acceptableStateURL(c, req, u) {
		return c.SiteURL
	}
	if rt := u.Query().Get(RedirectToParam); rt != "" {
		if ru, err := url.Parse(rt); err == nil && acceptableStateURL(c, req, ru) {
			return ru.String()
		}
	}
	return u.String()
}

func acceptableStateURL(c *Config, req *http.Request, u *url.URL) bool {
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.User != nil {
		return false
	}
	host := u.Hostname()
	if host == "" {
		return false
	}
	if strings.EqualFold(host, hostOnly(req.Host)) {
		return true
	}
	for _, h := range c.AllowedStateHosts {
		if strings.EqualFold(host, hostOnly(h)) {
			return true
		}
	}
	return false
}

func hostOnly(hostport string) string {
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}
	return strings.Trim(hostport, "[]")
}
