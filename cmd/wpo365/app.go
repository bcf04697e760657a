// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"

	"github.com/asoet/wpo365-login/aad"
	"github.com/asoet/wpo365-login/aad/handler"
	"github.com/asoet/wpo365-login/aad/redisstore"
)

// app is the demo web application.
type app struct {
	config    *aad.Config
	server    serverConfig
	validator *aad.SessionValidator
	exchange  *aad.ExchangeClient
	accounts  *accounts
	sessions  *sessions
	stores    handler.StoreFunc
	logger    hclog.Logger
	closers   []func() error
}

func newApp(fc *fileConfig, logger hclog.Logger, mp metric.MeterProvider) (*app, error) {
	const op = "newApp"
	c, err := fc.aadConfig()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !c.IsConfigured() {
		logger.Warn("tenant id, application id or redirect url is missing, all logins will fail")
	}
	m, err := aad.NewMetrics(mp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	a := &app{
		config:   c,
		server:   fc.Server,
		accounts: newAccounts(fc.Server.AllowedUsers),
		sessions: newSessions(fc.Server.tls()),
		logger:   logger,
	}
	messenger := aad.MessengerFunc(func(_ context.Context, code aad.LoginErrorCode) {
		logger.Warn("login failed", "code", code)
	})
	validated := func(_ context.Context, e aad.Event) {
		logger.Debug("session validated", "event", e.Name, "principal", e.PrincipalID)
	}
	a.validator, err = aad.NewSessionValidator(c, a.accounts,
		aad.WithLogger(logger.Named("session")),
		aad.WithMetrics(m),
		aad.WithMessenger(messenger),
		aad.WithEventHandler(validated),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	a.exchange, err = aad.NewExchangeClient(c, aad.WithLogger(logger.Named("exchange")), aad.WithMetrics(m))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if a.stores, err = a.newStores(); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

func (a *app) newStores() (handler.StoreFunc, error) {
	if a.server.RedisAddr == "" {
		key, err := a.server.sealKey()
		if err != nil {
			return nil, err
		}
		if key == nil {
			if key, err = aad.GenerateCookieSealKey(); err != nil {
				return nil, err
			}
			a.logger.Warn("no cookie seal key configured, generated one: logins will not survive a restart")
		}
		var opts []aad.Option
		if !a.server.tls() {
			opts = append(opts, aad.WithCookieInsecure())
		}
		a.logger.Info("keeping login artifacts in sealed cookies")
		return handler.CookieStores(key, opts...)
	}

	rdb := redis.NewClient(&redis.Options{Addr: a.server.RedisAddr})
	a.closers = append(a.closers, rdb.Close)
	opts := []aad.Option{redisstore.WithLogger(a.logger.Named("redis"))}
	if !a.server.tls() {
		opts = append(opts, redisstore.WithInsecureCookie())
	}
	s, err := redisstore.New(rdb, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Ping(context.Background()); err != nil {
		return nil, err
	}
	a.logger.Info("keeping login artifacts in redis", "addr", a.server.RedisAddr)
	return s.Stores(), nil
}

// Close releases the app's connections.
func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// handler returns the app's routes.
func (a *app) handler() (http.Handler, error) {
	const op = "app.handler"
	hOpts := []aad.Option{
		handler.WithPrivilegedPrefix(a.server.AdminPrefix),
		handler.WithLogger(a.logger.Named("handler")),
	}
	protect, err := handler.Middleware(a.validator, a.stores, a.sessions.forRequest, hOpts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	logout, err := handler.Logout(a.validator, a.stores, a.sessions.forRequest, hOpts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	mux := http.NewServeMux()
	if p := urlPath(a.config.RedirectURL); p != "/" {
		callback, err := handler.Callback(a.validator, a.stores, a.sessions.forRequest, hOpts...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		mux.Handle(p, callback)
	}
	mux.Handle(urlPath(a.config.LoginURL), http.HandlerFunc(a.loginPage))
	mux.Handle("/logout", logout)
	mux.Handle("/token", protect(http.HandlerFunc(a.token)))
	mux.Handle("/", protect(http.HandlerFunc(a.home)))
	return mux, nil
}

func urlPath(s string) string {
	u, err := url.Parse(s)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
{{range .Messages}}<p class="error">{{.}}</p>
{{end}}{{if .User}}<p>Signed in as {{.User}}.</p>
<ul>
{{range .Resources}}<li><a href="/token?resource={{.}}">Get an access token for {{.}}</a></li>
{{end}}<li><a href="/logout">Sign out</a></li>
</ul>
{{else}}<p><a href="/">Sign in with Azure AD</a></p>
{{end}}</body>
</html>`))

type page struct {
	Title     string
	User      string
	Messages  []string
	Resources []string
}

func (a *app) render(w http.ResponseWriter, p page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, p); err != nil {
		a.logger.Error("unable to render page", "error", err)
	}
}

func (a *app) currentUser(w http.ResponseWriter, req *http.Request) (aad.ArtifactStore, string, error) {
	artifacts, err := a.stores(w, req)
	if err != nil {
		return nil, "", err
	}
	marker, ok, err := artifacts.Get(req.Context(), aad.AuthMarkerArtifact)
	if err != nil || !ok {
		return artifacts, "", err
	}
	return artifacts, marker, nil
}

func (a *app) home(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/" && req.URL.Path != a.server.AdminPrefix {
		http.NotFound(w, req)
		return
	}
	_, user, err := a.currentUser(w, req)
	if err != nil {
		a.logger.Error("unable to get current user", "error", err)
	}
	p := page{Title: "Welcome", User: a.accounts.displayName(user)}
	for name := range a.config.Resources {
		p.Resources = append(p.Resources, name)
	}
	sort.Strings(p.Resources)
	a.render(w, p)
}

func (a *app) loginPage(w http.ResponseWriter, req *http.Request) {
	a.render(w, page{
		Title:    "Sign in",
		Messages: aad.LoginMessages(req.URL.Query().Get(aad.LoginErrorsParam)),
	})
}

type tokenInfo struct {
	Resource  string `json:"resource"`
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in"`
	Expiry    string `json:"expiry"`
}

// token gets an access token for the requested resource. The token itself
// is never sent to the browser.
func (a *app) token(w http.ResponseWriter, req *http.Request) {
	artifacts, _, err := a.currentUser(w, req)
	if err != nil {
		a.logger.Error("unable to get artifact store", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	tk, err := a.exchange.GetAccessToken(req.Context(), artifacts, req.URL.Query().Get("resource"))
	switch {
	case errors.Is(err, aad.ErrNoCredential):
		http.Error(w, "sign in again to get a token for this resource", http.StatusUnauthorized)
		return
	case errors.Is(err, aad.ErrInvalidParameter):
		http.Error(w, "resource is required", http.StatusBadRequest)
		return
	case err != nil:
		a.logger.Error("unable to get access token", "error", err)
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(tokenInfo{
		Resource:  tk.Resource,
		TokenType: tk.TokenType,
		ExpiresIn: tk.ExpiresIn,
		Expiry:    tk.Expiry.UTC().Format(time.RFC3339),
	})
}
