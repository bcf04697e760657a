// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"net/http"
	"sync"

	"github.com/asoet/wpo365-login/aad"
	"github.com/asoet/wpo365-login/sdk/id"
)

const sessionCookie = "WPO365_DEMO_SESSION"

// sessions are the demo's host sessions, kept in memory and identified by a
// cookie.
type sessions struct {
	secure bool

	mu       sync.Mutex
	loggedIn map[string]string
}

func newSessions(secure bool) *sessions {
	return &sessions{secure: secure, loggedIn: map[string]string{}}
}

// forRequest can be used as a handler.SessionFunc.
func (s *sessions) forRequest(w http.ResponseWriter, req *http.Request) (aad.LocalSession, error) {
	ls := &localSession{sessions: s, w: w}
	if c, err := req.Cookie(sessionCookie); err == nil {
		ls.id = c.Value
	}
	return ls, nil
}

type localSession struct {
	sessions *sessions
	w        http.ResponseWriter
	id       string
}

func (l *localSession) IsLoggedIn(context.Context) bool {
	l.sessions.mu.Lock()
	defer l.sessions.mu.Unlock()
	_, ok := l.sessions.loggedIn[l.id]
	return l.id != "" && ok
}

// Login starts a new session, never reusing the client's current id.
func (l *localSession) Login(_ context.Context, principalID string) error {
	sid, err := id.New("s")
	if err != nil {
		return err
	}
	l.sessions.mu.Lock()
	delete(l.sessions.loggedIn, l.id)
	l.sessions.loggedIn[sid] = principalID
	l.sessions.mu.Unlock()
	l.id = sid
	http.SetCookie(l.w, l.cookie(sid, 0))
	return nil
}

func (l *localSession) Logout(context.Context) error {
	if l.id == "" {
		return nil
	}
	l.sessions.mu.Lock()
	delete(l.sessions.loggedIn, l.id)
	l.sessions.mu.Unlock()
	l.id = ""
	http.SetCookie(l.w, l.cookie("", -1))
	return nil
}

func (l *localSession) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   l.sessions.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
