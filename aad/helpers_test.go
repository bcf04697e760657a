// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package aad

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/asoet/wpo365-login/jwt"
)

type testIdentityStore struct {
	mu         sync.Mutex
	unlinked   bool
	ensureErr  error
	resolveErr error
	principals map[string]*Principal
	ensured    []*jwt.Claims
}

func newTestIdentityStore() *testIdentityStore {
	return &testIdentityStore{principals: map[string]*Principal{}}
}

func (s *testIdentityStore) EnsureUser(_ context.Context, claims *jwt.Claims) (*Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensured = append(s.ensured, claims)
	if s.ensureErr != nil {
		return nil, s.ensureErr
	}
	if claims.UPN == "" {
		return nil, errors.New("claims have no upn")
	}
	p, ok := s.principals[claims.UPN]
	if !ok {
		p = &Principal{ID: claims.UPN, DisplayName: claims.Name}
		s.principals[claims.UPN] = p
	}
	return p, nil
}

func (s *testIdentityStore) ResolveCurrentPrincipal(_ context.Context, marker string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolveErr != nil {
		return "", false, s.resolveErr
	}
	p, ok := s.principals[marker]
	if !ok {
		return "", false, nil
	}
	return p.ID, true, nil
}

func (s *testIdentityStore) IsProviderLinked(context.Context, *http.Request) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.unlinked
}

func (s *testIdentityStore) add(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principals[id] = &Principal{ID: id}
}

type testSession struct {
	principal string
	logins    int
	logouts   int
	loginErr  error
}

func (s *testSession) IsLoggedIn(context.Context) bool { return s.principal != "" }

func (s *testSession) Login(_ context.Context, principalID string) error {
	if s.loginErr != nil {
		return s.loginErr
	}
	s.logins++
	s.principal = principalID
	return nil
}

func (s *testSession) Logout(context.Context) error {
	s.logouts++
	s.principal = ""
	return nil
}

type testMessenger struct {
	mu    sync.Mutex
	codes []LoginErrorCode
}

func (m *testMessenger) ReportLoginError(_ context.Context, code LoginErrorCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes = append(m.codes, code)
}

func (m *testMessenger) reported() []LoginErrorCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LoginErrorCode(nil), m.codes...)
}

// failingStore fails every operation on the named artifact.
type failingStore struct {
	ArtifactStore
	name string
	err  error
}

func (s *failingStore) Get(ctx context.Context, name string) (string, bool, error) {
	if name == s.name {
		return "", false, s.err
	}
	return s.ArtifactStore.Get(ctx, name)
}

func (s *failingStore) Set(ctx context.Context, name, value string, ttl time.Duration) error {
	if name == s.name {
		return s.err
	}
	return s.ArtifactStore.Set(ctx, name, value, ttl)
}

func (s *failingStore) Delete(ctx context.Context, name string) error {
	if name == s.name {
		return s.err
	}
	return s.ArtifactStore.Delete(ctx, name)
}
