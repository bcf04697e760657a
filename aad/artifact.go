// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package aad

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Names of the artifacts kept for a client while it logs in.
const (
	NonceArtifact         = "nonce"
	CodeArtifact          = "code"
	AuthMarkerArtifact    = "auth"
	RefreshTokensArtifact = "refresh_tokens"
)

// ArtifactStore keeps a client's short-lived login artifacts. Every
// ArtifactStore is scoped to exactly one client (browser).
//
// A ttl of zero binds the artifact to the client's session: it has no
// expiry of its own and disappears when the session does. Get must never
// return an expired artifact.
type ArtifactStore interface {
	// Get returns the artifact's value and whether it exists.
	Get(ctx context.Context, name string) (string, bool, error)

	// Set creates or replaces the artifact, restarting its ttl.
	Set(ctx context.Context, name, value string, ttl time.Duration) error

	// Delete removes the artifact. Deleting a missing artifact is not an
	// error.
	Delete(ctx context.Context, name string) error
}

type memoryArtifact struct {
	value     string
	expiresAt time.Time
}

// MemoryStore implements the ArtifactStore interface in memory for a single
// client. It's concurrently safe.
type MemoryStore struct {
	now func() time.Time

	mu        sync.Mutex
	artifacts map[string]memoryArtifact
}

var _ ArtifactStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
//
// Supported options: WithNow
func NewMemoryStore(opt ...Option) *MemoryStore {
	opts := getMemoryStoreOpts(opt...)
	return &MemoryStore{
		now:       opts.withNow,
		artifacts: map[string]memoryArtifact{},
	}
}

// Get returns the artifact's value and whether it exists and hasn't expired.
func (s *MemoryStore) Get(_ context.Context, name string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.artifacts[name]
	if !ok {
		return "", false, nil
	}
	if !a.expiresAt.IsZero() && !s.now().Before(a.expiresAt) {
		delete(s.artifacts, name)
		return "", false, nil
	}
	return a.value, true, nil
}

// Set creates or replaces the artifact.
func (s *MemoryStore) Set(_ context.Context, name, value string, ttl time.Duration) error {
	const op = "MemoryStore.Set"
	if name == "" {
		return invalidArtifactName(op)
	}
	a := memoryArtifact{value: value}
	if ttl > 0 {
		a.expiresAt = s.now().Add(ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[name] = a
	return nil
}

// Delete removes the artifact.
func (s *MemoryStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.artifacts, name)
	return nil
}

type memoryStoreOptions struct {
	withNow func() time.Time
}

func getMemoryStoreOpts(opt ...Option) memoryStoreOptions {
	opts := memoryStoreOptions{withNow: time.Now}
	ApplyOpts(&opts, opt...)
	return opts
}

func invalidArtifactName(op string) error {
	return fmt.Errorf("%s: artifact name is empty: %w", op, ErrInvalidParameter)
}
