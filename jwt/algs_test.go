// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupportedSigningAlgorithm(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		algs    []Alg
		wantErr bool
	}{
		{
			name: "supported signing algorithms",
			algs: []Alg{RS256, RS384, RS512, ES256, ES384, ES512, PS256, PS384, PS512},
		},
		{
			name:    "unsupported signing algorithm none",
			algs:    []Alg{Alg("none")},
			wantErr: true,
		},
		{
			name:    "unsupported symmetric algorithm",
			algs:    []Alg{RS256, Alg("HS256")},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SupportedSigningAlgorithm(tt.algs...)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidParameter))
				return
			}
			require.NoError(t, err)
		})
	}
}
