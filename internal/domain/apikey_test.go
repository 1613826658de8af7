package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAPIKey_IsRevoked(t *testing.T) {
	key := &APIKey{ID: "key1", UserID: "alice", Name: "laptop", KeyHash: "hash"}
	assert.False(t, key.IsRevoked())

	revokedAt := time.Now()
	key.RevokedAt = &revokedAt
	assert.True(t, key.IsRevoked())
}

func TestValidateAPIKey(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		apiKey  *APIKey
		wantErr bool
	}{
		{
			name:   "valid api key",
			apiKey: &APIKey{ID: "key1", UserID: "alice", Name: "laptop", KeyHash: "hash123", CreatedAt: now},
		},
		{
			name:    "nil api key",
			apiKey:  nil,
			wantErr: true,
		},
		{
			name:    "missing ID",
			apiKey:  &APIKey{UserID: "alice", Name: "laptop", KeyHash: "hash123"},
			wantErr: true,
		},
		{
			name:    "invalid user id",
			apiKey:  &APIKey{ID: "key1", UserID: "../alice", Name: "laptop", KeyHash: "hash123"},
			wantErr: true,
		},
		{
			name:    "missing name",
			apiKey:  &APIKey{ID: "key1", UserID: "alice", KeyHash: "hash123"},
			wantErr: true,
		},
		{
			name:    "missing hash",
			apiKey:  &APIKey{ID: "key1", UserID: "alice", Name: "laptop"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAPIKey(tt.apiKey)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
