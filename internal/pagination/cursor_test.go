package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor_RoundTrip(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 123456000, time.FixedZone("CET", 3600))

	encoded := EncodeCursor("0b6f4c1e-1f7a-4c52-9a55-2d3b8c6a1e90", ts)
	require.NotEmpty(t, encoded)

	cursor, err := DecodeCursor(encoded)
	require.NoError(t, err)
	assert.Equal(t, "0b6f4c1e-1f7a-4c52-9a55-2d3b8c6a1e90", cursor.LastID)
	assert.True(t, ts.Equal(cursor.Timestamp))
}

func TestEncodeCursor_EmptyID(t *testing.T) {
	assert.Empty(t, EncodeCursor("", time.Now()))
}

func TestDecodeCursor(t *testing.T) {
	cursor, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, cursor)

	tests := []struct {
		name   string
		cursor string
	}{
		{"not base64", "!!!"},
		{"no separator", base64.URLEncoding.EncodeToString([]byte("abc"))},
		{"bad timestamp", base64.URLEncoding.EncodeToString([]byte("abc|yesterday"))},
		{"empty id", base64.URLEncoding.EncodeToString([]byte("|2024-01-01T00:00:00Z"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCursor(tt.cursor)
			assert.ErrorIs(t, err, ErrInvalidCursor)
		})
	}
}
