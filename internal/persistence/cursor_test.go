package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chromium7/shoe-wear-tracker/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	cursor := &domain.Cursor{
		CreatedAt: time.Date(2026, time.March, 1, 9, 30, 0, 123456789, time.UTC),
		ID:        "c3c2a8e1-9d3e-4f7f-8a2b-1c5d6e7f8a9b",
	}

	token := EncodeCursor(cursor)
	require.NotEmpty(t, token)

	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	require.True(t, cursor.CreatedAt.Equal(decoded.CreatedAt))
	require.Equal(t, cursor.ID, decoded.ID)
}

func TestEncodeCursorNil(t *testing.T) {
	require.Empty(t, EncodeCursor(nil))
}

func TestDecodeCursorEmpty(t *testing.T) {
	cursor, err := DecodeCursor("")
	require.NoError(t, err)
	require.Nil(t, cursor)

	cursor, err = DecodeCursor("   ")
	require.NoError(t, err)
	require.Nil(t, cursor)
}

func TestDecodeCursorInvalid(t *testing.T) {
	_, err := DecodeCursor("%%not-base64%%")
	require.Error(t, err)

	// Valid base64 but missing the separator.
	_, err = DecodeCursor("bm8tc2VwYXJhdG9y")
	require.Error(t, err)
}
