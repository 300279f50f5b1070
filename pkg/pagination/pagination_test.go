package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-3))
	assert.Equal(t, 10, NormalizeLimit(10))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+1))
}

func TestCursorEncodeParse(t *testing.T) {
	want := Cursor{CreatedAt: time.Date(2026, 3, 1, 9, 30, 0, 1500, time.UTC), ID: uuid.New()}

	got, err := ParseCursor(want.Encode())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, want.ID, got.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	blank, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, blank)

	_, err = ParseCursor("not base64!")
	assert.Error(t, err)

	_, err = ParseCursor(Cursor{}.Encode()[:4])
	assert.Error(t, err)
}

func TestTrim(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	position := func(id uuid.UUID) Cursor { return Cursor{CreatedAt: base, ID: id} }

	rows, next := Trim(ids, 3, position)
	assert.Len(t, rows, 3)
	assert.Nil(t, next)

	rows, next = Trim(ids, 2, position)
	assert.Len(t, rows, 2)
	require.NotNil(t, next)
	assert.Equal(t, ids[1], next.ID)
}
