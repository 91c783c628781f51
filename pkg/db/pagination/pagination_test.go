package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "42", CreatedAt: "2026-01-01T00:00:00Z"})
	require.NoError(t, err)

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "42", cursor.ID)
}

func TestBuildCursorPageInfoTrimsExtraRow(t *testing.T) {
	a, b, c := 1, 2, 3
	rows, info := BuildCursorPageInfo([]*int{&a, &b, &c}, 2, func(v *int) string { return "c" })
	assert.Len(t, rows, 2)
	assert.True(t, info.HasMore)
	assert.Equal(t, "c", info.NextPageToken)

	rows, info = BuildCursorPageInfo([]*int{&a}, 2, func(v *int) string { return "c" })
	assert.Len(t, rows, 1)
	assert.False(t, info.HasMore)
}

func TestLimitClamp(t *testing.T) {
	assert.Equal(t, 20, Pagination{}.Limit())
	assert.Equal(t, 100, Pagination{PageSize: 1000}.Limit())
	assert.Equal(t, 5, Pagination{PageSize: 5}.Limit())
}
