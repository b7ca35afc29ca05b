package timehelper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTodaysDateStringUsesLocation(t *testing.T) {
	now := time.Date(2026, 10, 15, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-10-15", GetTodaysDateString(now, time.UTC))

	tokyo := time.FixedZone("JST", 9*3600)
	assert.Equal(t, "2026-10-16", GetTodaysDateString(now, tokyo))
}

func TestParseLocal(t *testing.T) {
	got, err := ParseLocal("2026-10-20", "14:05", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 20, 14, 5, 0, 0, time.UTC), got)

	_, err = ParseLocal("2026-13-01", "10:00", time.UTC)
	assert.Error(t, err)
}

func TestSortKeyOrdersChronologically(t *testing.T) {
	assert.Less(t, SortKey("2026-10-20", "09:00"), SortKey("2026-10-20", "14:00"))
	assert.Less(t, SortKey("2026-10-20", "23:00"), SortKey("2026-10-21", "00:00"))
}
