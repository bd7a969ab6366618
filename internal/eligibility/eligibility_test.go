package eligibility

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsEligible(t *testing.T) {
	t.Parallel()

	ref := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("no prior donation", func(t *testing.T) {
		assert.True(t, IsEligible(nil, ref))
	})

	t.Run("59 days ago is ineligible", func(t *testing.T) {
		last := ref.Add(-59 * 24 * time.Hour)
		assert.False(t, IsEligible(&last, ref))
	})

	t.Run("exactly 60 days is eligible", func(t *testing.T) {
		last := ref.Add(-60 * 24 * time.Hour)
		assert.True(t, IsEligible(&last, ref))
	})

	t.Run("one second short of 60 days is ineligible", func(t *testing.T) {
		last := ref.Add(-60*24*time.Hour + time.Second)
		assert.False(t, IsEligible(&last, ref))
	})

	t.Run("well past the cooling period", func(t *testing.T) {
		last := ref.Add(-120 * 24 * time.Hour)
		assert.True(t, IsEligible(&last, ref))
	})
}

func TestNextEligibleAt(t *testing.T) {
	t.Parallel()

	ref := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, ref, NextEligibleAt(nil, ref))

	last := ref.Add(-10 * 24 * time.Hour)
	assert.Equal(t, last.Add(CoolingPeriod), NextEligibleAt(&last, ref))

	old := ref.Add(-200 * 24 * time.Hour)
	assert.Equal(t, ref, NextEligibleAt(&old, ref))
}

func TestParseLastDonation(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	ref := time.Date(2025, 6, 1, 12, 0, 0, 0, loc)

	t.Run("empty means no donation", func(t *testing.T) {
		got, err := ParseLastDonation("", ref)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("date only uses reference zone", func(t *testing.T) {
		got, err := ParseLastDonation("2025-04-01", ref)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, loc), *got)
	})

	t.Run("rfc3339 keeps its offset", func(t *testing.T) {
		got, err := ParseLastDonation("2025-04-01T08:30:00Z", ref)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, got.Equal(time.Date(2025, 4, 1, 8, 30, 0, 0, time.UTC)))
	})

	t.Run("naive timestamp uses reference zone", func(t *testing.T) {
		got, err := ParseLastDonation("2025-04-01T08:30:00", ref)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, time.Date(2025, 4, 1, 8, 30, 0, 0, loc), *got)
	})

	t.Run("garbage errors out", func(t *testing.T) {
		_, err := ParseLastDonation("not-a-date", ref)
		assert.Error(t, err)
	})
}
