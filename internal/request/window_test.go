package request

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWindow(t *testing.T) {
	for _, raw := range []string{"", "30 mins", "1 Hour", "2 Hours", "4 Hours", "Today"} {
		w, err := ParseWindow(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, Window(raw), w)
	}

	_, err := ParseWindow("3 Hours")
	assert.Error(t, err)
	_, err = ParseWindow("today")
	assert.Error(t, err, "window values are case sensitive")
}

func TestWindowExpiryFrom(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

	cases := []struct {
		window Window
		want   time.Time
	}{
		{Window30Min, now.Add(30 * time.Minute)},
		{Window1Hour, now.Add(time.Hour)},
		{Window2Hours, now.Add(2 * time.Hour)},
		{Window4Hours, now.Add(4 * time.Hour)},
		{WindowToday, time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC)},
		{WindowDefault, now.Add(24 * time.Hour)},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.window.ExpiryFrom(now), string(tc.window))
	}
}

func TestWindowTodayRespectsLocation(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	// Late evening local time: the window must end the same local day,
	// not the same UTC day.
	now := time.Date(2026, 3, 10, 23, 0, 0, 0, loc)
	expiry := WindowToday.ExpiryFrom(now)

	assert.Equal(t, time.Date(2026, 3, 10, 23, 59, 59, 0, loc), expiry)
	assert.True(t, expiry.After(now))
}
