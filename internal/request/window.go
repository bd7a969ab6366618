package request

import (
	"fmt"
	"time"
)

// Window is the closed set of urgency windows a requester may pick.
// Each maps to a concrete expiry instant; the zero value falls back to
// 24 hours.
type Window string

const (
	WindowDefault Window = ""
	Window30Min   Window = "30 mins"
	Window1Hour   Window = "1 Hour"
	Window2Hours  Window = "2 Hours"
	Window4Hours  Window = "4 Hours"
	WindowToday   Window = "Today"
)

const defaultWindow = 24 * time.Hour

// ParseWindow validates a raw urgency window value.
func ParseWindow(raw string) (Window, error) {
	switch w := Window(raw); w {
	case WindowDefault, Window30Min, Window1Hour, Window2Hours, Window4Hours, WindowToday:
		return w, nil
	default:
		return "", fmt.Errorf("unknown required-time window %q", raw)
	}
}

// ExpiryFrom computes the request expiry for a window anchored at now.
// WindowToday expires at the end of now's calendar day in now's
// location.
func (w Window) ExpiryFrom(now time.Time) time.Time {
	switch w {
	case Window30Min:
		return now.Add(30 * time.Minute)
	case Window1Hour:
		return now.Add(time.Hour)
	case Window2Hours:
		return now.Add(2 * time.Hour)
	case Window4Hours:
		return now.Add(4 * time.Hour)
	case WindowToday:
		y, m, d := now.Date()
		return time.Date(y, m, d, 23, 59, 59, 0, now.Location())
	default:
		return now.Add(defaultWindow)
	}
}
