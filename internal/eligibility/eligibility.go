// Package eligibility implements the donor cooling-period rule: a donor
// may give blood again once at least 60 days have passed since their
// last donation.
package eligibility

import (
	"strings"
	"time"
)

// CoolingPeriod is the minimum interval between consecutive donations.
const CoolingPeriod = 60 * 24 * time.Hour

// IsEligible reports whether a donor with the given last donation time
// may donate at ref. A donor with no recorded donation is eligible.
// The boundary is inclusive: exactly 60 days means eligible.
func IsEligible(lastDonation *time.Time, ref time.Time) bool {
	if lastDonation == nil {
		return true
	}
	return ref.Sub(*lastDonation) >= CoolingPeriod
}

// NextEligibleAt returns the first instant the donor may donate again.
// With no prior donation the donor is eligible immediately and ref is
// returned.
func NextEligibleAt(lastDonation *time.Time, ref time.Time) time.Time {
	if lastDonation == nil {
		return ref
	}
	next := lastDonation.Add(CoolingPeriod)
	if next.Before(ref) {
		return ref
	}
	return next
}

// ParseLastDonation parses the stored last-donation value, which may be
// a date-only string, an RFC 3339 timestamp, or a timestamp without a
// zone. Naive values are interpreted in ref's location so the
// subtraction in IsEligible compares like with like. A stock-affecting
// caller must treat a parse error as ineligible (fail closed); the
// error is returned so each call site makes that choice explicitly.
func ParseLastDonation(raw string, ref time.Time) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02",
	}

	// A trailing Z with no offset digits is common in stored data;
	// RFC3339 handles it directly.
	var lastErr error
	for _, layout := range layouts {
		var (
			t   time.Time
			err error
		)
		if layout == time.RFC3339 {
			t, err = time.Parse(layout, raw)
		} else {
			t, err = time.ParseInLocation(layout, strings.TrimSuffix(raw, "Z"), ref.Location())
		}
		if err == nil {
			return &t, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
