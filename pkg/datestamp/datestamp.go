// Package datestamp resolves the YYYY-MM-DD stamp that names dated artifacts.
package datestamp

import (
	"fmt"
	"time"
)

const (
	// Layout is the date stamp format.
	Layout = "2006-01-02"

	// DefaultZone is the time zone used when none is configured.
	DefaultZone = "Asia/Jakarta"
)

// Resolve returns override when it is set, validated as YYYY-MM-DD.
// Otherwise it formats now in the named zone.
func Resolve(override, zone string, now time.Time) (string, error) {
	if override != "" {
		if err := Validate(override); err != nil {
			return "", err
		}
		return override, nil
	}
	return InZone(now, zone)
}

// InZone formats t as a date stamp in the named zone.
func InZone(t time.Time, zone string) (string, error) {
	if zone == "" {
		zone = DefaultZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return "", fmt.Errorf("load time zone %q: %w", zone, err)
	}
	return t.In(loc).Format(Layout), nil
}

// Validate reports whether s is a real calendar date in YYYY-MM-DD form.
func Validate(s string) error {
	d, err := time.Parse(Layout, s)
	if err != nil {
		return fmt.Errorf("date %q is not YYYY-MM-DD: %w", s, err)
	}
	// time.Parse accepts single-digit fields in some layouts; require the exact form.
	if d.Format(Layout) != s {
		return fmt.Errorf("date %q is not YYYY-MM-DD", s)
	}
	return nil
}
