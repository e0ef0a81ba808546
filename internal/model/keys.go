package model

import "time"

// DatePrefix computes the date-prefixed object path root for a stream
// started at t: recordings/{YYYY}/{MM}/{DD}
func DatePrefix(t time.Time) string {
	return t.UTC().Format("recordings/2006/01/02")
}
