package internal

import (
	"fmt"
	"time"
)

const (
	// DisplayTimeFormat is the standard time format used across the application
	DisplayTimeFormat = "2006-01-02 15:04:05 MST"
)

// FormatLocal formats t in the local zone using DisplayTimeFormat.
func FormatLocal(t time.Time) string {
	return t.Local().Format(DisplayTimeFormat)
}

// FormatRemaining renders the time left until t as "14m30s left", or
// "expired" once t has passed.
func FormatRemaining(t, now time.Time) string {
	d := t.Sub(now)
	if d <= 0 {
		return "expired"
	}
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm left", h, m)
	}
	return fmt.Sprintf("%dm%ds left", m, s)
}
