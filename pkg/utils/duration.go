package utils

import (
	"fmt"
	"time"
)

// FormatTimedelta renders d as [-]D day[s], H:MM:SS[.ffffff]. Negative values
// borrow a whole day, so -5s renders as "-1 day, 23:59:55".
func FormatTimedelta(d time.Duration) string {
	micros := d.Microseconds()
	secs := floorDiv(micros, 1_000_000)
	frac := micros - secs*1_000_000

	s := formatClock(secs)
	if frac != 0 {
		s += fmt.Sprintf(".%06d", frac)
	}
	return s
}

func formatClock(secs int64) string {
	days := floorDiv(secs, 86400)
	rem := secs - days*86400

	clock := fmt.Sprintf("%d:%02d:%02d", rem/3600, rem%3600/60, rem%60)
	if days == 0 {
		return clock
	}
	unit := "days"
	if days == 1 || days == -1 {
		unit = "day"
	}
	return fmt.Sprintf("%d %s, %s", days, unit, clock)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// FormatDuration formats a duration for log messages, e.g. "1h 2m 3s".
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)

	if d < time.Minute {
		return fmt.Sprintf("%ds", d/time.Second)
	} else if d < time.Hour {
		m := d / time.Minute
		d -= m * time.Minute
		return fmt.Sprintf("%dm %ds", m, d/time.Second)
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	return fmt.Sprintf("%dh %dm %ds", h, m, d/time.Second)
}
