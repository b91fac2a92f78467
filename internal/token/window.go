package token

import "time"

// Clock supplies wall-clock time. Injectable so tests can pin the window.
type Clock func() time.Time

// Window maps a wall-clock instant to a monotonically increasing window id
// at the given rotation interval.
func Window(t time.Time, interval time.Duration) int64 {
	return t.Unix() / intervalSeconds(interval)
}

// WindowStart returns the instant at which the given window opens.
func WindowStart(win int64, interval time.Duration) time.Time {
	return time.Unix(win*intervalSeconds(interval), 0).UTC()
}

// SecondsUntilRotation returns the remaining seconds in the current window.
// Display helper only; not security-relevant.
func SecondsUntilRotation(t time.Time, interval time.Duration) int64 {
	secs := intervalSeconds(interval)
	return secs - (t.Unix() % secs)
}

// intervalSeconds floors the interval to one second so a misconfigured
// sub-second value cannot divide by zero.
func intervalSeconds(interval time.Duration) int64 {
	secs := int64(interval / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
