package storage

import "time"

// SetClock replaces the clock used for MaxAge expiry
func SetClock(m *Memory, now func() time.Time) {
	m.now = now
}
