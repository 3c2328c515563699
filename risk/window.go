package risk

import "time"

// Clock supplies the current time. Injectable so window rollover is
// testable with a simulated clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns a Clock backed by the real wall clock, in UTC.
func SystemClock() Clock { return systemClock{} }

// dayKey maps an instant to its UTC day bucket identity.
func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// hourKey maps an instant to its UTC hour bucket identity.
func hourKey(t time.Time) string {
	return t.UTC().Format("2006-01-02T15")
}
