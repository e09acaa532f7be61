package humanizer

import "time"

// Daypart is a greeting bucket. Its value is the greet subcategory name.
type Daypart string

const (
	Morning   Daypart = "morning"    // 05:00–11:59
	Afternoon Daypart = "afternoon"  // 12:00–17:59
	Evening   Daypart = "evening"    // 18:00–22:59
	LateNight Daypart = "late_night" // 23:00–04:59
)

// DaypartOf buckets t by its wall-clock hour in t's own location. Callers
// convert to the user's zone first.
func DaypartOf(t time.Time) Daypart {
	switch h := t.Hour(); {
	case h >= 5 && h < 12:
		return Morning
	case h >= 12 && h < 18:
		return Afternoon
	case h >= 18 && h < 23:
		return Evening
	default:
		return LateNight
	}
}
