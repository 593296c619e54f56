package daylight

// FallbackSleepSeconds is used when the target instant has already passed.
const FallbackSleepSeconds int64 = 60

// SleepSeconds returns the seconds from now until active's sunset, at minute
// resolution. If now is already past sunset it returns FallbackSleepSeconds
// and false; the next cycle re-derives the correct state.
func SleepSeconds(now TimeOfDay, active Window) (int64, bool) {
	sunset := active.Sunset()
	if sunset.Before(now) {
		return FallbackSleepSeconds, false
	}
	return int64(sunset.Minutes()-now.Minutes()) * 60, true
}
