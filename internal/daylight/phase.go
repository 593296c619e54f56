package daylight

// Phase is the part of the day/night cycle the device woke into.
type Phase int

const (
	BeforeSunrise Phase = iota
	Daytime
	AfterSunset
)

func (p Phase) String() string {
	switch p {
	case BeforeSunrise:
		return "before_sunrise"
	case Daytime:
		return "daytime"
	case AfterSunset:
		return "after_sunset"
	default:
		return "unknown"
	}
}

// Evaluate classifies now against w. The sunrise minute is already daytime
// and the sunset minute is already night.
func Evaluate(now TimeOfDay, w Window) Phase {
	switch {
	case now.Before(w.Sunrise()):
		return BeforeSunrise
	case now.Before(w.Sunset()):
		return Daytime
	default:
		return AfterSunset
	}
}
