// Package daylight classifies the current time against a day's sunrise and
// sunset, waits for phase boundaries, and computes sleep intervals.
package daylight

import (
	"fmt"
	"time"
)

const minutesPerDay = 24 * 60

// DefaultHysteresis delays sunrise and advances sunset so phase changes do
// not trigger exactly at the astronomical instant.
const DefaultHysteresis = 15 * time.Minute

// TimeOfDay is a local wall-clock hour and minute.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// At returns the local time of day of t in loc.
func At(t time.Time, loc *time.Location) TimeOfDay {
	local := t.In(loc)
	return TimeOfDay{Hour: local.Hour(), Minute: local.Minute()}
}

// Before reports whether d is strictly earlier than other.
func (d TimeOfDay) Before(other TimeOfDay) bool {
	return d.Hour < other.Hour || (d.Hour == other.Hour && d.Minute < other.Minute)
}

// Minutes returns minutes since midnight.
func (d TimeOfDay) Minutes() int {
	return d.Hour*60 + d.Minute
}

// Valid reports whether d is a real wall-clock time.
func (d TimeOfDay) Valid() bool {
	return d.Hour >= 0 && d.Hour < 24 && d.Minute >= 0 && d.Minute < 60
}

func (d TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", d.Hour, d.Minute)
}

// shift moves d by delta minutes with borrow/carry, wrapping at midnight.
func (d TimeOfDay) shift(delta int) TimeOfDay {
	m := ((d.Minutes()+delta)%minutesPerDay + minutesPerDay) % minutesPerDay
	return TimeOfDay{Hour: m / 60, Minute: m % 60}
}

// Window is one day's sunrise and sunset in local wall-clock time.
type Window struct {
	SunriseHour   int
	SunriseMinute int
	SunsetHour    int
	SunsetMinute  int
}

// Sunrise returns the sunrise time of day.
func (w Window) Sunrise() TimeOfDay {
	return TimeOfDay{Hour: w.SunriseHour, Minute: w.SunriseMinute}
}

// Sunset returns the sunset time of day.
func (w Window) Sunset() TimeOfDay {
	return TimeOfDay{Hour: w.SunsetHour, Minute: w.SunsetMinute}
}

// Validate checks the hour/minute ranges of both ends.
func (w Window) Validate() error {
	if !w.Sunrise().Valid() {
		return fmt.Errorf("invalid sunrise %d:%d", w.SunriseHour, w.SunriseMinute)
	}
	if !w.Sunset().Valid() {
		return fmt.Errorf("invalid sunset %d:%d", w.SunsetHour, w.SunsetMinute)
	}
	return nil
}

func (w Window) String() string {
	return fmt.Sprintf("%s-%s", w.Sunrise(), w.Sunset())
}

func newWindow(sunrise, sunset TimeOfDay) Window {
	return Window{
		SunriseHour:   sunrise.Hour,
		SunriseMinute: sunrise.Minute,
		SunsetHour:    sunset.Hour,
		SunsetMinute:  sunset.Minute,
	}
}

// ApplyHysteresis moves sunrise later and sunset earlier by margin.
func ApplyHysteresis(w Window, margin time.Duration) Window {
	m := int(margin / time.Minute)
	return newWindow(w.Sunrise().shift(m), w.Sunset().shift(-m))
}

// RemoveHysteresis is the inverse of ApplyHysteresis.
func RemoveHysteresis(w Window, margin time.Duration) Window {
	m := int(margin / time.Minute)
	return newWindow(w.Sunrise().shift(-m), w.Sunset().shift(m))
}
