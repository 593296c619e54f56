package suntime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dokzlo13/duskd/internal/daylight"
)

const (
	// chunkSize is how much is read from the stream at a time.
	chunkSize = 128

	// timeOffset is where HH:MM starts in "YYYY-MM-DDTHH:MM:SS+HH:MM".
	timeOffset = 11

	statusOK = "OK"
)

var (
	// ErrNoJSON is returned when the stream ends without a '{'.
	ErrNoJSON = errors.New("suntime: no JSON found in response")

	// ErrNoClosingBrace is returned when the captured payload has no '}'.
	ErrNoClosingBrace = errors.New("suntime: no closing brace in response")

	// ErrResponseTruncated is returned when the payload does not fit the
	// capture buffer. The buffer never grows past its capacity.
	ErrResponseTruncated = errors.New("suntime: response exceeds buffer capacity")

	// ErrStatusNotOK is returned when status is missing or not "OK".
	ErrStatusNotOK = errors.New("suntime: response status is not OK")

	// ErrMissingField is returned when results, sunrise or sunset is absent.
	ErrMissingField = errors.New("suntime: missing field")

	// ErrTimestampFormat is returned when HH:MM cannot be read at offset 11.
	ErrTimestampFormat = errors.New("suntime: unexpected timestamp format")
)

// captureJSON reads r in small chunks and returns everything from the first
// '{' up to and including the last '}'. Status line and headers are skipped
// without being parsed. At most capacity bytes are kept.
func captureJSON(r io.Reader, capacity int) ([]byte, error) {
	buf := make([]byte, 0, capacity)
	chunk := make([]byte, chunkSize)
	found := false

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			data := chunk[:n]
			if !found {
				if i := bytes.IndexByte(data, '{'); i >= 0 {
					data = data[i:]
					found = true
				} else {
					data = nil
				}
			}
			if len(buf)+len(data) > capacity {
				return nil, ErrResponseTruncated
			}
			buf = append(buf, data...)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
	}

	if !found {
		return nil, ErrNoJSON
	}

	end := bytes.LastIndexByte(buf, '}')
	if end < 0 {
		return nil, ErrNoClosingBrace
	}
	return buf[:end+1], nil
}

// sunResponse is the subset of the API response that is read. Results stays
// raw until status is checked: failed requests report results as "".
type sunResponse struct {
	Status  *string         `json:"status"`
	Results json.RawMessage `json:"results"`
}

type sunResults struct {
	Sunrise *string `json:"sunrise"`
	Sunset  *string `json:"sunset"`
}

// parseResponse validates the payload and returns the unadjusted window.
func parseResponse(payload []byte) (daylight.Window, error) {
	var resp sunResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return daylight.Window{}, fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.Status == nil || *resp.Status != statusOK {
		return daylight.Window{}, ErrStatusNotOK
	}
	if len(resp.Results) == 0 || string(resp.Results) == "null" {
		return daylight.Window{}, fmt.Errorf("%w: results", ErrMissingField)
	}

	var results sunResults
	if err := json.Unmarshal(resp.Results, &results); err != nil {
		return daylight.Window{}, fmt.Errorf("failed to decode results: %w", err)
	}
	if results.Sunrise == nil {
		return daylight.Window{}, fmt.Errorf("%w: sunrise", ErrMissingField)
	}
	if results.Sunset == nil {
		return daylight.Window{}, fmt.Errorf("%w: sunset", ErrMissingField)
	}

	sunrise, err := parseTimeOfDay(*results.Sunrise)
	if err != nil {
		return daylight.Window{}, fmt.Errorf("sunrise: %w", err)
	}
	sunset, err := parseTimeOfDay(*results.Sunset)
	if err != nil {
		return daylight.Window{}, fmt.Errorf("sunset: %w", err)
	}

	return daylight.Window{
		SunriseHour:   sunrise.Hour,
		SunriseMinute: sunrise.Minute,
		SunsetHour:    sunset.Hour,
		SunsetMinute:  sunset.Minute,
	}, nil
}

// parseTimeOfDay reads HH:MM at a fixed offset. The API is queried with the
// device time zone, so the wall-clock values are already local.
func parseTimeOfDay(s string) (daylight.TimeOfDay, error) {
	if len(s) <= timeOffset {
		return daylight.TimeOfDay{}, fmt.Errorf("%w: %q", ErrTimestampFormat, s)
	}

	var t daylight.TimeOfDay
	if _, err := fmt.Sscanf(s[timeOffset:], "%d:%d", &t.Hour, &t.Minute); err != nil {
		return daylight.TimeOfDay{}, fmt.Errorf("%w: %q", ErrTimestampFormat, s)
	}
	if !t.Valid() {
		return daylight.TimeOfDay{}, fmt.Errorf("%w: %q", ErrTimestampFormat, s)
	}
	return t, nil
}
