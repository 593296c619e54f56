package suntime

import (
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/duskd/internal/daylight"
)

const okBody = `{"results":{"sunrise":"2025-03-10T06:12:41+01:00","sunset":"2025-03-10T17:51:03+01:00",` +
	`"solar_noon":"2025-03-10T12:01:52+01:00","day_length":41902},"status":"OK","tzid":"Europe/Belgrade"}`

func httpResponse(body string) string {
	return "HTTP/1.1 200 OK\r\n" +
		"Content-Type: application/json\r\n" +
		"Connection: close\r\n" +
		"\r\n" + body
}

func TestCaptureJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		capacity int
		expected string
		err      error
	}{
		{
			name:     "headers_then_body",
			input:    httpResponse(okBody),
			capacity: 1024,
			expected: okBody,
		},
		{
			name:     "trailing_bytes_after_last_brace",
			input:    httpResponse(okBody + "\r\n0\r\n\r\n"),
			capacity: 1024,
			expected: okBody,
		},
		{
			name:     "brace_after_first_chunk",
			input:    strings.Repeat("X-Pad: y\r\n", 30) + "\r\n" + `{"a":1}`,
			capacity: 1024,
			expected: `{"a":1}`,
		},
		{
			name:     "no_json",
			input:    "HTTP/1.1 502 Bad Gateway\r\n\r\nupstream error",
			capacity: 1024,
			err:      ErrNoJSON,
		},
		{
			name:     "no_closing_brace",
			input:    httpResponse(`{"status":"OK"`),
			capacity: 1024,
			err:      ErrNoClosingBrace,
		},
		{
			name:     "payload_exceeds_capacity",
			input:    httpResponse(`{"pad":"` + strings.Repeat("x", 2048) + `"}`),
			capacity: 1024,
			err:      ErrResponseTruncated,
		},
		{
			name:     "payload_exactly_capacity",
			input:    httpResponse(`{"p":"` + strings.Repeat("x", 10) + `"}`),
			capacity: 18,
			expected: `{"p":"` + strings.Repeat("x", 10) + `"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := captureJSON(strings.NewReader(tt.input), tt.capacity)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(got))
		})
	}
}

func TestCaptureJSON_ReadError(t *testing.T) {
	boom := errors.New("connection reset")
	r := iotest.TimeoutReader(strings.NewReader(httpResponse(okBody)))
	_, err := captureJSON(r, 1024)
	assert.ErrorIs(t, err, iotest.ErrTimeout)

	_, err = captureJSON(iotest.ErrReader(boom), 1024)
	assert.ErrorIs(t, err, boom)
}

func TestCaptureJSON_OneByteReads(t *testing.T) {
	got, err := captureJSON(iotest.OneByteReader(strings.NewReader(httpResponse(okBody))), 1024)
	require.NoError(t, err)
	assert.Equal(t, okBody, string(got))
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		expected daylight.Window
		err      error
	}{
		{
			name:     "ok",
			payload:  okBody,
			expected: daylight.Window{SunriseHour: 6, SunriseMinute: 12, SunsetHour: 17, SunsetMinute: 51},
		},
		{
			name:    "status_not_ok",
			payload: `{"results":"","status":"INVALID_REQUEST"}`,
			err:     ErrStatusNotOK,
		},
		{
			name:    "status_missing",
			payload: `{"results":{"sunrise":"2025-03-10T06:12:41+01:00","sunset":"2025-03-10T17:51:03+01:00"}}`,
			err:     ErrStatusNotOK,
		},
		{
			name:    "results_missing",
			payload: `{"status":"OK"}`,
			err:     ErrMissingField,
		},
		{
			name:    "sunset_missing",
			payload: `{"results":{"sunrise":"2025-03-10T06:12:41+01:00"},"status":"OK"}`,
			err:     ErrMissingField,
		},
		{
			name:    "short_timestamp",
			payload: `{"results":{"sunrise":"06:12","sunset":"2025-03-10T17:51:03+01:00"},"status":"OK"}`,
			err:     ErrTimestampFormat,
		},
		{
			name:    "garbage_timestamp",
			payload: `{"results":{"sunrise":"2025-03-10Tnoon","sunset":"2025-03-10T17:51:03+01:00"},"status":"OK"}`,
			err:     ErrTimestampFormat,
		},
		{
			name:    "out_of_range_timestamp",
			payload: `{"results":{"sunrise":"2025-03-10T26:12:41+01:00","sunset":"2025-03-10T17:51:03+01:00"},"status":"OK"}`,
			err:     ErrTimestampFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseResponse([]byte(tt.payload))
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseResponse_WrongTypes(t *testing.T) {
	_, err := parseResponse([]byte(`{"status":1}`))
	assert.Error(t, err)

	_, err = parseResponse([]byte(`{"status":"OK","results":{"sunrise":6,"sunset":18}}`))
	assert.Error(t, err)

	_, err = parseResponse([]byte(`not json}`))
	assert.Error(t, err)
}
