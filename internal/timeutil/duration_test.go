package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"1d", 24 * time.Hour},
		{"2h", 2 * time.Hour},
		{"10m", 10 * time.Minute},
		{"30s", 30 * time.Second},
		{"1d2h3m4s", 26*time.Hour + 3*time.Minute + 4*time.Second},
		{"1.5h", 90 * time.Minute},
		{"90 m", 90 * time.Minute},
		{"10", 10 * time.Second},
		{"2.5", 2500 * time.Millisecond},
		{" 1h ", time.Hour},
		{"1H", time.Hour},
	}
	for _, c := range cases {
		got, err := ParseDuration(c.in)
		assert.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestParseDurationInvalid(t *testing.T) {
	for _, in := range []string{"", "  ", "abc", "1x", "h1", "1h!"} {
		_, err := ParseDuration(in)
		assert.Error(t, err, in)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{-time.Second, "0s"},
		{time.Second, "1s"},
		{time.Minute, "1m"},
		{26*time.Hour + 3*time.Minute + 4*time.Second, "1d2h3m4s"},
		{24 * time.Hour, "1d"},
		{90 * time.Minute, "1h30m"},
		{500 * time.Millisecond, "0s"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, FormatDuration(c.in))
	}
}

func TestDurationRoundTrip(t *testing.T) {
	for _, s := range []string{"1d", "2h30m", "1d2h3m4s", "45s"} {
		d, err := ParseDuration(s)
		assert.NoError(t, err)
		assert.Equal(t, s, FormatDuration(d))
	}
}
