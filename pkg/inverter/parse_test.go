package inverter

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// statusPage builds a status page in the layout of current firmware.
func statusPage(power, energy, status string) string {
	lines := []string{
		"1",
		"1",
		"EAB961234567",
		"ABCDEFGHIJKLMNOP",
		"M11",
		"17A31-727R+17829-719R",
		"14:05 15/01/2026",
		"1",
		"1",
		"ZS150045138C0104",
		power,
		energy,
		status,
	}
	return strings.Join(lines, "\n")
}

func TestCorrectEnergyToday(t *testing.T) {
	tests := []struct {
		in   string
		want string
		wh   int
	}{
		{"12.5", "12.05", 12050},
		{"4.3", "4.03", 4030},
		{"12.75", "12.75", 12750},
		{"12.05", "12.005", 12005},
		{"0.0", "0.00", 0},
		{"7.10", "7.10", 7100},
		{"1.2345", "1.2345", 1234},
		{"15", "15", 15000},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CorrectEnergyToday(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			wh, err := EnergyTodayWh(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.wh, wh)
		})
	}

	t.Run("malformed", func(t *testing.T) {
		for _, in := range []string{"", ".", "abc", "1.x", "-1.5", "1.", ".5", "1.2.3"} {
			_, err := CorrectEnergyToday(in)
			assert.ErrorIs(t, err, ErrMalformedInput, in)
		}
	})
}

func TestParse(t *testing.T) {
	loc, err := time.LoadLocation("Australia/Melbourne")
	require.NoError(t, err)
	now := time.Date(2026, 1, 15, 2, 5, 0, 0, time.UTC)

	t.Run("current firmware", func(t *testing.T) {
		r, err := Parse(statusPage("812", "4.3", "Normal"), now, loc, DefaultOffsets)
		require.NoError(t, err)
		assert.Equal(t, "20260115", r.Date)
		assert.Equal(t, "13:05", r.Time)
		assert.Equal(t, "Normal", r.Status)
		assert.Equal(t, 812, r.PowerWatts)
		assert.Equal(t, 4030, r.EnergyTodayWh)
	})

	t.Run("crlf and padding", func(t *testing.T) {
		raw := strings.ReplaceAll(statusPage(" 812 ", "12.5\t", "Normal"), "\n", "\r\n")
		r, err := Parse(raw, now, loc, DefaultOffsets)
		require.NoError(t, err)
		assert.Equal(t, 812, r.PowerWatts)
		assert.Equal(t, 12050, r.EnergyTodayWh)
		assert.Equal(t, "Normal", r.Status)
	})

	t.Run("legacy firmware", func(t *testing.T) {
		lines := strings.Split(statusPage("0", "0.0", "ignored"), "\n")
		lines[7] = "Error"
		r, err := Parse(strings.Join(lines, "\n"), now, loc, LegacyOffsets)
		require.NoError(t, err)
		assert.Equal(t, "Error", r.Status)
		assert.True(t, r.IsError())
	})

	t.Run("timestamp ignores page clock", func(t *testing.T) {
		later := now.Add(3 * time.Hour)
		r, err := Parse(statusPage("812", "4.3", "Normal"), later, loc, DefaultOffsets)
		require.NoError(t, err)
		assert.Equal(t, "16:05", r.Time)
		assert.True(t, later.Equal(r.Timestamp))
	})

	t.Run("short page", func(t *testing.T) {
		_, err := Parse("1\n2\n3", now, loc, DefaultOffsets)
		assert.ErrorIs(t, err, ErrMalformedInput)
	})

	t.Run("bad power", func(t *testing.T) {
		_, err := Parse(statusPage("lots", "4.3", "Normal"), now, loc, DefaultOffsets)
		assert.ErrorIs(t, err, ErrMalformedInput)

		_, err = Parse(statusPage("-5", "4.3", "Normal"), now, loc, DefaultOffsets)
		assert.ErrorIs(t, err, ErrMalformedInput)
	})

	t.Run("bad energy", func(t *testing.T) {
		_, err := Parse(statusPage("812", "n/a", "Normal"), now, loc, DefaultOffsets)
		assert.ErrorIs(t, err, ErrMalformedInput)
	})

	t.Run("empty status", func(t *testing.T) {
		_, err := Parse(statusPage("812", "4.3", ""), now, loc, DefaultOffsets)
		assert.ErrorIs(t, err, ErrMalformedInput)
	})
}
