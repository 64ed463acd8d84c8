package inverter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/raterudder/zeverrelay/pkg/types"
)

// ErrMalformedInput is returned when the status page doesn't have the expected
// shape.
var ErrMalformedInput = errors.New("malformed inverter data")

// Offsets are the zero-based line numbers of each field on the status page.
type Offsets struct {
	Status int `json:"status"`
	Power  int `json:"power"`
	Energy int `json:"energy"`
}

// DefaultOffsets matches current Zeverlution firmware.
var DefaultOffsets = Offsets{Status: 12, Power: 10, Energy: 11}

// LegacyOffsets matches older firmware which reports status earlier on the
// page.
var LegacyOffsets = Offsets{Status: 7, Power: 10, Energy: 11}

func (o Offsets) validate() error {
	if o.Status < 0 || o.Power < 0 || o.Energy < 0 {
		return fmt.Errorf("line offsets cannot be negative: %+v", o)
	}
	return nil
}

// Parse extracts a reading from the raw status page. The reading is stamped
// with now in loc, never with anything from the page.
func Parse(raw string, now time.Time, loc *time.Location, offsets Offsets) (types.Reading, error) {
	lines := strings.Split(raw, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}

	line := func(name string, idx int) (string, error) {
		if idx < 0 || idx >= len(lines) {
			return "", fmt.Errorf("%w: missing %s on line %d, page has %d lines", ErrMalformedInput, name, idx, len(lines))
		}
		return lines[idx], nil
	}

	status, err := line("status", offsets.Status)
	if err != nil {
		return types.Reading{}, err
	}
	if status == "" {
		return types.Reading{}, fmt.Errorf("%w: empty status on line %d", ErrMalformedInput, offsets.Status)
	}

	powerStr, err := line("power", offsets.Power)
	if err != nil {
		return types.Reading{}, err
	}
	power, err := strconv.Atoi(powerStr)
	if err != nil {
		return types.Reading{}, fmt.Errorf("%w: invalid power %q", ErrMalformedInput, powerStr)
	}
	if power < 0 {
		return types.Reading{}, fmt.Errorf("%w: negative power %d", ErrMalformedInput, power)
	}

	energyStr, err := line("energy", offsets.Energy)
	if err != nil {
		return types.Reading{}, err
	}
	energy, err := EnergyTodayWh(energyStr)
	if err != nil {
		return types.Reading{}, err
	}

	return types.NewReading(now, loc, status, power, energy), nil
}

// CorrectEnergyToday fixes the device's habit of dropping the leading zero of
// the fractional kWh, so "12.5" really means 12.05 kWh. A fractional part whose
// integer value is below ten gets one zero prepended.
func CorrectEnergyToday(kwh string) (string, error) {
	whole, frac, hasFrac := strings.Cut(kwh, ".")
	if !isDigits(whole) || (hasFrac && !isDigits(frac)) {
		return "", fmt.Errorf("%w: invalid energy %q", ErrMalformedInput, kwh)
	}
	if !hasFrac {
		return kwh, nil
	}
	n, err := strconv.Atoi(frac)
	if err != nil {
		return "", fmt.Errorf("%w: invalid energy %q", ErrMalformedInput, kwh)
	}
	if n < 10 {
		frac = "0" + frac
	}
	return whole + "." + frac, nil
}

// EnergyTodayWh corrects kwh and converts it to whole watt-hours, truncating
// anything below one Wh.
func EnergyTodayWh(kwh string) (int, error) {
	corrected, err := CorrectEnergyToday(kwh)
	if err != nil {
		return 0, err
	}
	whole, frac, _ := strings.Cut(corrected, ".")
	kw, err := strconv.Atoi(whole)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid energy %q", ErrMalformedInput, kwh)
	}
	// the first three fractional digits are the Wh part
	frac = (frac + "000")[:3]
	wh, err := strconv.Atoi(frac)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid energy %q", ErrMalformedInput, kwh)
	}
	return kw*1000 + wh, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
