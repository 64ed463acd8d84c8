package astro

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/nathan-osman/go-sunrise"

	"github.com/raterudder/zeverrelay/pkg/config"
	"github.com/raterudder/zeverrelay/pkg/types"
)

// Gate answers whether the sun is up at the configured location.
type Gate struct {
	location types.Location

	cfg       *config.File
	query     string
	latitude  string
	longitude string
	timezone  string
}

// NewGate returns a Gate for an already resolved location.
func NewGate(loc types.Location) *Gate {
	if loc.TZ == nil {
		loc.TZ = time.UTC
	}
	return &Gate{location: loc}
}

// Configured registers the location flags. The returned Gate is usable once
// Init has succeeded.
func Configured(cfg *config.File) *Gate {
	g := &Gate{cfg: cfg}
	query := lflag.String("location", "", "Place name of the installation, e.g. \"Melbourne\" or \"Perth, Australia\"")
	latitude := lflag.String("latitude", "", "Latitude of the installation, overrides --location")
	longitude := lflag.String("longitude", "", "Longitude of the installation, overrides --location")
	timezone := lflag.String("timezone", "", "IANA timezone used with --latitude and --longitude")

	lflag.Do(func() {
		g.query = *query
		g.latitude = *latitude
		g.longitude = *longitude
		g.timezone = *timezone
	})

	return g
}

// Init resolves the location from the flags and the config file. Explicit
// coordinates win over a place name.
func (g *Gate) Init() error {
	if g.cfg == nil {
		g.cfg = &config.File{}
	}

	lat, hasLat, err := coordinate(g.latitude, g.cfg.Latitude)
	if err != nil {
		return config.Fatalf("invalid latitude: %v", err)
	}
	lon, hasLon, err := coordinate(g.longitude, g.cfg.Longitude)
	if err != nil {
		return config.Fatalf("invalid longitude: %v", err)
	}

	if hasLat || hasLon {
		if !hasLat || !hasLon {
			return config.Fatalf("latitude and longitude must be set together")
		}
		tz := g.timezone
		if tz == "" {
			tz = g.cfg.Timezone
		}
		if tz == "" {
			return config.Fatalf("timezone is required with latitude and longitude")
		}
		loc, err := FromCoordinates(lat, lon, tz)
		if err != nil {
			return config.Fatalf("%v", err)
		}
		g.location = loc
		return nil
	}

	query := g.query
	if query == "" {
		query = g.cfg.Location
	}
	if query == "" {
		return config.Fatalf("location is not set")
	}
	loc, err := Lookup(query)
	if err != nil {
		return config.Fatalf("failed to resolve location %q: %v", query, err)
	}
	g.location = loc
	return nil
}

func coordinate(flagValue string, fileValue *float64) (float64, bool, error) {
	flagValue = strings.TrimSpace(flagValue)
	if flagValue != "" {
		v, err := strconv.ParseFloat(flagValue, 64)
		if err != nil {
			return 0, false, fmt.Errorf("parse %q: %w", flagValue, err)
		}
		return v, true, nil
	}
	if fileValue != nil {
		return *fileValue, true, nil
	}
	return 0, false, nil
}

// Location returns the resolved location.
func (g *Gate) Location() types.Location {
	return g.location
}

// SunTimes returns sunrise and sunset for now's calendar date at the location,
// both in the location's timezone. Both are zero when the sun doesn't rise or
// set that day.
func (g *Gate) SunTimes(now time.Time) (time.Time, time.Time) {
	local := now.In(g.location.TZ)
	rise, set := sunrise.SunriseSunset(
		g.location.Latitude, g.location.Longitude,
		local.Year(), local.Month(), local.Day(),
	)
	if rise.IsZero() || set.IsZero() {
		return time.Time{}, time.Time{}
	}
	return rise.In(g.location.TZ), set.In(g.location.TZ)
}

// IsDaylight reports whether now is strictly between sunrise and sunset.
func (g *Gate) IsDaylight(now time.Time) bool {
	rise, set := g.SunTimes(now)
	if rise.IsZero() {
		return false
	}
	return now.After(rise) && now.Before(set)
}

// NextSunrise returns the first sunrise after now. It looks ahead a year
// before giving up and returning the zero time.
func (g *Gate) NextSunrise(now time.Time) time.Time {
	day := now
	for range 366 {
		rise, _ := g.SunTimes(day)
		if !rise.IsZero() && rise.After(now) {
			return rise
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}
}
