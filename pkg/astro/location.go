package astro

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	// city timezones must load on hosts without a zoneinfo database
	_ "time/tzdata"

	"github.com/raterudder/zeverrelay/pkg/types"
)

// ErrLocationNotFound is returned when a place name isn't in the city table.
var ErrLocationNotFound = errors.New("location not found")

// cities.csv columns: name,region,timezone,latitude,longitude
//
//go:embed cities.csv
var citiesCSV []byte

var (
	citiesOnce sync.Once
	cities     []types.Location
	citiesErr  error
)

func loadCities() ([]types.Location, error) {
	citiesOnce.Do(func() {
		records, err := csv.NewReader(bytes.NewReader(citiesCSV)).ReadAll()
		if err != nil {
			citiesErr = fmt.Errorf("failed to read city table: %w", err)
			return
		}
		for i, rec := range records {
			if len(rec) != 5 {
				citiesErr = fmt.Errorf("city table line %d: expected 5 fields, got %d", i+1, len(rec))
				return
			}
			lat, err := strconv.ParseFloat(rec[3], 64)
			if err != nil {
				citiesErr = fmt.Errorf("city table line %d: invalid latitude: %w", i+1, err)
				return
			}
			lon, err := strconv.ParseFloat(rec[4], 64)
			if err != nil {
				citiesErr = fmt.Errorf("city table line %d: invalid longitude: %w", i+1, err)
				return
			}
			cities = append(cities, types.Location{
				Name:      rec[0],
				Region:    rec[1],
				Timezone:  rec[2],
				Latitude:  lat,
				Longitude: lon,
			})
		}
	})
	return cities, citiesErr
}

// Lookup finds a location by place name. The query is either "Name" or
// "Name, Region" and is matched case-insensitively. When only a name is given
// and it exists in several regions the first entry wins.
func Lookup(query string) (types.Location, error) {
	name, region, _ := strings.Cut(query, ",")
	name = strings.TrimSpace(name)
	region = strings.TrimSpace(region)
	if name == "" {
		return types.Location{}, fmt.Errorf("%w: empty name", ErrLocationNotFound)
	}

	all, err := loadCities()
	if err != nil {
		return types.Location{}, err
	}
	for _, c := range all {
		if !strings.EqualFold(c.Name, name) {
			continue
		}
		if region != "" && !strings.EqualFold(c.Region, region) {
			continue
		}
		return withTimezone(c)
	}
	return types.Location{}, fmt.Errorf("%w: %s", ErrLocationNotFound, query)
}

// FromCoordinates builds a location from explicit coordinates.
func FromCoordinates(lat, lon float64, timezone string) (types.Location, error) {
	if lat < -90 || lat > 90 {
		return types.Location{}, fmt.Errorf("latitude out of range: %f", lat)
	}
	if lon < -180 || lon > 180 {
		return types.Location{}, fmt.Errorf("longitude out of range: %f", lon)
	}
	return withTimezone(types.Location{
		Name:      "custom",
		Timezone:  timezone,
		Latitude:  lat,
		Longitude: lon,
	})
}

func withTimezone(l types.Location) (types.Location, error) {
	tz, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return types.Location{}, fmt.Errorf("failed to load timezone %q: %w", l.Timezone, err)
	}
	l.TZ = tz
	return l, nil
}
