package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/raterudder/zeverrelay/pkg/astro"
	"github.com/raterudder/zeverrelay/pkg/log"
	"github.com/raterudder/zeverrelay/pkg/storage"
	"github.com/raterudder/zeverrelay/pkg/types"
)

func main() {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	}
	projectID := lflag.String("firestore-project-id", "zeverrelay-dev", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	systemID := lflag.String("system-id", "1", "PVOutput system id to seed readings for")
	place := lflag.String("location", "Melbourne", "Place name used to work out daylight hours")
	interval := lflag.Duration("interval", 5*time.Minute, "Time between seeded readings")
	lflag.Configure()

	ctx := context.Background()

	loc, err := astro.Lookup(*place)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to resolve location", "error", err)
		os.Exit(1)
	}
	gate := astro.NewGate(loc)

	s := storage.NewFirestore(*projectID, *database)
	if err := s.Init(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to init firestore", "error", err)
		os.Exit(1)
	}
	defer s.Close()

	log.Ctx(ctx).InfoContext(ctx, "seeding mock readings")

	// Use a new random source
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	const (
		PeakWatts = 3000.0
		// fraction of peak lost to passing clouds
		CloudJitter = 0.15
	)

	now := time.Now().In(loc.TZ)
	sunrise, sunset := gate.SunTimes(now)
	if sunrise.IsZero() {
		log.Ctx(ctx).ErrorContext(ctx, "sun does not rise today at this location")
		os.Exit(1)
	}
	if now.Before(sunset) {
		sunset = now
	}
	noon := sunrise.Add(sunset.Sub(sunrise) / 2)
	halfDay := noon.Sub(sunrise).Hours()

	var energyWh float64
	for t := sunrise.Add(*interval).Truncate(*interval); t.Before(sunset); t = t.Add(*interval) {
		// bell curve centred on solar noon
		dist := t.Sub(noon).Hours() / halfDay
		watts := PeakWatts * math.Exp(-(dist*dist)*3)
		watts -= watts * CloudJitter * rng.Float64()
		energyWh += watts * interval.Hours()

		status := "Normal"
		if rng.Intn(200) == 0 {
			status = "Error"
		}
		reading := types.NewReading(t, loc.TZ, status, int(watts), int(energyWh))
		if err := s.InsertReading(ctx, *systemID, reading); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to seed reading", "error", err)
			os.Exit(1)
		}

		fmt.Printf("Seeded reading at %s: %s %dW %dWh\n",
			t.Format(time.Kitchen), reading.Status, reading.PowerWatts, reading.EnergyTodayWh)
	}

	log.Ctx(ctx).InfoContext(ctx, "seeded mock readings successfully")
}
