package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/raterudder/zeverrelay/pkg/types"
)

// Database archives readings beyond the local CSV log.
type Database interface {
	InsertReading(ctx context.Context, systemID string, reading types.Reading) error
	// GetReadings returns readings with timestamps in [start, end) ordered
	// oldest first.
	GetReadings(ctx context.Context, systemID string, start, end time.Time) ([]types.Reading, error)
	// GetLatestReading returns nil when nothing has been archived.
	GetLatestReading(ctx context.Context, systemID string) (*types.Reading, error)

	Close() error
}

// Configured sets up the Storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "none", "Storage provider used to archive readings (available: none, firestore)")

	var p struct{ Database }

	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "", "none":
			p.Database = Nop{}
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}

// Nop discards readings.
type Nop struct{}

var _ Database = Nop{}

func (Nop) InsertReading(context.Context, string, types.Reading) error { return nil }

func (Nop) GetReadings(context.Context, string, time.Time, time.Time) ([]types.Reading, error) {
	return nil, nil
}

func (Nop) GetLatestReading(context.Context, string) (*types.Reading, error) { return nil, nil }

func (Nop) Close() error { return nil }
