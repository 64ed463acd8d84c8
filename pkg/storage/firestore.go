package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/raterudder/zeverrelay/pkg/log"
	"github.com/raterudder/zeverrelay/pkg/types"
)

// FirestoreProvider implements the Database interface using Google Cloud
// Firestore. Readings live under systems/<system id>/readings keyed by their
// RFC3339 timestamp.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

var _ Database = (*FirestoreProvider)(nil)

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// NewFirestore returns a provider for the given project and database. Init
// must be called before use.
func NewFirestore(projectID, database string) *FirestoreProvider {
	return &FirestoreProvider{projectID: projectID, database: database}
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	if f.projectID == "" && os.Getenv("FIRESTORE_EMULATOR_HOST") != "" {
		return fmt.Errorf("firestore-project-id is required with the emulator")
	}
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) readings(systemID string) (*firestore.CollectionRef, error) {
	if systemID == "" {
		return nil, fmt.Errorf("systemID cannot be empty")
	}
	return f.client.Collection("systems").Doc(systemID).Collection("readings"), nil
}

// InsertReading stores a reading. A second reading with the same second
// replaces the first.
func (f *FirestoreProvider) InsertReading(ctx context.Context, systemID string, reading types.Reading) error {
	if reading.Timestamp.IsZero() {
		return fmt.Errorf("reading missing timestamp")
	}
	jsonBytes, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	coll, err := f.readings(systemID)
	if err != nil {
		return err
	}
	// Use RFC3339 as document ID for lexicographic ordering and efficient range queries
	docID := reading.Timestamp.UTC().Format(time.RFC3339)
	_, err = coll.Doc(docID).Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"timestamp": reading.Timestamp,
		"powerW":    reading.PowerWatts,
		"energyWh":  reading.EnergyTodayWh,
	})
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

// GetReadings retrieves readings within the specified time range.
func (f *FirestoreProvider) GetReadings(ctx context.Context, systemID string, start, end time.Time) ([]types.Reading, error) {
	coll, err := f.readings(systemID)
	if err != nil {
		return nil, err
	}
	iter := coll.
		Where(firestore.DocumentID, ">=", coll.Doc(start.UTC().Format(time.RFC3339))).
		Where(firestore.DocumentID, "<", coll.Doc(end.UTC().Format(time.RFC3339))).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var readings []types.Reading
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating readings: %w", err)
		}
		r, err := decodeReading(ctx, systemID, doc)
		if err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, nil
}

// GetLatestReading retrieves the most recently archived reading.
func (f *FirestoreProvider) GetLatestReading(ctx context.Context, systemID string) (*types.Reading, error) {
	coll, err := f.readings(systemID)
	if err != nil {
		return nil, err
	}
	iter := coll.
		OrderBy("timestamp", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done || status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest reading doc: %w", err)
	}
	r, err := decodeReading(ctx, systemID, doc)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func decodeReading(ctx context.Context, systemID string, doc *firestore.DocumentSnapshot) (types.Reading, error) {
	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "reading doc missing json", slog.String("docID", doc.Ref.ID), slog.String("systemID", systemID), slog.Any("err", err))
		return types.Reading{}, fmt.Errorf("reading doc %s missing 'json' field: %w", doc.Ref.ID, err)
	}

	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "reading doc json not string", slog.String("docID", doc.Ref.ID), slog.String("systemID", systemID))
		return types.Reading{}, fmt.Errorf("reading doc %s 'json' field is not string", doc.Ref.ID)
	}

	var r types.Reading
	if err := json.Unmarshal([]byte(jsonStr), &r); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal reading", slog.String("docID", doc.Ref.ID), slog.String("systemID", systemID), slog.Any("err", err))
		return types.Reading{}, fmt.Errorf("failed to unmarshal reading (id=%s): %w", doc.Ref.ID, err)
	}
	return r, nil
}
