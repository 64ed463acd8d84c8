package storagemock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/raterudder/zeverrelay/pkg/storage"
	"github.com/raterudder/zeverrelay/pkg/types"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) InsertReading(ctx context.Context, systemID string, reading types.Reading) error {
	args := m.Called(ctx, systemID, reading)
	return args.Error(0)
}

func (m *MockDatabase) GetReadings(ctx context.Context, systemID string, start, end time.Time) ([]types.Reading, error) {
	args := m.Called(ctx, systemID, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Reading), args.Error(1)
}

func (m *MockDatabase) GetLatestReading(ctx context.Context, systemID string) (*types.Reading, error) {
	args := m.Called(ctx, systemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Reading), args.Error(1)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
