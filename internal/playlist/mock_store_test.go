package playlist

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) ListTracks(ctx context.Context) ([]Track, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Track), args.Error(1)
}

func (m *MockStore) GetTrack(ctx context.Context, id string) (Track, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Track), args.Error(1)
}

func (m *MockStore) ListItems(ctx context.Context) ([]Item, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Item), args.Error(1)
}

func (m *MockStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	args := m.Called(ctx, fn)
	return args.Error(0)
}

func (m *MockStore) Seed(ctx context.Context, tracks []Track, items []Item) error {
	args := m.Called(ctx, tracks, items)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, ev Event) {
	m.Called(ctx, ev)
}
