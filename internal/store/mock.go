package store

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockRecordStore struct {
	mock.Mock
}

func (m *MockRecordStore) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if val, ok := args.Get(0).([]byte); ok {
		return val, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRecordStore) Set(ctx context.Context, key string, value []byte) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockRecordStore) Append(ctx context.Context, key string, element []byte) error {
	args := m.Called(ctx, key, element)
	return args.Error(0)
}

func (m *MockRecordStore) GetList(ctx context.Context, key string) ([][]byte, error) {
	args := m.Called(ctx, key)
	if elements, ok := args.Get(0).([][]byte); ok {
		return elements, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRecordStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockRecordStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
