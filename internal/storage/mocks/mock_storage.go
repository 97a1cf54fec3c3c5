package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Upload(ctx context.Context, local, bucket, key string) error {
	args := m.Called(ctx, local, bucket, key)
	return args.Error(0)
}

func (m *MockStorage) Download(ctx context.Context, bucket, key, dir string) (string, error) {
	args := m.Called(ctx, bucket, key, dir)
	if f, ok := args.Get(0).(func(context.Context, string, string, string) string); ok {
		return f(ctx, bucket, key, dir), args.Error(1)
	}
	return args.String(0), args.Error(1)
}
