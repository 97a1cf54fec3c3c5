package mocks

import (
	"context"

	"github.com/USACE/cumulus-geoproc/internal/domain"

	"github.com/stretchr/testify/mock"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyProducts(ctx context.Context, products []domain.Product) (domain.CatalogResponse, error) {
	args := m.Called(ctx, products)
	return args.Get(0).(domain.CatalogResponse), args.Error(1)
}
