package publish

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	catalogmocks "github.com/USACE/cumulus-geoproc/internal/adapter/catalog/mocks"
	"github.com/USACE/cumulus-geoproc/internal/domain"
	"github.com/USACE/cumulus-geoproc/internal/observability"
	storagemocks "github.com/USACE/cumulus-geoproc/internal/storage/mocks"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testBucket  = "castle-data-develop"
	testBaseKey = "cumulus/products"
)

var validAt = time.Date(2022, 8, 18, 1, 0, 0, 0, time.UTC)

func newTestPublisher(up *storagemocks.MockStorage, n *catalogmocks.MockNotifier) (*Publisher, *observability.Metrics) {
	m := observability.NewMetricsForTesting()
	return NewPublisher(up, n, testBaseKey, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)), m), m
}

func testProducts(n int) []domain.Product {
	products := make([]domain.Product, 0, n)
	for i := range n {
		name := "/tmp/work/qpe." + validAt.Add(time.Duration(i)*time.Hour).Format("20060102_1504") + ".tif"
		products = append(products, domain.NewProduct("nerfc-qpe-01h", name, validAt.Add(time.Duration(i)*time.Hour), nil))
	}
	return products
}

func TestPublish_AllUploaded(t *testing.T) {
	up := new(storagemocks.MockStorage)
	n := new(catalogmocks.MockNotifier)
	p, m := newTestPublisher(up, n)

	products := testProducts(2)
	up.On("Upload", mock.Anything, mock.Anything, testBucket, mock.Anything).Return(nil)
	n.On("NotifyProducts", mock.Anything, mock.MatchedBy(func(batch []domain.Product) bool {
		return len(batch) == 2 &&
			batch[0].File == "cumulus/products/nerfc-qpe-01h/qpe.20220818_0100.tif" &&
			batch[1].File == "cumulus/products/nerfc-qpe-01h/qpe.20220818_0200.tif"
	})).Return(domain.CatalogResponse{StatusCode: 201}, nil).Once()

	responses, err := p.Publish(context.Background(), products, testBucket)
	require.NoError(t, err)
	require.Len(t, responses, 3)
	assert.Equal(t, "cumulus/products/nerfc-qpe-01h/qpe.20220818_0100.tif", responses[0].Key)
	assert.Equal(t, "cumulus/products/nerfc-qpe-01h/qpe.20220818_0200.tif", responses[1].Key)
	require.NotNil(t, responses[2].Upload)
	assert.Equal(t, 201, responses[2].Upload.StatusCode)

	// caller's products keep their local paths
	assert.Equal(t, "/tmp/work/qpe.20220818_0100.tif", products[0].File)

	up.AssertCalled(t, "Upload", mock.Anything, "/tmp/work/qpe.20220818_0100.tif", testBucket, "cumulus/products/nerfc-qpe-01h/qpe.20220818_0100.tif")
	n.AssertExpectations(t)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Uploads.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("success")))
}

func TestPublish_PartialUploadFailure(t *testing.T) {
	tests := []struct {
		name   string
		total  int
		failed []int
	}{
		{"one of three", 3, []int{1}},
		{"first and last of four", 4, []int{0, 3}},
		{"all but one of three", 3, []int{0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := new(storagemocks.MockStorage)
			n := new(catalogmocks.MockNotifier)
			p, m := newTestPublisher(up, n)

			products := testProducts(tt.total)
			failed := make(map[string]bool)
			for _, i := range tt.failed {
				failed[products[i].File] = true
			}
			for _, prod := range products {
				var err error
				if failed[prod.File] {
					err = errors.New("connection reset")
				}
				up.On("Upload", mock.Anything, prod.File, testBucket, mock.Anything).Return(err)
			}
			want := tt.total - len(tt.failed)
			n.On("NotifyProducts", mock.Anything, mock.MatchedBy(func(batch []domain.Product) bool {
				return len(batch) == want
			})).Return(domain.CatalogResponse{StatusCode: 200}, nil).Once()

			responses, err := p.Publish(context.Background(), products, testBucket)
			require.NoError(t, err)
			assert.Len(t, responses, want+1)
			for _, r := range responses[:want] {
				assert.NotEmpty(t, r.Key)
			}
			assert.NotNil(t, responses[want].Upload)
			n.AssertExpectations(t)
			assert.Equal(t, float64(len(tt.failed)), testutil.ToFloat64(m.Uploads.WithLabelValues("error")))
		})
	}
}

func TestPublish_NothingUploadedSkipsNotify(t *testing.T) {
	up := new(storagemocks.MockStorage)
	n := new(catalogmocks.MockNotifier)
	p, _ := newTestPublisher(up, n)

	up.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("denied"))

	responses, err := p.Publish(context.Background(), testProducts(2), testBucket)
	require.NoError(t, err)
	assert.Empty(t, responses)
	n.AssertNotCalled(t, "NotifyProducts", mock.Anything, mock.Anything)
}

func TestPublish_EmptyBatch(t *testing.T) {
	up := new(storagemocks.MockStorage)
	n := new(catalogmocks.MockNotifier)
	p, _ := newTestPublisher(up, n)

	responses, err := p.Publish(context.Background(), nil, testBucket)
	require.NoError(t, err)
	assert.Empty(t, responses)
	up.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPublish_NotifyFailure(t *testing.T) {
	up := new(storagemocks.MockStorage)
	n := new(catalogmocks.MockNotifier)
	p, m := newTestPublisher(up, n)

	up.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	n.On("NotifyProducts", mock.Anything, mock.Anything).Return(domain.CatalogResponse{StatusCode: 500}, errors.New("status 500"))

	responses, err := p.Publish(context.Background(), testProducts(2), testBucket)
	require.ErrorIs(t, err, ErrNotify)
	require.Len(t, responses, 2)
	assert.Nil(t, responses[1].Upload)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("error")))
}

func TestPublish_NotifyHasDeadline(t *testing.T) {
	up := new(storagemocks.MockStorage)
	n := new(catalogmocks.MockNotifier)
	p, _ := newTestPublisher(up, n)

	up.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	n.On("NotifyProducts", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), mock.Anything).Return(domain.CatalogResponse{StatusCode: 200}, nil)

	_, err := p.Publish(context.Background(), testProducts(1), testBucket)
	require.NoError(t, err)
	n.AssertExpectations(t)
}
