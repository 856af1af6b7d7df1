package http

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/types/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/marmota-alpina/gostack-desafio-08/internal/cartstore"
	"github.com/marmota-alpina/gostack-desafio-08/internal/domain"
	"github.com/marmota-alpina/gostack-desafio-08/internal/repository"
	"github.com/marmota-alpina/gostack-desafio-08/pkg/health"
	"github.com/marmota-alpina/gostack-desafio-08/pkg/httputil"
	"github.com/marmota-alpina/gostack-desafio-08/pkg/logger"
)

// ============================================================================
// Mock snapshot repository
// ============================================================================

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) Load(ctx context.Context) result.Result[repository.Snapshot] {
	args := m.Called(ctx)
	return args.Get(0).(result.Result[repository.Snapshot])
}

func (m *mockRepository) Save(ctx context.Context, products domain.Products) error {
	args := m.Called(ctx, products)
	return args.Error(0)
}

func (m *mockRepository) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// ============================================================================
// Test helpers
// ============================================================================

func newTestProvider(t *testing.T, stored domain.Products) (*cartstore.Provider, *mockRepository) {
	t.Helper()
	repo := &mockRepository{}
	repo.On("Load", mock.Anything).Return(result.Ok(repository.Snapshot{Products: stored, Found: stored != nil}))
	repo.On("Save", mock.Anything, mock.Anything).Return(nil).Maybe()
	repo.On("Clear", mock.Anything).Return(nil).Maybe()

	p := cartstore.NewProvider(context.Background(), cartstore.New(repo, cartstore.WithLogger(logger.Discard())))
	t.Cleanup(func() { _ = p.Close() })

	select {
	case <-p.Store().Hydrated():
	case <-time.After(2 * time.Second):
		t.Fatal("store never hydrated")
	}
	return p, repo
}

func newTestRouter(t *testing.T, stored domain.Products) (http.Handler, *cartstore.Provider, *mockRepository) {
	t.Helper()
	p, repo := newTestProvider(t, stored)
	return NewRouter(p, health.NewHandler(), logger.Discard()), p, repo
}

type cartEnvelope struct {
	Data  CartView                `json:"data"`
	Error *httputil.ErrorResponse `json:"error"`
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, cartEnvelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env cartEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

// ============================================================================
// Tests
// ============================================================================

func TestGetCart_Hydrated(t *testing.T) {
	h, _, _ := newTestRouter(t, domain.Products{{ID: "a", Title: "T", ImageURL: "u", Price: 10, Quantity: 3}})

	rec, env := do(t, h, http.MethodGet, "/api/v1/cart", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, env.Data.Items, 1)
	assert.Equal(t, 3, env.Data.Items[0].Quantity)
	assert.Equal(t, 3, env.Data.ItemCount)
	assert.InDelta(t, 30.0, env.Data.TotalAmount, 0.0001)
}

func TestGetCart_EmptyEncodesItemsArray(t *testing.T) {
	h, _, _ := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"items":[],"item_count":0,"total_amount":0}}`, rec.Body.String())
}

func TestAddItem_Flow(t *testing.T) {
	h, p, repo := newTestRouter(t, nil)

	_, env := do(t, h, http.MethodPost, "/api/v1/cart/items", `{"id":"a","title":"T","image_url":"u","price":10}`)
	require.Len(t, env.Data.Items, 1)
	assert.Equal(t, 1, env.Data.Items[0].Quantity)

	_, env = do(t, h, http.MethodPost, "/api/v1/cart/items", `{"id":"a","title":"T","image_url":"u","price":10}`)
	assert.Equal(t, 2, env.Data.Items[0].Quantity)

	_, env = do(t, h, http.MethodPost, "/api/v1/cart/items/a/increment", "")
	assert.Equal(t, 3, env.Data.Items[0].Quantity)

	rec, env := do(t, h, http.MethodPost, "/api/v1/cart/items/a/decrement", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, env.Data.Items[0].Quantity)

	require.NoError(t, p.Close())
	repo.AssertNumberOfCalls(t, "Save", 4)
	repo.AssertCalled(t, "Save", mock.Anything, domain.Products{{ID: "a", Title: "T", ImageURL: "u", Price: 10, Quantity: 2}})
}

func TestIncrement_UnknownIDReturnsUnchangedCart(t *testing.T) {
	h, p, repo := newTestRouter(t, domain.Products{{ID: "a", Quantity: 1}})

	rec, env := do(t, h, http.MethodPost, "/api/v1/cart/items/missing/increment", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, env.Data.Items, 1)
	assert.Equal(t, 1, env.Data.Items[0].Quantity)

	require.NoError(t, p.Close())
	repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestClearCart(t *testing.T) {
	h, p, repo := newTestRouter(t, domain.Products{{ID: "a", Title: "T", Price: 10, Quantity: 2}})

	rec, env := do(t, h, http.MethodDelete, "/api/v1/cart", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, env.Data.Items)
	assert.Equal(t, 0, env.Data.ItemCount)

	require.NoError(t, p.Close())
	repo.AssertNumberOfCalls(t, "Clear", 1)
	repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestAddItem_ValidationError(t *testing.T) {
	h, _, _ := newTestRouter(t, nil)

	rec, env := do(t, h, http.MethodPost, "/api/v1/cart/items", `{"title":"T","price":-1}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Contains(t, env.Error.Fields, "id")
	assert.Contains(t, env.Error.Fields, "price")
}

func TestAddItem_MalformedBody(t *testing.T) {
	h, _, _ := newTestRouter(t, nil)

	rec, env := do(t, h, http.MethodPost, "/api/v1/cart/items", `{"id":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_INPUT", env.Error.Code)
}

func TestAddItem_WrongContentType(t *testing.T) {
	h, _, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(`id=a`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestHandlers_OutsideProvider(t *testing.T) {
	handler := NewCartHandler(logger.Discard())

	tests := []struct {
		name string
		fn   http.HandlerFunc
		req  *http.Request
	}{
		{"get", handler.GetCart, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)},
		{"add", handler.AddItem, httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(`{"id":"a"}`))},
		{"increment", handler.Increment, httptest.NewRequest(http.MethodPost, "/api/v1/cart/items/a/increment", nil)},
		{"stream", handler.Stream, httptest.NewRequest(http.MethodGet, "/api/v1/cart/stream", nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.fn(rec, tt.req)

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			var env cartEnvelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			require.NotNil(t, env.Error)
			assert.Equal(t, "CONFIGURATION_ERROR", env.Error.Code)
			assert.Equal(t, "cart store must be used within a Provider", env.Error.Message)
		})
	}
}

func TestHandlers_StoreClosed(t *testing.T) {
	h, p, _ := newTestRouter(t, nil)
	require.NoError(t, p.Close())

	rec, env := do(t, h, http.MethodPost, "/api/v1/cart/items", `{"id":"a","price":1}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "CONFIGURATION_ERROR", env.Error.Code)
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	h, _, _ := newTestRouter(t, nil)

	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestStream_SendsCurrentStateThenUpdates(t *testing.T) {
	h, p, _ := newTestRouter(t, domain.Products{{ID: "a", Title: "T", Price: 1, Quantity: 1}})
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/cart/stream", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan CartView, 4)
	go readEvents(resp.Body, events)

	first := nextEvent(t, events)
	require.Len(t, first.Items, 1)
	assert.Equal(t, 1, first.Items[0].Quantity)

	_, err = p.Store().Increment(context.Background(), "a")
	require.NoError(t, err)

	second := nextEvent(t, events)
	assert.Equal(t, 2, second.Items[0].Quantity)
}

func readEvents(body io.Reader, out chan<- CartView) {
	defer close(out)
	scanner := bufio.NewScanner(body)
	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: ") && event == streamEventName:
			var view CartView
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &view); err == nil {
				out <- view
			}
		}
	}
}

func nextEvent(t *testing.T, events <-chan CartView) CartView {
	t.Helper()
	select {
	case v, ok := <-events:
		require.True(t, ok, "stream ended early")
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return CartView{}
	}
}
