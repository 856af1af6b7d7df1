package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marmota-alpina/gostack-desafio-08/internal/cartstore"
	"github.com/marmota-alpina/gostack-desafio-08/internal/domain"
	apperrors "github.com/marmota-alpina/gostack-desafio-08/pkg/errors"
	"github.com/marmota-alpina/gostack-desafio-08/pkg/httputil"
	"github.com/marmota-alpina/gostack-desafio-08/pkg/validator"
)

const (
	maxBodyBytes      = 1 << 20
	streamEventName   = "cart"
	heartbeatInterval = 15 * time.Second
)

// CartView is the cart representation returned by every endpoint.
type CartView struct {
	Items       domain.Products `json:"items"`
	ItemCount   int             `json:"item_count"`
	TotalAmount float64         `json:"total_amount"`
}

func newCartView(p domain.Products) CartView {
	if p == nil {
		p = domain.Products{}
	}
	return CartView{Items: p, ItemCount: p.ItemCount(), TotalAmount: p.TotalAmount()}
}

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	logger *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(logger *slog.Logger) *CartHandler {
	return &CartHandler{logger: logger}
}

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	store, err := cartstore.FromContext(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: newCartView(store.Products())})
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	store, err := cartstore.FromContext(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	products, err := store.Clear(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: newCartView(products)})
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	store, err := cartstore.FromContext(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	var in domain.ItemInput
	if err := validator.DecodeAndValidate(http.MaxBytesReader(w, r.Body, maxBodyBytes), &in); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	products, err := store.AddToCart(r.Context(), in)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: newCartView(products)})
}

// Increment handles POST /api/v1/cart/items/{id}/increment
func (h *CartHandler) Increment(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, (*cartstore.Store).Increment)
}

// Decrement handles POST /api/v1/cart/items/{id}/decrement
func (h *CartHandler) Decrement(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, (*cartstore.Store).Decrement)
}

type adjustFunc func(s *cartstore.Store, ctx context.Context, id string) (domain.Products, error)

// adjust runs a quantity command. Unknown IDs are not an error: the store
// ignores them and the unchanged cart is returned.
func (h *CartHandler) adjust(w http.ResponseWriter, r *http.Request, fn adjustFunc) {
	store, err := cartstore.FromContext(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("item id is required"), h.logger)
		return
	}

	products, err := fn(store, r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: newCartView(products)})
}

// Stream handles GET /api/v1/cart/stream. It sends the current cart and then
// one "cart" event per state change until the client goes away. A slow
// client skips intermediate states but always receives the latest one.
func (h *CartHandler) Stream(w http.ResponseWriter, r *http.Request) {
	store, err := cartstore.FromContext(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, r, apperrors.Internal(fmt.Errorf("response writer does not support streaming")), h.logger)
		return
	}

	updates := make(chan domain.Products, 1)
	unsubscribe := store.Subscribe(func(p domain.Products) {
		// Only the store's writer goroutine sends, so drain-then-send cannot block.
		select {
		case <-updates:
		default:
		}
		updates <- p
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, store.Products()); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case p := <-updates:
			if err := writeEvent(w, p); err != nil {
				h.logger.DebugContext(r.Context(), "cart stream closed", slog.String("error", err.Error()))
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, p domain.Products) error {
	data, err := json.Marshal(newCartView(p))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", streamEventName, data)
	return err
}
