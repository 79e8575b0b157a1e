// Package handler provides the storefront pages, the JSON API and the cart
// badge socket.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/flexishop/internal/cart"
	"github.com/vyrodovalexey/flexishop/internal/catalog"
	"github.com/vyrodovalexey/flexishop/internal/model"
	"github.com/vyrodovalexey/flexishop/internal/session"
	"github.com/vyrodovalexey/flexishop/internal/store"
)

// Version is the application version.
const Version = "1.0.0"

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Status   string `json:"status"`
	Products int    `json:"products"`
	Reason   string `json:"reason,omitempty"`
}

// CartNotifier is told the new item count after every cart mutation.
type CartNotifier interface {
	Notify(sessionID string, count int)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, int) {}

// Shop holds the domain services the handlers share.
type Shop struct {
	catalog  *catalog.Store
	kv       store.Store
	sessions *session.Manager
	locker   *session.Locker
	notifier CartNotifier
	logger   *zap.Logger
}

// NewShop wires the catalog, the slot store and the session services. A nil
// notifier drops badge updates.
func NewShop(
	cat *catalog.Store,
	kv store.Store,
	sessions *session.Manager,
	locker *session.Locker,
	notifier CartNotifier,
	logger *zap.Logger,
) *Shop {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Shop{
		catalog:  cat,
		kv:       kv,
		sessions: sessions,
		locker:   locker,
		notifier: notifier,
		logger:   logger,
	}
}

// SetNotifier replaces the badge notifier.
func (s *Shop) SetNotifier(n CartNotifier) {
	if n == nil {
		n = nopNotifier{}
	}
	s.notifier = n
}

// Catalog returns the shared catalog.
func (s *Shop) Catalog() *catalog.Store {
	return s.catalog
}

// loadCart reads the session's cart. Callers that mutate must hold the
// session lock.
func (s *Shop) loadCart(ctx context.Context, sessionID string) *cart.Cart {
	c := cart.Load(ctx, store.NewSlot(s.kv, sessionID, store.CartSlot), s.logger)
	c.OnChange(func(count int) {
		s.notifier.Notify(sessionID, count)
	})
	return c
}

// withCart runs fn on the session's cart under the session lock.
func (s *Shop) withCart(ctx context.Context, sessionID string, fn func(c *cart.Cart)) {
	unlock := s.locker.Lock(sessionID)
	defer unlock()

	fn(s.loadCart(ctx, sessionID))
}

// CartCount returns the badge value for the session.
func (s *Shop) CartCount(ctx context.Context, sessionID string) int {
	return s.loadCart(ctx, sessionID).ItemCount()
}

// view filters and sorts the catalog for one request.
func (s *Shop) view(criteria model.FilterCriteria, sort model.SortKey) []model.Product {
	v := s.catalog.NewView()
	v.ApplyFilter(criteria)
	v.ApplySort(sort)
	return v.Products()
}

// criteriaFrom reads the catalog controls from a query string.
func criteriaFrom(q url.Values) (model.FilterCriteria, model.SortKey) {
	return model.FilterCriteria{
		SearchTerm: q.Get("q"),
		Category:   q.Get("category"),
		PriceRange: model.ParsePriceRange(q.Get("price")),
	}, model.ParseSortKey(q.Get("sort"))
}

// parseID reads a positive product id.
func parseID(raw string) (int, bool) {
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError writes an error response with the given status code and message.
func writeError(w http.ResponseWriter, logger *zap.Logger, status int, message string) {
	writeJSON(w, logger, status, model.ErrorResponse{
		Code:    status,
		Message: message,
	})
}
