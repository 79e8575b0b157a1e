package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/flexishop/internal/cart"
	"github.com/vyrodovalexey/flexishop/internal/middleware"
	"github.com/vyrodovalexey/flexishop/internal/model"
	"github.com/vyrodovalexey/flexishop/internal/session"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// CartResponse is the JSON view of a cart.
type CartResponse struct {
	Items   []model.CartLineItem `json:"items"`
	Summary cart.OrderSummary    `json:"summary"`
}

// SessionResponse is the JSON view of the signed-in user.
type SessionResponse struct {
	Greeting string             `json:"greeting"`
	User     *model.UserSession `json:"user,omitempty"`
}

// AddItemRequest is the body of POST /api/v1/cart/items.
type AddItemRequest struct {
	ID       int `json:"id"`
	Quantity int `json:"quantity"`
}

// SetQuantityRequest is the body of PUT /api/v1/cart/items/{id}.
type SetQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// SignInRequest is the body of POST /api/v1/session/signin.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RESTHandler serves the JSON API.
type RESTHandler struct {
	shop   *Shop
	logger *zap.Logger
}

// NewRESTHandler creates a new RESTHandler instance.
func NewRESTHandler(shop *Shop, logger *zap.Logger) *RESTHandler {
	return &RESTHandler{
		shop:   shop,
		logger: logger,
	}
}

// RegisterRoutes registers the REST API routes with the router.
func (h *RESTHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/ready", h.ReadyCheck).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/products", h.ListProducts).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", h.GetProduct).Methods(http.MethodGet)
	api.HandleFunc("/categories", h.ListCategories).Methods(http.MethodGet)
	api.HandleFunc("/cart", h.GetCart).Methods(http.MethodGet)
	api.HandleFunc("/cart", h.ClearCart).Methods(http.MethodDelete)
	api.HandleFunc("/cart/summary", h.GetSummary).Methods(http.MethodGet)
	api.HandleFunc("/cart/items", h.AddItem).Methods(http.MethodPost)
	api.HandleFunc("/cart/items/{id}", h.SetQuantity).Methods(http.MethodPut)
	api.HandleFunc("/cart/items/{id}", h.RemoveItem).Methods(http.MethodDelete)
	api.HandleFunc("/session", h.GetSession).Methods(http.MethodGet)
	api.HandleFunc("/session", h.SignOut).Methods(http.MethodDelete)
	api.HandleFunc("/session/signin", h.SignIn).Methods(http.MethodPost)
	api.HandleFunc("/session/signup", h.SignUp).Methods(http.MethodPost)
}

// HealthCheck handles GET /health requests.
func (h *RESTHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(HealthResponse{
		Status:  "healthy",
		Version: Version,
	}))
}

// ReadyCheck reports not_ready while the catalog is unavailable.
func (h *RESTHandler) ReadyCheck(w http.ResponseWriter, _ *http.Request) {
	cat := h.shop.Catalog()
	if !cat.Available() {
		reason := "catalog unavailable"
		if err := cat.Err(); err != nil {
			reason = err.Error()
		}
		h.writeJSON(w, http.StatusServiceUnavailable, model.NewSuccessResponse(ReadyResponse{
			Status: "not_ready",
			Reason: reason,
		}))
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(ReadyResponse{
		Status:   "ready",
		Products: cat.Len(),
	}))
}

// ListProducts handles GET /api/v1/products?q=&category=&price=&sort=.
func (h *RESTHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	criteria, sort := criteriaFrom(r.URL.Query())
	products := h.shop.view(criteria, sort)

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(products))
}

// GetProduct handles GET /api/v1/products/{id}.
func (h *RESTHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(mux.Vars(r)["id"])
	if !ok {
		h.writeError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	p, found := h.shop.Catalog().Product(id)
	if !found {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(p))
}

// ListCategories handles GET /api/v1/categories.
func (h *RESTHandler) ListCategories(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(h.shop.Catalog().Categories()))
}

// GetCart handles GET /api/v1/cart.
func (h *RESTHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	c := h.shop.loadCart(r.Context(), middleware.SessionID(r.Context()))
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(cartResponse(c)))
}

// GetSummary handles GET /api/v1/cart/summary.
func (h *RESTHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	c := h.shop.loadCart(r.Context(), middleware.SessionID(r.Context()))
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(c.Summary()))
}

// quantityRangeMessage is returned for quantities outside 1..cart.MaxLineQuantity.
var quantityRangeMessage = fmt.Sprintf("quantity must be between 1 and %d", cart.MaxLineQuantity)

// AddItem handles POST /api/v1/cart/items. A missing quantity adds one. An
// addition that would push the line past cart.MaxLineQuantity is rejected
// and leaves the cart untouched.
func (h *RESTHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var input AddItemRequest
	if !h.decode(w, r, &input) {
		return
	}
	if input.Quantity == 0 {
		input.Quantity = 1
	}
	if input.Quantity < 0 || input.Quantity > cart.MaxLineQuantity {
		h.writeError(w, http.StatusBadRequest, quantityRangeMessage)
		return
	}

	p, found := h.shop.Catalog().Product(input.ID)
	if !found {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	var (
		resp CartResponse
		full bool
	)
	h.shop.withCart(r.Context(), middleware.SessionID(r.Context()), func(c *cart.Cart) {
		if full = input.Quantity > c.Room(p.ID); full {
			return
		}
		c.AddQuantity(r.Context(), p, input.Quantity)
		resp = cartResponse(c)
	})

	if full {
		h.writeError(w, http.StatusBadRequest,
			fmt.Sprintf("a cart line holds at most %d units", cart.MaxLineQuantity))
		return
	}

	h.writeJSON(w, http.StatusCreated, model.NewSuccessResponse(resp))
}

// SetQuantity handles PUT /api/v1/cart/items/{id}. Zero or less removes the
// line; more than cart.MaxLineQuantity is rejected.
func (h *RESTHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(mux.Vars(r)["id"])
	if !ok {
		h.writeError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	var input SetQuantityRequest
	if !h.decode(w, r, &input) {
		return
	}
	if input.Quantity > cart.MaxLineQuantity {
		h.writeError(w, http.StatusBadRequest, quantityRangeMessage)
		return
	}

	var (
		resp  CartResponse
		found bool
	)
	h.shop.withCart(r.Context(), middleware.SessionID(r.Context()), func(c *cart.Cart) {
		if _, found = c.Item(id); found {
			c.SetQuantity(r.Context(), id, input.Quantity)
		}
		resp = cartResponse(c)
	})

	if !found {
		h.writeError(w, http.StatusNotFound, "item not in cart")
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(resp))
}

// RemoveItem handles DELETE /api/v1/cart/items/{id}. Removing an absent item
// is a no-op.
func (h *RESTHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(mux.Vars(r)["id"])
	if !ok {
		h.writeError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	var resp CartResponse
	h.shop.withCart(r.Context(), middleware.SessionID(r.Context()), func(c *cart.Cart) {
		c.RemoveItem(r.Context(), id)
		resp = cartResponse(c)
	})

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(resp))
}

// ClearCart handles DELETE /api/v1/cart.
func (h *RESTHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.shop.withCart(r.Context(), middleware.SessionID(r.Context()), func(c *cart.Cart) {
		c.Clear(r.Context())
	})

	h.writeJSON(w, http.StatusNoContent, nil)
}

// GetSession handles GET /api/v1/session.
func (h *RESTHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	user := h.shop.sessions.Current(r.Context(), middleware.SessionID(r.Context()))
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(sessionResponse(user)))
}

// SignIn handles POST /api/v1/session/signin.
func (h *RESTHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var input SignInRequest
	if !h.decode(w, r, &input) {
		return
	}

	sid := middleware.SessionID(r.Context())
	unlock := h.shop.locker.Lock(sid)
	user, err := h.shop.sessions.SignIn(r.Context(), sid, input.Email, input.Password)
	unlock()
	if err != nil {
		h.handleSessionError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(sessionResponse(user)))
}

// SignUp handles POST /api/v1/session/signup.
func (h *RESTHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var form session.SignUpForm
	if !h.decode(w, r, &form) {
		return
	}

	sid := middleware.SessionID(r.Context())
	unlock := h.shop.locker.Lock(sid)
	user, err := h.shop.sessions.SignUp(r.Context(), sid, form)
	unlock()
	if err != nil {
		h.handleSessionError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, model.NewSuccessResponse(sessionResponse(user)))
}

// SignOut handles DELETE /api/v1/session.
func (h *RESTHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	sid := middleware.SessionID(r.Context())
	unlock := h.shop.locker.Lock(sid)
	h.shop.sessions.SignOut(r.Context(), sid)
	unlock()

	h.writeJSON(w, http.StatusNoContent, nil)
}

// decode reads a JSON body, answering 400 on failure.
func (h *RESTHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// handleSessionError maps sign-in and sign-up errors to responses.
func (h *RESTHandler) handleSessionError(w http.ResponseWriter, err error) {
	var verr *session.ValidationError
	if errors.As(err, &verr) {
		h.writeError(w, http.StatusBadRequest, verr.Message)
		return
	}

	h.logger.Error("session operation failed", zap.Error(err))
	h.writeError(w, http.StatusInternalServerError, "internal server error")
}

func (h *RESTHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	writeJSON(w, h.logger, status, data)
}

func (h *RESTHandler) writeError(w http.ResponseWriter, status int, message string) {
	writeError(w, h.logger, status, message)
}

func cartResponse(c *cart.Cart) CartResponse {
	items := c.Items()
	if items == nil {
		items = []model.CartLineItem{}
	}
	return CartResponse{
		Items:   items,
		Summary: c.Summary(),
	}
}

func sessionResponse(user *model.UserSession) SessionResponse {
	return SessionResponse{
		Greeting: session.Greeting(user),
		User:     user,
	}
}
