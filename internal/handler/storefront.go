package handler

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/flexishop/internal/cart"
	"github.com/vyrodovalexey/flexishop/internal/middleware"
	"github.com/vyrodovalexey/flexishop/internal/model"
	"github.com/vyrodovalexey/flexishop/internal/render"
	"github.com/vyrodovalexey/flexishop/internal/session"
)

// maxFormBytes bounds form submissions.
const maxFormBytes = 16 << 10

// StorefrontHandler serves the HTML pages and region fragments.
type StorefrontHandler struct {
	shop     *Shop
	renderer *render.Renderer
	logger   *zap.Logger
}

// NewStorefrontHandler creates a StorefrontHandler.
func NewStorefrontHandler(shop *Shop, renderer *render.Renderer, logger *zap.Logger) *StorefrontHandler {
	return &StorefrontHandler{
		shop:     shop,
		renderer: renderer,
		logger:   logger,
	}
}

// RegisterRoutes registers the storefront routes with the router.
func (h *StorefrontHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/", h.Home).Methods(http.MethodGet)
	router.HandleFunc("/products", h.Home).Methods(http.MethodGet)
	router.HandleFunc("/products/{id}", h.ProductDetail).Methods(http.MethodGet)
	router.HandleFunc("/cart", h.Cart).Methods(http.MethodGet)
	router.HandleFunc("/checkout", h.Checkout).Methods(http.MethodGet)
	router.HandleFunc("/cart/items", h.AddToCart).Methods(http.MethodPost)
	router.HandleFunc("/cart/items/{id}/quantity", h.UpdateQuantity).Methods(http.MethodPost)
	router.HandleFunc("/cart/items/{id}/delete", h.RemoveFromCart).Methods(http.MethodPost)
	router.HandleFunc("/cart/clear", h.ClearCart).Methods(http.MethodPost)
	router.HandleFunc("/signin", h.SignInForm).Methods(http.MethodGet)
	router.HandleFunc("/signin", h.SignIn).Methods(http.MethodPost)
	router.HandleFunc("/signup", h.SignUpForm).Methods(http.MethodGet)
	router.HandleFunc("/signup", h.SignUp).Methods(http.MethodPost)
	router.HandleFunc("/signout", h.SignOut).Methods(http.MethodPost)
	router.HandleFunc("/regions/{region}", h.Region).Methods(http.MethodGet)
}

// Home renders the catalog with the filter and sort controls from the query.
func (h *StorefrontHandler) Home(w http.ResponseWriter, r *http.Request) {
	data := h.pageData(r, "")
	h.fillCatalog(data, r.URL.Query())
	h.renderPage(w, http.StatusOK, render.PageHome, data)
}

// ProductDetail renders one product, or the not-found state with 404.
func (h *StorefrontHandler) ProductDetail(w http.ResponseWriter, r *http.Request) {
	data := h.pageData(r, "")
	status := http.StatusOK
	if !h.fillProduct(data, mux.Vars(r)["id"]) {
		status = http.StatusNotFound
	}
	h.renderPage(w, status, render.PageProduct, data)
}

// Cart renders the cart page.
func (h *StorefrontHandler) Cart(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, http.StatusOK, render.PageCart, h.pageData(r, "Shopping Cart"))
}

// Checkout renders the order summary.
func (h *StorefrontHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, http.StatusOK, render.PageCheckout, h.pageData(r, "Checkout"))
}

// AddToCart handles the add-to-cart form: id, and an optional quantity 1..10.
// The product comes from the catalog, never from the submitted text.
func (h *StorefrontHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}

	id, ok := parseID(r.PostForm.Get("id"))
	if !ok {
		http.Error(w, "invalid product ID", http.StatusBadRequest)
		return
	}

	quantity := 1
	if raw := r.PostForm.Get("quantity"); raw != "" {
		q, ok := selectableQuantity(raw)
		if !ok {
			http.Error(w, "invalid quantity", http.StatusBadRequest)
			return
		}
		quantity = q
	}

	p, found := h.shop.Catalog().Product(id)
	if !found {
		http.Error(w, render.MsgProductNotFound, http.StatusNotFound)
		return
	}

	h.shop.withCart(r.Context(), middleware.SessionID(r.Context()), func(c *cart.Cart) {
		c.AddQuantity(r.Context(), p, quantity)
	})

	http.Redirect(w, r, backTo(r, "/"), http.StatusSeeOther)
}

// UpdateQuantity sets a cart line to the selected quantity.
func (h *StorefrontHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}

	id, ok := parseID(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "invalid product ID", http.StatusBadRequest)
		return
	}

	quantity, ok := selectableQuantity(r.PostForm.Get("quantity"))
	if !ok {
		http.Error(w, "invalid quantity", http.StatusBadRequest)
		return
	}

	h.shop.withCart(r.Context(), middleware.SessionID(r.Context()), func(c *cart.Cart) {
		c.SetQuantity(r.Context(), id, quantity)
	})

	http.Redirect(w, r, "/cart", http.StatusSeeOther)
}

// RemoveFromCart deletes a cart line.
func (h *StorefrontHandler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "invalid product ID", http.StatusBadRequest)
		return
	}

	h.shop.withCart(r.Context(), middleware.SessionID(r.Context()), func(c *cart.Cart) {
		c.RemoveItem(r.Context(), id)
	})

	http.Redirect(w, r, "/cart", http.StatusSeeOther)
}

// ClearCart empties the cart.
func (h *StorefrontHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.shop.withCart(r.Context(), middleware.SessionID(r.Context()), func(c *cart.Cart) {
		c.Clear(r.Context())
	})

	http.Redirect(w, r, "/cart", http.StatusSeeOther)
}

// SignInForm renders the sign-in page.
func (h *StorefrontHandler) SignInForm(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, http.StatusOK, render.PageSignIn, h.pageData(r, "Sign in"))
}

// SignIn records the simulated user and returns home. A missing field
// re-renders the form with the message.
func (h *StorefrontHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}

	sid := middleware.SessionID(r.Context())
	email := r.PostForm.Get("email")

	unlock := h.shop.locker.Lock(sid)
	_, err := h.shop.sessions.SignIn(r.Context(), sid, email, r.PostForm.Get("password"))
	unlock()

	if err != nil {
		data := h.pageData(r, "Sign in")
		data.Email = email
		h.renderFormError(w, render.PageSignIn, data, err)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// SignUpForm renders the sign-up page.
func (h *StorefrontHandler) SignUpForm(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, http.StatusOK, render.PageSignUp, h.pageData(r, "Create account"))
}

// SignUp validates the form, records the user and returns home.
func (h *StorefrontHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}

	form := session.SignUpForm{
		Name:            r.PostForm.Get("name"),
		Email:           r.PostForm.Get("email"),
		Password:        r.PostForm.Get("password"),
		PasswordConfirm: r.PostForm.Get("passwordConfirm"),
	}

	sid := middleware.SessionID(r.Context())
	unlock := h.shop.locker.Lock(sid)
	_, err := h.shop.sessions.SignUp(r.Context(), sid, form)
	unlock()

	if err != nil {
		data := h.pageData(r, "Create account")
		data.Name = form.Name
		data.Email = form.Email
		h.renderFormError(w, render.PageSignUp, data, err)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// SignOut forgets the user and returns home.
func (h *StorefrontHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	sid := middleware.SessionID(r.Context())
	unlock := h.shop.locker.Lock(sid)
	h.shop.sessions.SignOut(r.Context(), sid)
	unlock()

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Region writes the replacement content of one named region. The catalog
// regions take the same query parameters as the catalog page; the detail
// region takes id.
func (h *StorefrontHandler) Region(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["region"]
	if !render.IsRegion(name) {
		http.Error(w, "unknown region", http.StatusNotFound)
		return
	}

	data := h.pageData(r, "")
	switch name {
	case render.RegionProducts:
		h.fillCatalog(data, r.URL.Query())
	case render.RegionProductDetail:
		h.fillProduct(data, r.URL.Query().Get("id"))
	}

	var buf bytes.Buffer
	if err := h.renderer.Region(&buf, name, data); err != nil {
		h.renderFailed(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// pageData collects the header and cart state shared by every page.
func (h *StorefrontHandler) pageData(r *http.Request, title string) *render.PageData {
	ctx := r.Context()
	sid := middleware.SessionID(ctx)

	user := h.shop.sessions.Current(ctx, sid)
	c := h.shop.loadCart(ctx, sid)

	data := &render.PageData{
		Title:              title,
		Greeting:           session.Greeting(user),
		SignedIn:           user != nil && user.LoggedIn,
		CartCount:          c.ItemCount(),
		Items:              c.Items(),
		Summary:            c.Summary(),
		CatalogUnavailable: !h.shop.Catalog().Available(),
	}
	if slices.ContainsFunc(data.Items, func(item model.CartLineItem) bool {
		return item.Quantity >= cart.MaxLineQuantity
	}) {
		data.Notice = render.MsgQuantityLimit
	}

	return data
}

func (h *StorefrontHandler) fillCatalog(data *render.PageData, q url.Values) {
	criteria, sort := criteriaFrom(q)
	data.Filter = criteria
	data.Sort = sort
	data.Categories = h.shop.Catalog().Categories()
	data.Products = h.shop.view(criteria, sort)
}

// fillProduct sets the product named by rawID and its title. It reports
// whether the product exists.
func (h *StorefrontHandler) fillProduct(data *render.PageData, rawID string) bool {
	id, ok := parseID(rawID)
	if !ok {
		return false
	}

	p, found := h.shop.Catalog().Product(id)
	if !found {
		return false
	}

	data.Product = &p
	data.Title = p.Name
	return true
}

func (h *StorefrontHandler) parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		h.logger.Warn("invalid form", zap.Error(err))
		http.Error(w, "invalid form", http.StatusBadRequest)
		return false
	}
	return true
}

// renderFormError re-renders a form page with a validation message and 400.
func (h *StorefrontHandler) renderFormError(w http.ResponseWriter, page string, data *render.PageData, err error) {
	var verr *session.ValidationError
	if !errors.As(err, &verr) {
		h.logger.Error("session operation failed", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	data.Error = verr.Message
	h.renderPage(w, http.StatusBadRequest, page, data)
}

// renderPage buffers the page so a template failure still yields a clean 500.
func (h *StorefrontHandler) renderPage(w http.ResponseWriter, status int, page string, data *render.PageData) {
	var buf bytes.Buffer
	if err := h.renderer.Page(&buf, page, data); err != nil {
		h.renderFailed(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (h *StorefrontHandler) renderFailed(w http.ResponseWriter, err error) {
	h.logger.Error("failed to render page", zap.Error(err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// selectableQuantity accepts the values the quantity selector offers.
func selectableQuantity(raw string) (int, bool) {
	q, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || q < 1 || q > render.MaxSelectableQuantity {
		return 0, false
	}
	return q, true
}

// backTo returns the same-origin path of the Referer, or fallback. Paths
// starting with "//" or "/\" are refused since browsers resolve them against
// another host.
func backTo(r *http.Request, fallback string) string {
	ref, err := url.Parse(r.Referer())
	if err != nil || ref.Host != r.Host || !strings.HasPrefix(ref.Path, "/") ||
		strings.HasPrefix(ref.Path, "//") || strings.HasPrefix(ref.Path, `/\`) {
		return fallback
	}
	if ref.RawQuery != "" {
		return ref.Path + "?" + ref.RawQuery
	}
	return ref.Path
}
