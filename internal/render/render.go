// Package render turns catalog, cart and session state into complete HTML
// pages and into replacement content for the named page regions.
package render

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vyrodovalexey/flexishop/internal/cart"
	"github.com/vyrodovalexey/flexishop/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// Region names. A region is replaced as a whole, never patched.
const (
	RegionProducts      = "products-container"
	RegionProductDetail = "product-detail-container"
	RegionCartItems     = "cart-items"
	RegionCartSummary   = "cart-summary"
	RegionOrderSummary  = "order-summary"
)

// Page names.
const (
	PageHome     = "home"
	PageProduct  = "product"
	PageCart     = "cart"
	PageCheckout = "checkout"
	PageSignIn   = "signin"
	PageSignUp   = "signup"
)

// User-facing messages.
const (
	MsgNoProducts         = "No products found matching your criteria."
	MsgCatalogUnavailable = "The catalog is currently unavailable. Please try again later."
	MsgProductNotFound    = "Product not found."
	MsgCartEmpty          = "Your cart is empty."
	MsgNoItems            = "No items in cart"
)

// MsgQuantityLimit is the notice shown while a cart line sits at its cap.
var MsgQuantityLimit = fmt.Sprintf("Each item is limited to %d units per order.", cart.MaxLineQuantity)

// MaxSelectableQuantity is the largest quantity the selectors offer.
const MaxSelectableQuantity = 10

// ErrUnknownRegion is returned by Region for a name outside the region set.
var ErrUnknownRegion = errors.New("unknown region")

// PageData is everything a page or region may show. Fields a template does
// not use are ignored.
type PageData struct {
	Title     string
	Greeting  string
	SignedIn  bool
	CartCount int
	Notice    string
	Error     string

	Products           []model.Product
	Categories         []string
	Filter             model.FilterCriteria
	Sort               model.SortKey
	CatalogUnavailable bool

	Product *model.Product

	Items   []model.CartLineItem
	Summary cart.OrderSummary

	Email string
	Name  string
}

// Renderer executes the embedded templates.
type Renderer struct {
	pages   map[string]*template.Template
	regions *template.Template
}

// New parses the embedded templates.
func New() (*Renderer, error) {
	funcs := template.FuncMap{
		"money":           Money,
		"fixed":           func(d decimal.Decimal) string { return d.StringFixed(2) },
		"stars":           Stars,
		"itemLabel":       ItemLabel,
		"quantityOptions": QuantityOptions,
		"priceOptions":    PriceOptions,
		"sortOptions":     SortOptions,
		"categoryOptions": CategoryOptions,
		"cardAttrs":       cardDataAttrs,
	}

	base, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS,
		"templates/layout.html", "templates/regions.html")
	if err != nil {
		return nil, fmt.Errorf("parse base templates: %w", err)
	}

	pageFiles, err := fs.Glob(templateFS, "templates/page_*.html")
	if err != nil {
		return nil, fmt.Errorf("list page templates: %w", err)
	}

	r := &Renderer{
		pages:   make(map[string]*template.Template, len(pageFiles)),
		regions: base,
	}

	for _, file := range pageFiles {
		name := strings.TrimSuffix(strings.TrimPrefix(path.Base(file), "page_"), ".html")

		t, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone base for %s: %w", name, err)
		}
		if _, err := t.ParseFS(templateFS, file); err != nil {
			return nil, fmt.Errorf("parse page %s: %w", name, err)
		}
		r.pages[name] = t
	}

	return r, nil
}

// MustNew is like New but panics on error.
func MustNew() *Renderer {
	r, err := New()
	if err != nil {
		panic(err)
	}
	return r
}

// Page renders a full page.
func (r *Renderer) Page(w io.Writer, name string, data *PageData) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	return execute(w, t, "layout", data)
}

// Region renders the replacement content of one region.
func (r *Renderer) Region(w io.Writer, name string, data *PageData) error {
	if !IsRegion(name) {
		return fmt.Errorf("%w: %q", ErrUnknownRegion, name)
	}
	return execute(w, r.regions, name, data)
}

// IsRegion reports whether name is a known region.
func IsRegion(name string) bool {
	switch name {
	case RegionProducts, RegionProductDetail, RegionCartItems, RegionCartSummary, RegionOrderSummary:
		return true
	default:
		return false
	}
}

// execute renders into a buffer first so a failing template never leaves
// half a page on the wire.
func execute(w io.Writer, t *template.Template, name string, data *PageData) error {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// cardDataAttrs writes CardAttrs as escaped tag attributes in a fixed order.
func cardDataAttrs(v any) (template.HTMLAttr, error) {
	var item model.CartLineItem
	switch v := v.(type) {
	case model.CartLineItem:
		item = v
	case model.Product:
		item = v.Snapshot()
	case *model.Product:
		item = v.Snapshot()
	default:
		return "", fmt.Errorf("card attributes for %T", v)
	}

	attrs := CardAttrs(item)
	parts := make([]string, 0, len(attrs))
	for _, key := range []string{AttrID, AttrName, AttrPrice, AttrImage} {
		parts = append(parts, key+`="`+template.HTMLEscapeString(attrs[key])+`"`)
	}
	return template.HTMLAttr(strings.Join(parts, " ")), nil
}
