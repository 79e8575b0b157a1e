package catalog

import (
	"cmp"
	"slices"
	"strings"

	"github.com/vyrodovalexey/flexishop/internal/model"
)

// View is a request-scoped filtered and sorted projection of a Store.
// Every ApplyFilter recomputes from the full catalog.
type View struct {
	store    *Store
	products []model.Product
}

// NewView starts a view over the full catalog.
func (s *Store) NewView() *View {
	return &View{
		store:    s,
		products: s.Products(),
	}
}

// Products returns the current view.
func (v *View) Products() []model.Product {
	return v.products
}

// ApplyFilter replaces the view with the catalog subsequence matching all of
// the search, category and price predicates.
func (v *View) ApplyFilter(c model.FilterCriteria) []model.Product {
	term := strings.ToLower(c.SearchTerm)

	filtered := make([]model.Product, 0, len(v.store.products))
	for _, p := range v.store.products {
		if Matches(p, term, c.Category, c.PriceRange) {
			filtered = append(filtered, p)
		}
	}
	v.products = filtered

	return v.products
}

// ApplySort stable-sorts the current view in place.
func (v *View) ApplySort(key model.SortKey) {
	slices.SortStableFunc(v.products, compareFunc(key))
}

// Reset restores the full, unfiltered catalog.
func (v *View) Reset() []model.Product {
	v.products = v.store.Products()
	return v.products
}

// Matches reports whether p satisfies the filter. term must already be lower case.
func Matches(p model.Product, term, category string, band model.PriceRange) bool {
	if term != "" &&
		!strings.Contains(strings.ToLower(p.Name), term) &&
		!strings.Contains(strings.ToLower(p.Description), term) &&
		!strings.Contains(strings.ToLower(p.Brand), term) {
		return false
	}

	if category != "" && p.Category != category {
		return false
	}

	return band.Contains(p.Price)
}

func compareFunc(key model.SortKey) func(a, b model.Product) int {
	switch key {
	case model.SortPriceLow:
		return func(a, b model.Product) int { return a.Price.Cmp(b.Price) }
	case model.SortPriceHigh:
		return func(a, b model.Product) int { return b.Price.Cmp(a.Price) }
	case model.SortName:
		return func(a, b model.Product) int {
			return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		}
	case model.SortRating:
		return func(a, b model.Product) int { return cmp.Compare(b.Rating, a.Rating) }
	default:
		return func(a, b model.Product) int { return cmp.Compare(a.ID, b.ID) }
	}
}
