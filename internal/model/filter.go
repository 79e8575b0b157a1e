package model

import (
	"github.com/shopspring/decimal"
)

// PriceRange is one of the four mutually exclusive price bands.
type PriceRange string

// Price bands. The empty value is unbounded and matches every price.
const (
	PriceAny     PriceRange = ""
	PriceUpTo50  PriceRange = "0-50"
	Price50To100 PriceRange = "50-100"
	PriceOver100 PriceRange = "100+"
)

var (
	fifty   = decimal.NewFromInt(50)
	hundred = decimal.NewFromInt(100)
)

// ParsePriceRange maps a control value to a PriceRange. Unknown values are unbounded.
func ParsePriceRange(s string) PriceRange {
	switch PriceRange(s) {
	case PriceUpTo50, Price50To100, PriceOver100:
		return PriceRange(s)
	default:
		return PriceAny
	}
}

// Contains reports whether price falls in the band.
func (r PriceRange) Contains(price decimal.Decimal) bool {
	switch r {
	case PriceUpTo50:
		return price.LessThanOrEqual(fifty)
	case Price50To100:
		return price.GreaterThan(fifty) && price.LessThanOrEqual(hundred)
	case PriceOver100:
		return price.GreaterThan(hundred)
	default:
		return true
	}
}

// FilterCriteria is recomputed from the current control values on every change.
type FilterCriteria struct {
	SearchTerm string     `json:"q,omitempty"`
	Category   string     `json:"category,omitempty"`
	PriceRange PriceRange `json:"price,omitempty"`
}

// SortKey selects the catalog ordering.
type SortKey string

// Sort keys. SortDefault orders by ascending id.
const (
	SortDefault   SortKey = ""
	SortPriceLow  SortKey = "price-low"
	SortPriceHigh SortKey = "price-high"
	SortName      SortKey = "name"
	SortRating    SortKey = "rating"
)

// ParseSortKey maps a control value to a SortKey. Unknown values fall back to SortDefault.
func ParseSortKey(s string) SortKey {
	switch SortKey(s) {
	case SortPriceLow, SortPriceHigh, SortName, SortRating:
		return SortKey(s)
	default:
		return SortDefault
	}
}
