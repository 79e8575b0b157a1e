package render

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/vyrodovalexey/flexishop/internal/model"
)

// Data attribute names carried by every product card and cart row.
const (
	AttrID    = "data-id"
	AttrName  = "data-name"
	AttrPrice = "data-price"
	AttrImage = "data-image"
)

// ErrMissingAttr is returned by ParseCardAttrs when a required attribute is absent.
var ErrMissingAttr = errors.New("missing card attribute")

// Money formats d as dollars with two decimals.
func Money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

// ItemLabel returns "item" for one and "items" otherwise.
func ItemLabel(n int) string {
	if n == 1 {
		return "item"
	}
	return "items"
}

// StarRating is the glyph breakdown of a 0..5 rating.
type StarRating struct {
	Full  int
	Half  bool
	Empty int
}

// Stars computes floor(rating) full stars, one half star when the rating is
// fractional, and 5-ceil(rating) empty stars.
func Stars(rating float64) StarRating {
	rating = math.Max(model.MinRating, math.Min(model.MaxRating, rating))

	return StarRating{
		Full:  int(math.Floor(rating)),
		Half:  rating != math.Trunc(rating),
		Empty: int(model.MaxRating - math.Ceil(rating)),
	}
}

func (s StarRating) String() string {
	var b strings.Builder
	b.WriteString(strings.Repeat("★", s.Full))
	if s.Half {
		b.WriteString("½")
	}
	b.WriteString(strings.Repeat("☆", s.Empty))
	return b.String()
}

// Option is one entry of a select control.
type Option struct {
	Value    string
	Label    string
	Selected bool
}

// QuantityOptions offers 1..MaxSelectableQuantity with current selected.
func QuantityOptions(current int) []Option {
	opts := make([]Option, 0, MaxSelectableQuantity)
	for i := 1; i <= MaxSelectableQuantity; i++ {
		opts = append(opts, Option{
			Value:    strconv.Itoa(i),
			Label:    strconv.Itoa(i),
			Selected: i == current,
		})
	}
	return opts
}

// PriceOptions lists the price bands.
func PriceOptions(selected model.PriceRange) []Option {
	bands := []struct {
		value model.PriceRange
		label string
	}{
		{model.PriceAny, "All Prices"},
		{model.PriceUpTo50, "Under $50"},
		{model.Price50To100, "$50 to $100"},
		{model.PriceOver100, "Over $100"},
	}

	opts := make([]Option, 0, len(bands))
	for _, b := range bands {
		opts = append(opts, Option{Value: string(b.value), Label: b.label, Selected: b.value == selected})
	}
	return opts
}

// SortOptions lists the sort keys.
func SortOptions(selected model.SortKey) []Option {
	keys := []struct {
		value model.SortKey
		label string
	}{
		{model.SortDefault, "Featured"},
		{model.SortPriceLow, "Price: Low to High"},
		{model.SortPriceHigh, "Price: High to Low"},
		{model.SortName, "Name"},
		{model.SortRating, "Avg. Customer Review"},
	}

	opts := make([]Option, 0, len(keys))
	for _, k := range keys {
		opts = append(opts, Option{Value: string(k.value), Label: k.label, Selected: k.value == selected})
	}
	return opts
}

// CategoryOptions lists "All Categories" followed by each category.
func CategoryOptions(categories []string, selected string) []Option {
	opts := make([]Option, 0, len(categories)+1)
	opts = append(opts, Option{Value: "", Label: "All Categories", Selected: selected == ""})
	for _, c := range categories {
		opts = append(opts, Option{Value: c, Label: titleCase(c), Selected: c == selected})
	}
	return opts
}

func titleCase(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// CardAttrs returns the data attributes rendered on a card or cart row.
func CardAttrs(item model.CartLineItem) map[string]string {
	return map[string]string{
		AttrID:    strconv.Itoa(item.ID),
		AttrName:  item.Name,
		AttrPrice: item.Price.StringFixed(2),
		AttrImage: item.Image,
	}
}

// ParseCardAttrs reads the data attributes of a rendered card back into a
// line item snapshot with quantity 1.
func ParseCardAttrs(attrs map[string]string) (model.CartLineItem, error) {
	for _, key := range []string{AttrID, AttrName, AttrPrice} {
		if _, ok := attrs[key]; !ok {
			return model.CartLineItem{}, fmt.Errorf("%w: %s", ErrMissingAttr, key)
		}
	}

	id, err := strconv.Atoi(attrs[AttrID])
	if err != nil {
		return model.CartLineItem{}, fmt.Errorf("invalid %s %q: %w", AttrID, attrs[AttrID], err)
	}

	price, err := decimal.NewFromString(attrs[AttrPrice])
	if err != nil {
		return model.CartLineItem{}, fmt.Errorf("invalid %s %q: %w", AttrPrice, attrs[AttrPrice], err)
	}

	return model.CartLineItem{
		ID:       id,
		Name:     attrs[AttrName],
		Price:    price,
		Image:    attrs[AttrImage],
		Quantity: 1,
	}, nil
}
