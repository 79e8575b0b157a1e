// Package cart implements the shopping cart of one browsing session. The
// in-memory line items are authoritative; every mutation is written through
// to the session's cart slot.
package cart

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/flexishop/internal/model"
)

// TaxRate is the fixed estimated tax applied to the order summary.
var TaxRate = decimal.RequireFromString("0.08")

// MaxLineQuantity caps the quantity of a single line. Additions and updates
// beyond it saturate at the cap.
const MaxLineQuantity = 999

// Mutation labels for cartMutationsTotal.
const (
	opAdd         = "add"
	opRemove      = "remove"
	opSetQuantity = "set_quantity"
	opClear       = "clear"
)

var cartMutationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "flexishop_cart_mutations_total",
		Help: "Cart mutations by operation",
	},
	[]string{"op"},
)

// Slot is the durable blob the cart mirrors itself into.
type Slot interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, blob []byte) error
}

// OrderSummary is the checkout breakdown of a cart.
type OrderSummary struct {
	ItemCount int             `json:"itemCount"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Shipping  decimal.Decimal `json:"shipping"`
	Tax       decimal.Decimal `json:"tax"`
	Total     decimal.Decimal `json:"total"`
}

// Cart is a session's line items. A Cart is not safe for concurrent use;
// callers serialize access per session.
type Cart struct {
	slot      Slot
	logger    *zap.Logger
	items     []model.CartLineItem
	observers []func(count int)
}

// Load reads the cart from slot. A missing, unreadable or undecodable blob
// yields an empty cart; the failure is logged and never returned.
func Load(ctx context.Context, slot Slot, logger *zap.Logger) *Cart {
	c := &Cart{
		slot:   slot,
		logger: logger,
	}

	blob, err := slot.Read(ctx)
	if err != nil {
		logger.Warn("failed to read cart, starting empty", zap.Error(err))
		return c
	}
	if len(blob) == 0 {
		return c
	}

	var items []model.CartLineItem
	if err := json.Unmarshal(blob, &items); err != nil {
		logger.Warn("discarding undecodable cart", zap.Error(err))
		return c
	}

	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		item.Quantity = min(item.Quantity, MaxLineQuantity)
		c.items = append(c.items, item)
	}

	return c
}

// OnChange registers fn to receive the item count after every mutation.
func (c *Cart) OnChange(fn func(count int)) {
	c.observers = append(c.observers, fn)
}

// AddItem adds one unit of product. An existing line is incremented by
// exactly one, otherwise a new line with quantity 1 is appended. A line
// already at MaxLineQuantity is left at the cap.
func (c *Cart) AddItem(ctx context.Context, product model.Product) model.CartLineItem {
	item := c.add(product, 1)
	cartMutationsTotal.WithLabelValues(opAdd).Inc()
	c.commit(ctx)
	return item
}

// AddQuantity adds n units of product, the same as n calls to AddItem.
func (c *Cart) AddQuantity(ctx context.Context, product model.Product, n int) model.CartLineItem {
	if n <= 0 {
		item, _ := c.Item(product.ID)
		return item
	}

	item := c.add(product, n)
	cartMutationsTotal.WithLabelValues(opAdd).Add(float64(n))
	c.commit(ctx)

	return item
}

// add raises the line for product by n (n > 0), saturating at MaxLineQuantity.
func (c *Cart) add(product model.Product, n int) model.CartLineItem {
	if i := c.index(product.ID); i >= 0 {
		c.items[i].Quantity += min(n, c.room(i))
		return c.items[i]
	}

	item := product.Snapshot()
	item.Quantity = min(n, MaxLineQuantity)
	c.items = append(c.items, item)
	return item
}

// Room reports how many more units the line for id can take before it
// reaches MaxLineQuantity.
func (c *Cart) Room(id int) int {
	if i := c.index(id); i >= 0 {
		return c.room(i)
	}
	return MaxLineQuantity
}

func (c *Cart) room(i int) int {
	return max(MaxLineQuantity-c.items[i].Quantity, 0)
}

// RemoveItem deletes the line for id. Removing an absent id is a no-op.
func (c *Cart) RemoveItem(ctx context.Context, id int) {
	if i := c.index(id); i >= 0 {
		c.items = slices.Delete(c.items, i, i+1)
	}
	cartMutationsTotal.WithLabelValues(opRemove).Inc()
	c.commit(ctx)
}

// SetQuantity sets the quantity of the line for id verbatim, clamped to
// MaxLineQuantity. A quantity of zero or less removes the line; an absent id
// is left alone.
func (c *Cart) SetQuantity(ctx context.Context, id, quantity int) {
	if quantity <= 0 {
		c.RemoveItem(ctx, id)
		return
	}

	if i := c.index(id); i >= 0 {
		c.items[i].Quantity = min(quantity, MaxLineQuantity)
	}
	cartMutationsTotal.WithLabelValues(opSetQuantity).Inc()
	c.commit(ctx)
}

// Clear empties the cart.
func (c *Cart) Clear(ctx context.Context) {
	c.items = nil
	cartMutationsTotal.WithLabelValues(opClear).Inc()
	c.commit(ctx)
}

// Items returns a copy of the line items in insertion order.
func (c *Cart) Items() []model.CartLineItem {
	return slices.Clone(c.items)
}

// Item returns the line for id.
func (c *Cart) Item(id int) (model.CartLineItem, bool) {
	if i := c.index(id); i >= 0 {
		return c.items[i], true
	}
	return model.CartLineItem{}, false
}

// Total is the sum of price times quantity over all lines.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// ItemCount is the sum of quantities, not the number of lines.
func (c *Cart) ItemCount() int {
	n := 0
	for _, item := range c.items {
		n += item.Quantity
	}
	return n
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.items) == 0
}

// Summary computes the order summary: tax at TaxRate rounded to cents,
// free shipping.
func (c *Cart) Summary() OrderSummary {
	subtotal := c.Total()
	tax := subtotal.Mul(TaxRate).Round(2)

	return OrderSummary{
		ItemCount: c.ItemCount(),
		Subtotal:  subtotal,
		Shipping:  decimal.Zero,
		Tax:       tax,
		Total:     subtotal.Add(tax),
	}
}

func (c *Cart) index(id int) int {
	return slices.IndexFunc(c.items, func(item model.CartLineItem) bool {
		return item.ID == id
	})
}

// commit flushes and then notifies observers.
func (c *Cart) commit(ctx context.Context) {
	c.flush(ctx)

	count := c.ItemCount()
	for _, fn := range c.observers {
		fn(count)
	}
}

// flush writes the cart through to its slot. Failures are logged and
// absorbed; the in-memory cart stays authoritative.
func (c *Cart) flush(ctx context.Context) {
	items := c.items
	if items == nil {
		items = []model.CartLineItem{}
	}

	blob, err := json.Marshal(items)
	if err != nil {
		c.logger.Error("failed to encode cart", zap.Error(err))
		return
	}

	if err := c.slot.Write(ctx, blob); err != nil {
		c.logger.Warn("failed to persist cart", zap.Error(err))
	}
}
