// Package model defines data structures used throughout the application.
package model

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Validation errors for Product.
var (
	ErrEmptyName     = errors.New("name cannot be empty")
	ErrInvalidID     = errors.New("id must be positive")
	ErrNegativePrice = errors.New("price cannot be negative")
	ErrRatingRange   = errors.New("rating must be between 0 and 5")
)

// Rating bounds.
const (
	MinRating = 0.0
	MaxRating = 5.0
)

// Product is a catalog entry. Products are read-only once the catalog is loaded.
type Product struct {
	ID          int             `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Brand       string          `json:"brand"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Rating      float64         `json:"rating"`
	InStock     bool            `json:"inStock"`
	Image       string          `json:"image"`
}

// Validate checks if the Product has valid field values.
func (p *Product) Validate() error {
	if p.ID <= 0 {
		return ErrInvalidID
	}

	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}

	if p.Price.IsNegative() {
		return ErrNegativePrice
	}

	if p.Rating < MinRating || p.Rating > MaxRating {
		return ErrRatingRange
	}

	return nil
}

// Snapshot captures the fields a cart line needs at add time.
func (p *Product) Snapshot() CartLineItem {
	return CartLineItem{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price,
		Image:    p.Image,
		Quantity: 1,
	}
}

// CartLineItem is a product snapshot held in the cart. The ID is a weak
// reference; it is never checked against the live catalog after capture.
type CartLineItem struct {
	ID       int             `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Image    string          `json:"image"`
	Quantity int             `json:"quantity"`
}

// LineTotal returns price times quantity.
func (c CartLineItem) LineTotal() decimal.Decimal {
	return c.Price.Mul(decimal.NewFromInt(int64(c.Quantity)))
}

// UserSession is the simulated signed-in user.
type UserSession struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	LoggedIn bool   `json:"loggedIn"`
}

// APIResponse is a generic wrapper for API responses.
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewSuccessResponse creates a successful API response.
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error API response.
func NewErrorResponse[T any](errMsg string) APIResponse[T] {
	return APIResponse[T]{
		Success: false,
		Error:   errMsg,
	}
}

// ErrorResponse represents an error response structure.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// WebSocketMessage represents a message sent over WebSocket connection.
type WebSocketMessage struct {
	Type      string    `json:"type"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// WebSocket message types.
const (
	WSMessageTypeCartCount = "cart_count"
	WSMessageTypePing      = "ping"
	WSMessageTypePong      = "pong"
	WSMessageTypeError     = "error"
)

// NewCartCountMessage creates a badge update carrying the cart item count.
func NewCartCountMessage(count int) WebSocketMessage {
	return WebSocketMessage{
		Type:      WSMessageTypeCartCount,
		Count:     count,
		Timestamp: time.Now().UTC(),
	}
}
