// Package auth guards the JSON API for partner integrations. Storefront
// pages, region fragments and shopper sign-in never pass through it.
package auth

import (
	"context"
	"errors"
	"net/http"
)

// Mode selects which partner credentials the gate accepts.
type Mode string

// Gate modes.
const (
	ModeNone   Mode = "none"
	ModeBasic  Mode = "basic"
	ModeAPIKey Mode = "apikey"
	ModeMulti  Mode = "multi"
)

// APIKeyHeader carries a partner API key.
const APIKeyHeader = "X-API-Key"

// Client is the partner integration admitted to the JSON API.
type Client struct {
	Name string
	// Via is the credential kind the client presented, ModeBasic or ModeAPIKey.
	Via Mode
}

// Authenticator admits or rejects a JSON API request.
type Authenticator interface {
	Authenticate(r *http.Request) (*Client, error)
	Mode() Mode
	// Challenge is the WWW-Authenticate value sent with a 401.
	Challenge() string
}

// Sentinel errors for rejected API requests.
var (
	ErrNoCredentials   = errors.New("no partner credentials presented")
	ErrUnknownKey      = errors.New("unknown API key")
	ErrBadCredentials  = errors.New("invalid username or password")
	ErrUnknownMode     = errors.New("unknown auth mode")
	ErrEmptyAccessList = errors.New("no partner credentials configured")
)

type contextKey struct{}

// ClientFrom returns the partner stored by the gate.
func ClientFrom(ctx context.Context) (*Client, bool) {
	c, ok := ctx.Value(contextKey{}).(*Client)
	return c, ok
}

// WithClient stores c in the context.
func WithClient(ctx context.Context, c *Client) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}
