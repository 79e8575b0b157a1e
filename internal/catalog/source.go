// Package catalog loads the product list once at startup and serves the
// filtered and sorted views derived from it.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vyrodovalexey/flexishop/internal/model"
)

// maxCatalogSize caps the bytes read from a remote source.
const maxCatalogSize = 16 << 20

// Source fetches the raw catalog document found at a location.
type Source interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// FileSource reads catalog documents from the local filesystem.
// Relative locations are resolved against Root.
type FileSource struct {
	Root string
}

// NewFileSource creates a FileSource rooted at root.
func NewFileSource(root string) *FileSource {
	return &FileSource{Root: root}
}

// Fetch reads the file at location.
func (s *FileSource) Fetch(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := location
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.Root, filepath.FromSlash(location))
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", p, err)
	}

	return data, nil
}

// HTTPSource fetches catalog documents relative to a base URL, the way a
// page resolves a relative fetch against its own address.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPSource creates an HTTPSource. A nil client uses http.DefaultClient.
func NewHTTPSource(baseURL string, client *http.Client) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{
		BaseURL: baseURL,
		Client:  client,
	}
}

// Fetch issues a GET for location resolved against BaseURL. Any non-2xx
// status is an error.
func (s *HTTPSource) Fetch(ctx context.Context, location string) ([]byte, error) {
	target, err := s.resolve(location)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json, application/yaml")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog %s: %w", target, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch catalog %s: unexpected status %d", target, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogSize))
	if err != nil {
		return nil, fmt.Errorf("read catalog body: %w", err)
	}

	return data, nil
}

func (s *HTTPSource) resolve(location string) (string, error) {
	base, err := url.Parse(s.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid catalog base URL: %w", err)
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("invalid catalog location: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

// yamlProduct mirrors model.Product for YAML documents. Prices are kept as
// text so they parse exactly into a decimal.
type yamlProduct struct {
	ID          int     `yaml:"id"`
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Brand       string  `yaml:"brand"`
	Category    string  `yaml:"category"`
	Price       string  `yaml:"price"`
	Rating      float64 `yaml:"rating"`
	InStock     bool    `yaml:"inStock"`
	Image       string  `yaml:"image"`
}

// Decode parses a catalog document. The format follows the location's
// extension: .yaml and .yml are YAML, anything else is JSON.
func Decode(location string, data []byte) ([]model.Product, error) {
	var (
		products []model.Product
		err      error
	)

	switch formatOf(location) {
	case ".yaml", ".yml":
		products, err = decodeYAML(data)
	default:
		err = json.Unmarshal(data, &products)
	}
	if err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", location, err)
	}

	for i := range products {
		if err := products[i].Validate(); err != nil {
			return nil, fmt.Errorf("product %d in %s: %w", products[i].ID, location, err)
		}
	}

	return products, nil
}

func decodeYAML(data []byte) ([]model.Product, error) {
	var raw []yamlProduct
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	products := make([]model.Product, 0, len(raw))
	for _, r := range raw {
		price, err := decimal.NewFromString(r.Price)
		if err != nil {
			return nil, fmt.Errorf("product %d: invalid price %q: %w", r.ID, r.Price, err)
		}
		products = append(products, model.Product{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			Brand:       r.Brand,
			Category:    r.Category,
			Price:       price,
			Rating:      r.Rating,
			InStock:     r.InStock,
			Image:       r.Image,
		})
	}

	return products, nil
}

func formatOf(location string) string {
	if i := strings.IndexAny(location, "?#"); i >= 0 {
		location = location[:i]
	}
	return strings.ToLower(path.Ext(location))
}
