package catalog

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/vyrodovalexey/flexishop/internal/model"
)

// ErrDuplicateID is returned when two products share an id.
var ErrDuplicateID = errors.New("duplicate product id")

// Store holds the loaded catalog. It is populated once at startup and only
// read afterwards, so it is safe for concurrent use without locking.
type Store struct {
	products   []model.Product
	byID       map[int]int
	categories []string
	loadErr    error
	adjusted   bool
}

// NewStore validates id uniqueness and keeps its own copy of products.
func NewStore(products []model.Product) (*Store, error) {
	s := &Store{
		products: make([]model.Product, len(products)),
		byID:     make(map[int]int, len(products)),
	}
	copy(s.products, products)

	seen := make(map[string]struct{})
	for i, p := range s.products {
		if _, dup := s.byID[p.ID]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateID, p.ID)
		}
		s.byID[p.ID] = i

		if p.Category == "" {
			continue
		}
		if _, ok := seen[p.Category]; !ok {
			seen[p.Category] = struct{}{}
			s.categories = append(s.categories, p.Category)
		}
	}
	slices.Sort(s.categories)

	return s, nil
}

// NewUnavailableStore returns an empty catalog that remembers why loading failed.
func NewUnavailableStore(err error) *Store {
	return &Store{
		byID:    map[int]int{},
		loadErr: err,
	}
}

// Err returns the load failure, or nil when the catalog loaded.
func (s *Store) Err() error {
	return s.loadErr
}

// Available reports whether the catalog loaded.
func (s *Store) Available() bool {
	return s.loadErr == nil
}

// Len returns the number of products.
func (s *Store) Len() int {
	return len(s.products)
}

// Products returns a copy of the full catalog in load order.
func (s *Store) Products() []model.Product {
	return slices.Clone(s.products)
}

// Product looks up a product by id.
func (s *Store) Product(id int) (model.Product, bool) {
	i, ok := s.byID[id]
	if !ok {
		return model.Product{}, false
	}
	return s.products[i], true
}

// Categories returns the distinct category tags, sorted.
func (s *Store) Categories() []string {
	return slices.Clone(s.categories)
}

// AdjustImagePaths prefixes every image path that starts with assetPrefix
// with nestedPrefix. It must run before the store is shared; only the first
// call has any effect. It returns the number of rewritten paths.
func (s *Store) AdjustImagePaths(assetPrefix, nestedPrefix string) int {
	if s.adjusted || nestedPrefix == "" {
		return 0
	}
	s.adjusted = true

	n := 0
	for i := range s.products {
		if strings.HasPrefix(s.products[i].Image, assetPrefix) {
			s.products[i].Image = nestedPrefix + s.products[i].Image
			n++
		}
	}
	return n
}
