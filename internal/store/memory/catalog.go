package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"sawmill/backend/internal/domain"
	"sawmill/backend/internal/store"
	"sawmill/backend/internal/xid"
)

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "product %s", id)
	}
	dup := cloneProduct(product)
	return &dup, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if product, ok := s.products[id]; ok {
			result[id] = cloneProduct(product)
		}
	}
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, errors.Wrapf(store.ErrConflict, "product %s already exists", product.ID)
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = product.CreatedAt
	s.products[product.ID] = cloneProduct(product)
	return &product, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "product %s", product.ID)
	}
	product.CreatedAt = existing.CreatedAt
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = time.Now().UTC()
	}
	s.products[product.ID] = cloneProduct(product)
	return &product, nil
}

func (s *Store) SearchProducts(_ context.Context, query domain.ProductQuery, offset, limit int) ([]domain.Product, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.Product, 0)
	for _, product := range s.products {
		if matchesQuery(product, query) {
			matched = append(matched, cloneProduct(product))
		}
	}
	slices.SortFunc(matched, productOrder(query.Sort))
	return page(matched, offset, limit), int64(len(matched)), nil
}

func (s *Store) ListSimilarCandidates(_ context.Context, product domain.Product, limit int) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := make([]domain.Product, 0)
	for _, candidate := range s.products {
		if candidate.ID == product.ID || !candidate.IsAvailable || candidate.Category != product.Category {
			continue
		}
		candidates = append(candidates, cloneProduct(candidate))
	}
	slices.SortFunc(candidates, func(a, b domain.Product) int {
		aWood, bWood := a.WoodType == product.WoodType, b.WoodType == product.WoodType
		if aWood != bWood {
			if aWood {
				return -1
			}
			return 1
		}
		return byNewest(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return page(candidates, 0, limit), nil
}

func (s *Store) ProductFacets(_ context.Context) (domain.FilterOptions, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := map[string]struct{}{}
	woods := map[string]struct{}{}
	colors := map[string]struct{}{}
	tags := map[string]struct{}{}
	var prices domain.PriceRange
	sum := decimal.Zero
	count := 0
	for _, product := range s.products {
		if !product.IsAvailable {
			continue
		}
		addNonEmpty(categories, product.Category)
		addNonEmpty(woods, product.WoodType)
		addNonEmpty(colors, product.Color)
		for _, tag := range product.Tags {
			addNonEmpty(tags, tag)
		}
		if count == 0 || product.Price.LessThan(prices.Min) {
			prices.Min = product.Price
		}
		if count == 0 || product.Price.GreaterThan(prices.Max) {
			prices.Max = product.Price
		}
		sum = sum.Add(product.Price)
		count++
	}
	if count > 0 {
		prices.Average = sum.Div(decimal.NewFromInt(int64(count)))
	}

	return domain.FilterOptions{
		Categories: sortedKeys(categories),
		WoodTypes:  sortedKeys(woods),
		Colors:     sortedKeys(colors),
		Tags:       sortedKeys(tags),
		PriceRange: prices,
	}, nil
}

func (s *Store) SuggestProductNames(_ context.Context, q string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(q)
	products := make([]domain.Product, 0)
	for _, product := range s.products {
		if !product.IsAvailable {
			continue
		}
		if containsFold(product.Name, needle) || containsFold(product.Description, needle) || slices.ContainsFunc(product.Tags, func(tag string) bool {
			return containsFold(tag, needle)
		}) {
			products = append(products, product)
		}
	}
	slices.SortFunc(products, func(a, b domain.Product) int { return cmp.Compare(a.Name, b.Name) })

	names := make([]string, 0, limit)
	for _, product := range page(products, 0, limit) {
		if !slices.Contains(names, product.Name) {
			names = append(names, product.Name)
		}
	}
	return names, nil
}

func matchesQuery(product domain.Product, q domain.ProductQuery) bool {
	if !product.IsAvailable {
		return false
	}
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		hit := containsFold(product.Name, needle) ||
			containsFold(product.Description, needle) ||
			containsFold(product.ProductType, needle) ||
			slices.ContainsFunc(product.Tags, func(tag string) bool { return containsFold(tag, needle) })
		if !hit {
			return false
		}
	}
	if len(q.Categories) > 0 && !slices.Contains(q.Categories, product.Category) {
		return false
	}
	if len(q.WoodTypes) > 0 && !slices.Contains(q.WoodTypes, product.WoodType) {
		return false
	}
	if len(q.Colors) > 0 && !slices.Contains(q.Colors, product.Color) {
		return false
	}
	if len(q.Tags) > 0 && !slices.ContainsFunc(product.Tags, func(tag string) bool { return slices.Contains(q.Tags, tag) }) {
		return false
	}
	if q.PriceMin != nil && product.Price.LessThan(*q.PriceMin) {
		return false
	}
	if q.PriceMax != nil && product.Price.GreaterThan(*q.PriceMax) {
		return false
	}
	if q.Featured && !product.Featured {
		return false
	}
	if q.InStock && product.Stock <= 0 {
		return false
	}
	return true
}

func productOrder(sortBy string) func(a, b domain.Product) int {
	newest := func(a, b domain.Product) int { return byNewest(a.CreatedAt, b.CreatedAt, a.ID, b.ID) }
	switch sortBy {
	case domain.SortPriceAsc:
		return func(a, b domain.Product) int {
			if c := a.Price.Cmp(b.Price); c != 0 {
				return c
			}
			return newest(a, b)
		}
	case domain.SortPriceDesc:
		return func(a, b domain.Product) int {
			if c := b.Price.Cmp(a.Price); c != 0 {
				return c
			}
			return newest(a, b)
		}
	case domain.SortName:
		return func(a, b domain.Product) int {
			if c := cmp.Compare(a.Name, b.Name); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		}
	case domain.SortBestselling:
		return func(a, b domain.Product) int {
			if a.Featured != b.Featured {
				if a.Featured {
					return -1
				}
				return 1
			}
			return newest(a, b)
		}
	default:
		return newest
	}
}

func containsFold(haystack, lowerNeedle string) bool {
	return strings.Contains(strings.ToLower(haystack), lowerNeedle)
}

func addNonEmpty(set map[string]struct{}, value string) {
	if value != "" {
		set[value] = struct{}{}
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

func cloneProduct(src domain.Product) domain.Product {
	dup := src
	dup.Images = slices.Clone(src.Images)
	dup.BulkPricing = slices.Clone(src.BulkPricing)
	dup.Tags = slices.Clone(src.Tags)
	return dup
}
