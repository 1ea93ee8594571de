package service

import (
	"context"
	"math"
	"strings"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"sawmill/backend/internal/domain"
	"sawmill/backend/internal/store"
)

const filterOptionsKey = "search:filters"

// SearchProducts filters available products and attaches review statistics.
// A minimum rating is applied before paging.
func (s *Service) SearchProducts(ctx context.Context, query domain.ProductQuery) (domain.SearchResponse, error) {
	query.Search = strings.TrimSpace(query.Search)
	if query.PriceMin != nil && query.PriceMax != nil && query.PriceMin.GreaterThan(*query.PriceMax) {
		return domain.SearchResponse{}, errors.Wrap(store.ErrInvalidInput, "price_min must not exceed price_max")
	}
	if query.MinRating < 0 || query.MinRating > 5 {
		return domain.SearchResponse{}, errors.Wrap(store.ErrInvalidInput, "min_rating must be between 0 and 5")
	}
	switch query.Sort {
	case "", domain.SortPriceAsc, domain.SortPriceDesc, domain.SortName, domain.SortNewest, domain.SortBestselling:
	default:
		return domain.SearchResponse{}, errors.Wrapf(store.ErrInvalidInput, "unknown sort %q", query.Sort)
	}
	p := Paging{Page: query.Page, Limit: query.Limit}.normalize(12)
	query.Page, query.Limit = p.Page, p.Limit

	offset, limit := p.offset(), p.Limit
	if query.MinRating > 0 {
		offset, limit = 0, 0
	}
	products, total, err := s.repo.SearchProducts(ctx, query, offset, limit)
	if err != nil {
		return domain.SearchResponse{}, errors.Wrap(err, "search products")
	}

	ids := make([]string, 0, len(products))
	for _, product := range products {
		ids = append(ids, product.ID)
	}
	ratings, err := s.repo.ProductRatings(ctx, ids)
	if err != nil {
		return domain.SearchResponse{}, errors.Wrap(err, "load product ratings")
	}

	hits := make([]domain.ProductSearchHit, 0, len(products))
	for _, product := range products {
		summary := ratings[product.ID]
		average := math.Round(summary.Average*10) / 10
		if query.MinRating > 0 && average < query.MinRating {
			continue
		}
		hits = append(hits, domain.ProductSearchHit{Product: product, ReviewCount: summary.Count, AverageRating: average})
	}
	if query.MinRating > 0 {
		total = int64(len(hits))
		start := min(p.offset(), len(hits))
		end := min(start+p.Limit, len(hits))
		hits = hits[start:end]
	}

	return domain.SearchResponse{
		Products:       hits,
		Pagination:     pagination(total, p),
		AppliedFilters: query,
	}, nil
}

// FilterOptions lists the facet values of available products. The result is
// cached briefly.
func (s *Service) FilterOptions(ctx context.Context) (domain.FilterOptions, error) {
	var cached domain.FilterOptions
	if ok, err := s.facets.GetJSON(ctx, filterOptionsKey, &cached); err != nil {
		s.lg.Warn("Filter options cache read failed", zap.Error(err))
	} else if ok {
		return cached, nil
	}

	options, err := s.repo.ProductFacets(ctx)
	if err != nil {
		return domain.FilterOptions{}, errors.Wrap(err, "load product facets")
	}
	distribution, err := s.repo.RatingDistribution(ctx, "")
	if err != nil {
		return domain.FilterOptions{}, errors.Wrap(err, "load rating distribution")
	}
	options.RatingDistribution = distribution
	options.RatingOptions = []int{4, 3, 2, 1}
	options.PriceRange.Min = options.PriceRange.Min.Round(2)
	options.PriceRange.Max = options.PriceRange.Max.Round(2)
	options.PriceRange.Average = options.PriceRange.Average.Round(2)

	if err := s.facets.SetJSON(ctx, filterOptionsKey, options, s.facetsTTL); err != nil {
		s.lg.Warn("Filter options cache write failed", zap.Error(err))
	}
	return options, nil
}

func (s *Service) SimilarProducts(ctx context.Context, productID string, limit int) (domain.SimilarProductsResponse, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.SimilarProductsResponse{}, err
	}
	if limit < 1 || limit > 20 {
		limit = 5
	}
	return s.recommender.Similar(ctx, *product, limit, s.repo)
}

// Suggestions returns distinct product names for queries of two or more
// characters.
func (s *Service) Suggestions(ctx context.Context, q string, limit int) ([]string, error) {
	q = strings.TrimSpace(q)
	if len([]rune(q)) < 2 {
		return []string{}, nil
	}
	if limit < 1 || limit > 20 {
		limit = 5
	}
	names, err := s.repo.SuggestProductNames(ctx, q, limit)
	if err != nil {
		return nil, errors.Wrap(err, "suggest product names")
	}
	return names, nil
}
