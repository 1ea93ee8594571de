package recommendation

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"sawmill/backend/internal/cache"
	"sawmill/backend/internal/domain"
)

const (
	ReasonSameWoodType = "same_wood_type"
	ReasonSameCategory = "same_category"
)

// CandidateSource lists available products in the same category as the
// given product, excluding the product itself.
type CandidateSource interface {
	ListSimilarCandidates(ctx context.Context, product domain.Product, limit int) ([]domain.Product, error)
}

type Engine struct {
	cache         cache.JSONCache
	cacheTTL      time.Duration
	candidatePool int
	lg            *zap.Logger
}

func NewEngine(cacheStore cache.JSONCache, cacheTTL time.Duration, lg *zap.Logger) *Engine {
	if cacheStore == nil {
		cacheStore = cache.Noop{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if lg == nil {
		lg = zap.NewNop()
	}

	return &Engine{
		cache:         cacheStore,
		cacheTTL:      cacheTTL,
		candidatePool: 50,
		lg:            lg,
	}
}

// Similar ranks products like source. Same category and wood type rank
// first, then same category; price proximity, stock and the featured flag
// order products within each group.
func (e *Engine) Similar(ctx context.Context, source domain.Product, limit int, candidates CandidateSource) (domain.SimilarProductsResponse, error) {
	if limit <= 0 {
		limit = 5
	}

	cacheKey := buildCacheKey(source, limit)
	var cached domain.SimilarProductsResponse
	if ok, err := e.cache.GetJSON(ctx, cacheKey, &cached); err != nil {
		e.lg.Warn("Similar products cache read failed", zap.String("key", cacheKey), zap.Error(err))
	} else if ok {
		return cached, nil
	}

	pool, err := candidates.ListSimilarCandidates(ctx, source, max(e.candidatePool, limit))
	if err != nil {
		return domain.SimilarProductsResponse{}, errors.Wrap(err, "list candidates")
	}

	ranked := make([]domain.SimilarProduct, 0, len(pool))
	for _, product := range pool {
		if product.ID == source.ID || !product.IsAvailable || product.Category != source.Category {
			continue
		}
		score, reason := scoreCandidate(source, product)
		ranked = append(ranked, domain.SimilarProduct{Product: product, Score: round2(score), Reason: reason})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].Name != ranked[j].Name {
			return ranked[i].Name < ranked[j].Name
		}
		return ranked[i].ID < ranked[j].ID
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	resp := domain.SimilarProductsResponse{ProductID: source.ID, Products: ranked}
	if err := e.cache.SetJSON(ctx, cacheKey, resp, e.cacheTTL); err != nil {
		e.lg.Warn("Similar products cache write failed", zap.String("key", cacheKey), zap.Error(err))
	}
	return resp, nil
}

func scoreCandidate(source, candidate domain.Product) (float64, string) {
	reason := ReasonSameCategory
	woodMatch := 0.0
	if source.WoodType != "" && candidate.WoodType == source.WoodType {
		woodMatch = 1
		reason = ReasonSameWoodType
	}

	priceProximity := 0.0
	srcPrice := source.Price.InexactFloat64()
	candPrice := candidate.Price.InexactFloat64()
	if top := math.Max(srcPrice, candPrice); top > 0 {
		priceProximity = clamp(1-math.Abs(srcPrice-candPrice)/top, 0, 1)
	}

	stockScore := clamp(float64(candidate.Stock)/50.0, 0, 1)
	featured := 0.0
	if candidate.Featured {
		featured = 1
	}

	// Wood match outweighs every other signal combined.
	score := 0.55*woodMatch +
		0.25*priceProximity +
		0.12*stockScore +
		0.08*featured
	return score, reason
}

func buildCacheKey(source domain.Product, limit int) string {
	return fmt.Sprintf("similar:%s:%d:%d", source.ID, source.UpdatedAt.Unix(), limit)
}

func clamp(val float64, minVal float64, maxVal float64) float64 {
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}

func round2(val float64) float64 {
	return math.Round(val*100) / 100
}
