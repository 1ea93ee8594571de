package httpapi

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"sawmill/backend/internal/domain"
	"sawmill/backend/internal/store"
)

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.UpdateProduct(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleSearch(w http.ResponseWriter, r *http.Request) {
	query, err := parseProductQuery(r.URL.Query())
	if err != nil {
		a.fail(w, err)
		return
	}
	resp, err := a.service.SearchProducts(r.Context(), query)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseProductQuery reads search filters. List filters may repeat or carry
// comma separated values.
func parseProductQuery(q url.Values) (domain.ProductQuery, error) {
	query := domain.ProductQuery{
		Search:     strings.TrimSpace(q.Get("q")),
		Categories: listParam(q, "category"),
		WoodTypes:  listParam(q, "wood_type"),
		Colors:     listParam(q, "color"),
		Tags:       listParam(q, "tags"),
		Sort:       strings.TrimSpace(q.Get("sort")),
		Page:       parsePositiveLimit(q.Get("page"), 1, 0),
		Limit:      parsePositiveLimit(q.Get("limit"), 0, 100),
	}
	if query.Search == "" {
		query.Search = strings.TrimSpace(q.Get("search"))
	}

	var err error
	if query.PriceMin, err = decimalParam(q, "price_min"); err != nil {
		return domain.ProductQuery{}, err
	}
	if query.PriceMax, err = decimalParam(q, "price_max"); err != nil {
		return domain.ProductQuery{}, err
	}
	if query.Featured, err = boolParam(q, "featured"); err != nil {
		return domain.ProductQuery{}, err
	}
	if query.InStock, err = boolParam(q, "in_stock"); err != nil {
		return domain.ProductQuery{}, err
	}
	if raw := strings.TrimSpace(q.Get("min_rating")); raw != "" {
		rating, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.ProductQuery{}, errors.Wrap(store.ErrInvalidInput, "min_rating must be a number")
		}
		query.MinRating = rating
	}
	return query, nil
}

func listParam(q url.Values, key string) []string {
	var values []string
	for _, raw := range q[key] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				values = append(values, part)
			}
		}
	}
	return values
}

func decimalParam(q url.Values, key string) (*decimal.Decimal, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, errors.Wrapf(store.ErrInvalidInput, "%s must be a number", key)
	}
	return &value, nil
}

func boolParam(q url.Values, key string) (bool, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.Wrapf(store.ErrInvalidInput, "%s must be true or false", key)
	}
	return value, nil
}

func (a *API) handleFilterOptions(w http.ResponseWriter, r *http.Request) {
	options, err := a.service.FilterOptions(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, options)
}

func (a *API) handleSimilarProducts(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 5, 20)
	resp, err := a.service.SimilarProducts(r.Context(), r.PathValue("productId"), limit)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := parsePositiveLimit(q.Get("limit"), 5, 20)
	suggestions, err := a.service.Suggestions(r.Context(), q.Get("q"), limit)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}
