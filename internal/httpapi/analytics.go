package httpapi

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
)

func (a *API) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := a.service.GetAnalytics(r.Context(), q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleDailyAnalytics(w http.ResponseWriter, r *http.Request) {
	daily, err := a.service.GetDailyAnalytics(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, daily)
}

type generateAnalyticsRequest struct {
	Date string `json:"date,omitempty"`
}

// handleGenerateAnalytics takes the day from the query string or the body.
// Neither means today.
func (a *API) handleGenerateAnalytics(w http.ResponseWriter, r *http.Request) {
	req := generateAnalyticsRequest{Date: r.URL.Query().Get("date")}
	if req.Date == "" {
		if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	daily, err := a.service.GenerateDailyAnalytics(r.Context(), req.Date)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Analytics generated successfully", "analytics": daily})
}

func (a *API) handleTopProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := parsePositiveLimit(q.Get("limit"), 10, 100)
	products, err := a.service.TopProducts(r.Context(), q.Get("startDate"), q.Get("endDate"), limit)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleRevenueChart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	points, err := a.service.RevenueChart(r.Context(), q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chart": points})
}

func (a *API) handleCategoryPerformance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	categories, err := a.service.CategoryPerformance(r.Context(), q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (a *API) handlePaymentMethods(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	methods, err := a.service.PaymentMethodBreakdown(r.Context(), q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payment_methods": methods})
}
