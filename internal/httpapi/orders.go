package httpapi

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"sawmill/backend/internal/domain"
)

func (a *API) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	order, err := a.service.CreateOrder(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Order created successfully", "order": order})
}

func (a *API) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, err := a.dayBounds(q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		a.fail(w, err)
		return
	}
	resp, err := a.service.ListOrders(r.Context(), q.Get("status"), from, to, paging(r))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// dayBounds turns optional YYYY-MM-DD values into an inclusive
// [start of first day, end of last day] window.
func (a *API) dayBounds(start, end string) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if strings.TrimSpace(start) != "" {
		day, err := a.service.ParseDay(start)
		if err != nil {
			return nil, nil, err
		}
		from = &day
	}
	if strings.TrimSpace(end) != "" {
		day, err := a.service.ParseDay(end)
		if err != nil {
			return nil, nil, err
		}
		last := day.AddDate(0, 0, 1).Add(-time.Millisecond)
		to = &last
	}
	return from, to, nil
}

func (a *API) handleOrderStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.service.GetOrderStats(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleOrderByNumber(w http.ResponseWriter, r *http.Request) {
	order, err := a.service.GetOrderByNumber(r.Context(), r.PathValue("orderNumber"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (a *API) handleUserOrders(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.ListUserOrders(r.Context(), r.PathValue("userId"), r.URL.Query().Get("status"), paging(r))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.service.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (a *API) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateOrderStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	order, err := a.service.UpdateOrderStatus(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Order status updated", "order": order})
}

func (a *API) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdatePaymentStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	order, err := a.service.UpdatePaymentStatus(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Payment status updated", "order": order})
}

func (a *API) handleOrderFinancials(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateFinancialsRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	order, err := a.service.UpdateOrderFinancials(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Order financials updated", "order": order})
}

func (a *API) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeReason(w, r)
	if !ok {
		return
	}
	order, err := a.service.CancelOrder(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Order cancelled successfully", "order": order})
}

func (a *API) handleRefundOrder(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeReason(w, r)
	if !ok {
		return
	}
	order, err := a.service.RefundOrder(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Order refunded successfully", "order": order})
}

// decodeReason accepts an empty body.
func (a *API) decodeReason(w http.ResponseWriter, r *http.Request) (domain.OrderReasonRequest, bool) {
	var req domain.OrderReasonRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		a.writeError(w, http.StatusBadRequest, err)
		return req, false
	}
	return req, true
}
