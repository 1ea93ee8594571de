package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-faster/errors"

	"sawmill/backend/internal/domain"
)

func (a *API) handleValidatePromotion(w http.ResponseWriter, r *http.Request) {
	var req domain.ValidatePromotionRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	quote, err := a.service.ValidatePromotion(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (a *API) handleApplyPromotion(w http.ResponseWriter, r *http.Request) {
	var req domain.ApplyPromotionRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.ApplyPromotion(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListPromotions(w http.ResponseWriter, r *http.Request) {
	activeOnly := true
	if raw := r.URL.Query().Get("active"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, errors.New("active must be true or false"))
			return
		}
		activeOnly = parsed
	}
	resp, err := a.service.ListPromotions(r.Context(), activeOnly, paging(r))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCreatePromotion(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePromotionRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	promo, err := a.service.CreatePromotion(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Promotion created successfully", "promotion": promo})
}

func (a *API) handlePromotionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.service.PromotionStats(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleGetPromotion(w http.ResponseWriter, r *http.Request) {
	promo, err := a.service.GetPromotion(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"promotion": promo})
}

func (a *API) handleUpdatePromotion(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdatePromotionRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	promo, err := a.service.UpdatePromotion(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Promotion updated successfully", "promotion": promo})
}

func (a *API) handleDeletePromotion(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeletePromotion(r.Context(), r.PathValue("id")); err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Promotion deleted successfully"})
}
