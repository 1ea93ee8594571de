package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"sawmill/backend/internal/domain"
	"sawmill/backend/internal/store"
)

func (a *API) handleProductReviews(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.ListProductReviews(r.Context(), r.PathValue("productId"), paging(r))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateReviewRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	review, err := a.service.CreateReview(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Review submitted for moderation", "review": review})
}

func (a *API) handleUserReviews(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.ListUserReviews(r.Context(), r.PathValue("userId"), paging(r))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handlePendingReviews(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.ListPendingReviews(r.Context(), paging(r))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleUpdateReview(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateReviewRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	review, err := a.service.UpdateReview(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"review": review})
}

func (a *API) handleDeleteReview(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteReview(r.Context(), r.PathValue("id")); err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Review deleted successfully"})
}

func (a *API) handleVoteReview(w http.ResponseWriter, r *http.Request) {
	var req domain.ReviewVoteRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	review, err := a.service.VoteReview(r.Context(), r.PathValue("id"), req.Helpful)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"helpful": review.Helpful, "unhelpful": review.Unhelpful})
}

func (a *API) handleModerateReview(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		review, err := a.service.ModerateReview(r.Context(), r.PathValue("id"), approve)
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"review": review})
	}
}

func (a *API) handleGetWishlist(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.GetWishlist(r.Context(), r.PathValue("userId"))
	a.writeWishlist(w, view, err)
}

func (a *API) handleAddWishlistItem(w http.ResponseWriter, r *http.Request) {
	var req domain.WishlistItemRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := a.service.AddWishlistItem(r.Context(), r.PathValue("userId"), req)
	a.writeWishlist(w, view, err)
}

func (a *API) handleWishlistNotes(w http.ResponseWriter, r *http.Request) {
	var req domain.WishlistNotesRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := a.service.UpdateWishlistNotes(r.Context(), r.PathValue("userId"), r.PathValue("productId"), req.Notes)
	a.writeWishlist(w, view, err)
}

func (a *API) handleRemoveWishlistItem(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.RemoveWishlistItem(r.Context(), r.PathValue("userId"), r.PathValue("productId"))
	a.writeWishlist(w, view, err)
}

func (a *API) handleClearWishlist(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.ClearWishlist(r.Context(), r.PathValue("userId"))
	a.writeWishlist(w, view, err)
}

func (a *API) handleShareWishlist(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.ShareWishlist(r.Context(), r.PathValue("userId"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"wishlist":  view,
		"share_url": "/wishlist/public/" + view.UserID,
	})
}

func (a *API) handlePublicWishlist(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.GetPublicWishlist(r.Context(), r.PathValue("userId"))
	a.writeWishlist(w, view, err)
}

func (a *API) writeWishlist(w http.ResponseWriter, view domain.WishlistView, err error) {
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"wishlist": view})
}

func (a *API) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := a.service.GetSiteSettings(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handleUpdateSettings passes the raw patch through so absent keys keep
// their stored value.
func (a *API) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	settings, err := a.service.UpdateSiteSettings(r.Context(), patch)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Settings updated successfully", "settings": settings})
}

func (a *API) handleInventoryAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var acknowledged *bool
	if raw := strings.TrimSpace(q.Get("acknowledged")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, errors.New("acknowledged must be true or false"))
			return
		}
		acknowledged = &parsed
	}
	alerts, err := a.service.ListInventoryAlerts(r.Context(), acknowledged, parsePositiveLimit(q.Get("limit"), 50, 200))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (a *API) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	var req domain.AcknowledgeAlertRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	alert, err := a.service.AcknowledgeInventoryAlert(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alert": alert})
}

// handleAuditLogs reads from and to as YYYY-MM-DD days, both inclusive.
func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var from, to time.Time
	if raw := q.Get("from"); raw != "" {
		day, err := a.service.ParseDay(raw)
		if err != nil {
			a.fail(w, err)
			return
		}
		from = day
	}
	if raw := q.Get("to"); raw != "" {
		day, err := a.service.ParseDay(raw)
		if err != nil {
			a.fail(w, err)
			return
		}
		to = day.AddDate(0, 0, 1)
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		a.fail(w, errors.Wrap(store.ErrInvalidInput, "from must not be after to"))
		return
	}

	logs, err := a.service.ListAuditLogs(r.Context(), from, to, parsePositiveLimit(q.Get("limit"), 100, 500))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}
