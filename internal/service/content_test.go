package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"sawmill/backend/internal/domain"
	"sawmill/backend/internal/store"
)

func approvedReview(t *testing.T, svc *Service, actor domain.Actor, productID string, rating int) domain.Review {
	t.Helper()
	review, err := svc.CreateReview(as(actor), domain.CreateReviewRequest{
		ProductID: productID,
		Rating:    rating,
		Title:     "Solid timber",
		Comment:   "Straight and dry, as advertised.",
	})
	require.NoError(t, err)
	review, err = svc.ModerateReview(as(adminActor), review.ID, true)
	require.NoError(t, err)
	return review
}

func TestCreateReviewValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := as(customerActor)

	tests := []struct {
		name    string
		req     domain.CreateReviewRequest
		wantErr error
	}{
		{name: "rating too low", req: domain.CreateReviewRequest{ProductID: "prd_pine_board", Rating: 0, Title: "t", Comment: "c"}, wantErr: store.ErrInvalidInput},
		{name: "rating too high", req: domain.CreateReviewRequest{ProductID: "prd_pine_board", Rating: 6, Title: "t", Comment: "c"}, wantErr: store.ErrInvalidInput},
		{name: "long title", req: domain.CreateReviewRequest{ProductID: "prd_pine_board", Rating: 4, Title: strings.Repeat("x", 101), Comment: "c"}, wantErr: store.ErrInvalidInput},
		{name: "missing comment", req: domain.CreateReviewRequest{ProductID: "prd_pine_board", Rating: 4, Title: "t"}, wantErr: store.ErrInvalidInput},
		{name: "unknown product", req: domain.CreateReviewRequest{ProductID: "prd_missing", Rating: 4, Title: "t", Comment: "c"}, wantErr: store.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateReview(ctx, tt.req)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestReviewLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	customer := as(customerActor)

	order, err := svc.CreateOrder(customer, orderRequest(item("prd_pine_board", 1)))
	require.NoError(t, err)
	for _, status := range []string{domain.OrderStatusProcessing, domain.OrderStatusShipped, domain.OrderStatusDelivered} {
		_, err = svc.UpdateOrderStatus(as(adminActor), order.ID, domain.UpdateOrderStatusRequest{Status: status})
		require.NoError(t, err)
	}

	review, err := svc.CreateReview(customer, domain.CreateReviewRequest{
		ProductID: "prd_pine_board",
		OrderID:   order.ID,
		Rating:    4,
		Title:     "Good boards",
		Comment:   "Very few knots.",
	})
	require.NoError(t, err)
	require.True(t, review.Verified)
	require.Equal(t, domain.ReviewStatusPending, review.Status)

	_, err = svc.CreateReview(customer, domain.CreateReviewRequest{ProductID: "prd_pine_board", Rating: 5, Title: "Again", Comment: "Again"})
	require.ErrorIs(t, err, store.ErrConflict)

	listed, err := svc.ListProductReviews(context.Background(), "prd_pine_board", Paging{})
	require.NoError(t, err)
	require.Empty(t, listed.Reviews)

	pending, err := svc.ListPendingReviews(as(adminActor), Paging{})
	require.NoError(t, err)
	require.Len(t, pending.Reviews, 1)

	_, err = svc.ModerateReview(as(adminActor), review.ID, true)
	require.NoError(t, err)
	approvedReview(t, svc, otherActor, "prd_pine_board", 5)

	listed, err = svc.ListProductReviews(context.Background(), "prd_pine_board", Paging{})
	require.NoError(t, err)
	require.Len(t, listed.Reviews, 2)
	require.NotNil(t, listed.Stats)
	require.EqualValues(t, 2, listed.Stats.TotalReviews)
	require.InDelta(t, 4.5, listed.Stats.AverageRating, 0.001)
	require.Equal(t, 5, listed.Stats.RatingDistribution[0].Rating)

	voted, err := svc.VoteReview(as(otherActor), review.ID, true)
	require.NoError(t, err)
	require.Equal(t, 1, voted.Helpful)

	_, err = svc.UpdateReview(as(otherActor), review.ID, domain.UpdateReviewRequest{})
	require.ErrorIs(t, err, store.ErrForbidden)

	rating := 3
	edited, err := svc.UpdateReview(customer, review.ID, domain.UpdateReviewRequest{Rating: &rating})
	require.NoError(t, err)
	require.Equal(t, domain.ReviewStatusPending, edited.Status)
	require.Equal(t, 1, edited.Helpful)

	require.ErrorIs(t, svc.DeleteReview(as(otherActor), review.ID), store.ErrForbidden)
	require.NoError(t, svc.DeleteReview(as(adminActor), review.ID))

	mine, err := svc.ListUserReviews(customer, customerActor.UserID, Paging{})
	require.NoError(t, err)
	require.Empty(t, mine.Reviews)
}

func TestWishlistLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := as(customerActor)
	userID := customerActor.UserID

	view, err := svc.GetWishlist(ctx, userID)
	require.NoError(t, err)
	require.Zero(t, view.ItemCount)
	require.NotEmpty(t, view.ID)

	_, err = svc.GetWishlist(as(otherActor), userID)
	require.ErrorIs(t, err, store.ErrForbidden)

	view, err = svc.AddWishlistItem(ctx, userID, domain.WishlistItemRequest{ProductID: "prd_kiaat_frame", Notes: "for the lounge"})
	require.NoError(t, err)
	require.Equal(t, 1, view.ItemCount)
	require.Equal(t, "prd_kiaat_frame", view.Products[0].ID)

	_, err = svc.AddWishlistItem(ctx, userID, domain.WishlistItemRequest{ProductID: "prd_kiaat_frame"})
	require.ErrorIs(t, err, store.ErrConflict)
	_, err = svc.AddWishlistItem(ctx, userID, domain.WishlistItemRequest{ProductID: "prd_missing"})
	require.ErrorIs(t, err, store.ErrNotFound)

	view, err = svc.UpdateWishlistNotes(ctx, userID, "prd_kiaat_frame", "for the study")
	require.NoError(t, err)
	require.Equal(t, "for the study", view.Items[0].Notes)
	_, err = svc.UpdateWishlistNotes(ctx, userID, "prd_oak_pillar", "nope")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.GetPublicWishlist(context.Background(), userID)
	require.ErrorIs(t, err, store.ErrNotFound)

	view, err = svc.ShareWishlist(ctx, userID)
	require.NoError(t, err)
	require.True(t, view.IsPublic)

	public, err := svc.GetPublicWishlist(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, 1, public.ItemCount)

	view, err = svc.RemoveWishlistItem(ctx, userID, "prd_kiaat_frame")
	require.NoError(t, err)
	require.Zero(t, view.ItemCount)

	_, err = svc.AddWishlistItem(ctx, userID, domain.WishlistItemRequest{ProductID: "prd_ply_18"})
	require.NoError(t, err)
	view, err = svc.ClearWishlist(ctx, userID)
	require.NoError(t, err)
	require.Empty(t, view.Items)
	require.True(t, view.IsPublic)
}

func TestSearchProducts(t *testing.T) {
	svc, _ := newTestService(t)
	approvedReview(t, svc, customerActor, "prd_meranti_door", 5)
	approvedReview(t, svc, otherActor, "prd_pine_board", 2)

	resp, err := svc.SearchProducts(context.Background(), domain.ProductQuery{Categories: []string{"Boards", "Doors"}, Sort: domain.SortPriceAsc})
	require.NoError(t, err)
	require.Len(t, resp.Products, 2)
	require.Equal(t, "prd_pine_board", resp.Products[0].ID)
	require.EqualValues(t, 1, resp.Products[0].ReviewCount)

	resp, err = svc.SearchProducts(context.Background(), domain.ProductQuery{MinRating: 4})
	require.NoError(t, err)
	require.Len(t, resp.Products, 1)
	require.Equal(t, "prd_meranti_door", resp.Products[0].ID)
	require.InDelta(t, 5.0, resp.Products[0].AverageRating, 0.001)
	require.EqualValues(t, 1, resp.Pagination.Total)

	resp, err = svc.SearchProducts(context.Background(), domain.ProductQuery{Search: "PINE", Limit: 1})
	require.NoError(t, err)
	require.Len(t, resp.Products, 1)
	require.EqualValues(t, 2, resp.Pagination.Total)
	require.Equal(t, 2, resp.Pagination.Pages)

	_, err = svc.SearchProducts(context.Background(), domain.ProductQuery{Sort: "random"})
	require.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestFilterOptionsAndSuggestions(t *testing.T) {
	svc, _ := newTestService(t)

	options, err := svc.FilterOptions(context.Background())
	require.NoError(t, err)
	require.Contains(t, options.Categories, "Doors")
	require.Contains(t, options.WoodTypes, "Kiaat")
	require.True(t, options.PriceRange.Min.Equal(dec("180")))
	require.True(t, options.PriceRange.Max.Equal(dec("3200")))
	require.Equal(t, []int{4, 3, 2, 1}, options.RatingOptions)

	names, err := svc.Suggestions(context.Background(), "p", 5)
	require.NoError(t, err)
	require.Empty(t, names)

	names, err = svc.Suggestions(context.Background(), "pi", 5)
	require.NoError(t, err)
	require.Equal(t, []string{"Oak Pillar 150x150", "Pine Beam 38x114", "Pine Board 22x152"}, names)
}

func TestSimilarProducts(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.CreateProduct(as(adminActor), domain.ProductCreateRequest{
		Name:        "Pine Board 22x228",
		Description: "Wider shelving board.",
		Category:    "Boards",
		WoodType:    "Pine",
		Price:       dec("240"),
		Stock:       40,
	})
	require.NoError(t, err)

	resp, err := svc.SimilarProducts(context.Background(), "prd_pine_board", 0)
	require.NoError(t, err)
	require.Equal(t, "prd_pine_board", resp.ProductID)
	require.Len(t, resp.Products, 1)
	require.Equal(t, "same_wood_type", resp.Products[0].Reason)

	_, err = svc.SimilarProducts(context.Background(), "prd_missing", 5)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCatalogAdmin(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateProduct(as(customerActor), domain.ProductCreateRequest{Name: "x"})
	require.ErrorIs(t, err, store.ErrForbidden)

	_, err = svc.CreateProduct(as(adminActor), domain.ProductCreateRequest{
		Name: "Beam", Description: "d", Category: "Beams", WoodType: "Pine", Price: dec("1"),
	})
	require.ErrorIs(t, err, store.ErrInvalidInput)

	price := dec("-1")
	_, err = svc.UpdateProduct(as(adminActor), "prd_ply_18", domain.ProductUpdateRequest{Price: &price})
	require.ErrorIs(t, err, store.ErrInvalidInput)

	stock := 75
	updated, err := svc.UpdateProduct(as(adminActor), "prd_ply_18", domain.ProductUpdateRequest{Stock: &stock})
	require.NoError(t, err)
	require.Equal(t, 75, updated.Stock)
	require.True(t, updated.UpdatedAt.Equal(fixedNow))
}

func TestSiteSettingsPartialUpdate(t *testing.T) {
	svc, _ := newTestService(t)

	settings, err := svc.GetSiteSettings(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.DefaultSiteSettings().HeroTitle, settings.HeroTitle)

	_, err = svc.UpdateSiteSettings(as(customerActor), json.RawMessage(`{"hero_title":"x"}`))
	require.ErrorIs(t, err, store.ErrForbidden)
	_, err = svc.UpdateSiteSettings(as(adminActor), json.RawMessage(`[1,2]`))
	require.ErrorIs(t, err, store.ErrInvalidInput)

	updated, err := svc.UpdateSiteSettings(as(adminActor), json.RawMessage(`{"hero_title":"Winter Timber Sale"}`))
	require.NoError(t, err)
	require.Equal(t, "Winter Timber Sale", updated.HeroTitle)
	require.Equal(t, domain.DefaultSiteSettings().AboutTitle, updated.AboutTitle)
	require.Equal(t, adminActor.Email, updated.UpdatedBy)

	settings, err = svc.GetSiteSettings(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Winter Timber Sale", settings.HeroTitle)
}

func TestAcknowledgeInventoryAlert(t *testing.T) {
	svc, _ := newTestService(t)
	admin := as(adminActor)

	_, err := svc.CreateOrder(as(customerActor), orderRequest(item("prd_oak_pillar", 5)))
	require.NoError(t, err)

	open := false
	alerts, err := svc.ListInventoryAlerts(admin, &open, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	acked, err := svc.AcknowledgeInventoryAlert(admin, alerts[0].ID, domain.AcknowledgeAlertRequest{ActionTaken: "reordered"})
	require.NoError(t, err)
	require.True(t, acked.Acknowledged)
	require.Equal(t, adminActor.Email, acked.AcknowledgedBy)
	require.Equal(t, "reordered", acked.ActionTaken)

	_, err = svc.AcknowledgeInventoryAlert(admin, alerts[0].ID, domain.AcknowledgeAlertRequest{})
	require.ErrorIs(t, err, store.ErrInvalidState)

	alerts, err = svc.ListInventoryAlerts(admin, &open, 0)
	require.NoError(t, err)
	require.Empty(t, alerts)

	_, err = svc.ListInventoryAlerts(as(customerActor), nil, 0)
	require.ErrorIs(t, err, store.ErrForbidden)
}
