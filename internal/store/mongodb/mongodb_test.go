package mongodb

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsonrw"

	"sawmill/backend/internal/domain"
	"sawmill/backend/internal/store"
)

func roundTrip[T any](t *testing.T, in T) T {
	t.Helper()
	buf := new(bytes.Buffer)
	vw, err := bsonrw.NewBSONValueWriter(buf)
	require.NoError(t, err)
	enc, err := bson.NewEncoder(vw)
	require.NoError(t, err)
	require.NoError(t, enc.SetRegistry(Registry()))
	require.NoError(t, enc.Encode(in))

	dec, err := bson.NewDecoder(bsonrw.NewBSONDocumentReader(buf.Bytes()))
	require.NoError(t, err)
	require.NoError(t, dec.SetRegistry(Registry()))
	var out T
	require.NoError(t, dec.Decode(&out))
	return out
}

func TestDecimalCodec(t *testing.T) {
	capped := decimal.RequireFromString("50")
	limit := 3
	in := domain.Promotion{
		ID:            "promo_1",
		Code:          "SAVE10",
		DiscountValue: decimal.RequireFromString("12.35"),
		MaxDiscount:   &capped,
		UsageLimit:    &limit,
	}
	out := roundTrip(t, in)
	require.True(t, out.DiscountValue.Equal(in.DiscountValue))
	require.NotNil(t, out.MaxDiscount)
	require.True(t, out.MaxDiscount.Equal(capped))
	require.Equal(t, 3, *out.UsageLimit)

	out = roundTrip(t, domain.Promotion{ID: "promo_2"})
	require.Nil(t, out.MaxDiscount)
	require.Nil(t, out.UsageLimit)
	require.True(t, out.DiscountValue.IsZero())
}

func TestDecimalDecodesPlainNumbers(t *testing.T) {
	type money struct {
		Amount decimal.Decimal `bson:"amount"`
	}
	for _, raw := range []any{int32(7), int64(7), 7.0, "7"} {
		t.Run(fmt.Sprintf("%T", raw), func(t *testing.T) {
			data, err := bson.Marshal(bson.M{"amount": raw})
			require.NoError(t, err)

			dec, err := bson.NewDecoder(bsonrw.NewBSONDocumentReader(data))
			require.NoError(t, err)
			require.NoError(t, dec.SetRegistry(Registry()))
			var out money
			require.NoError(t, dec.Decode(&out))
			require.True(t, out.Amount.Equal(decimal.NewFromInt(7)), "got %s", out.Amount)
		})
	}
}

// openTestStore connects to SAWMILL_TEST_MONGO_URI using a throwaway
// database.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("SAWMILL_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("SAWMILL_TEST_MONGO_URI is not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, Config{
		URI:          uri,
		Database:     fmt.Sprintf("sawmill_test_%d", time.Now().UnixNano()),
		Transactions: os.Getenv("SAWMILL_TEST_MONGO_TRANSACTIONS") == "true",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.db.Drop(context.Background())
		_ = s.Close(context.Background())
	})
	return s
}

func seedProduct(t *testing.T, s *Store, id string, stock int) {
	t.Helper()
	_, err := s.CreateProduct(context.Background(), domain.Product{
		ID:          id,
		Name:        "Pine Beam " + id,
		Category:    "4x4 Timber",
		WoodType:    "Pine",
		Price:       decimal.RequireFromString("450"),
		Stock:       stock,
		IsAvailable: true,
		Tags:        []string{"structural"},
	})
	require.NoError(t, err)
}

func TestOrderStockLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedProduct(t, s, "prd_beam", 10)

	seq, err := s.NextOrderNumber(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, seq)

	order := domain.Order{
		OrderNumber: "ORD-000001",
		UserID:      "usr_1",
		Items:       []domain.OrderLine{{ProductID: "prd_beam", ProductName: "Pine Beam", Quantity: 4, UnitPrice: decimal.RequireFromString("450")}},
		Subtotal:    decimal.RequireFromString("1800"),
		Total:       decimal.RequireFromString("1800"),
		Status:      domain.OrderStatusPending,
		RequestType: domain.RequestTypeInvoice,
	}
	created, err := s.CreateOrder(ctx, order)
	require.NoError(t, err)

	product, err := s.GetProduct(ctx, "prd_beam")
	require.NoError(t, err)
	require.Equal(t, 6, product.Stock)

	order.OrderNumber = "ORD-000002"
	order.Items[0].Quantity = 7
	_, err = s.CreateOrder(ctx, order)
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	_, err = s.UpdateOrderStatus(ctx, created.ID, domain.OrderStatusConfirmed, domain.StatusUpdate{Status: domain.OrderStatusProcessing, At: time.Now().UTC()})
	require.ErrorIs(t, err, store.ErrConflict)

	closure := domain.OrderClosure{
		Status:      domain.OrderStatusCancelled,
		Entry:       domain.StatusEntry{Status: domain.OrderStatusCancelled, Timestamp: time.Now().UTC()},
		BlockedFrom: domain.CancelBlockedStatuses,
	}
	closed, err := s.CloseOrder(ctx, created.ID, closure)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, closed.Status)

	_, err = s.CloseOrder(ctx, created.ID, closure)
	require.ErrorIs(t, err, store.ErrInvalidState)

	product, err = s.GetProduct(ctx, "prd_beam")
	require.NoError(t, err)
	require.Equal(t, 10, product.Stock)
}

func TestResumeRestocksSettlesEachLineOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedProduct(t, s, "prd_a", 10)
	seedProduct(t, s, "prd_b", 10)

	lines := []domain.OrderLine{
		{ProductID: "prd_a", Quantity: 2, UnitPrice: decimal.RequireFromString("450")},
		{ProductID: "prd_b", Quantity: 3, UnitPrice: decimal.RequireFromString("450")},
	}
	_, err := s.col(colOrders).InsertOne(ctx, closedOrder{
		Order: domain.Order{
			ID:          "ord_half_closed",
			OrderNumber: "ORD-000009",
			Items:       lines,
			Status:      domain.OrderStatusCancelled,
			RequestType: domain.RequestTypeInvoice,
		},
		PendingRestock: lines,
	})
	require.NoError(t, err)
	// prd_a was returned before the close was interrupted.
	_, err = s.col(colProducts).UpdateOne(ctx, bson.M{"_id": "prd_a"}, bson.M{
		"$inc":  bson.M{"stock": 2},
		"$push": bson.M{"restock_marks": restockMark("ord_half_closed", "prd_a")},
	})
	require.NoError(t, err)

	stockOf := func(id string) int {
		product, err := s.GetProduct(ctx, id)
		require.NoError(t, err)
		return product.Stock
	}
	for range 2 {
		require.NoError(t, s.ResumeRestocks(ctx))
		require.Equal(t, 12, stockOf("prd_a"))
		require.Equal(t, 13, stockOf("prd_b"))
	}

	var after closedOrder
	require.NoError(t, s.col(colOrders).FindOne(ctx, bson.M{"_id": "ord_half_closed"}).Decode(&after))
	require.Empty(t, after.PendingRestock)

	marked, err := s.col(colProducts).CountDocuments(ctx, bson.M{"restock_marks.0": bson.M{"$exists": true}})
	require.NoError(t, err)
	require.Zero(t, marked)
}

func TestRedeemPromotionRespectsUsageLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedProduct(t, s, "prd_beam", 100)
	now := time.Now().UTC()

	limit := 2
	promo, err := s.CreatePromotion(ctx, domain.Promotion{
		Code:             "BEAMS",
		DiscountType:     domain.DiscountFixedAmount,
		DiscountValue:    decimal.RequireFromString("50"),
		UsageLimit:       &limit,
		UsagePerCustomer: 1,
		ValidFrom:        now.Add(-time.Hour),
		ValidUntil:       now.Add(time.Hour),
		Active:           true,
	})
	require.NoError(t, err)

	const orders = 5
	ids := make([]string, orders)
	for i := range ids {
		created, err := s.CreateOrder(ctx, domain.Order{
			OrderNumber: fmt.Sprintf("ORD-%06d", i+1),
			UserID:      fmt.Sprintf("usr_%d", i),
			Items:       []domain.OrderLine{{ProductID: "prd_beam", Quantity: 1, UnitPrice: decimal.RequireFromString("450")}},
			Subtotal:    decimal.RequireFromString("450"),
			Total:       decimal.RequireFromString("450"),
			Status:      domain.OrderStatusPending,
		})
		require.NoError(t, err)
		ids[i] = created.ID
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		redeemed int
	)
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, order, err := s.RedeemPromotion(ctx, domain.RedemptionRequest{
				PromotionID:      promo.ID,
				Code:             promo.Code,
				OrderID:          id,
				UserID:           fmt.Sprintf("usr_%d", i),
				Discount:         decimal.RequireFromString("50"),
				ExpectedSubtotal: decimal.RequireFromString("450"),
				At:               now,
			})
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if order.Total.Equal(decimal.RequireFromString("400")) {
				redeemed++
			}
		}()
	}
	wg.Wait()
	require.Equal(t, limit, redeemed)

	stored, err := s.GetPromotion(ctx, promo.ID)
	require.NoError(t, err)
	require.Equal(t, limit, stored.UsageCount)
	require.Len(t, stored.UsedBy, limit)

	stats, err := s.PromotionStats(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.ActivePromotions)
	require.True(t, stats.TotalDiscountGiven.Equal(decimal.RequireFromString("100")))
}

func TestReviewAggregates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i, rating := range []int{5, 4, 4} {
		_, err := s.CreateReview(ctx, domain.Review{
			ProductID: "prd_beam",
			UserID:    fmt.Sprintf("usr_%d", i),
			Rating:    rating,
			Status:    domain.ReviewStatusApproved,
		})
		require.NoError(t, err)
	}
	_, err := s.CreateReview(ctx, domain.Review{ProductID: "prd_beam", UserID: "usr_0", Rating: 1})
	require.ErrorIs(t, err, store.ErrConflict)

	dist, err := s.RatingDistribution(ctx, "prd_beam")
	require.NoError(t, err)
	require.Equal(t, []domain.RatingCount{{Rating: 5, Count: 1}, {Rating: 4, Count: 2}}, dist)

	ratings, err := s.ProductRatings(ctx, []string{"prd_beam", "prd_door"})
	require.NoError(t, err)
	require.Len(t, ratings, 1)
	require.EqualValues(t, 3, ratings["prd_beam"].Count)
	require.InDelta(t, 4.333, ratings["prd_beam"].Average, 0.001)
}

func TestWishlistAndAlerts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	_, err := s.GetWishlist(ctx, "usr_1")
	require.ErrorIs(t, err, store.ErrNotFound)

	wishlist, err := s.AddWishlistItem(ctx, "usr_1", domain.WishlistItem{ProductID: "prd_beam", AddedAt: now}, now)
	require.NoError(t, err)
	require.Len(t, wishlist.Items, 1)

	_, err = s.AddWishlistItem(ctx, "usr_1", domain.WishlistItem{ProductID: "prd_beam", AddedAt: now}, now)
	require.ErrorIs(t, err, store.ErrConflict)

	wishlist, err = s.UpdateWishlistItemNotes(ctx, "usr_1", "prd_beam", "for the deck", now)
	require.NoError(t, err)
	require.Equal(t, "for the deck", wishlist.Items[0].Notes)

	wishlist, err = s.ClearWishlist(ctx, "usr_1", now)
	require.NoError(t, err)
	require.Empty(t, wishlist.Items)

	alert, err := s.CreateInventoryAlert(ctx, domain.InventoryAlert{ProductID: "prd_beam", AlertType: domain.AlertLowStock})
	require.NoError(t, err)
	open, err := s.HasOpenInventoryAlert(ctx, "prd_beam", domain.AlertLowStock)
	require.NoError(t, err)
	require.True(t, open)

	_, err = s.AcknowledgeInventoryAlert(ctx, alert.ID, "admin@sawmill.local", "reordered", now)
	require.NoError(t, err)
	_, err = s.AcknowledgeInventoryAlert(ctx, alert.ID, "admin@sawmill.local", "reordered", now)
	require.ErrorIs(t, err, store.ErrInvalidState)
	_, err = s.AcknowledgeInventoryAlert(ctx, "alert_missing", "admin@sawmill.local", "", now)
	require.ErrorIs(t, err, store.ErrNotFound)
}
