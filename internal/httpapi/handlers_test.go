package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sawmill/backend/internal/recommendation"
	"sawmill/backend/internal/service"
	"sawmill/backend/internal/store/memory"
)

const (
	adminEmail       = "admin@sawmill.local"
	adminPassword    = "admin12345"
	customerEmail    = "customer@sawmill.local"
	customerPassword = "customer12345"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T, opts ...Option) *API {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", adminPassword)
	t.Setenv("SEED_CUSTOMER_PASSWORD", customerPassword)

	lg := zap.NewNop()
	repo, err := memory.NewSeeded(lg)
	require.NoError(t, err)
	engine := recommendation.NewEngine(nil, 0, lg)
	svc := service.New(repo, engine, lg)
	auth := NewAuthManager("test-secret-key-with-enough-bytes", time.Hour, repo)

	return New(svc, auth, append([]Option{WithAllowedOrigins("*")}, opts...)...)
}

type apiClient struct {
	t       *testing.T
	handler http.Handler
}

func newClient(t *testing.T, api *API) *apiClient {
	return &apiClient{t: t, handler: api.Handler()}
}

func (c *apiClient) do(method, path, token string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	return rec
}

func (c *apiClient) login(email, password string) (token string, userID string) {
	c.t.Helper()
	rec := c.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(c.t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		AccessToken string `json:"access_token"`
		User        struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	require.NoError(c.t, json.NewDecoder(rec.Body).Decode(&body))
	return body.AccessToken, body.User.ID
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), rec.Body.String())
	return out
}

func TestHandleHealth(t *testing.T) {
	c := newClient(t, newTestAPI(t))

	rec := c.do(http.MethodGet, "/api/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	require.Equal(t, true, body["ok"])
}

func TestHandleHealthReportsFailingDependency(t *testing.T) {
	api := newTestAPI(t, WithHealthCheck("redis", func(context.Context) error {
		return errors.New("connection refused")
	}))
	c := newClient(t, api)

	rec := c.do(http.MethodGet, "/api/healthz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	require.Equal(t, false, body["ok"])
	require.Equal(t, map[string]any{"redis": "down"}, body["dependencies"])
}

func TestHandleLogin(t *testing.T) {
	c := newClient(t, newTestAPI(t))

	token, userID := c.login(adminEmail, adminPassword)
	require.NotEmpty(t, token)
	require.NotEmpty(t, userID)

	rec := c.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": adminEmail, "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = c.do(http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeBody[struct {
		User struct {
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"user"`
	}](t, rec)
	require.Equal(t, adminEmail, me.User.Email)
	require.Equal(t, "admin", me.User.Role)
}

func TestRegisterThenDuplicate(t *testing.T) {
	c := newClient(t, newTestAPI(t))
	payload := map[string]string{"name": "Lerato", "email": "lerato@example.com", "password": "deckboards"}

	rec := c.do(http.MethodPost, "/api/auth/register", "", payload)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = c.do(http.MethodPost, "/api/auth/register", "", payload)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthorizationBoundaries(t *testing.T) {
	c := newClient(t, newTestAPI(t))
	customerToken, _ := c.login(customerEmail, customerPassword)

	rec := c.do(http.MethodGet, "/api/orders", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = c.do(http.MethodGet, "/api/orders", "not-a-token", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = c.do(http.MethodGet, "/api/orders", customerToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = c.do(http.MethodGet, "/api/analytics/daily", customerToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func createPickupOrder(t *testing.T, c *apiClient, token string, quantity int) map[string]any {
	t.Helper()
	rec := c.do(http.MethodPost, "/api/orders", token, map[string]any{
		"items":           []map[string]any{{"product_id": "prd_pine_beam", "quantity": quantity}},
		"delivery_method": "pickup",
		"customer_name":   "Demo Customer",
		"customer_email":  customerEmail,
		"customer_phone":  "0215550100",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody[struct {
		Order map[string]any `json:"order"`
	}](t, rec)
	return body.Order
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	c := newClient(t, newTestAPI(t))
	customerToken, customerID := c.login(customerEmail, customerPassword)
	adminToken, _ := c.login(adminEmail, adminPassword)

	order := createPickupOrder(t, c, customerToken, 2)
	orderID := order["id"].(string)
	require.Equal(t, "pending", order["status"])
	require.Equal(t, 900.0, order["total"], "decimals are encoded as JSON numbers")

	rec := c.do(http.MethodGet, "/api/orders/number/"+order["order_number"].(string), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = c.do(http.MethodGet, "/api/orders/user/"+customerID, customerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[struct {
		Orders     []map[string]any `json:"orders"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}](t, rec)
	require.Equal(t, 1, list.Pagination.Total)

	rec = c.do(http.MethodPatch, "/api/orders/"+orderID+"/status", adminToken, map[string]string{"status": "delivered"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decodeBody[map[string]string](t, rec)["error"], "cannot move order from pending to delivered")

	rec = c.do(http.MethodPatch, "/api/orders/"+orderID+"/status", adminToken, map[string]string{"status": "confirmed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = c.do(http.MethodPatch, "/api/orders/"+orderID+"/cancel", customerToken, map[string]string{"reason": "changed plans"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = c.do(http.MethodPatch, "/api/orders/"+orderID+"/cancel", customerToken, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.do(http.MethodGet, "/api/products/prd_pine_beam", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	product := decodeBody[struct {
		Product struct {
			Stock int `json:"stock"`
		} `json:"product"`
	}](t, rec)
	require.Equal(t, 120, product.Product.Stock)

	rec = c.do(http.MethodGet, "/api/orders/stats/overview", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestOrderIsPrivateToOwner(t *testing.T) {
	c := newClient(t, newTestAPI(t))
	customerToken, _ := c.login(customerEmail, customerPassword)
	order := createPickupOrder(t, c, customerToken, 1)

	rec := c.do(http.MethodPost, "/api/auth/register", "", map[string]string{"name": "Other", "email": "other@example.com", "password": "other-pass"})
	require.Equal(t, http.StatusCreated, rec.Code)
	otherToken := decodeBody[map[string]any](t, rec)["access_token"].(string)

	rec = c.do(http.MethodGet, "/api/orders/"+order["id"].(string), otherToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = c.do(http.MethodGet, "/api/orders/missing", otherToken, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPromotionValidateAndApply(t *testing.T) {
	c := newClient(t, newTestAPI(t))
	adminToken, _ := c.login(adminEmail, adminPassword)
	customerToken, _ := c.login(customerEmail, customerPassword)

	now := time.Now().UTC()
	rec := c.do(http.MethodPost, "/api/promotions", adminToken, map[string]any{
		"code":                "winter10",
		"description":         "Winter timber sale",
		"discount_type":       "percentage",
		"discount_value":      10,
		"minimum_order_value": 500,
		"valid_from":          now.Add(-time.Hour),
		"valid_until":         now.Add(24 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = c.do(http.MethodPost, "/api/promotions/validate", "", map[string]any{"code": "WINTER10", "order_total": 400})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "minimum order value of R500.00 required", decodeBody[map[string]string](t, rec)["error"])

	rec = c.do(http.MethodPost, "/api/promotions/validate", "", map[string]any{"code": "winter10", "order_total": 900})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	quote := decodeBody[map[string]any](t, rec)
	require.Equal(t, 90.0, quote["discount_amount"])
	require.Equal(t, 810.0, quote["final_total"])

	rec = c.do(http.MethodPost, "/api/promotions/validate", "", map[string]any{"code": "NOPE", "order_total": 900})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	order := createPickupOrder(t, c, customerToken, 2)
	rec = c.do(http.MethodPost, "/api/promotions/apply", customerToken, map[string]any{"code": "winter10", "order_id": order["id"]})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	applied := decodeBody[struct {
		Order map[string]any `json:"order"`
	}](t, rec)
	require.Equal(t, 810.0, applied.Order["total"])
	require.Equal(t, "WINTER10", applied.Order["discount_code"])

	rec = c.do(http.MethodPost, "/api/promotions/apply", customerToken, map[string]any{"code": "winter10", "order_id": order["id"]})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.do(http.MethodGet, "/api/promotions/stats", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody[map[string]any](t, rec)
	require.Equal(t, 1.0, stats["total_usage"])
}

func TestSearchAndFilters(t *testing.T) {
	c := newClient(t, newTestAPI(t))

	rec := c.do(http.MethodGet, "/api/search/advanced?category=Doors,Pillars&sort=price-asc", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[struct {
		Products []struct {
			ID string `json:"id"`
		} `json:"products"`
	}](t, rec)
	require.Len(t, resp.Products, 2)
	require.Equal(t, "prd_meranti_door", resp.Products[0].ID)

	rec = c.do(http.MethodGet, "/api/search/advanced?price_min=abc", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "price_min must be a number", decodeBody[map[string]string](t, rec)["error"])

	rec = c.do(http.MethodGet, "/api/search/filters", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = c.do(http.MethodGet, "/api/search/suggestions?q=pi", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	suggestions := decodeBody[map[string][]string](t, rec)["suggestions"]
	require.NotEmpty(t, suggestions)

	rec = c.do(http.MethodGet, "/api/search/similar/prd_pine_beam", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAnalyticsEndpoints(t *testing.T) {
	c := newClient(t, newTestAPI(t))
	adminToken, _ := c.login(adminEmail, adminPassword)

	rec := c.do(http.MethodGet, "/api/analytics/daily?date=16-10-2026", adminToken, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.do(http.MethodPost, "/api/analytics/daily/generate?date=2026-10-15", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = c.do(http.MethodGet, "/api/analytics?startDate=2026-10-01&endDate=2026-10-31", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = c.do(http.MethodGet, "/api/analytics/top-products?limit=3", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestWishlistAndSettings(t *testing.T) {
	c := newClient(t, newTestAPI(t))
	customerToken, customerID := c.login(customerEmail, customerPassword)
	adminToken, _ := c.login(adminEmail, adminPassword)

	rec := c.do(http.MethodPost, "/api/wishlist/"+customerID+"/items", customerToken, map[string]string{"product_id": "prd_ply_18"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = c.do(http.MethodGet, "/api/wishlist/public/"+customerID, "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = c.do(http.MethodPatch, "/api/wishlist/"+customerID+"/share", customerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = c.do(http.MethodGet, "/api/wishlist/public/"+customerID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = c.do(http.MethodPatch, "/api/site-settings", customerToken, map[string]string{"hero_title": "x"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = c.do(http.MethodPatch, "/api/site-settings", adminToken, map[string]string{"hero_title": "Cape Timber"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = c.do(http.MethodGet, "/api/site-settings", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	settings := decodeBody[map[string]any](t, rec)
	require.Equal(t, "Cape Timber", settings["hero_title"])
	require.Equal(t, "072 504 9184", settings["contact_phone"])
}

func TestCamelCaseRequestFields(t *testing.T) {
	c := newClient(t, newTestAPI(t))
	customerToken, _ := c.login(customerEmail, customerPassword)
	adminToken, _ := c.login(adminEmail, adminPassword)

	rec := c.do(http.MethodPost, "/api/orders", customerToken, map[string]any{
		"items":          []map[string]any{{"productId": "prd_pine_beam", "quantity": 1}},
		"deliveryMethod": "delivery",
		"shippingAddress": map[string]string{
			"street": "1 Mill Road", "city": "George", "postalCode": "6529",
		},
		"customerName":  "Demo Customer",
		"customerEmail": customerEmail,
		"customerPhone": "0215550100",
		"requestType":   "invoice",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decodeBody[struct {
		Order map[string]any `json:"order"`
	}](t, rec).Order
	require.Equal(t, "delivery", order["delivery_method"])
	require.Equal(t, "6529", order["shipping_address"].(map[string]any)["postal_code"])

	rec = c.do(http.MethodPatch, "/api/orders/"+order["id"].(string)+"/status", adminToken,
		map[string]string{"status": "confirmed", "trackingNumber": "TRK-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = c.do(http.MethodPatch, "/api/orders/"+order["id"].(string)+"/payment-status", adminToken,
		map[string]string{"paymentStatus": "completed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = c.do(http.MethodPost, "/api/promotions/validate", "", map[string]any{"code": "X", "orderTotal": 10, "bogusField": true})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
