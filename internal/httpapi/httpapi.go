package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sawmill/backend/internal/domain"
	"sawmill/backend/internal/service"
	"sawmill/backend/internal/store"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

const maxBodyBytes = 1 << 20

type API struct {
	service        *service.Service
	auth           *AuthManager
	allowedOrigins []string
	loginLimiter   *attemptLimiter
	checks         []healthCheck
	lg             *zap.Logger
}

type healthCheck struct {
	name  string
	check func(ctx context.Context) error
}

type Option func(*API)

// WithAllowedOrigins sets the CORS allow list. "*" allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(a *API) {
		a.allowedOrigins = origins
	}
}

func WithLogger(lg *zap.Logger) Option {
	return func(a *API) {
		if lg != nil {
			a.lg = lg
		}
	}
}

// WithHealthCheck adds a dependency probe to /api/healthz.
func WithHealthCheck(name string, check func(ctx context.Context) error) Option {
	return func(a *API) {
		a.checks = append(a.checks, healthCheck{name: name, check: check})
	}
}

func New(svc *service.Service, auth *AuthManager, opts ...Option) *API {
	a := &API{
		service:      svc,
		auth:         auth,
		loginLimiter: newAttemptLimiter(5, time.Minute),
		lg:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.lg = a.lg.Named("http")
	return a
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[key][:0:0]
	for _, ts := range l.entries[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	admin := domain.RoleAdmin

	mux.HandleFunc("GET /api/healthz", a.handleHealth)

	mux.HandleFunc("POST /api/auth/register", a.handleRegister)
	mux.HandleFunc("POST /api/auth/login", a.handleLogin)
	mux.HandleFunc("GET /api/auth/me", a.requireAuth(a.handleMe))

	mux.HandleFunc("POST /api/orders", a.requireAuth(a.handleCreateOrder))
	mux.HandleFunc("GET /api/orders", a.requireAuth(a.handleListOrders, admin))
	mux.HandleFunc("GET /api/orders/stats/overview", a.requireAuth(a.handleOrderStats, admin))
	mux.HandleFunc("GET /api/orders/number/{orderNumber}", a.handleOrderByNumber)
	mux.HandleFunc("GET /api/orders/user/{userId}", a.requireAuth(a.handleUserOrders))
	mux.HandleFunc("GET /api/orders/{id}", a.requireAuth(a.handleGetOrder))
	mux.HandleFunc("PATCH /api/orders/{id}/status", a.requireAuth(a.handleOrderStatus, admin))
	mux.HandleFunc("PATCH /api/orders/{id}/payment-status", a.requireAuth(a.handlePaymentStatus, admin))
	mux.HandleFunc("PATCH /api/orders/{id}/financials", a.requireAuth(a.handleOrderFinancials, admin))
	mux.HandleFunc("PATCH /api/orders/{id}/cancel", a.requireAuth(a.handleCancelOrder))
	mux.HandleFunc("PATCH /api/orders/{id}/refund", a.requireAuth(a.handleRefundOrder, admin))

	mux.HandleFunc("POST /api/promotions/validate", a.optionalAuth(a.handleValidatePromotion))
	mux.HandleFunc("POST /api/promotions/apply", a.requireAuth(a.handleApplyPromotion))
	mux.HandleFunc("GET /api/promotions", a.optionalAuth(a.handleListPromotions))
	mux.HandleFunc("POST /api/promotions", a.requireAuth(a.handleCreatePromotion, admin))
	mux.HandleFunc("GET /api/promotions/stats", a.requireAuth(a.handlePromotionStats, admin))
	mux.HandleFunc("GET /api/promotions/{id}", a.requireAuth(a.handleGetPromotion, admin))
	mux.HandleFunc("PATCH /api/promotions/{id}", a.requireAuth(a.handleUpdatePromotion, admin))
	mux.HandleFunc("DELETE /api/promotions/{id}", a.requireAuth(a.handleDeletePromotion, admin))

	mux.HandleFunc("GET /api/analytics", a.requireAuth(a.handleAnalytics, admin))
	mux.HandleFunc("GET /api/analytics/daily", a.requireAuth(a.handleDailyAnalytics, admin))
	mux.HandleFunc("POST /api/analytics/daily/generate", a.requireAuth(a.handleGenerateAnalytics, admin))
	mux.HandleFunc("GET /api/analytics/top-products", a.requireAuth(a.handleTopProducts, admin))
	mux.HandleFunc("GET /api/analytics/revenue-chart", a.requireAuth(a.handleRevenueChart, admin))
	mux.HandleFunc("GET /api/analytics/categories", a.requireAuth(a.handleCategoryPerformance, admin))
	mux.HandleFunc("GET /api/analytics/payment-methods", a.requireAuth(a.handlePaymentMethods, admin))

	mux.HandleFunc("GET /api/products/{id}", a.handleGetProduct)
	mux.HandleFunc("POST /api/products", a.requireAuth(a.handleCreateProduct, admin))
	mux.HandleFunc("PATCH /api/products/{id}", a.requireAuth(a.handleUpdateProduct, admin))

	mux.HandleFunc("GET /api/search/advanced", a.handleSearch)
	mux.HandleFunc("GET /api/search/filters", a.handleFilterOptions)
	mux.HandleFunc("GET /api/search/similar/{productId}", a.handleSimilarProducts)
	mux.HandleFunc("GET /api/search/suggestions", a.handleSuggestions)

	mux.HandleFunc("GET /api/reviews/product/{productId}", a.handleProductReviews)
	mux.HandleFunc("POST /api/reviews", a.requireAuth(a.handleCreateReview))
	mux.HandleFunc("GET /api/reviews/user/{userId}", a.requireAuth(a.handleUserReviews))
	mux.HandleFunc("GET /api/reviews/admin/pending", a.requireAuth(a.handlePendingReviews, admin))
	mux.HandleFunc("PATCH /api/reviews/{id}", a.requireAuth(a.handleUpdateReview))
	mux.HandleFunc("DELETE /api/reviews/{id}", a.requireAuth(a.handleDeleteReview))
	mux.HandleFunc("POST /api/reviews/{id}/helpful", a.requireAuth(a.handleVoteReview))
	mux.HandleFunc("PATCH /api/reviews/{id}/approve", a.requireAuth(a.handleModerateReview(true), admin))
	mux.HandleFunc("PATCH /api/reviews/{id}/reject", a.requireAuth(a.handleModerateReview(false), admin))

	mux.HandleFunc("GET /api/wishlist/public/{userId}", a.handlePublicWishlist)
	mux.HandleFunc("GET /api/wishlist/{userId}", a.requireAuth(a.handleGetWishlist))
	mux.HandleFunc("POST /api/wishlist/{userId}/items", a.requireAuth(a.handleAddWishlistItem))
	mux.HandleFunc("PATCH /api/wishlist/{userId}/items/{productId}", a.requireAuth(a.handleWishlistNotes))
	mux.HandleFunc("DELETE /api/wishlist/{userId}/items/{productId}", a.requireAuth(a.handleRemoveWishlistItem))
	mux.HandleFunc("DELETE /api/wishlist/{userId}/clear", a.requireAuth(a.handleClearWishlist))
	mux.HandleFunc("PATCH /api/wishlist/{userId}/share", a.requireAuth(a.handleShareWishlist))

	mux.HandleFunc("GET /api/site-settings", a.handleGetSettings)
	mux.HandleFunc("PATCH /api/site-settings", a.requireAuth(a.handleUpdateSettings, admin))

	mux.HandleFunc("GET /api/inventory/alerts", a.requireAuth(a.handleInventoryAlerts, admin))
	mux.HandleFunc("PATCH /api/inventory/alerts/{id}/acknowledge", a.requireAuth(a.handleAcknowledgeAlert, admin))

	mux.HandleFunc("GET /api/audit-logs", a.requireAuth(a.handleAuditLogs, admin))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			a.writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		actor, err := a.auth.ParseToken(strings.TrimSpace(authorization[len("Bearer "):]))
		if err != nil {
			a.writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			a.writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

// optionalAuth attaches the actor when a valid token is present and serves
// the request anonymously otherwise.
func (a *API) optionalAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			if actor, err := a.auth.ParseToken(strings.TrimSpace(authorization[len("Bearer "):])); err == nil {
				r = r.WithContext(service.WithActor(r.Context(), actor))
			}
		}
		next(w, r)
	}
}

func actorFrom(r *http.Request) (domain.Actor, bool) {
	return service.ActorFromContext(r.Context())
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(a.checks))
	for _, hc := range a.checks {
		if err := hc.check(ctx); err != nil {
			a.lg.Warn("Health check failed", zap.String("dependency", hc.name), zap.Error(err))
			deps[hc.name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[hc.name] = "ok"
	}

	writeJSON(w, status, map[string]any{
		"ok":           status == http.StatusOK,
		"at":           time.Now().UTC().Format(time.RFC3339),
		"dependencies": deps,
	})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := requestIDFrom(r)
		w.Header().Set("X-Request-ID", requestID)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		a.setCORSHeaders(w, r)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		startedAt := time.Now()
		defer func() {
			if p := recover(); p != nil {
				a.lg.Error("Panic while serving request",
					zap.String("request_id", requestID),
					zap.Any("panic", p),
					zap.Stack("stack"),
				)
				if !rec.wroteHeader {
					a.writeError(rec, http.StatusInternalServerError, errors.New("panic"))
				}
			}
			a.lg.Info("Request",
				zap.String("request_id", requestID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(startedAt)),
			)
		}()
		next.ServeHTTP(rec, r)
	})
}

func requestIDFrom(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Request-ID")); id != "" && len(id) <= 128 {
		return id
	}
	return uuid.NewString()
}

func (a *API) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Vary", "Origin")
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	for _, allowed := range a.allowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			return
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

// decodeJSON strictly decodes the body into dest. camelCase keys are
// accepted as aliases of the snake_case names on the request types.
func decodeJSON(r *http.Request, dest any) error {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return err
	}
	body, err := snakeCaseKeys(raw)
	if err != nil {
		return err
	}
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func snakeCaseKeys(raw json.RawMessage) ([]byte, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var v any
	if err := decoder.Decode(&v); err != nil {
		return nil, err
	}
	return json.Marshal(rekey(v))
}

func rekey(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[snakeCase(k)] = rekey(val)
		}
		return out
	case []any:
		for i := range t {
			t[i] = rekey(t[i])
		}
		return t
	default:
		return v
	}
}

func snakeCase(key string) string {
	if strings.ToLower(key) == key {
		return key
	}
	var b strings.Builder
	for i, r := range key {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func paging(r *http.Request) service.Paging {
	q := r.URL.Query()
	return service.Paging{
		Page:  parsePositiveLimit(q.Get("page"), 1, 0),
		Limit: parsePositiveLimit(q.Get("limit"), 0, 100),
	}
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errUnauthorized), errors.Is(err, errInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidInput),
		errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrInvalidState),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrInvalidPromotion),
		errors.Is(err, store.ErrUsageLimitExceeded),
		errors.Is(err, store.ErrPerCustomerLimitExceeded),
		errors.Is(err, store.ErrBelowMinimum),
		errors.Is(err, store.ErrNotApplicable):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

var publicSentinels = []error{
	store.ErrInvalidInput,
	store.ErrInvalidState,
	store.ErrConflict,
	store.ErrForbidden,
	store.ErrNotFound,
	store.ErrBelowMinimum,
	store.ErrPerCustomerLimitExceeded,
	errUnauthorized,
}

// publicMessage drops the trailing sentinel text from wrapped errors so
// clients see the specific reason only.
func publicMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range publicSentinels {
		if !errors.Is(err, sentinel) {
			continue
		}
		if trimmed, ok := strings.CutSuffix(msg, ": "+sentinel.Error()); ok {
			return trimmed
		}
	}
	return msg
}

// fail writes err with the status its kind maps to.
func (a *API) fail(w http.ResponseWriter, err error) {
	a.writeError(w, statusFor(err), err)
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	msg := publicMessage(err)
	if status >= 500 {
		a.lg.Error("Internal error", zap.Int("status", status), zap.Error(err))
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
