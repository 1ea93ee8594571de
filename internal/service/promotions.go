package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sawmill/backend/internal/domain"
	"sawmill/backend/internal/store"
	"sawmill/backend/internal/xid"
)

var hundred = decimal.NewFromInt(100)

// ValidatePromotion quotes a discount without changing any state.
func (s *Service) ValidatePromotion(ctx context.Context, req domain.ValidatePromotionRequest) (domain.PromotionQuote, error) {
	code := normalizeCode(req.Code)
	if code == "" {
		return domain.PromotionQuote{}, errors.Wrap(store.ErrInvalidInput, "code is required")
	}
	if req.OrderTotal.IsNegative() {
		return domain.PromotionQuote{}, errors.Wrap(store.ErrInvalidInput, "order_total must not be negative")
	}

	promo, err := s.livePromotion(ctx, code)
	if err != nil {
		return domain.PromotionQuote{}, err
	}
	if limitReached(promo) {
		return domain.PromotionQuote{}, store.ErrUsageLimitExceeded
	}
	if req.OrderTotal.LessThan(promo.MinimumOrderValue) {
		return domain.PromotionQuote{}, errors.Wrapf(store.ErrBelowMinimum,
			"minimum order value of R%s required", promo.MinimumOrderValue.StringFixed(2))
	}
	var categories []string
	if req.Category != "" {
		categories = []string{req.Category}
	}
	if !applicable(promo, req.ProductIDs, categories) {
		return domain.PromotionQuote{}, store.ErrNotApplicable
	}
	if req.UserID != "" {
		if used := redemptionCount(promo, req.UserID); used >= promo.PerCustomerLimit() {
			return domain.PromotionQuote{}, errors.Wrapf(store.ErrPerCustomerLimitExceeded,
				"you have already used this promotion %d time(s)", used)
		}
	}

	discount := computeDiscount(promo, req.OrderTotal)
	return domain.PromotionQuote{
		Valid:          true,
		Code:           promo.Code,
		Description:    promo.Description,
		DiscountType:   promo.DiscountType,
		DiscountValue:  promo.DiscountValue,
		DiscountAmount: discount,
		FinalTotal:     req.OrderTotal.Sub(discount).Round(2),
	}, nil
}

// ApplyPromotion redeems a code against an order. The usage counters and the
// order's discount change together or not at all.
func (s *Service) ApplyPromotion(ctx context.Context, req domain.ApplyPromotionRequest) (domain.ApplyPromotionResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.ApplyPromotionResponse{}, err
	}
	code := normalizeCode(req.Code)
	if code == "" || strings.TrimSpace(req.OrderID) == "" {
		return domain.ApplyPromotionResponse{}, errors.Wrap(store.ErrInvalidInput, "code and order_id are required")
	}

	order, err := s.repo.GetOrder(ctx, req.OrderID)
	if err != nil {
		return domain.ApplyPromotionResponse{}, err
	}
	if _, err := requireOwner(ctx, order.UserID); err != nil {
		return domain.ApplyPromotionResponse{}, err
	}
	userID := actor.UserID
	if actor.IsAdmin() {
		userID = order.UserID
		if req.UserID != "" {
			userID = req.UserID
		}
	}

	promo, err := s.livePromotion(ctx, code)
	if err != nil {
		return domain.ApplyPromotionResponse{}, err
	}
	if limitReached(promo) {
		return domain.ApplyPromotionResponse{}, store.ErrUsageLimitExceeded
	}
	if order.Subtotal.LessThan(promo.MinimumOrderValue) {
		return domain.ApplyPromotionResponse{}, errors.Wrapf(store.ErrBelowMinimum,
			"minimum order value of R%s required", promo.MinimumOrderValue.StringFixed(2))
	}
	productIDs := make([]string, 0, len(order.Items))
	categories := make([]string, 0, len(order.Items))
	for _, line := range order.Items {
		productIDs = append(productIDs, line.ProductID)
		if line.Category != "" {
			categories = append(categories, line.Category)
		}
	}
	if !applicable(promo, productIDs, categories) {
		return domain.ApplyPromotionResponse{}, store.ErrNotApplicable
	}

	discount := computeDiscount(promo, order.Subtotal)
	redeemed, updated, err := s.repo.RedeemPromotion(ctx, domain.RedemptionRequest{
		PromotionID:      promo.ID,
		Code:             promo.Code,
		OrderID:          order.ID,
		UserID:           userID,
		Discount:         discount,
		ExpectedSubtotal: order.Subtotal,
		At:               s.now(),
	})
	if err != nil {
		return domain.ApplyPromotionResponse{}, err
	}

	s.lg.Info("Promotion redeemed",
		zap.String("code", redeemed.Code),
		zap.String("order_id", updated.ID),
		zap.String("discount", discount.StringFixed(2)),
	)
	return domain.ApplyPromotionResponse{
		Message:   fmt.Sprintf("Promotion %s applied: %s off", redeemed.Code, describeDiscount(*redeemed)),
		Promotion: *redeemed,
		Order:     *updated,
	}, nil
}

func (s *Service) CreatePromotion(ctx context.Context, req domain.CreatePromotionRequest) (domain.Promotion, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Promotion{}, err
	}

	code := normalizeCode(req.Code)
	if code == "" {
		return domain.Promotion{}, errors.Wrap(store.ErrInvalidInput, "code is required")
	}
	if strings.TrimSpace(req.Description) == "" {
		return domain.Promotion{}, errors.Wrap(store.ErrInvalidInput, "description is required")
	}
	switch req.DiscountType {
	case domain.DiscountPercentage:
		if req.DiscountValue.GreaterThan(hundred) {
			return domain.Promotion{}, errors.Wrap(store.ErrInvalidInput, "percentage discount cannot exceed 100")
		}
	case domain.DiscountFixedAmount:
	default:
		return domain.Promotion{}, errors.Wrap(store.ErrInvalidInput, "discount_type must be percentage or fixed_amount")
	}
	if req.DiscountValue.IsNegative() {
		return domain.Promotion{}, errors.Wrap(store.ErrInvalidInput, "discount_value must not be negative")
	}
	if req.MaxDiscount != nil && req.MaxDiscount.IsNegative() {
		return domain.Promotion{}, errors.Wrap(store.ErrInvalidInput, "max_discount must not be negative")
	}
	if req.MinimumOrderValue.IsNegative() {
		return domain.Promotion{}, errors.Wrap(store.ErrInvalidInput, "minimum_order_value must not be negative")
	}
	if req.ValidFrom.IsZero() || req.ValidUntil.IsZero() || !req.ValidFrom.Before(req.ValidUntil) {
		return domain.Promotion{}, errors.Wrap(store.ErrInvalidInput, "valid_from must be before valid_until")
	}
	usageLimit, err := normalizeUsageLimit(req.UsageLimit)
	if err != nil {
		return domain.Promotion{}, err
	}
	perCustomer := 1
	if req.UsagePerCustomer != nil {
		if *req.UsagePerCustomer < 0 {
			return domain.Promotion{}, errors.Wrap(store.ErrInvalidInput, "usage_per_customer must not be negative")
		}
		perCustomer = max(*req.UsagePerCustomer, 1)
	}

	now := s.now()
	created, err := s.repo.CreatePromotion(ctx, domain.Promotion{
		ID:                   xid.New("promo"),
		Code:                 code,
		Description:          strings.TrimSpace(req.Description),
		DiscountType:         req.DiscountType,
		DiscountValue:        req.DiscountValue,
		MaxDiscount:          req.MaxDiscount,
		MinimumOrderValue:    req.MinimumOrderValue,
		ApplicableProducts:   nonNil(req.ApplicableProducts),
		ApplicableCategories: nonNil(req.ApplicableCategories),
		UsageLimit:           usageLimit,
		UsagePerCustomer:     perCustomer,
		ValidFrom:            req.ValidFrom,
		ValidUntil:           req.ValidUntil,
		Active:               true,
		UsedBy:               []domain.Redemption{},
		CreatedAt:            now,
		UpdatedAt:            now,
	})
	if err != nil {
		return domain.Promotion{}, err
	}

	s.logAudit(ctx, "create_promotion", "promotion", created.ID, "code="+created.Code)
	return *created, nil
}

// ListPromotions is public. Redemption history is only returned to admins.
func (s *Service) ListPromotions(ctx context.Context, activeOnly bool, p Paging) (domain.PromotionListResponse, error) {
	p = p.normalize(20)
	query := domain.PromotionListQuery{Offset: p.offset(), Limit: p.Limit}
	if activeOnly {
		now := s.now()
		query.ActiveAt = &now
	}

	promos, total, err := s.repo.ListPromotions(ctx, query)
	if err != nil {
		return domain.PromotionListResponse{}, errors.Wrap(err, "list promotions")
	}
	if actor, ok := ActorFromContext(ctx); !ok || !actor.IsAdmin() {
		for i := range promos {
			promos[i].UsedBy = nil
		}
	}
	return domain.PromotionListResponse{Promotions: promos, Pagination: pagination(total, p)}, nil
}

func (s *Service) GetPromotion(ctx context.Context, id string) (domain.Promotion, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Promotion{}, err
	}
	promo, err := s.repo.GetPromotion(ctx, id)
	if err != nil {
		return domain.Promotion{}, err
	}
	return *promo, nil
}

func (s *Service) UpdatePromotion(ctx context.Context, id string, req domain.UpdatePromotionRequest) (domain.Promotion, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Promotion{}, err
	}
	promo, err := s.repo.GetPromotion(ctx, id)
	if err != nil {
		return domain.Promotion{}, err
	}

	if req.Description != nil {
		promo.Description = strings.TrimSpace(*req.Description)
	}
	if req.Active != nil {
		promo.Active = *req.Active
	}
	if req.UsageLimit != nil {
		limit, err := normalizeUsageLimit(req.UsageLimit)
		if err != nil {
			return domain.Promotion{}, err
		}
		promo.UsageLimit = limit
	}
	if req.ValidUntil != nil {
		if !promo.ValidFrom.Before(*req.ValidUntil) {
			return domain.Promotion{}, errors.Wrap(store.ErrInvalidInput, "valid_until must be after valid_from")
		}
		promo.ValidUntil = *req.ValidUntil
	}
	promo.UpdatedAt = s.now()

	updated, err := s.repo.UpdatePromotion(ctx, *promo)
	if err != nil {
		return domain.Promotion{}, err
	}

	s.logAudit(ctx, "update_promotion", "promotion", id, "code="+updated.Code)
	return *updated, nil
}

func (s *Service) DeletePromotion(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeletePromotion(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "delete_promotion", "promotion", id, "")
	return nil
}

func (s *Service) PromotionStats(ctx context.Context) (domain.PromotionStats, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.PromotionStats{}, err
	}
	return s.repo.PromotionStats(ctx, s.now())
}

// livePromotion finds an active promotion whose window contains now.
func (s *Service) livePromotion(ctx context.Context, code string) (domain.Promotion, error) {
	promo, err := s.repo.FindPromotionByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Promotion{}, store.ErrInvalidPromotion
	}
	if err != nil {
		return domain.Promotion{}, errors.Wrap(err, "find promotion")
	}
	now := s.now()
	if !promo.Active || now.Before(promo.ValidFrom) || now.After(promo.ValidUntil) {
		return domain.Promotion{}, store.ErrInvalidPromotion
	}
	return *promo, nil
}

// computeDiscount never returns more than total.
func computeDiscount(promo domain.Promotion, total decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch promo.DiscountType {
	case domain.DiscountPercentage:
		discount = total.Mul(promo.DiscountValue).Div(hundred)
		if promo.MaxDiscount != nil && discount.GreaterThan(*promo.MaxDiscount) {
			discount = *promo.MaxDiscount
		}
	default:
		discount = promo.DiscountValue
	}
	if discount.GreaterThan(total) {
		discount = total
	}
	return discount.Round(2)
}

func applicable(promo domain.Promotion, productIDs, categories []string) bool {
	if len(promo.ApplicableProducts) == 0 && len(promo.ApplicableCategories) == 0 {
		return true
	}
	for _, id := range productIDs {
		if slices.Contains(promo.ApplicableProducts, id) {
			return true
		}
	}
	for _, category := range categories {
		if slices.Contains(promo.ApplicableCategories, category) {
			return true
		}
	}
	return false
}

func limitReached(promo domain.Promotion) bool {
	return promo.LimitReached()
}

// normalizeUsageLimit rejects negative limits. Zero clears the limit.
func normalizeUsageLimit(limit *int) (*int, error) {
	if limit == nil || *limit == 0 {
		return nil, nil
	}
	if *limit < 0 {
		return nil, errors.Wrap(store.ErrInvalidInput, "usage_limit must not be negative")
	}
	v := *limit
	return &v, nil
}

func redemptionCount(promo domain.Promotion, userID string) int {
	count := 0
	for _, r := range promo.UsedBy {
		if r.UserID == userID {
			count++
		}
	}
	return count
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func describeDiscount(promo domain.Promotion) string {
	if promo.DiscountType == domain.DiscountPercentage {
		return fmt.Sprintf("%s%%", promo.DiscountValue.String())
	}
	return "R" + promo.DiscountValue.StringFixed(2)
}
