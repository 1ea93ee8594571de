package service

import (
	"context"
	"slices"
	"strings"

	"github.com/go-faster/errors"

	"sawmill/backend/internal/domain"
	"sawmill/backend/internal/store"
	"sawmill/backend/internal/xid"
)

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	now := s.now()
	product := domain.Product{
		ID:                   xid.New("prd"),
		Name:                 strings.TrimSpace(req.Name),
		Description:          strings.TrimSpace(req.Description),
		Category:             req.Category,
		ProductType:          strings.TrimSpace(req.ProductType),
		WoodType:             req.WoodType,
		Color:                strings.TrimSpace(req.Color),
		Price:                req.Price,
		Stock:                req.Stock,
		Dimensions:           req.Dimensions,
		Weight:               req.Weight,
		Images:               req.Images,
		IsAvailable:          true,
		Featured:             req.Featured,
		BulkPricing:          req.BulkPricing,
		Specifications:       req.Specifications,
		Tags:                 nonNil(req.Tags),
		MinimumOrderQuantity: max(req.MinimumOrderQuantity, 1),
		LeadTime:             domain.LeadTime{Value: 1, Unit: "days"},
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if req.IsAvailable != nil {
		product.IsAvailable = *req.IsAvailable
	}
	if req.LeadTime != nil {
		product.LeadTime = *req.LeadTime
	}
	if product.Images == nil {
		product.Images = []domain.ProductImage{}
	}
	if product.BulkPricing == nil {
		product.BulkPricing = []domain.BulkPricingTier{}
	}
	if product.Dimensions.Unit == "" {
		product.Dimensions.Unit = "mm"
	}
	if product.Weight.Unit == "" {
		product.Weight.Unit = "kg"
	}
	if err := validateProduct(product); err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "create_product", "product", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	if req.Name != nil {
		product.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		product.Description = strings.TrimSpace(*req.Description)
	}
	if req.Category != nil {
		product.Category = *req.Category
	}
	if req.WoodType != nil {
		product.WoodType = *req.WoodType
	}
	if req.Color != nil {
		product.Color = strings.TrimSpace(*req.Color)
	}
	if req.Price != nil {
		product.Price = *req.Price
	}
	if req.Stock != nil {
		product.Stock = *req.Stock
	}
	if req.IsAvailable != nil {
		product.IsAvailable = *req.IsAvailable
	}
	if req.Featured != nil {
		product.Featured = *req.Featured
	}
	if req.BulkPricing != nil {
		product.BulkPricing = *req.BulkPricing
	}
	if req.Tags != nil {
		product.Tags = nonNil(*req.Tags)
	}
	if req.MinimumOrderQuantity != nil {
		product.MinimumOrderQuantity = *req.MinimumOrderQuantity
	}
	if err := validateProduct(*product); err != nil {
		return domain.Product{}, err
	}
	product.UpdatedAt = s.now()

	updated, err := s.repo.UpdateProduct(ctx, *product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "update_product", "product", id, "name="+updated.Name)
	return *updated, nil
}

func validateProduct(product domain.Product) error {
	if product.Name == "" || len(product.Name) > 200 {
		return errors.Wrap(store.ErrInvalidInput, "name is required and must be at most 200 characters")
	}
	if product.Description == "" {
		return errors.Wrap(store.ErrInvalidInput, "description is required")
	}
	if !slices.Contains(domain.ProductCategories, product.Category) {
		return errors.Wrapf(store.ErrInvalidInput, "unknown category %q", product.Category)
	}
	if !slices.Contains(domain.WoodTypes, product.WoodType) {
		return errors.Wrapf(store.ErrInvalidInput, "unknown wood_type %q", product.WoodType)
	}
	if product.Price.IsNegative() {
		return errors.Wrap(store.ErrInvalidInput, "price must not be negative")
	}
	if product.Stock < 0 {
		return errors.Wrap(store.ErrInvalidInput, "stock must not be negative")
	}
	if product.MinimumOrderQuantity < 1 {
		return errors.Wrap(store.ErrInvalidInput, "minimum_order_quantity must be at least 1")
	}
	for _, tier := range product.BulkPricing {
		if tier.MinQuantity < 1 || tier.DiscountPrice.IsNegative() {
			return errors.Wrap(store.ErrInvalidInput, "bulk pricing tiers need min_quantity >= 1 and a non-negative price")
		}
		if tier.MaxQuantity != 0 && tier.MaxQuantity < tier.MinQuantity {
			return errors.Wrap(store.ErrInvalidInput, "bulk pricing max_quantity must not be below min_quantity")
		}
	}
	return nil
}
