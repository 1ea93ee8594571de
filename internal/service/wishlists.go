package service

import (
	"context"
	"strings"

	"github.com/go-faster/errors"

	"sawmill/backend/internal/domain"
	"sawmill/backend/internal/store"
)

// GetWishlist returns the user's wishlist, creating an empty one on first
// read.
func (s *Service) GetWishlist(ctx context.Context, userID string) (domain.WishlistView, error) {
	if _, err := requireOwner(ctx, userID); err != nil {
		return domain.WishlistView{}, err
	}
	wishlist, err := s.repo.GetWishlist(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		wishlist, err = s.repo.ClearWishlist(ctx, userID, s.now())
	}
	if err != nil {
		return domain.WishlistView{}, err
	}
	return s.wishlistView(ctx, *wishlist)
}

func (s *Service) AddWishlistItem(ctx context.Context, userID string, req domain.WishlistItemRequest) (domain.WishlistView, error) {
	if _, err := requireOwner(ctx, userID); err != nil {
		return domain.WishlistView{}, err
	}
	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		return domain.WishlistView{}, errors.Wrap(store.ErrInvalidInput, "product_id is required")
	}
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return domain.WishlistView{}, err
	}

	now := s.now()
	wishlist, err := s.repo.AddWishlistItem(ctx, userID, domain.WishlistItem{
		ProductID: productID,
		AddedAt:   now,
		Notes:     strings.TrimSpace(req.Notes),
	}, now)
	if err != nil {
		return domain.WishlistView{}, err
	}
	return s.wishlistView(ctx, *wishlist)
}

func (s *Service) RemoveWishlistItem(ctx context.Context, userID, productID string) (domain.WishlistView, error) {
	if _, err := requireOwner(ctx, userID); err != nil {
		return domain.WishlistView{}, err
	}
	wishlist, err := s.repo.RemoveWishlistItem(ctx, userID, productID, s.now())
	if err != nil {
		return domain.WishlistView{}, err
	}
	return s.wishlistView(ctx, *wishlist)
}

func (s *Service) UpdateWishlistNotes(ctx context.Context, userID, productID, notes string) (domain.WishlistView, error) {
	if _, err := requireOwner(ctx, userID); err != nil {
		return domain.WishlistView{}, err
	}
	wishlist, err := s.repo.UpdateWishlistItemNotes(ctx, userID, productID, strings.TrimSpace(notes), s.now())
	if err != nil {
		return domain.WishlistView{}, err
	}
	return s.wishlistView(ctx, *wishlist)
}

func (s *Service) ClearWishlist(ctx context.Context, userID string) (domain.WishlistView, error) {
	if _, err := requireOwner(ctx, userID); err != nil {
		return domain.WishlistView{}, err
	}
	wishlist, err := s.repo.ClearWishlist(ctx, userID, s.now())
	if err != nil {
		return domain.WishlistView{}, err
	}
	return s.wishlistView(ctx, *wishlist)
}

// ShareWishlist flips the public flag.
func (s *Service) ShareWishlist(ctx context.Context, userID string) (domain.WishlistView, error) {
	current, err := s.GetWishlist(ctx, userID)
	if err != nil {
		return domain.WishlistView{}, err
	}
	wishlist, err := s.repo.SetWishlistPublic(ctx, userID, !current.IsPublic, s.now())
	if err != nil {
		return domain.WishlistView{}, err
	}
	return s.wishlistView(ctx, *wishlist)
}

func (s *Service) GetPublicWishlist(ctx context.Context, userID string) (domain.WishlistView, error) {
	wishlist, err := s.repo.GetWishlist(ctx, userID)
	if err != nil {
		return domain.WishlistView{}, err
	}
	if !wishlist.IsPublic {
		return domain.WishlistView{}, errors.Wrap(store.ErrNotFound, "public wishlist")
	}
	return s.wishlistView(ctx, *wishlist)
}

// wishlistView attaches the products still in the catalog, in item order.
func (s *Service) wishlistView(ctx context.Context, wishlist domain.Wishlist) (domain.WishlistView, error) {
	ids := make([]string, 0, len(wishlist.Items))
	for _, item := range wishlist.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.WishlistView{}, errors.Wrap(err, "load wishlist products")
	}

	view := domain.WishlistView{Wishlist: wishlist, ItemCount: len(wishlist.Items), Products: make([]domain.Product, 0, len(ids))}
	for _, id := range ids {
		if product, ok := products[id]; ok {
			view.Products = append(view.Products, product)
		}
	}
	return view, nil
}
