package service

import (
	"context"
	"errors"
	"strings"

	"github.com/example/bytespark/pkg/apperr"
	"github.com/example/bytespark/pkg/models"
	"github.com/example/bytespark/pkg/repository"
	"go.uber.org/zap"
)

const (
	msgCartNotFound = "Cart not found"
	msgItemNotFound = "Item not found in cart"
)

// CartService implements the per-user cart. Every mutation is persisted
// before the resolved view of the cart is returned.
type CartService struct {
	carts   CartStore
	catalog *Catalog
	logger  *zap.Logger
}

func NewCartService(carts CartStore, catalog *Catalog, logger *zap.Logger) *CartService {
	return &CartService{
		carts:   carts,
		catalog: catalog,
		logger:  logger,
	}
}

// Get returns the caller's cart joined against the catalog. A user without a
// cart has an empty one.
func (s *CartService) Get(ctx context.Context, userID string) ([]models.ResolvedItem, error) {
	cart, err := s.carts.Get(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return []models.ResolvedItem{}, nil
	}
	if err != nil {
		return nil, s.internal("Failed to fetch cart", err)
	}

	return s.resolve(ctx, cart, false)
}

func (s *CartService) Add(ctx context.Context, userID, productID string) ([]models.ResolvedItem, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, apperr.Validation("Product ID is required")
	}

	if err := s.carts.AddItem(ctx, userID, productID); err != nil {
		return nil, s.internal("Failed to update cart", err)
	}
	return s.view(ctx, userID)
}

func (s *CartService) Increase(ctx context.Context, userID, productID string) ([]models.ResolvedItem, error) {
	return s.mutateItem(ctx, userID, productID, s.carts.IncrementItem)
}

// Decrease lowers the item's quantity by one and drops the item when it
// would reach zero.
func (s *CartService) Decrease(ctx context.Context, userID, productID string) ([]models.ResolvedItem, error) {
	return s.mutateItem(ctx, userID, productID, s.carts.DecrementItem)
}

func (s *CartService) Remove(ctx context.Context, userID, productID string) ([]models.ResolvedItem, error) {
	return s.mutateItem(ctx, userID, productID, s.carts.RemoveItem)
}

// Clear empties the cart. Clearing a cart that does not exist is not an error.
func (s *CartService) Clear(ctx context.Context, userID string) ([]models.ResolvedItem, error) {
	if err := s.carts.Clear(ctx, userID); err != nil {
		return nil, s.internal("Failed to clear cart", err)
	}
	return []models.ResolvedItem{}, nil
}

// mutateItem purges lines whose product is gone, checks that productID is
// still in the cart and then applies the store mutation.
func (s *CartService) mutateItem(
	ctx context.Context,
	userID, productID string,
	mutate func(ctx context.Context, userID, productID string) error,
) ([]models.ResolvedItem, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, apperr.Validation("Product ID is required")
	}

	cart, err := s.carts.Get(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return nil, apperr.NotFound(msgCartNotFound)
	}
	if err != nil {
		return nil, s.internal("Failed to fetch cart", err)
	}

	items, err := s.resolve(ctx, cart, true)
	if err != nil {
		return nil, err
	}
	if !containsProduct(items, productID) {
		return nil, apperr.NotFound(msgItemNotFound)
	}

	if err := mutate(ctx, userID, productID); err != nil {
		switch {
		case errors.Is(err, repository.ErrCartNotFound):
			return nil, apperr.NotFound(msgCartNotFound)
		case errors.Is(err, repository.ErrItemNotFound):
			return nil, apperr.NotFound(msgItemNotFound)
		default:
			return nil, s.internal("Failed to update cart", err)
		}
	}
	return s.view(ctx, userID)
}

// view reloads the cart after a mutation.
func (s *CartService) view(ctx context.Context, userID string) ([]models.ResolvedItem, error) {
	cart, err := s.carts.Get(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return []models.ResolvedItem{}, nil
	}
	if err != nil {
		return nil, s.internal("Failed to fetch cart", err)
	}
	return s.resolve(ctx, cart, true)
}

// resolve joins cart lines with the catalog. Lines whose product no longer
// exists are left out of the view. With purge set the products are read from
// the store, not the cache, and dangling lines are removed from the stored
// cart.
func (s *CartService) resolve(ctx context.Context, cart *models.Cart, purge bool) ([]models.ResolvedItem, error) {
	ids := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}

	lookup := s.catalog.ResolveCached
	if purge {
		lookup = s.catalog.Resolve
	}
	products, err := lookup(ctx, ids)
	if err != nil {
		return nil, s.internal("Failed to load products", err)
	}

	items := make([]models.ResolvedItem, 0, len(cart.Items))
	var dangling []string
	for _, item := range cart.Items {
		p, ok := products[item.ProductID]
		if !ok {
			dangling = append(dangling, item.ProductID)
			continue
		}
		items = append(items, models.ResolvedItem{Product: p, Quantity: item.Quantity})
	}

	if purge && len(dangling) > 0 {
		if err := s.carts.RemoveItems(ctx, cart.UserID, dangling); err != nil {
			s.logger.Warn("failed to purge dangling cart items",
				zap.String("user_id", cart.UserID),
				zap.Strings("product_ids", dangling),
				zap.Error(err))
		}
	}
	return items, nil
}

func (s *CartService) internal(msg string, err error) error {
	s.logger.Error(msg, zap.Error(err))
	return apperr.Internal(msg, err)
}

func containsProduct(items []models.ResolvedItem, productID string) bool {
	for _, item := range items {
		if item.Product.ID.Hex() == productID {
			return true
		}
	}
	return false
}
