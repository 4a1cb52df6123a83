// Package service holds the cart, checkout, order and account logic. Stores
// are declared here as the narrow interfaces each service needs and are
// satisfied by pkg/repository.
package service

import (
	"context"
	"time"

	"github.com/example/bytespark/pkg/models"
)

type CartStore interface {
	Get(ctx context.Context, userID string) (*models.Cart, error)
	AddItem(ctx context.Context, userID, productID string) error
	IncrementItem(ctx context.Context, userID, productID string) error
	DecrementItem(ctx context.Context, userID, productID string) error
	RemoveItem(ctx context.Context, userID, productID string) error
	RemoveItems(ctx context.Context, userID string, productIDs []string) error
	Clear(ctx context.Context, userID string) error

	AcquireCheckout(ctx context.Context, userID, token string, until time.Time) (*models.Cart, error)
	CompleteCheckout(ctx context.Context, userID, token string) (bool, error)
	ReleaseCheckout(ctx context.Context, userID, token string) error
}

type OrderStore interface {
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id string) (*models.Order, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Order, error)
	ListAll(ctx context.Context) ([]*models.Order, error)
	UpdateStatus(ctx context.Context, id string, status models.OrderStatus) (*models.Order, error)
}

type ProductStore interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]*models.Product, error)
}

type ProductCache interface {
	GetProductCache(ctx context.Context, productID string) (*models.Product, error)
	CacheProduct(ctx context.Context, product *models.Product) error
}

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByNumber(ctx context.Context, number string) (*models.User, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]*models.User, error)
}

// AuditRecorder receives order lifecycle events. Recording is fire and
// forget; it never fails the operation that produced the event.
type AuditRecorder interface {
	Record(action, entityID, actorID string, data map[string]interface{})
}

type noopRecorder struct{}

func (noopRecorder) Record(string, string, string, map[string]interface{}) {}
