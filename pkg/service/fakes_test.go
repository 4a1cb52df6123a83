package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/example/bytespark/pkg/config"
	"github.com/example/bytespark/pkg/models"
	"github.com/example/bytespark/pkg/repository"
	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// fakeCarts implements CartStore in memory with the same error contract as
// repository.CartRepository.
type fakeCarts struct {
	mu    sync.RWMutex
	carts map[string]*models.Cart
	now   func() time.Time

	clearErr error
}

func newFakeCarts() *fakeCarts {
	return &fakeCarts{carts: make(map[string]*models.Cart), now: time.Now}
}

func (f *fakeCarts) Get(_ context.Context, userID string) (*models.Cart, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	cart, ok := f.carts[userID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	cp := *cart
	cp.Items = append([]models.CartItem(nil), cart.Items...)
	return &cp, nil
}

func (f *fakeCarts) AddItem(_ context.Context, userID, productID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, ok := f.carts[userID]
	if !ok {
		cart = &models.Cart{UserID: userID, Items: []models.CartItem{}}
		f.carts[userID] = cart
	}
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			cart.Items[i].Quantity++
			return nil
		}
	}
	cart.Items = append(cart.Items, models.CartItem{ProductID: productID, Quantity: 1})
	return nil
}

func (f *fakeCarts) item(userID, productID string) (*models.Cart, int, error) {
	cart, ok := f.carts[userID]
	if !ok {
		return nil, -1, repository.ErrCartNotFound
	}
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			return cart, i, nil
		}
	}
	return cart, -1, repository.ErrItemNotFound
}

func (f *fakeCarts) IncrementItem(_ context.Context, userID, productID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, i, err := f.item(userID, productID)
	if err != nil {
		return err
	}
	cart.Items[i].Quantity++
	return nil
}

func (f *fakeCarts) DecrementItem(_ context.Context, userID, productID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, i, err := f.item(userID, productID)
	if err != nil {
		return err
	}
	if cart.Items[i].Quantity > 1 {
		cart.Items[i].Quantity--
		return nil
	}
	cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
	return nil
}

func (f *fakeCarts) RemoveItem(_ context.Context, userID, productID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, i, err := f.item(userID, productID)
	if err != nil {
		return err
	}
	cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
	return nil
}

func (f *fakeCarts) RemoveItems(_ context.Context, userID string, productIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, ok := f.carts[userID]
	if !ok {
		return repository.ErrCartNotFound
	}
	drop := make(map[string]bool, len(productIDs))
	for _, id := range productIDs {
		drop[id] = true
	}
	kept := cart.Items[:0]
	for _, item := range cart.Items {
		if !drop[item.ProductID] {
			kept = append(kept, item)
		}
	}
	cart.Items = kept
	return nil
}

func (f *fakeCarts) Clear(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clearErr != nil {
		return f.clearErr
	}
	if cart, ok := f.carts[userID]; ok {
		cart.Items = []models.CartItem{}
	}
	return nil
}

func (f *fakeCarts) AcquireCheckout(_ context.Context, userID, token string, until time.Time) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, ok := f.carts[userID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	if cart.CheckoutToken != "" && cart.CheckoutUntil != nil && !cart.CheckoutUntil.Before(f.now()) {
		return nil, repository.ErrCheckoutInProgress
	}
	cart.CheckoutToken = token
	cart.CheckoutUntil = &until
	cp := *cart
	cp.Items = append([]models.CartItem(nil), cart.Items...)
	return &cp, nil
}

func (f *fakeCarts) CompleteCheckout(_ context.Context, userID, token string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, ok := f.carts[userID]
	if !ok || cart.CheckoutToken != token {
		return false, nil
	}
	cart.Items = []models.CartItem{}
	cart.CheckoutToken = ""
	cart.CheckoutUntil = nil
	return true, nil
}

func (f *fakeCarts) ReleaseCheckout(_ context.Context, userID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cart, ok := f.carts[userID]; ok && cart.CheckoutToken == token {
		cart.CheckoutToken = ""
		cart.CheckoutUntil = nil
	}
	return nil
}

func (f *fakeCarts) leased(userID string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	cart, ok := f.carts[userID]
	return ok && cart.CheckoutToken != ""
}

type fakeOrders struct {
	mu     sync.RWMutex
	orders []*models.Order
	seq    int

	createErr error
}

func (f *fakeOrders) Create(_ context.Context, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.seq++
	order.ID = primitive.NewObjectID()
	order.CreatedAt = time.Date(2026, 1, 1, 0, 0, f.seq, 0, time.UTC)
	order.UpdatedAt = order.CreatedAt
	cp := *order
	f.orders = append(f.orders, &cp)
	return nil
}

func (f *fakeOrders) FindByID(_ context.Context, id string) (*models.Order, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, o := range f.orders {
		if o.ID.Hex() == id {
			cp := *o
			return &cp, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (f *fakeOrders) ListByUser(_ context.Context, userID string) ([]*models.Order, error) {
	return f.list(func(o *models.Order) bool { return o.UserID == userID }), nil
}

func (f *fakeOrders) ListAll(_ context.Context) ([]*models.Order, error) {
	return f.list(func(*models.Order) bool { return true }), nil
}

func (f *fakeOrders) list(keep func(*models.Order) bool) []*models.Order {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := []*models.Order{}
	for _, o := range f.orders {
		if keep(o) {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (f *fakeOrders) UpdateStatus(_ context.Context, id string, status models.OrderStatus) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.ID.Hex() == id {
			o.Status = status
			cp := *o
			return &cp, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (f *fakeOrders) count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.orders)
}

type fakeProducts struct {
	mu       sync.RWMutex
	products map[string]*models.Product
	calls    int
}

func newFakeProducts(products ...*models.Product) *fakeProducts {
	f := &fakeProducts{products: make(map[string]*models.Product)}
	for _, p := range products {
		f.products[p.ID.Hex()] = p
	}
	return f
}

func (f *fakeProducts) FindByIDs(_ context.Context, ids []string) (map[string]*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	out := make(map[string]*models.Product, len(ids))
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f *fakeProducts) delete(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.products, id)
}

func (f *fakeProducts) set(p *models.Product) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[p.ID.Hex()] = p
}

type fakeUsers struct {
	mu    sync.RWMutex
	users map[string]*models.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[string]*models.User)}
}

func (f *fakeUsers) Create(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Number == user.Number {
			return repository.ErrUserExists
		}
	}
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeUsers) FindByNumber(_ context.Context, number string) (*models.User, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, u := range f.users {
		if u.Number == number {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUsers) FindByIDs(_ context.Context, ids []string) (map[string]*models.User, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]*models.User, len(ids))
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

type auditEvent struct {
	Action   string
	EntityID string
	ActorID  string
	Data     map[string]interface{}
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []auditEvent
}

func (f *fakeRecorder) Record(action, entityID, actorID string, data map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, auditEvent{action, entityID, actorID, data})
}

func product(name string, price interface{}) *models.Product {
	return &models.Product{
		ID:       primitive.NewObjectID(),
		Name:     name,
		Image:    name + ".png",
		Category: "care",
		Price:    price,
	}
}

func newTestCatalog(products *fakeProducts) *Catalog {
	return NewCatalog(products, nil, zap.NewNop())
}

// newCachedCatalog puts a miniredis-backed product cache in front of products.
func newCachedCatalog(t *testing.T, products *fakeProducts) *Catalog {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := repository.NewRedisRepositoryFromClient(
		redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		&config.RedisConfig{ProductTTL: 10 * time.Minute},
	)
	return NewCatalog(products, cache, zap.NewNop())
}
