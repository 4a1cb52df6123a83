package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/example/bytespark/pkg/apperr"
	"github.com/example/bytespark/pkg/auth"
	"github.com/example/bytespark/pkg/models"
	"github.com/example/bytespark/pkg/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	AuditOrderPlaced        = "order_placed"
	AuditOrderStatusChanged = "order_status_changed"

	defaultCheckoutLease = 30 * time.Second
)

type PlaceOrderInput struct {
	Shipping      *models.Shipping
	PaymentMethod string
}

// OrderService converts carts into orders and serves the order views for
// owners and admins.
type OrderService struct {
	carts    CartStore
	orders   OrderStore
	users    UserStore
	catalog  *Catalog
	recorder AuditRecorder
	logger   *zap.Logger

	lease    time.Duration
	now      func() time.Time
	newToken func() string
}

// NewOrderService wires the order service. recorder may be nil; lease is
// how long a checkout may hold the cart before another one can take over.
func NewOrderService(
	carts CartStore,
	orders OrderStore,
	users UserStore,
	catalog *Catalog,
	recorder AuditRecorder,
	lease time.Duration,
	logger *zap.Logger,
) *OrderService {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	if lease <= 0 {
		lease = defaultCheckoutLease
	}
	return &OrderService{
		carts:    carts,
		orders:   orders,
		users:    users,
		catalog:  catalog,
		recorder: recorder,
		logger:   logger,
		lease:    lease,
		now:      time.Now,
		newToken: uuid.NewString,
	}
}

// PlaceOrder snapshots the caller's cart into a new order and empties the
// cart once the order is stored. The cart is held under a checkout lease for
// the duration, so a second checkout of the same cart fails with a conflict.
func (s *OrderService) PlaceOrder(ctx context.Context, userID string, in PlaceOrderInput) (*models.Order, error) {
	if in.Shipping == nil {
		return nil, apperr.Validation("Shipping details are required")
	}
	if field := in.Shipping.MissingField(); field != "" {
		return nil, apperr.Validation("%s is required", field)
	}
	paymentMethod := strings.TrimSpace(in.PaymentMethod)
	if paymentMethod == "" {
		paymentMethod = models.DefaultPaymentMethod
	}

	token := s.newToken()
	cart, err := s.carts.AcquireCheckout(ctx, userID, token, s.now().Add(s.lease))
	switch {
	case errors.Is(err, repository.ErrCartNotFound):
		return nil, apperr.Validation("Cart is empty")
	case errors.Is(err, repository.ErrCheckoutInProgress):
		return nil, apperr.Conflict("Checkout already in progress")
	case err != nil:
		return nil, s.internal("Failed to place order", err)
	}

	completed := false
	defer func() {
		if completed {
			return
		}
		if err := s.carts.ReleaseCheckout(context.WithoutCancel(ctx), userID, token); err != nil {
			s.logger.Warn("failed to release checkout lease", zap.String("user_id", userID), zap.Error(err))
		}
	}()

	if len(cart.Items) == 0 {
		return nil, apperr.Validation("Cart is empty")
	}

	ids := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.catalog.Resolve(ctx, ids)
	if err != nil {
		return nil, s.internal("Failed to place order", err)
	}

	items, itemsPrice := snapshot(cart.Items, products)
	if len(items) == 0 {
		return nil, apperr.Validation("No valid items in cart")
	}

	order := &models.Order{
		UserID:        userID,
		Items:         items,
		Shipping:      *in.Shipping,
		PaymentMethod: paymentMethod,
		ItemsPrice:    itemsPrice,
		TotalPrice:    itemsPrice,
		Status:        models.StatusPlaced,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, s.internal("Failed to place order", err)
	}

	// The order exists from here on; a failure to empty the cart is logged
	// and the order is still returned.
	completed = true
	s.clearAfterCheckout(context.WithoutCancel(ctx), userID, token)

	s.recorder.Record(AuditOrderPlaced, order.ID.Hex(), userID, map[string]interface{}{
		"items":       len(order.Items),
		"total_price": order.TotalPrice,
	})
	s.logger.Info("order placed",
		zap.String("order_id", order.ID.Hex()),
		zap.String("user_id", userID),
		zap.Float64("total_price", order.TotalPrice))

	return order, nil
}

func (s *OrderService) clearAfterCheckout(ctx context.Context, userID, token string) {
	held, err := s.carts.CompleteCheckout(ctx, userID, token)
	if err != nil {
		s.logger.Error("failed to clear cart after checkout", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if held {
		return
	}

	s.logger.Warn("checkout lease lost before completion", zap.String("user_id", userID))
	if err := s.carts.Clear(ctx, userID); err != nil {
		s.logger.Error("failed to clear cart after checkout", zap.String("user_id", userID), zap.Error(err))
	}
}

// snapshot copies the resolvable cart lines into order items and sums their
// price. Lines whose product is gone are skipped.
func snapshot(lines []models.CartItem, products map[string]*models.Product) ([]models.OrderItem, float64) {
	items := make([]models.OrderItem, 0, len(lines))
	total := decimal.Zero

	for _, line := range lines {
		p, ok := products[line.ProductID]
		if !ok {
			continue
		}
		qty := line.Quantity
		if qty < 1 {
			qty = 1
		}
		price := p.PriceValue()

		items = append(items, models.OrderItem{
			ProductID: p.ID.Hex(),
			Name:      p.Name,
			Image:     p.Image,
			Category:  p.Category,
			Price:     price,
			Quantity:  qty,
		})
		total = total.Add(decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(qty))))
	}

	sum, _ := total.Float64()
	return items, sum
}

// MyOrders lists the caller's orders, newest first.
func (s *OrderService) MyOrders(ctx context.Context, userID string) ([]*models.Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.internal("Failed to fetch orders", err)
	}
	return orders, nil
}

// GetOrder returns one of the caller's orders.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID string) (*models.Order, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, apperr.Forbidden("Not authorized to view this order")
	}
	return order, nil
}

func (s *OrderService) AdminListAll(ctx context.Context) ([]*models.AdminOrder, error) {
	orders, err := s.orders.ListAll(ctx)
	if err != nil {
		return nil, s.internal("Failed to fetch orders", err)
	}
	return s.withOwners(ctx, orders)
}

func (s *OrderService) AdminGetOne(ctx context.Context, orderID string) (*models.AdminOrder, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	joined, err := s.withOwners(ctx, []*models.Order{order})
	if err != nil {
		return nil, err
	}
	return joined[0], nil
}

// AdminSetStatus moves an order to status. Any of the five statuses may be
// set from any other.
func (s *OrderService) AdminSetStatus(ctx context.Context, orderID, status string) (*models.AdminOrder, error) {
	st, err := models.ParseOrderStatus(status)
	if err != nil {
		return nil, apperr.Validation("Invalid status. Allowed values: %s", models.StatusList())
	}

	order, err := s.orders.UpdateStatus(ctx, orderID, st)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, apperr.NotFound("Order not found")
	}
	if err != nil {
		return nil, s.internal("Failed to update order status", err)
	}

	s.recorder.Record(AuditOrderStatusChanged, order.ID.Hex(), string(auth.RoleAdmin), map[string]interface{}{
		"status": string(st),
	})

	joined, err := s.withOwners(ctx, []*models.Order{order})
	if err != nil {
		return nil, err
	}
	return joined[0], nil
}

func (s *OrderService) findOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, apperr.NotFound("Order not found")
	}
	if err != nil {
		return nil, s.internal("Failed to fetch order", err)
	}
	return order, nil
}

// withOwners joins each order with the public identity of its owner.
func (s *OrderService) withOwners(ctx context.Context, orders []*models.Order) ([]*models.AdminOrder, error) {
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.UserID)
	}

	users, err := s.users.FindByIDs(ctx, unique(ids))
	if err != nil {
		return nil, s.internal("Failed to fetch orders", err)
	}

	out := make([]*models.AdminOrder, 0, len(orders))
	for _, o := range orders {
		joined := &models.AdminOrder{Order: *o}
		if u, ok := users[o.UserID]; ok {
			joined.User = u.Owner()
		}
		out = append(out, joined)
	}
	return out, nil
}

func (s *OrderService) internal(msg string, err error) error {
	s.logger.Error(msg, zap.Error(err))
	return apperr.Internal(msg, err)
}
