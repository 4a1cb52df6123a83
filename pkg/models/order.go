package models

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OrderStatus string

const (
	StatusPlaced     OrderStatus = "placed"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

var OrderStatuses = []OrderStatus{
	StatusPlaced,
	StatusProcessing,
	StatusShipped,
	StatusDelivered,
	StatusCancelled,
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	for _, st := range OrderStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", s)
}

// StatusList renders the allowed statuses as "placed, processing, ...".
func StatusList() string {
	names := make([]string, len(OrderStatuses))
	for i, st := range OrderStatuses {
		names[i] = string(st)
	}
	return strings.Join(names, ", ")
}

const DefaultPaymentMethod = "cod"

type Order struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	UserID        string             `bson:"user_id" json:"user"`
	Items         []OrderItem        `bson:"items" json:"items"`
	Shipping      Shipping           `bson:"shipping" json:"shipping"`
	PaymentMethod string             `bson:"payment_method" json:"paymentMethod"`
	ItemsPrice    float64            `bson:"items_price" json:"itemsPrice"`
	TotalPrice    float64            `bson:"total_price" json:"totalPrice"`
	Status        OrderStatus        `bson:"status" json:"status"`
	CreatedAt     time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updatedAt"`
}

// OrderItem is a frozen copy of a cart line taken when the order was placed.
type OrderItem struct {
	ProductID string  `bson:"product_id" json:"product"`
	Name      string  `bson:"name" json:"name"`
	Image     string  `bson:"image" json:"image"`
	Category  string  `bson:"category" json:"category"`
	Price     float64 `bson:"price" json:"price"`
	Quantity  int     `bson:"quantity" json:"quantity"`
}

type Shipping struct {
	FullName string `bson:"full_name" json:"fullName"`
	Email    string `bson:"email" json:"email"`
	Phone    string `bson:"phone" json:"phone"`
	Address  string `bson:"address" json:"address"`
	City     string `bson:"city" json:"city"`
	State    string `bson:"state" json:"state"`
	Zip      string `bson:"zip" json:"zip"`
}

// MissingField returns the first required shipping field that is blank, in
// the order fullName, email, phone, address, city, state, zip.
func (s *Shipping) MissingField() string {
	fields := []struct {
		name  string
		value string
	}{
		{"fullName", s.FullName},
		{"email", s.Email},
		{"phone", s.Phone},
		{"address", s.Address},
		{"city", s.City},
		{"state", s.State},
		{"zip", s.Zip},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return f.name
		}
	}
	return ""
}

// AdminOrder is an order with its owner's identity joined in. Owner is nil
// when the owning user no longer resolves.
type AdminOrder struct {
	Order
	User *Owner `json:"user"`
}
