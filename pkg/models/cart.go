package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Cart struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	UserID    string             `bson:"user_id" json:"user"`
	Items     []CartItem         `bson:"items" json:"items"`
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updatedAt"`

	// Checkout lease, held while an order is being placed from this cart.
	CheckoutToken string     `bson:"checkout_token,omitempty" json:"-"`
	CheckoutUntil *time.Time `bson:"checkout_until,omitempty" json:"-"`
}

type CartItem struct {
	ProductID string `bson:"product_id" json:"product"`
	Quantity  int    `bson:"quantity" json:"quantity"`
}

// ResolvedItem is a cart line joined with its catalog product.
type ResolvedItem struct {
	Product  *Product `json:"product"`
	Quantity int      `json:"quantity"`
}
