package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/bytespark/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrCartNotFound       = errors.New("cart not found")
	ErrItemNotFound       = errors.New("item not found in cart")
	ErrCheckoutInProgress = errors.New("checkout already in progress")
)

// maxUpdateAttempts bounds the retry loop of two-step conditional updates
// that can lose to a concurrent writer between their steps.
const maxUpdateAttempts = 5

// CartRepository stores one cart document per user. Item mutations are
// single-document conditional updates, so concurrent writers never lose
// each other's increments.
type CartRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewCartRepository(db *mongo.Database) *CartRepository {
	return &CartRepository{
		collection: db.Collection(cartsCollection),
		now:        time.Now,
	}
}

func (r *CartRepository) Get(ctx context.Context, userID string) (*models.Cart, error) {
	var cart models.Cart
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&cart)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return &cart, nil
}

// AddItem creates the cart if needed, then bumps the product's quantity or
// appends it with quantity 1.
func (r *CartRepository) AddItem(ctx context.Context, userID, productID string) error {
	if err := r.ensure(ctx, userID); err != nil {
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		res, err := r.collection.UpdateOne(ctx,
			bson.M{"user_id": userID, "items.product_id": productID},
			bson.M{
				"$inc": bson.M{"items.$.quantity": 1},
				"$set": bson.M{"updated_at": r.now()},
			})
		if err != nil {
			return fmt.Errorf("failed to increment cart item: %w", err)
		}
		if res.MatchedCount > 0 {
			return nil
		}

		res, err = r.collection.UpdateOne(ctx,
			bson.M{"user_id": userID, "items.product_id": bson.M{"$ne": productID}},
			bson.M{
				"$push": bson.M{"items": models.CartItem{ProductID: productID, Quantity: 1}},
				"$set":  bson.M{"updated_at": r.now()},
			})
		if err != nil {
			return fmt.Errorf("failed to push cart item: %w", err)
		}
		if res.MatchedCount > 0 {
			return nil
		}
	}
	return fmt.Errorf("failed to add cart item: too much contention on cart of user %s", userID)
}

func (r *CartRepository) ensure(ctx context.Context, userID string) error {
	now := r.now()
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$setOnInsert": bson.M{
			"user_id":    userID,
			"items":      bson.A{},
			"created_at": now,
			"updated_at": now,
		}},
		options.Update().SetUpsert(true))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to create cart: %w", err)
	}
	return nil
}

func (r *CartRepository) IncrementItem(ctx context.Context, userID, productID string) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"user_id": userID, "items.product_id": productID},
		bson.M{
			"$inc": bson.M{"items.$.quantity": 1},
			"$set": bson.M{"updated_at": r.now()},
		})
	if err != nil {
		return fmt.Errorf("failed to increment cart item: %w", err)
	}
	if res.MatchedCount == 0 {
		return r.missing(ctx, userID)
	}
	return nil
}

// DecrementItem lowers the quantity by one, removing the line instead of
// storing a zero quantity.
func (r *CartRepository) DecrementItem(ctx context.Context, userID, productID string) error {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		res, err := r.collection.UpdateOne(ctx,
			bson.M{"user_id": userID, "items": bson.M{"$elemMatch": bson.M{
				"product_id": productID,
				"quantity":   bson.M{"$gt": 1},
			}}},
			bson.M{
				"$inc": bson.M{"items.$.quantity": -1},
				"$set": bson.M{"updated_at": r.now()},
			})
		if err != nil {
			return fmt.Errorf("failed to decrement cart item: %w", err)
		}
		if res.MatchedCount > 0 {
			return nil
		}

		res, err = r.collection.UpdateOne(ctx,
			bson.M{"user_id": userID, "items": bson.M{"$elemMatch": bson.M{
				"product_id": productID,
				"quantity":   bson.M{"$lte": 1},
			}}},
			bson.M{
				"$pull": bson.M{"items": bson.M{"product_id": productID}},
				"$set":  bson.M{"updated_at": r.now()},
			})
		if err != nil {
			return fmt.Errorf("failed to remove cart item: %w", err)
		}
		if res.MatchedCount > 0 {
			return nil
		}

		if err := r.missing(ctx, userID, productID); err != nil {
			return err
		}
	}
	return fmt.Errorf("failed to decrement cart item: too much contention on cart of user %s", userID)
}

func (r *CartRepository) RemoveItem(ctx context.Context, userID, productID string) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"user_id": userID, "items.product_id": productID},
		bson.M{
			"$pull": bson.M{"items": bson.M{"product_id": productID}},
			"$set":  bson.M{"updated_at": r.now()},
		})
	if err != nil {
		return fmt.Errorf("failed to remove cart item: %w", err)
	}
	if res.MatchedCount == 0 {
		return r.missing(ctx, userID)
	}
	return nil
}

// RemoveItems drops every line referencing one of productIDs.
func (r *CartRepository) RemoveItems(ctx context.Context, userID string, productIDs []string) error {
	if len(productIDs) == 0 {
		return nil
	}
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$pull": bson.M{"items": bson.M{"product_id": bson.M{"$in": productIDs}}},
			"$set":  bson.M{"updated_at": r.now()},
		})
	if err != nil {
		return fmt.Errorf("failed to purge cart items: %w", err)
	}
	return nil
}

// Clear empties the cart. A missing cart is not an error.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{"items": bson.A{}, "updated_at": r.now()}})
	if err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

// AcquireCheckout takes the checkout lease on the user's cart until the given
// time and returns the cart as seen under the lease. A lease past its expiry
// can be taken over.
func (r *CartRepository) AcquireCheckout(ctx context.Context, userID, token string, until time.Time) (*models.Cart, error) {
	now := r.now()
	filter := bson.M{
		"user_id": userID,
		"$or": bson.A{
			bson.M{"checkout_token": bson.M{"$exists": false}},
			bson.M{"checkout_until": bson.M{"$lt": now}},
		},
	}
	update := bson.M{"$set": bson.M{"checkout_token": token, "checkout_until": until}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var cart models.Cart
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&cart)
	if err == nil {
		return &cart, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to acquire checkout: %w", err)
	}

	n, err := r.collection.CountDocuments(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to check cart: %w", err)
	}
	if n == 0 {
		return nil, ErrCartNotFound
	}
	return nil, ErrCheckoutInProgress
}

// CompleteCheckout empties the cart and drops the lease held under token.
// It reports false when the lease was no longer held.
func (r *CartRepository) CompleteCheckout(ctx context.Context, userID, token string) (bool, error) {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"user_id": userID, "checkout_token": token},
		bson.M{
			"$set":   bson.M{"items": bson.A{}, "updated_at": r.now()},
			"$unset": bson.M{"checkout_token": "", "checkout_until": ""},
		})
	if err != nil {
		return false, fmt.Errorf("failed to complete checkout: %w", err)
	}
	return res.MatchedCount > 0, nil
}

// ReleaseCheckout drops the lease held under token and leaves the items alone.
func (r *CartRepository) ReleaseCheckout(ctx context.Context, userID, token string) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"user_id": userID, "checkout_token": token},
		bson.M{"$unset": bson.M{"checkout_token": "", "checkout_until": ""}})
	if err != nil {
		return fmt.Errorf("failed to release checkout: %w", err)
	}
	return nil
}

// missing classifies an unmatched item update. With a productID it returns
// nil when the item is present after all, meaning the caller lost a race
// and should retry.
func (r *CartRepository) missing(ctx context.Context, userID string, productID ...string) error {
	var cart models.Cart
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&cart)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrCartNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get cart: %w", err)
	}
	if len(productID) == 0 {
		return ErrItemNotFound
	}
	for _, item := range cart.Items {
		if item.ProductID == productID[0] {
			return nil
		}
	}
	return ErrItemNotFound
}
