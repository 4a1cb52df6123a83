package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/example/bytespark/pkg/config"
	"github.com/example/bytespark/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func setupTestMongo(t *testing.T) *MongoRepository {
	if testing.Short() {
		t.Skip("skipping MongoDB integration test in short mode")
	}
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	repo, err := NewMongoRepository(ctx, &config.MongoDBConfig{
		URI:             uri,
		Database:        "testdb",
		AuditCollection: "audit_logs",
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close(ctx) })

	require.NoError(t, repo.EnsureIndexes(ctx))
	return repo
}

func quantities(t *testing.T, carts *CartRepository, userID string) map[string]int {
	t.Helper()
	cart, err := carts.Get(context.Background(), userID)
	require.NoError(t, err)
	out := make(map[string]int, len(cart.Items))
	for _, item := range cart.Items {
		out[item.ProductID] = item.Quantity
	}
	return out
}

func TestCartRepository_AddAndIncrement(t *testing.T) {
	carts := NewCartRepository(setupTestMongo(t).Database())
	ctx := context.Background()

	_, err := carts.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrCartNotFound)

	require.NoError(t, carts.AddItem(ctx, "u1", "p1"))
	assert.Equal(t, map[string]int{"p1": 1}, quantities(t, carts, "u1"))

	require.NoError(t, carts.AddItem(ctx, "u1", "p1"))
	require.NoError(t, carts.AddItem(ctx, "u1", "p2"))
	require.NoError(t, carts.IncrementItem(ctx, "u1", "p2"))
	assert.Equal(t, map[string]int{"p1": 2, "p2": 2}, quantities(t, carts, "u1"))

	assert.ErrorIs(t, carts.IncrementItem(ctx, "u1", "p3"), ErrItemNotFound)
	assert.ErrorIs(t, carts.IncrementItem(ctx, "nobody", "p1"), ErrCartNotFound)
}

func TestCartRepository_DecrementRemovesAtZero(t *testing.T) {
	carts := NewCartRepository(setupTestMongo(t).Database())
	ctx := context.Background()

	require.NoError(t, carts.AddItem(ctx, "u1", "p1"))
	require.NoError(t, carts.AddItem(ctx, "u1", "p1"))

	require.NoError(t, carts.DecrementItem(ctx, "u1", "p1"))
	assert.Equal(t, map[string]int{"p1": 1}, quantities(t, carts, "u1"))

	require.NoError(t, carts.DecrementItem(ctx, "u1", "p1"))
	assert.Empty(t, quantities(t, carts, "u1"))

	assert.ErrorIs(t, carts.DecrementItem(ctx, "u1", "p1"), ErrItemNotFound)
	assert.ErrorIs(t, carts.DecrementItem(ctx, "nobody", "p1"), ErrCartNotFound)
}

func TestCartRepository_RemoveAndClear(t *testing.T) {
	carts := NewCartRepository(setupTestMongo(t).Database())
	ctx := context.Background()

	require.NoError(t, carts.AddItem(ctx, "u1", "p1"))
	require.NoError(t, carts.AddItem(ctx, "u1", "p2"))
	require.NoError(t, carts.AddItem(ctx, "u1", "p3"))

	require.NoError(t, carts.RemoveItem(ctx, "u1", "p1"))
	assert.ErrorIs(t, carts.RemoveItem(ctx, "u1", "p1"), ErrItemNotFound)
	assert.ErrorIs(t, carts.RemoveItem(ctx, "nobody", "p1"), ErrCartNotFound)

	require.NoError(t, carts.RemoveItems(ctx, "u1", []string{"p2", "zz"}))
	assert.Equal(t, map[string]int{"p3": 1}, quantities(t, carts, "u1"))

	require.NoError(t, carts.Clear(ctx, "u1"))
	assert.Empty(t, quantities(t, carts, "u1"))
	assert.NoError(t, carts.Clear(ctx, "nobody"))
}

func TestCartRepository_ConcurrentAddsKeepEveryIncrement(t *testing.T) {
	carts := NewCartRepository(setupTestMongo(t).Database())
	ctx := context.Background()

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, carts.AddItem(ctx, "u1", "p1"))
		}()
	}
	wg.Wait()

	assert.Equal(t, map[string]int{"p1": writers}, quantities(t, carts, "u1"))
}

func TestCartRepository_CheckoutLease(t *testing.T) {
	carts := NewCartRepository(setupTestMongo(t).Database())
	ctx := context.Background()

	_, err := carts.AcquireCheckout(ctx, "u1", "t0", time.Now().Add(time.Minute))
	assert.ErrorIs(t, err, ErrCartNotFound)

	require.NoError(t, carts.AddItem(ctx, "u1", "p1"))

	cart, err := carts.AcquireCheckout(ctx, "u1", "t1", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)

	_, err = carts.AcquireCheckout(ctx, "u1", "t2", time.Now().Add(time.Minute))
	assert.ErrorIs(t, err, ErrCheckoutInProgress)

	require.NoError(t, carts.ReleaseCheckout(ctx, "u1", "t1"))
	assert.Equal(t, map[string]int{"p1": 1}, quantities(t, carts, "u1"))

	_, err = carts.AcquireCheckout(ctx, "u1", "t3", time.Now().Add(time.Minute))
	require.NoError(t, err)

	ok, err := carts.CompleteCheckout(ctx, "u1", "stale")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = carts.CompleteCheckout(ctx, "u1", "t3")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, quantities(t, carts, "u1"))
}

func TestCartRepository_ExpiredLeaseCanBeTakenOver(t *testing.T) {
	carts := NewCartRepository(setupTestMongo(t).Database())
	ctx := context.Background()

	require.NoError(t, carts.AddItem(ctx, "u1", "p1"))
	_, err := carts.AcquireCheckout(ctx, "u1", "crashed", time.Now().Add(-time.Second))
	require.NoError(t, err)

	_, err = carts.AcquireCheckout(ctx, "u1", "fresh", time.Now().Add(time.Minute))
	assert.NoError(t, err)
}

func TestOrderRepository_Lifecycle(t *testing.T) {
	orders := NewOrderRepository(setupTestMongo(t).Database())
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, user := range []string{"u1", "u2", "u1"} {
		orders.now = func() time.Time { return base.Add(time.Duration(i) * time.Hour) }
		require.NoError(t, orders.Create(ctx, &models.Order{
			UserID:     user,
			Items:      []models.OrderItem{{ProductID: "p1", Name: "Soap", Price: 3, Quantity: i + 1}},
			ItemsPrice: float64(3 * (i + 1)),
			TotalPrice: float64(3 * (i + 1)),
			Status:     models.StatusPlaced,
		}))
	}

	mine, err := orders.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, 3, mine[0].Items[0].Quantity, "newest first")
	assert.Equal(t, 1, mine[1].Items[0].Quantity)

	all, err := orders.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := orders.ListByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	updated, err := orders.UpdateStatus(ctx, mine[0].ID.Hex(), models.StatusShipped)
	require.NoError(t, err)
	assert.Equal(t, models.StatusShipped, updated.Status)

	got, err := orders.FindByID(ctx, mine[0].ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.StatusShipped, got.Status)

	_, err = orders.FindByID(ctx, primitive.NewObjectID().Hex())
	assert.ErrorIs(t, err, ErrOrderNotFound)
	_, err = orders.FindByID(ctx, "not-hex")
	assert.ErrorIs(t, err, ErrOrderNotFound)
	_, err = orders.UpdateStatus(ctx, primitive.NewObjectID().Hex(), models.StatusShipped)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestProductRepository_FindByIDs(t *testing.T) {
	db := setupTestMongo(t).Database()
	products := NewProductRepository(db)
	ctx := context.Background()

	soap := primitive.NewObjectID()
	_, err := db.Collection(productsCollection).InsertOne(ctx, bson.M{
		"_id": soap, "name": "Soap", "price": "4.50", "category": "bath",
	})
	require.NoError(t, err)

	found, err := products.FindByIDs(ctx, []string{soap.Hex(), primitive.NewObjectID().Hex(), "junk"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Soap", found[soap.Hex()].Name)
	assert.InDelta(t, 4.5, found[soap.Hex()].PriceValue(), 1e-9)
}

func TestMongoRepository_AuditLog(t *testing.T) {
	repo := setupTestMongo(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateAuditLog(ctx, &AuditLog{
		Service:  "orders",
		Action:   "order_placed",
		EntityID: "o1",
		Data:     bson.M{"total_price": 25.0},
	}))

	var logs []*AuditLog
	cursor, err := repo.Database().Collection(repo.config.AuditCollection).Find(ctx, bson.M{"entity_id": "o1"})
	require.NoError(t, err)
	require.NoError(t, cursor.All(ctx, &logs))
	require.Len(t, logs, 1)
	assert.NotEmpty(t, logs[0].ID)
	assert.Equal(t, "order_placed", logs[0].Action)
	assert.False(t, logs[0].CreatedAt.IsZero())
}
