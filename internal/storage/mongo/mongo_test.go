package mongo

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/IlyasAtabaev731/shopper/internal/domain/models"
	"github.com/IlyasAtabaev731/shopper/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

// These tests talk to a real server and run only when SHOP_MONGO_TEST_URI
// is set, e.g. mongodb://localhost:27017.
func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	uri := os.Getenv("SHOP_MONGO_TEST_URI")
	if uri == "" {
		t.Skip("SHOP_MONGO_TEST_URI is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := New(ctx, uri, "shopper_test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.NoError(t, s.Drop(ctx))

	t.Cleanup(func() {
		_ = s.Drop(context.Background())
		_ = s.Stop(context.Background())
	})

	return s
}

func TestUsersAndCart(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	user := models.User{ID: "u1", Name: "Alice", Email: "a@x.com", PasswordHash: "hash", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.SaveUser(ctx, user))

	err := s.SaveUser(ctx, models.User{ID: "u2", Email: "a@x.com"})
	assert.ErrorIs(t, err, storage.ErrEmailExists)

	got, err := s.UserByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)

	cart, err := s.Cart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.Cart{}, cart)

	require.NoError(t, s.AdjustCartSlot(ctx, "u1", 5, 1))
	require.NoError(t, s.AdjustCartSlot(ctx, "u1", 5, -1))
	require.NoError(t, s.AdjustCartSlot(ctx, "u1", 5, -1))

	cart, err = s.Cart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, cart[5])

	err = s.AdjustCartSlot(ctx, "ghost", 5, 1)
	assert.ErrorIs(t, err, storage.ErrUserNotFound)

	cart[9] = 3
	require.NoError(t, s.SaveCart(ctx, "u1", cart))
	cart, err = s.Cart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, cart[9])
}

func TestConcurrentIncrementsAreNotLost(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SaveUser(ctx, models.User{ID: "u1", Email: "a@x.com", CreatedAt: time.Now()}))

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.AdjustCartSlot(ctx, "u1", 1, 1))
		}()
	}
	wg.Wait()

	cart, err := s.Cart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, n, cart[1])
}

func TestProducts(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	id, err := s.NextProductID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	p, err := s.SaveProduct(ctx, models.Product{Key: "k1", Name: "dress", Category: "women", CreatedAt: time.Now().UTC()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ID)

	id, err = s.NextProductID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)

	_, err = s.SaveProduct(ctx, models.Product{Key: "k2", Name: "coat", Category: "men", CreatedAt: time.Now().UTC()})
	require.NoError(t, err)

	women, err := s.Products(ctx, "women")
	require.NoError(t, err)
	require.Len(t, women, 1)
	assert.Equal(t, "dress", women[0].Name)

	all, err := s.Products(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestNextProductIDFollowsStoredProducts(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	_, err := s.SaveProduct(ctx, models.Product{Key: "k1", Name: "dress", Category: "women", CreatedAt: time.Now().UTC()})
	require.NoError(t, err)

	// a failed insert leaves the counter ahead of the stored products
	_, err = s.counters.UpdateOne(ctx, bson.M{"_id": productCounter}, bson.M{"$inc": bson.M{"seq": 5}})
	require.NoError(t, err)

	id, err := s.NextProductID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)
}
