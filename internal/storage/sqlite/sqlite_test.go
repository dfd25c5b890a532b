package sqlite

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/IlyasAtabaev731/shopper/internal/domain/models"
	"github.com/IlyasAtabaev731/shopper/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type StorageTestSuite struct {
	suite.Suite
	s   *Storage
	ctx context.Context
}

func (suite *StorageTestSuite) SetupTest() {
	s, err := New(":memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(suite.T(), err, "failed to create test database")
	suite.s = s
	suite.ctx = context.Background()
}

func (suite *StorageTestSuite) TearDownTest() {
	if suite.s != nil {
		_ = suite.s.Stop()
	}
}

func (suite *StorageTestSuite) saveUser(id, email string) {
	err := suite.s.SaveUser(suite.ctx, models.User{
		ID:           id,
		Name:         "Alice",
		Email:        email,
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC(),
	})
	require.NoError(suite.T(), err)
}

func (suite *StorageTestSuite) TestSaveUserCreatesZeroedCart() {
	suite.saveUser("u1", "a@x.com")

	cart, err := suite.s.Cart(suite.ctx, "u1")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.Cart{}, cart)
}

func (suite *StorageTestSuite) TestSaveUserDuplicateEmail() {
	suite.saveUser("u1", "a@x.com")

	err := suite.s.SaveUser(suite.ctx, models.User{ID: "u2", Email: "a@x.com", PasswordHash: "h", CreatedAt: time.Now()})
	assert.ErrorIs(suite.T(), err, storage.ErrEmailExists)

	// the failed insert must not leave cart rows behind
	_, err = suite.s.Cart(suite.ctx, "u2")
	assert.ErrorIs(suite.T(), err, storage.ErrUserNotFound)
}

func (suite *StorageTestSuite) TestSaveUserDuplicateIDIsNotDuplicateEmail() {
	suite.saveUser("u1", "a@x.com")

	err := suite.s.SaveUser(suite.ctx, models.User{ID: "u1", Email: "b@x.com", PasswordHash: "h", CreatedAt: time.Now()})
	require.Error(suite.T(), err)
	assert.NotErrorIs(suite.T(), err, storage.ErrEmailExists)
}

func (suite *StorageTestSuite) TestEmailIsCaseSensitive() {
	suite.saveUser("u1", "a@x.com")
	suite.saveUser("u2", "A@x.com")

	user, err := suite.s.UserByEmail(suite.ctx, "A@x.com")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "u2", user.ID)
}

func (suite *StorageTestSuite) TestUserByEmail() {
	suite.saveUser("u1", "a@x.com")

	user, err := suite.s.UserByEmail(suite.ctx, "a@x.com")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "u1", user.ID)
	assert.Equal(suite.T(), "Alice", user.Name)
	assert.Equal(suite.T(), "hash", user.PasswordHash)

	_, err = suite.s.UserByEmail(suite.ctx, "nobody@x.com")
	assert.ErrorIs(suite.T(), err, storage.ErrUserNotFound)
}

func (suite *StorageTestSuite) TestSaveCartOverwritesAllSlots() {
	suite.saveUser("u1", "a@x.com")

	var cart models.Cart
	cart[0] = 1
	cart[150] = 7
	cart[models.CartSize-1] = 2
	require.NoError(suite.T(), suite.s.SaveCart(suite.ctx, "u1", cart))

	got, err := suite.s.Cart(suite.ctx, "u1")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), cart, got)

	err = suite.s.SaveCart(suite.ctx, "ghost", cart)
	assert.ErrorIs(suite.T(), err, storage.ErrUserNotFound)
}

func (suite *StorageTestSuite) TestAdjustCartSlot() {
	suite.saveUser("u1", "a@x.com")

	require.NoError(suite.T(), suite.s.AdjustCartSlot(suite.ctx, "u1", 5, 1))
	require.NoError(suite.T(), suite.s.AdjustCartSlot(suite.ctx, "u1", 5, 1))
	require.NoError(suite.T(), suite.s.AdjustCartSlot(suite.ctx, "u1", 5, -1))
	require.NoError(suite.T(), suite.s.AdjustCartSlot(suite.ctx, "u1", 5, -1))
	// already zero
	require.NoError(suite.T(), suite.s.AdjustCartSlot(suite.ctx, "u1", 5, -1))

	cart, err := suite.s.Cart(suite.ctx, "u1")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 0, cart[5])

	err = suite.s.AdjustCartSlot(suite.ctx, "ghost", 5, 1)
	assert.ErrorIs(suite.T(), err, storage.ErrUserNotFound)
}

func (suite *StorageTestSuite) TestProductIDsAreSequential() {
	id, err := suite.s.NextProductID(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), id)

	price := 12.5
	first, err := suite.s.SaveProduct(suite.ctx, models.Product{
		Key: "k1", Name: "dress", Description: "d", Image: "/images/a.png", Category: "women",
		NewPrice: &price, CreatedAt: time.Now().UTC(), Available: true,
	})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), first.ID)

	id, err = suite.s.NextProductID(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(2), id)

	second, err := suite.s.SaveProduct(suite.ctx, models.Product{
		Key: "k2", Name: "jacket", Description: "d", Image: "/images/b.png", Category: "men",
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(2), second.ID)
}

func (suite *StorageTestSuite) TestProductsKeepInsertionOrder() {
	for i, category := range []string{"women", "men", "women", "kid"} {
		_, err := suite.s.SaveProduct(suite.ctx, models.Product{
			Key: string(rune('a' + i)), Name: "p", Description: "d", Image: "i", Category: category,
			CreatedAt: time.Now().UTC(), Available: true,
		})
		require.NoError(suite.T(), err)
	}

	all, err := suite.s.Products(suite.ctx, "")
	require.NoError(suite.T(), err)
	require.Len(suite.T(), all, 4)
	for i, p := range all {
		assert.Equal(suite.T(), int64(i+1), p.ID)
		assert.True(suite.T(), p.Available)
		assert.Nil(suite.T(), p.NewPrice)
	}

	women, err := suite.s.Products(suite.ctx, "women")
	require.NoError(suite.T(), err)
	require.Len(suite.T(), women, 2)
	assert.Equal(suite.T(), int64(1), women[0].ID)
	assert.Equal(suite.T(), int64(3), women[1].ID)

	none, err := suite.s.Products(suite.ctx, "shoes")
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), none)
}

func TestStorageTestSuite(t *testing.T) {
	suite.Run(t, new(StorageTestSuite))
}
