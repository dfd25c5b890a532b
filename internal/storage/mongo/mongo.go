// Package mongo keeps users and products as documents. The cart is embedded
// in the user document as a fixed-length array, so per-slot updates map to
// $inc on "cart.<slot>".
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/IlyasAtabaev731/shopper/internal/domain/models"
	"github.com/IlyasAtabaev731/shopper/internal/storage"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection    = "users"
	productsCollection = "products"
	countersCollection = "counters"

	productCounter = "product_id"
)

type Storage struct {
	client   *mongo.Client
	users    *mongo.Collection
	products *mongo.Collection
	counters *mongo.Collection
	logger   *slog.Logger
}

func New(ctx context.Context, uri, database string, logger *slog.Logger) (*Storage, error) {
	const op = "storage.mongo.New"

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	db := client.Database(database)
	s := &Storage{
		client:   client,
		users:    db.Collection(usersCollection),
		products: db.Collection(productsCollection),
		counters: db.Collection(countersCollection),
		logger:   logger,
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s, nil
}

func (s *Storage) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}

	_, err = s.products.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "category", Value: 1}, {Key: "id", Value: 1}}},
	})
	return err
}

func (s *Storage) Stop(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Drop removes every collection of the store. Used by integration tests.
func (s *Storage) Drop(ctx context.Context) error {
	for _, c := range []*mongo.Collection{s.users, s.products, s.counters} {
		if err := c.Drop(ctx); err != nil {
			return err
		}
	}
	return s.ensureIndexes(ctx)
}

func (s *Storage) SaveUser(ctx context.Context, user models.User) error {
	const op = "storage.mongo.SaveUser"

	user.Cart = models.Cart{}
	if _, err := s.users.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrEmailExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) UserByEmail(ctx context.Context, email string) (models.User, error) {
	const op = "storage.mongo.UserByEmail"

	var user models.User
	if err := s.users.FindOne(ctx, bson.M{"email": email}).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (s *Storage) Cart(ctx context.Context, userID string) (models.Cart, error) {
	const op = "storage.mongo.Cart"

	var doc struct {
		Cart models.Cart `bson:"cart"`
	}
	opts := options.FindOne().SetProjection(bson.M{"cart": 1})
	if err := s.users.FindOne(ctx, bson.M{"_id": userID}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Cart{}, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return models.Cart{}, fmt.Errorf("%s: %w", op, err)
	}

	return doc.Cart, nil
}

// SaveCart replaces the whole embedded cart.
func (s *Storage) SaveCart(ctx context.Context, userID string, cart models.Cart) error {
	const op = "storage.mongo.SaveCart"

	res, err := s.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": bson.M{"cart": cart}})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	return nil
}

// AdjustCartSlot applies $inc to one slot. Decrements are guarded by a
// filter on the current value so the slot never drops below zero.
func (s *Storage) AdjustCartSlot(ctx context.Context, userID string, slot int, delta int) error {
	const op = "storage.mongo.AdjustCartSlot"

	field := "cart." + strconv.Itoa(slot)
	filter := bson.M{"_id": userID}
	if delta < 0 {
		filter[field] = bson.M{"$gte": -delta}
	}

	res, err := s.users.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{field: delta}})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := s.users.CountDocuments(ctx, bson.M{"_id": userID}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	return nil
}

// SaveProduct takes the next id from a counter document, which is
// incremented atomically by the server.
func (s *Storage) SaveProduct(ctx context.Context, product models.Product) (models.Product, error) {
	const op = "storage.mongo.SaveProduct"

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": productCounter},
		bson.M{"$inc": bson.M{"seq": 1}},
		opts,
	).Decode(&counter)
	if err != nil {
		return models.Product{}, fmt.Errorf("%s: %w", op, err)
	}

	product.ID = counter.Seq
	if _, err := s.products.InsertOne(ctx, product); err != nil {
		return models.Product{}, fmt.Errorf("%s: %w", op, err)
	}

	return product, nil
}

// Products returns products in insertion order. An empty category matches all.
func (s *Storage) Products(ctx context.Context, category string) ([]models.Product, error) {
	const op = "storage.mongo.Products"

	filter := bson.M{}
	if category != "" {
		filter["category"] = category
	}

	cur, err := s.products.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		if err := cur.Close(ctx); err != nil {
			s.logger.Error("Failed to close products cursor", "error", err)
		}
	}()

	products := []models.Product{}
	if err := cur.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return products, nil
}

// NextProductID reports the highest stored id plus one. The counter used by
// SaveProduct may run ahead of it when an insert fails after the increment.
func (s *Storage) NextProductID(ctx context.Context) (int64, error) {
	const op = "storage.mongo.NextProductID"

	var last struct {
		ID int64 `bson:"id"`
	}
	opts := options.FindOne().
		SetSort(bson.D{{Key: "id", Value: -1}}).
		SetProjection(bson.M{"id": 1})
	err := s.products.FindOne(ctx, bson.M{}, opts).Decode(&last)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 1, nil
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return last.ID + 1, nil
}
