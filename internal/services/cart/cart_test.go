package cart

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/IlyasAtabaev731/shopper/internal/domain/models"
	"github.com/IlyasAtabaev731/shopper/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allModes = []Mode{ModeDocument, ModeLocked, ModeAtomic}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStorageWithUser(t *testing.T, userID string) *sqlite.Storage {
	t.Helper()

	s, err := sqlite.New(":memory:", discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })

	err = s.SaveUser(context.Background(), models.User{
		ID:           userID,
		Name:         "Alice",
		Email:        userID + "@x.com",
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)

	return s
}

func TestParseMode(t *testing.T) {
	for _, m := range allModes {
		got, err := ParseMode(string(m))
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}

	_, err := ParseMode("optimistic")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestFreshCartIsZeroed(t *testing.T) {
	svc := New(newStorageWithUser(t, "alice"), ModeAtomic, discardLogger())

	cart, err := svc.Read(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, cart, models.CartSize)
	for slot, n := range cart {
		assert.Zero(t, n, "slot %d", slot)
	}
}

func TestCartOperations(t *testing.T) {
	for _, mode := range allModes {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			svc := New(newStorageWithUser(t, "alice"), mode, discardLogger())
			assert.Equal(t, mode, svc.Mode())

			t.Run("increment three times then decrement once", func(t *testing.T) {
				for i := 0; i < 3; i++ {
					require.NoError(t, svc.Increment(ctx, "alice", 5))
				}
				require.NoError(t, svc.Decrement(ctx, "alice", 5))

				cart, err := svc.Read(ctx, "alice")
				require.NoError(t, err)
				assert.Equal(t, 2, cart[5])
			})

			t.Run("increment then decrement restores count", func(t *testing.T) {
				for _, slot := range []int{0, 5, 150, models.CartSize - 1} {
					before, err := svc.Read(ctx, "alice")
					require.NoError(t, err)

					require.NoError(t, svc.Increment(ctx, "alice", slot))
					require.NoError(t, svc.Decrement(ctx, "alice", slot))

					after, err := svc.Read(ctx, "alice")
					require.NoError(t, err)
					assert.Equal(t, before, after)
				}
			})

			t.Run("decrement floors at zero", func(t *testing.T) {
				for i := 0; i < 3; i++ {
					require.NoError(t, svc.Decrement(ctx, "alice", 42))
				}

				cart, err := svc.Read(ctx, "alice")
				require.NoError(t, err)
				assert.Equal(t, 0, cart[42])
			})

			t.Run("out of range slot is rejected", func(t *testing.T) {
				for _, slot := range []int{-1, models.CartSize, 1000} {
					assert.ErrorIs(t, svc.Increment(ctx, "alice", slot), ErrInvalidSlot)
					assert.ErrorIs(t, svc.Decrement(ctx, "alice", slot), ErrInvalidSlot)
				}
			})

			t.Run("unknown user", func(t *testing.T) {
				assert.ErrorIs(t, svc.Increment(ctx, "ghost", 1), ErrUserNotFound)
				assert.ErrorIs(t, svc.Decrement(ctx, "ghost", 1), ErrUserNotFound)

				_, err := svc.Read(ctx, "ghost")
				assert.ErrorIs(t, err, ErrUserNotFound)
			})
		})
	}
}

func TestUnknownModeFails(t *testing.T) {
	svc := New(newStorageWithUser(t, "alice"), Mode("bogus"), discardLogger())

	err := svc.Increment(context.Background(), "alice", 1)
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func concurrentIncrements(t *testing.T, svc *Service, userID string, slot, n int) int {
	t.Helper()
	ctx := context.Background()

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			assert.NoError(t, svc.Increment(ctx, userID, slot))
		}()
	}
	close(start)
	wg.Wait()

	cart, err := svc.Read(ctx, userID)
	require.NoError(t, err)
	return cart[slot]
}

// Strong variants: no update may be lost.
func TestConcurrentIncrements_Strong(t *testing.T) {
	const n = 64

	for _, mode := range []Mode{ModeAtomic, ModeLocked} {
		t.Run(string(mode), func(t *testing.T) {
			svc := New(newStorageWithUser(t, "alice"), mode, discardLogger())
			assert.Equal(t, n, concurrentIncrements(t, svc, "alice", 7, n))
		})
	}
}

// Weak variant: whole-cart writes race, so only an upper bound holds.
func TestConcurrentIncrements_Weak(t *testing.T) {
	const n = 64

	svc := New(newStorageWithUser(t, "alice"), ModeDocument, discardLogger())
	got := concurrentIncrements(t, svc, "alice", 7, n)

	assert.LessOrEqual(t, got, n)
	assert.GreaterOrEqual(t, got, 1)
}

// interleavingStorage makes every reader wait until `readers` loads have
// happened, forcing the read-modify-write race deterministically.
type interleavingStorage struct {
	mu      sync.Mutex
	cart    models.Cart
	readers sync.WaitGroup
}

func (s *interleavingStorage) Cart(ctx context.Context, userID string) (models.Cart, error) {
	s.mu.Lock()
	cart := s.cart
	s.mu.Unlock()

	s.readers.Done()
	s.readers.Wait()

	return cart, nil
}

func (s *interleavingStorage) SaveCart(ctx context.Context, userID string, cart models.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart = cart
	return nil
}

func (s *interleavingStorage) AdjustCartSlot(ctx context.Context, userID string, slot int, delta int) error {
	panic("not used in document mode")
}

func TestDocumentModeIsLastWriterWins(t *testing.T) {
	store := &interleavingStorage{}
	store.readers.Add(2)
	svc := New(store, ModeDocument, discardLogger())

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.Increment(context.Background(), "alice", 3))
		}()
	}
	wg.Wait()

	// both increments read 0 and both wrote 1
	assert.Equal(t, 1, store.cart[3])
}
