// Package cart implements the per-user cart: a fixed array of item counts
// that can be incremented, decremented (never below zero) and read.
//
// How concurrent updates to one cart behave depends on the Mode:
//
//   - ModeDocument loads the whole cart, changes one slot in memory and writes
//     the whole cart back. Concurrent writers race and the last one to finish
//     wins, so updates may be lost.
//   - ModeLocked does the same read-modify-write while holding a mutex for the
//     user id. Updates are exact within one process.
//   - ModeAtomic hands the change to the store as a single per-slot update.
//     Updates are exact across processes.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/IlyasAtabaev731/shopper/internal/domain/models"
	"github.com/IlyasAtabaev731/shopper/internal/storage"
)

type Mode string

const (
	ModeDocument Mode = "document"
	ModeLocked   Mode = "locked"
	ModeAtomic   Mode = "atomic"
)

var (
	ErrInvalidSlot  = errors.New("invalid cart slot")
	ErrUserNotFound = storage.ErrUserNotFound
	ErrUnknownMode  = errors.New("unknown cart mode")
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeDocument, ModeLocked, ModeAtomic:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

type Storage interface {
	Cart(ctx context.Context, userID string) (models.Cart, error)
	SaveCart(ctx context.Context, userID string, cart models.Cart) error
	AdjustCartSlot(ctx context.Context, userID string, slot int, delta int) error
}

type Service struct {
	storage Storage
	mode    Mode
	logger  *slog.Logger
	locks   sync.Map
}

func New(storage Storage, mode Mode, logger *slog.Logger) *Service {
	return &Service{storage: storage, mode: mode, logger: logger}
}

func (s *Service) Mode() Mode {
	return s.mode
}

func (s *Service) Increment(ctx context.Context, userID string, slot int) error {
	return s.update(ctx, userID, slot, 1)
}

// Decrement removes one item from slot. A slot already at zero is left as is
// and no error is returned.
func (s *Service) Decrement(ctx context.Context, userID string, slot int) error {
	return s.update(ctx, userID, slot, -1)
}

// Read returns all slots of the user's cart, zero counts included.
func (s *Service) Read(ctx context.Context, userID string) (models.Cart, error) {
	const op = "services.cart.Read"

	cart, err := s.storage.Cart(ctx, userID)
	if err != nil {
		return models.Cart{}, fmt.Errorf("%s: %w", op, err)
	}

	return cart, nil
}

func (s *Service) update(ctx context.Context, userID string, slot int, delta int) error {
	const op = "services.cart.update"

	if !models.ValidSlot(slot) {
		return fmt.Errorf("%s: %w: %d", op, ErrInvalidSlot, slot)
	}

	var err error
	switch s.mode {
	case ModeAtomic:
		err = s.storage.AdjustCartSlot(ctx, userID, slot, delta)
	case ModeLocked:
		mu := s.lockFor(userID)
		mu.Lock()
		err = s.readModifyWrite(ctx, userID, slot, delta)
		mu.Unlock()
	case ModeDocument:
		err = s.readModifyWrite(ctx, userID, slot, delta)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownMode, s.mode)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Debug("Cart updated",
		slog.String("user_id", userID),
		slog.Int("slot", slot),
		slog.Int("delta", delta),
		slog.String("mode", string(s.mode)),
	)

	return nil
}

// readModifyWrite writes the whole cart back even when nothing changed.
func (s *Service) readModifyWrite(ctx context.Context, userID string, slot int, delta int) error {
	cart, err := s.storage.Cart(ctx, userID)
	if err != nil {
		return err
	}

	if next := cart[slot] + delta; next >= 0 {
		cart[slot] = next
	}

	return s.storage.SaveCart(ctx, userID, cart)
}

func (s *Service) lockFor(userID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
