package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// CartSize is the number of slots every cart is created with.
const CartSize = 300

// Cart holds an item count per slot. Slots are addressed by index and the
// size never changes after creation.
type Cart [CartSize]int

// ValidSlot reports whether slot addresses an existing cart entry.
func ValidSlot(slot int) bool {
	return slot >= 0 && slot < CartSize
}

// MarshalJSON encodes the cart as an object keyed by the decimal slot index,
// e.g. {"0":0,"1":2,...}.
func (c Cart) MarshalJSON() ([]byte, error) {
	m := make(map[string]int, CartSize)
	for i, n := range c {
		m[strconv.Itoa(i)] = n
	}
	return json.Marshal(m)
}

func (c *Cart) UnmarshalJSON(data []byte) error {
	var m map[string]int
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	var cart Cart
	for k, n := range m {
		slot, err := strconv.Atoi(k)
		if err != nil || !ValidSlot(slot) {
			return fmt.Errorf("invalid cart slot %q", k)
		}
		cart[slot] = n
	}
	*c = cart

	return nil
}
