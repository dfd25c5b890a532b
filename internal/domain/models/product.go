package models

import (
	"encoding/json"
	"time"
)

type Product struct {
	Key         string    `json:"_id" bson:"_id"`
	ID          int64     `json:"id" bson:"id"`
	Name        string    `json:"name" bson:"name"`
	Description string    `json:"description" bson:"description"`
	Image       string    `json:"image" bson:"image"`
	Category    string    `json:"category" bson:"category"`
	NewPrice    *float64  `json:"new_price,omitempty" bson:"new_price,omitempty"`
	OldPrice    *float64  `json:"old_price,omitempty" bson:"old_price,omitempty"`
	CreatedAt   time.Time `json:"date" bson:"created_at"`
	Available   bool      `json:"available" bson:"available"`
}

// UnmarshalJSON accepts the storefront's "avilable" spelling next to
// "available" and defaults availability to true when neither is sent.
func (p *Product) UnmarshalJSON(data []byte) error {
	type product Product
	aux := struct {
		*product
		Available *bool `json:"available"`
		Avilable  *bool `json:"avilable"`
	}{product: (*product)(p)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	switch {
	case aux.Available != nil:
		p.Available = *aux.Available
	case aux.Avilable != nil:
		p.Available = *aux.Avilable
	default:
		p.Available = true
	}

	return nil
}
