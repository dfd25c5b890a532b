package models

import "time"

type User struct {
	ID           string    `json:"id" bson:"_id"`
	Name         string    `json:"name" bson:"name"`
	Email        string    `json:"email" bson:"email"`
	PasswordHash string    `json:"-" bson:"password_hash"`
	Cart         Cart      `json:"cart" bson:"cart"`
	CreatedAt    time.Time `json:"date" bson:"created_at"`
}
