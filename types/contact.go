package types

import "time"

// Contact represents a single address-book entry owned by a user.
type Contact struct {
	// ID is the unique identifier of the contact.
	ID int `json:"id" db:"id"`

	// FirstName is the contact's given name.
	FirstName string `json:"first_name" db:"first_name"`

	// LastName is the contact's family name.
	LastName string `json:"last_name" db:"last_name"`

	// Email is the contact's email address.
	Email string `json:"email" db:"email"`

	// Phone is the contact's phone number.
	Phone string `json:"phone" db:"phone"`

	// Birthday is the contact's date of birth, if known.
	Birthday *time.Time `json:"birthday,omitempty" db:"birthday"`

	// Notes holds free-form text about the contact.
	Notes string `json:"notes,omitempty" db:"notes"`

	// OwnerID references the user this contact belongs to. Every contact
	// has exactly one owner; reads and writes are scoped to it.
	OwnerID int `json:"owner_id" db:"owner_id"`

	// CreatedAt is the timestamp when the contact was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the contact.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
