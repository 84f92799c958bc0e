package models

import "time"

// Client is a customer the user invoices.
type Client struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"-"`
	Name      string    `db:"name" json:"name"`
	Email     *string   `db:"email" json:"email,omitempty"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	Address   *string   `db:"address" json:"address,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ClientFilter captures list criteria for clients.
type ClientFilter struct {
	Search   string
	Page     int
	PageSize int
}

// ClientStats aggregates dashboard counters for clients.
type ClientStats struct {
	TotalCount int `db:"total_count" json:"total_count"`
}
