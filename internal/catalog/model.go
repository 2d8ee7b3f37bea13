package catalog

import (
	"time"

	"github.com/gofrs/uuid"
)

type Category string

const (
	CategoryGoat  Category = "Goat"
	CategorySheep Category = "Sheep"
)

func (c Category) Valid() bool {
	return c == CategoryGoat || c == CategorySheep
}

type Status string

const (
	StatusAvailable Status = "Available"
	StatusReserved  Status = "Reserved"
	StatusSold      Status = "Sold"
)

func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusReserved, StatusSold:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// Listing is a catalog entry for a sellable animal. Quantity is informational;
// placing an order does not change it.
type Listing struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Category     Category  `json:"category"`
	Breed        string    `json:"breed"`
	Age          string    `json:"age"`
	Price        float64   `json:"price"`
	Image        string    `json:"image"`
	Description  string    `json:"description,omitempty"`
	Weight       string    `json:"weight,omitempty"`
	HealthStatus string    `json:"healthStatus,omitempty"`
	Tags         []string  `json:"tags"`
	Status       Status    `json:"status"`
	Quantity     int       `json:"quantity"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ListingInput carries the admin-editable fields of a listing.
type ListingInput struct {
	Name         string
	Category     Category
	Breed        string
	Age          string
	Price        float64
	Image        string
	Description  string
	Weight       string
	HealthStatus string
	Tags         []string
	Status       Status
	Quantity     int
}

type Filter struct {
	// AvailableOnly restricts results to listings a storefront may show.
	AvailableOnly bool
}
