package account

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/livestockmart/internal/catalog"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

type CartItem struct {
	ListingID uuid.UUID `json:"listingId"`
	Quantity  int       `json:"quantity"`
	Selected  bool      `json:"selected"`
}

type Address struct {
	Label   string `json:"label,omitempty" bson:"label"`
	Name    string `json:"name,omitempty" bson:"name"`
	Line1   string `json:"line1" bson:"line1"`
	Line2   string `json:"line2,omitempty" bson:"line2"`
	City    string `json:"city" bson:"city"`
	State   string `json:"state,omitempty" bson:"state"`
	Pincode string `json:"pincode,omitempty" bson:"pincode"`
	Phone   string `json:"phone,omitempty" bson:"phone"`
}

type Account struct {
	ID           uuid.UUID   `json:"id"`
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"`
	Role         Role        `json:"role"`
	Cart         []CartItem  `json:"cart"`
	Wishlist     []uuid.UUID `json:"wishlist"`
	Addresses    []Address   `json:"addresses"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// State is the client-owned part of an account, saved and replaced as a whole.
type State struct {
	Cart      []CartItem  `json:"cart"`
	Wishlist  []uuid.UUID `json:"wishlist"`
	Addresses []Address   `json:"addresses"`
}

// CartEntry is a cart line joined with the current listing.
type CartEntry struct {
	CartItem
	Listing catalog.Listing `json:"listing"`
}

type StateView struct {
	Cart      []CartEntry `json:"cart"`
	Wishlist  []uuid.UUID `json:"wishlist"`
	Addresses []Address   `json:"addresses"`
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     Role
}
