package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is a merchant's messaging gateway account. Credential is the
// gateway token and must never be logged in clear.
type Account struct {
	ID         uuid.UUID
	MerchantID uuid.UUID
	Name       string
	Credential string
	Active     bool
	CreatedAt  time.Time
}

// User roles.
const (
	RoleCustomer = "customer"
	RoleMerchant = "merchant"
)

// User is a registered customer or merchant. ParentID points at the merchant
// a customer belongs to.
type User struct {
	ID       uuid.UUID
	Name     string
	Phone    string
	Role     string
	ParentID uuid.NullUUID
}

// Product is a sellable item. SellerID is the user that fulfils it.
type Product struct {
	ID       uuid.UUID
	SellerID uuid.UUID
	Name     string
	Price    decimal.Decimal
	Stock    int
	ImageKey string
	Active   bool
}

// CartItem is a product line in a customer's cart.
type CartItem struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	ProductID   uuid.UUID
	SellerID    uuid.UUID
	ProductName string
	Quantity    int
	Price       decimal.Decimal
}

// LineTotal returns price times quantity.
func (c CartItem) LineTotal() decimal.Decimal {
	return c.Price.Mul(decimal.NewFromInt(int64(c.Quantity)))
}

// Address is a saved delivery address.
type Address struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Title      string
	Full       string
	PostalCode string
	IsDefault  bool
}

// NewAddress holds the fields for creating an address.
type NewAddress struct {
	UserID     uuid.UUID
	Title      string
	Full       string
	PostalCode string
}

// ShippingMethod is one merchant-configured delivery option.
type ShippingMethod struct {
	Code    string          `json:"code"`
	Name    string          `json:"name"`
	Cost    decimal.Decimal `json:"cost"`
	Enabled bool            `json:"enabled"`
}

// ShippingSettings is a merchant's shipping configuration.
type ShippingSettings struct {
	MerchantID          uuid.UUID
	Methods             []ShippingMethod
	FreeShippingEnabled bool
	FreeShippingMinimum decimal.Decimal
}

// Order is a placed order for a single seller.
type Order struct {
	ID             uuid.UUID
	BuyerID        uuid.UUID
	SellerID       uuid.UUID
	AddressID      uuid.UUID
	ShippingMethod string
	ShippingCost   decimal.Decimal
	Subtotal       decimal.Decimal
	Total          decimal.Decimal
	Status         string
	CreatedAt      time.Time
}

// OrderItem is a line item of an order.
type OrderItem struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	ProductID   uuid.UUID
	ProductName string
	Quantity    int
	Price       decimal.Decimal
}

// NewOrder holds everything needed to create an order and its items in one
// transaction.
type NewOrder struct {
	BuyerID        uuid.UUID
	SellerID       uuid.UUID
	AddressID      uuid.UUID
	ShippingMethod string
	ShippingCost   decimal.Decimal
	Items          []CartItem
}

// Transaction statuses.
const (
	TransactionPending  = "pending"
	TransactionApproved = "approved"
	TransactionRejected = "rejected"
)

// Transaction is a deposit awaiting or past merchant review.
type Transaction struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	MerchantID      uuid.UUID
	AccountID       uuid.UUID
	Type            string
	Status          string
	Amount          decimal.Decimal
	ReferenceID     string
	TransactionDate time.Time
	TransactionTime string
	SourceAccount   string
	PaymentMethod   string
	ProofKey        string
	CreatedAt       time.Time
	ReviewedAt      *time.Time
}

// NewTransaction holds the fields for recording a pending deposit.
type NewTransaction struct {
	UserID          uuid.UUID
	MerchantID      uuid.UUID
	AccountID       uuid.UUID
	Amount          decimal.Decimal
	ReferenceID     string
	TransactionDate time.Time
	TransactionTime string
	SourceAccount   string
	PaymentMethod   string
	ProofKey        string
}

// FAQ is a merchant-maintained question and answer pair.
type FAQ struct {
	ID         uuid.UUID
	MerchantID uuid.UUID
	Question   string
	Answer     string
	Active     bool
}

// InboundMessage is a persisted message received from the gateway. The pair
// (ProviderMessageID, AccountID) is unique.
type InboundMessage struct {
	ID                uuid.UUID
	ProviderMessageID string
	AccountID         uuid.UUID
	Sender            string
	Text              string
	MediaURL          string
	Kind              string
	ProviderDate      time.Time
	CreatedAt         time.Time
}
