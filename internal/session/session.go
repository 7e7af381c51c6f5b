// Package session keeps the in-memory order conversation state of each
// customer.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sungwon/wa-commerce/internal/storage"
)

// ErrUnknownState is returned when a session holds a state no transition is
// defined for.
var ErrUnknownState = errors.New("unknown session state")

// State is a step of the guided ordering conversation.
type State string

const (
	StateIdle                 State = "idle"
	StateAskingQuantity       State = "asking_quantity"
	StateAskingMoreProducts   State = "asking_more_products"
	StateAskingAddressTitle   State = "asking_address_title"
	StateAskingAddressFull    State = "asking_address_full"
	StateAskingAddressPostal  State = "asking_address_postal_code"
	StateAskingShippingMethod State = "asking_shipping_method"
)

// Valid reports whether s is one of the defined states.
func (s State) Valid() bool {
	switch s {
	case StateIdle, StateAskingQuantity, StateAskingMoreProducts,
		StateAskingAddressTitle, StateAskingAddressFull, StateAskingAddressPostal,
		StateAskingShippingMethod:
		return true
	}
	return false
}

// Key identifies a conversation: one customer on one merchant account.
type Key struct {
	Phone     string
	AccountID uuid.UUID
}

func (k Key) String() string {
	return k.AccountID.String() + ":" + k.Phone
}

// AddressDraft collects a new address one field at a time.
type AddressDraft struct {
	Title      string
	Full       string
	PostalCode string
}

// ShippingOption is one numbered choice offered to the customer.
type ShippingOption struct {
	Code string
	Name string
	Cost decimal.Decimal
}

// Session is one customer's conversation state. Its fields are only read or
// written while the session is held through Store.Do.
type Session struct {
	mu   sync.Mutex
	// seen is guarded by the owning shard's mutex.
	seen time.Time

	Key              Key
	State            State
	CurrentProduct   *storage.Product
	AddressDraft     AddressDraft
	AddressID        uuid.UUID
	ShippingOptions  []ShippingOption
	SelectedShipping *ShippingOption
	LastInteraction  time.Time
}

func newSession(key Key, now time.Time) *Session {
	return &Session{Key: key, State: StateIdle, LastInteraction: now, seen: now}
}

// Reset discards all progress and returns the session to idle.
func (s *Session) Reset() {
	s.State = StateIdle
	s.CurrentProduct = nil
	s.AddressDraft = AddressDraft{}
	s.AddressID = uuid.Nil
	s.ShippingOptions = nil
	s.SelectedShipping = nil
}

// Transition moves the session to next.
func (s *Session) Transition(next State) error {
	if !next.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownState, next)
	}
	s.State = next
	return nil
}
