// Package orderflow drives the guided ordering conversation: product lookup,
// quantity, more products, address capture, shipping choice and checkout.
package orderflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sungwon/wa-commerce/internal/ai"
	"github.com/sungwon/wa-commerce/internal/session"
	"github.com/sungwon/wa-commerce/internal/storage"
)

// ErrNoShippingMethod is returned when a merchant has no shipping method the
// order could use.
var ErrNoShippingMethod = errors.New("no shipping method available")

const defaultInvoiceTimeout = 60 * time.Second

// Catalog looks up sellable products.
type Catalog interface {
	FindActiveProducts(ctx context.Context, merchantID uuid.UUID, name string) ([]storage.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (storage.Product, error)
}

// CartStore holds the customer's cart between messages.
type CartStore interface {
	AddCartItem(ctx context.Context, userID, productID uuid.UUID, quantity int, price decimal.Decimal) error
	ListCartItems(ctx context.Context, userID uuid.UUID) ([]storage.CartItem, error)
	RemoveCartItems(ctx context.Context, userID uuid.UUID, productIDs []uuid.UUID) error
}

// AddressBook stores delivery addresses.
type AddressBook interface {
	ListAddresses(ctx context.Context, userID uuid.UUID) ([]storage.Address, error)
	CreateDefaultAddress(ctx context.Context, in storage.NewAddress) (storage.Address, error)
}

// ShippingConfig returns a merchant's shipping settings.
type ShippingConfig interface {
	GetShippingSettings(ctx context.Context, merchantID uuid.UUID) (storage.ShippingSettings, error)
}

// OrderStore creates orders.
type OrderStore interface {
	CreateOrder(ctx context.Context, in storage.NewOrder) (storage.Order, error)
}

// InvoiceRenderer renders an order's invoice and returns its media key.
type InvoiceRenderer interface {
	Render(ctx context.Context, orderID uuid.UUID) (string, error)
}

// Replier enqueues outbound messages.
type Replier interface {
	SendText(credential, recipient, text string) error
	SendImage(credential, recipient, mediaKey, caption string) error
}

// Assistant is the subset of AI capabilities the flow uses.
type Assistant interface {
	ExtractProductName(ctx context.Context, text string) (string, error)
	ExtractQuantity(ctx context.Context, text string) (int, error)
	ClassifyPositiveNegative(ctx context.Context, text string) (ai.Sentiment, error)
}

// Conversation identifies who a message came from and which merchant
// account it arrived on.
type Conversation struct {
	Credential string
	MerchantID uuid.UUID
	Customer   storage.User
	Phone      string
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Catalog   Catalog
	Carts     CartStore
	Addresses AddressBook
	Shipping  ShippingConfig
	Orders    OrderStore
	Invoices  InvoiceRenderer
	AI        Assistant
	Replies   Replier
}

// Engine runs the ordering state machine. It is safe for concurrent use as
// long as each session is handled by one goroutine at a time.
type Engine struct {
	Deps
	invoiceTimeout time.Duration
	log            zerolog.Logger

	invoices sync.WaitGroup
}

// NewEngine creates an Engine. A non-positive invoiceTimeout uses the
// default.
func NewEngine(deps Deps, invoiceTimeout time.Duration, log zerolog.Logger) *Engine {
	if invoiceTimeout <= 0 {
		invoiceTimeout = defaultInvoiceTimeout
	}
	return &Engine{
		Deps:           deps,
		invoiceTimeout: invoiceTimeout,
		log:            log,
	}
}

// Wait blocks until every dispatched invoice has been handled.
func (e *Engine) Wait() {
	e.invoices.Wait()
}

// Handle advances sess with one customer message. An error means the step
// was aborted; the caller is expected to reset the session.
func (e *Engine) Handle(ctx context.Context, conv Conversation, sess *session.Session, text string) error {
	text = strings.TrimSpace(text)
	state := sess.State
	e.log.Debug().
		Str("customer", conv.Customer.ID.String()).
		Str("state", string(state)).
		Msg("order flow step")

	var err error
	switch state {
	case session.StateIdle:
		err = e.handleIdle(ctx, conv, sess, text)
	case session.StateAskingQuantity:
		err = e.handleQuantity(ctx, conv, sess, text)
	case session.StateAskingMoreProducts:
		err = e.handleMoreProducts(ctx, conv, sess, text)
	case session.StateAskingAddressTitle:
		sess.AddressDraft.Title = text
		err = e.advance(conv, sess, session.StateAskingAddressFull, "Please send the full delivery address.")
	case session.StateAskingAddressFull:
		sess.AddressDraft.Full = text
		err = e.advance(conv, sess, session.StateAskingAddressPostal, "Please send the postal code.")
	case session.StateAskingAddressPostal:
		sess.AddressDraft.PostalCode = text
		err = e.saveAddress(ctx, conv, sess)
	case session.StateAskingShippingMethod:
		err = e.handleShippingChoice(ctx, conv, sess, text)
	default:
		err = fmt.Errorf("%w: %q", session.ErrUnknownState, state)
	}
	if err != nil {
		return fmt.Errorf("order flow %s: %w", state, err)
	}
	return nil
}

func (e *Engine) reply(conv Conversation, text string) error {
	if err := e.Replies.SendText(conv.Credential, conv.Phone, text); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

func (e *Engine) advance(conv Conversation, sess *session.Session, next session.State, prompt string) error {
	if err := sess.Transition(next); err != nil {
		return err
	}
	return e.reply(conv, prompt)
}

func (e *Engine) handleIdle(ctx context.Context, conv Conversation, sess *session.Session, text string) error {
	name, err := e.AI.ExtractProductName(ctx, text)
	if err != nil {
		return fmt.Errorf("extract product name: %w", err)
	}
	if name == "" {
		return e.reply(conv, "Which product would you like to order? Please send the product name.")
	}

	products, err := e.Catalog.FindActiveProducts(ctx, conv.MerchantID, name)
	if err != nil {
		return fmt.Errorf("find products: %w", err)
	}

	switch len(products) {
	case 0:
		sess.Reset()
		return e.reply(conv, fmt.Sprintf("Sorry, we could not find a product called %q.", name))
	case 1:
		return e.selectProduct(conv, sess, products[0])
	default:
		sess.Reset()
		return e.reply(conv, candidateList(name, products))
	}
}

func (e *Engine) selectProduct(conv Conversation, sess *session.Session, p storage.Product) error {
	sess.CurrentProduct = &p
	if err := sess.Transition(session.StateAskingQuantity); err != nil {
		return err
	}

	caption := fmt.Sprintf("%s\nPrice: %s\nStock: %d\n\nHow many would you like?", p.Name, formatMoney(p.Price), p.Stock)
	if p.ImageKey != "" {
		if err := e.Replies.SendImage(conv.Credential, conv.Phone, p.ImageKey, caption); err != nil {
			return fmt.Errorf("send product image: %w", err)
		}
		return nil
	}
	return e.reply(conv, caption)
}

func (e *Engine) handleQuantity(ctx context.Context, conv Conversation, sess *session.Session, text string) error {
	if sess.CurrentProduct == nil {
		return errors.New("asking quantity without a current product")
	}

	qty, err := e.parseQuantity(ctx, text)
	if err != nil {
		return err
	}
	if qty <= 0 {
		return e.reply(conv, "Please send the quantity as a number, for example 2.")
	}

	// Re-read the product so stock and price are current.
	product, err := e.Catalog.GetProduct(ctx, sess.CurrentProduct.ID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && !product.Active) {
		sess.Reset()
		return e.reply(conv, "Sorry, that product is no longer available.")
	}
	if err != nil {
		return fmt.Errorf("get product: %w", err)
	}
	sess.CurrentProduct = &product

	inCart, err := e.quantityInCart(ctx, conv.Customer.ID, product.ID)
	if err != nil {
		return err
	}
	available := product.Stock - inCart
	switch {
	case available <= 0:
		sess.CurrentProduct = nil
		return e.advance(conv, sess, session.StateAskingMoreProducts,
			fmt.Sprintf("You already have all %d x %s in your cart. Would you like to order another product? (yes/no)",
				inCart, product.Name))
	case qty > available && inCart > 0:
		return e.reply(conv, fmt.Sprintf("Sorry, only %d more available (you already have %d in your cart). How many would you like?",
			available, inCart))
	case qty > available:
		return e.reply(conv, fmt.Sprintf("Sorry, only %d left in stock. How many would you like?", product.Stock))
	}

	if err := e.Carts.AddCartItem(ctx, conv.Customer.ID, product.ID, qty, product.Price); err != nil {
		return fmt.Errorf("add to cart: %w", err)
	}
	sess.CurrentProduct = nil

	return e.advance(conv, sess, session.StateAskingMoreProducts,
		fmt.Sprintf("Added %d x %s to your cart. Would you like to order another product? (yes/no)", qty, product.Name))
}

// quantityInCart returns how many units of productID the customer already
// holds, since adding to the cart accumulates onto an existing line.
func (e *Engine) quantityInCart(ctx context.Context, userID, productID uuid.UUID) (int, error) {
	items, err := e.Carts.ListCartItems(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list cart: %w", err)
	}
	n := 0
	for _, item := range items {
		if item.ProductID == productID {
			n += item.Quantity
		}
	}
	return n, nil
}

// parseQuantity reads a plain number locally and only asks the model for
// anything else.
func (e *Engine) parseQuantity(ctx context.Context, text string) (int, error) {
	if n, err := strconv.Atoi(text); err == nil {
		return n, nil
	}
	n, err := e.AI.ExtractQuantity(ctx, text)
	if err != nil {
		return 0, fmt.Errorf("extract quantity: %w", err)
	}
	return n, nil
}

func (e *Engine) handleMoreProducts(ctx context.Context, conv Conversation, sess *session.Session, text string) error {
	sentiment := classifyKeywords(text)
	if sentiment == ai.SentimentUnknown {
		var err error
		sentiment, err = e.AI.ClassifyPositiveNegative(ctx, text)
		if err != nil {
			return fmt.Errorf("classify reply: %w", err)
		}
	}

	switch sentiment {
	case ai.SentimentPositive:
		return e.advance(conv, sess, session.StateIdle, "Sure! Which product would you like to add?")
	case ai.SentimentNegative:
		return e.startCheckout(ctx, conv, sess)
	default:
		return e.reply(conv, "Would you like to order another product? Please answer yes or no.")
	}
}

func (e *Engine) startCheckout(ctx context.Context, conv Conversation, sess *session.Session) error {
	addresses, err := e.Addresses.ListAddresses(ctx, conv.Customer.ID)
	if err != nil {
		return fmt.Errorf("list addresses: %w", err)
	}
	if len(addresses) == 0 {
		sess.AddressDraft = session.AddressDraft{}
		return e.advance(conv, sess, session.StateAskingAddressTitle,
			"Where should we deliver? Please send a name for this address, for example Home.")
	}

	// Listed default first.
	addr := addresses[0]
	sess.AddressID = addr.ID
	if err := e.reply(conv, fmt.Sprintf("Delivering to %s: %s %s", addr.Title, addr.Full, addr.PostalCode)); err != nil {
		return err
	}
	return e.offerShipping(ctx, conv, sess)
}

func (e *Engine) saveAddress(ctx context.Context, conv Conversation, sess *session.Session) error {
	addr, err := e.Addresses.CreateDefaultAddress(ctx, storage.NewAddress{
		UserID:     conv.Customer.ID,
		Title:      sess.AddressDraft.Title,
		Full:       sess.AddressDraft.Full,
		PostalCode: sess.AddressDraft.PostalCode,
	})
	if err != nil {
		return fmt.Errorf("save address: %w", err)
	}
	sess.AddressID = addr.ID
	sess.AddressDraft = session.AddressDraft{}
	return e.offerShipping(ctx, conv, sess)
}

func (e *Engine) offerShipping(ctx context.Context, conv Conversation, sess *session.Session) error {
	items, err := e.Carts.ListCartItems(ctx, conv.Customer.ID)
	if err != nil {
		return fmt.Errorf("list cart: %w", err)
	}
	if len(items) == 0 {
		sess.Reset()
		return e.reply(conv, "Your cart is empty. Send a product name to start a new order.")
	}

	settings, err := e.Shipping.GetShippingSettings(ctx, conv.MerchantID)
	if err != nil {
		return fmt.Errorf("get shipping settings: %w", err)
	}
	options := shippingOptions(settings, cartSubtotal(items))
	if len(options) == 0 {
		return ErrNoShippingMethod
	}
	sess.ShippingOptions = options
	sess.SelectedShipping = nil

	return e.advance(conv, sess, session.StateAskingShippingMethod, shippingPrompt(options))
}

func (e *Engine) handleShippingChoice(ctx context.Context, conv Conversation, sess *session.Session, text string) error {
	if len(sess.ShippingOptions) == 0 {
		return ErrNoShippingMethod
	}
	n, err := strconv.Atoi(strings.TrimSuffix(text, "."))
	if err != nil || n < 1 || n > len(sess.ShippingOptions) {
		return e.reply(conv, fmt.Sprintf("Please reply with a number from 1 to %d.", len(sess.ShippingOptions)))
	}
	choice := sess.ShippingOptions[n-1]
	sess.SelectedShipping = &choice
	return e.finalize(ctx, conv, sess)
}
