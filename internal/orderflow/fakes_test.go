package orderflow

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sungwon/wa-commerce/internal/ai"
	"github.com/sungwon/wa-commerce/internal/storage"
)

// memStore is an in-memory catalog, cart, address book, shipping config and
// order store.
type memStore struct {
	mu        sync.Mutex
	products  map[uuid.UUID]storage.Product
	carts     map[uuid.UUID][]storage.CartItem
	addresses map[uuid.UUID][]storage.Address
	settings  storage.ShippingSettings
	orders    []storage.NewOrder
	sellerOf  map[uuid.UUID]uuid.UUID // order id -> seller id
	orderErr  map[uuid.UUID]error     // seller id -> error
}

func newMemStore() *memStore {
	return &memStore{
		products:  make(map[uuid.UUID]storage.Product),
		carts:     make(map[uuid.UUID][]storage.CartItem),
		addresses: make(map[uuid.UUID][]storage.Address),
		sellerOf:  make(map[uuid.UUID]uuid.UUID),
		orderErr:  make(map[uuid.UUID]error),
	}
}

func (m *memStore) addProduct(seller uuid.UUID, name string, price int64, stock int) storage.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := storage.Product{
		ID:       uuid.New(),
		SellerID: seller,
		Name:     name,
		Price:    decimal.NewFromInt(price),
		Stock:    stock,
		Active:   true,
	}
	m.products[p.ID] = p
	return p
}

func (m *memStore) FindActiveProducts(_ context.Context, _ uuid.UUID, name string) ([]storage.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.Product
	for _, p := range m.products {
		if p.Active && strings.Contains(strings.ToLower(p.Name), strings.ToLower(name)) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) GetProduct(_ context.Context, id uuid.UUID) (storage.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return storage.Product{}, storage.ErrNotFound
	}
	return p, nil
}

func (m *memStore) AddCartItem(_ context.Context, userID, productID uuid.UUID, quantity int, price decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.products[productID]
	for i, item := range m.carts[userID] {
		if item.ProductID == productID {
			m.carts[userID][i].Quantity += quantity
			m.carts[userID][i].Price = price
			return nil
		}
	}
	m.carts[userID] = append(m.carts[userID], storage.CartItem{
		ID:          uuid.New(),
		UserID:      userID,
		ProductID:   productID,
		SellerID:    p.SellerID,
		ProductName: p.Name,
		Quantity:    quantity,
		Price:       price,
	})
	return nil
}

func (m *memStore) ListCartItems(_ context.Context, userID uuid.UUID) ([]storage.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.CartItem(nil), m.carts[userID]...), nil
}

func (m *memStore) RemoveCartItems(_ context.Context, userID uuid.UUID, productIDs []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := make(map[uuid.UUID]bool, len(productIDs))
	for _, id := range productIDs {
		drop[id] = true
	}
	var kept []storage.CartItem
	for _, item := range m.carts[userID] {
		if !drop[item.ProductID] {
			kept = append(kept, item)
		}
	}
	m.carts[userID] = kept
	return nil
}

func (m *memStore) ListAddresses(_ context.Context, userID uuid.UUID) ([]storage.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.Address(nil), m.addresses[userID]...), nil
}

func (m *memStore) CreateDefaultAddress(_ context.Context, in storage.NewAddress) (storage.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	addr := storage.Address{
		ID:         uuid.New(),
		UserID:     in.UserID,
		Title:      in.Title,
		Full:       in.Full,
		PostalCode: in.PostalCode,
		IsDefault:  true,
	}
	for i := range m.addresses[in.UserID] {
		m.addresses[in.UserID][i].IsDefault = false
	}
	m.addresses[in.UserID] = append([]storage.Address{addr}, m.addresses[in.UserID]...)
	return addr, nil
}

func (m *memStore) GetShippingSettings(context.Context, uuid.UUID) (storage.ShippingSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings, nil
}

func (m *memStore) CreateOrder(_ context.Context, in storage.NewOrder) (storage.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.orderErr[in.SellerID]; err != nil {
		return storage.Order{}, err
	}
	subtotal := decimal.Zero
	for _, item := range in.Items {
		if item.SellerID != in.SellerID {
			return storage.Order{}, errors.New("mixed sellers")
		}
		if m.products[item.ProductID].Stock < item.Quantity {
			return storage.Order{}, storage.ErrInsufficientStock
		}
		subtotal = subtotal.Add(item.LineTotal())
	}
	for _, item := range in.Items {
		p := m.products[item.ProductID]
		p.Stock -= item.Quantity
		m.products[item.ProductID] = p
	}
	order := storage.Order{
		ID:             uuid.New(),
		BuyerID:        in.BuyerID,
		SellerID:       in.SellerID,
		AddressID:      in.AddressID,
		ShippingMethod: in.ShippingMethod,
		ShippingCost:   in.ShippingCost,
		Subtotal:       subtotal,
		Total:          subtotal.Add(in.ShippingCost),
		Status:         "pending",
	}
	m.orders = append(m.orders, in)
	m.sellerOf[order.ID] = in.SellerID
	return order, nil
}

func (m *memStore) placedOrders() []storage.NewOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.NewOrder(nil), m.orders...)
}

func (m *memStore) cartOf(userID uuid.UUID) []storage.CartItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.CartItem(nil), m.carts[userID]...)
}

// fakeRenderer renders invoices, failing for orders of failSeller.
type fakeRenderer struct {
	store      *memStore
	failSeller uuid.UUID

	mu    sync.Mutex
	calls []uuid.UUID
}

func (r *fakeRenderer) Render(_ context.Context, orderID uuid.UUID) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, orderID)
	r.mu.Unlock()

	r.store.mu.Lock()
	seller := r.store.sellerOf[orderID]
	r.store.mu.Unlock()
	if r.failSeller != uuid.Nil && seller == r.failSeller {
		return "", errors.New("render service unavailable")
	}
	return "invoices/" + orderID.String() + ".png", nil
}

func (r *fakeRenderer) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// fakeAI returns canned answers and counts calls.
type fakeAI struct {
	mu            sync.Mutex
	productName   string
	quantity      int
	sentiment     ai.Sentiment
	err           error
	quantityCalls int
	classifyCalls int
}

func (f *fakeAI) ExtractProductName(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.productName, f.err
}

func (f *fakeAI) ExtractQuantity(context.Context, string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quantityCalls++
	return f.quantity, f.err
}

func (f *fakeAI) ClassifyPositiveNegative(context.Context, string) (ai.Sentiment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classifyCalls++
	return f.sentiment, f.err
}

type sentImage struct {
	key     string
	caption string
}

// fakeReplier records outbound messages.
type fakeReplier struct {
	mu     sync.Mutex
	texts  []string
	images []sentImage
}

func (f *fakeReplier) SendText(_, _, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeReplier) SendImage(_, _, key, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = append(f.images, sentImage{key: key, caption: caption})
	return nil
}

func (f *fakeReplier) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

func (f *fakeReplier) allTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func (f *fakeReplier) allImages() []sentImage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentImage(nil), f.images...)
}
