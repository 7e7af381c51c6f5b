package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// FindActiveProducts returns active products of the merchant, or of sellers
// belonging to the merchant, whose name contains name (case-insensitive).
func (s *Store) FindActiveProducts(ctx context.Context, merchantID uuid.UUID, name string) ([]Product, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.seller_id, p.name, p.price, p.stock, p.image_key, p.active
		FROM products p
		JOIN users s ON s.id = p.seller_id
		WHERE p.active
		  AND (p.seller_id = $1 OR s.parent_id = $1)
		  AND p.name ILIKE '%' || $2 || '%'
		ORDER BY p.name
		LIMIT 20`, merchantID, likeEscaper.Replace(strings.TrimSpace(name)))
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SellerID, &p.Name, &p.Price, &p.Stock, &p.ImageKey, &p.Active); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// GetProduct returns the product with the given id.
func (s *Store) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	var p Product
	err := s.pool.QueryRow(ctx, `
		SELECT id, seller_id, name, price, stock, image_key, active
		FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.SellerID, &p.Name, &p.Price, &p.Stock, &p.ImageKey, &p.Active)
	if err != nil {
		return Product{}, notFound(err, "product")
	}
	return p, nil
}

// AddCartItem adds quantity units of product to the user's cart at price.
// Adding a product already in the cart increases its quantity.
func (s *Store) AddCartItem(ctx context.Context, userID, productID uuid.UUID, quantity int, price decimal.Decimal) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cart_items (user_id, product_id, quantity, price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, price = EXCLUDED.price`,
		userID, productID, quantity, price)
	if err != nil {
		return fmt.Errorf("insert cart item: %w", err)
	}
	return nil
}

// ListCartItems returns the user's cart lines with product name and seller.
func (s *Store) ListCartItems(ctx context.Context, userID uuid.UUID) ([]CartItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.user_id, c.product_id, p.seller_id, p.name, c.quantity, c.price
		FROM cart_items c
		JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	var items []CartItem
	for rows.Next() {
		var c CartItem
		if err := rows.Scan(&c.ID, &c.UserID, &c.ProductID, &c.SellerID, &c.ProductName, &c.Quantity, &c.Price); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// RemoveCartItems removes the given products from the user's cart.
func (s *Store) RemoveCartItems(ctx context.Context, userID uuid.UUID, productIDs []uuid.UUID) error {
	if len(productIDs) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `
		DELETE FROM cart_items WHERE user_id = $1 AND product_id = ANY($2::uuid[])`,
		userID, productIDs); err != nil {
		return fmt.Errorf("remove cart items: %w", err)
	}
	return nil
}

// ListAddresses returns the user's saved addresses, default first.
func (s *Store) ListAddresses(ctx context.Context, userID uuid.UUID) ([]Address, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, title, full_text, postal_code, is_default
		FROM addresses
		WHERE user_id = $1
		ORDER BY is_default DESC, created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("query addresses: %w", err)
	}
	defer rows.Close()

	var addresses []Address
	for rows.Next() {
		var a Address
		if err := rows.Scan(&a.ID, &a.UserID, &a.Title, &a.Full, &a.PostalCode, &a.IsDefault); err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		addresses = append(addresses, a)
	}
	return addresses, rows.Err()
}

// CreateDefaultAddress stores a new address and makes it the user's default.
func (s *Store) CreateDefaultAddress(ctx context.Context, in NewAddress) (Address, error) {
	var addr Address
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE addresses SET is_default = false WHERE user_id = $1`, in.UserID); err != nil {
			return fmt.Errorf("reset default address: %w", err)
		}
		return tx.QueryRow(ctx, `
			INSERT INTO addresses (user_id, title, full_text, postal_code, is_default)
			VALUES ($1, $2, $3, $4, true)
			RETURNING id, user_id, title, full_text, postal_code, is_default`,
			in.UserID, in.Title, in.Full, in.PostalCode).
			Scan(&addr.ID, &addr.UserID, &addr.Title, &addr.Full, &addr.PostalCode, &addr.IsDefault)
	})
	if err != nil {
		return Address{}, fmt.Errorf("create address: %w", err)
	}
	return addr, nil
}

// GetShippingSettings returns the merchant's shipping configuration. A
// merchant without a row gets empty settings.
func (s *Store) GetShippingSettings(ctx context.Context, merchantID uuid.UUID) (ShippingSettings, error) {
	settings := ShippingSettings{MerchantID: merchantID}
	var methods []byte
	err := s.pool.QueryRow(ctx, `
		SELECT methods, free_shipping_enabled, free_shipping_minimum
		FROM shipping_settings WHERE merchant_id = $1`, merchantID).
		Scan(&methods, &settings.FreeShippingEnabled, &settings.FreeShippingMinimum)
	if errors.Is(err, pgx.ErrNoRows) {
		return settings, nil
	}
	if err != nil {
		return ShippingSettings{}, fmt.Errorf("query shipping settings: %w", err)
	}
	if err := json.Unmarshal(methods, &settings.Methods); err != nil {
		return ShippingSettings{}, fmt.Errorf("decode shipping methods: %w", err)
	}
	return settings, nil
}
