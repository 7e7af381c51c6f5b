package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// CreateOrder creates an order with its line items and decrements product
// stock in a single database transaction.
func (s *Store) CreateOrder(ctx context.Context, in NewOrder) (Order, error) {
	if len(in.Items) == 0 {
		return Order{}, errors.New("create order: no items")
	}

	subtotal := decimal.Zero
	for _, item := range in.Items {
		if item.SellerID != in.SellerID {
			return Order{}, fmt.Errorf("create order: item %s belongs to another seller", item.ProductID)
		}
		subtotal = subtotal.Add(item.LineTotal())
	}

	var order Order
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, item := range in.Items {
			tag, err := tx.Exec(ctx, `
				UPDATE products SET stock = stock - $2
				WHERE id = $1 AND stock >= $2`, item.ProductID, item.Quantity)
			if err != nil {
				return fmt.Errorf("reserve stock: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("%s: %w", item.ProductName, ErrInsufficientStock)
			}
		}

		err := tx.QueryRow(ctx, `
			INSERT INTO orders (buyer_id, seller_id, address_id, shipping_method, shipping_cost, subtotal, total)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, buyer_id, seller_id, address_id, shipping_method, shipping_cost, subtotal, total, status, created_at`,
			in.BuyerID, in.SellerID, in.AddressID, in.ShippingMethod, in.ShippingCost, subtotal, subtotal.Add(in.ShippingCost)).
			Scan(&order.ID, &order.BuyerID, &order.SellerID, &order.AddressID, &order.ShippingMethod,
				&order.ShippingCost, &order.Subtotal, &order.Total, &order.Status, &order.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for _, item := range in.Items {
			if _, err := tx.Exec(ctx, `
				INSERT INTO order_items (order_id, product_id, product_name, quantity, price)
				VALUES ($1, $2, $3, $4, $5)`,
				order.ID, item.ProductID, item.ProductName, item.Quantity, item.Price); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, fmt.Errorf("create order: %w", err)
	}
	return order, nil
}

// GetOrder returns an order and its line items.
func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (Order, []OrderItem, error) {
	var o Order
	err := s.pool.QueryRow(ctx, `
		SELECT id, buyer_id, seller_id, address_id, shipping_method, shipping_cost, subtotal, total, status, created_at
		FROM orders WHERE id = $1`, id).
		Scan(&o.ID, &o.BuyerID, &o.SellerID, &o.AddressID, &o.ShippingMethod,
			&o.ShippingCost, &o.Subtotal, &o.Total, &o.Status, &o.CreatedAt)
	if err != nil {
		return Order{}, nil, notFound(err, "order")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, price
		FROM order_items WHERE order_id = $1 ORDER BY product_name`, id)
	if err != nil {
		return Order{}, nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.Price); err != nil {
			return Order{}, nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	return o, items, rows.Err()
}

// ListOrdersByBuyer returns the buyer's most recent orders, newest first.
func (s *Store) ListOrdersByBuyer(ctx context.Context, buyerID uuid.UUID, limit int) ([]Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, buyer_id, seller_id, address_id, shipping_method, shipping_cost, subtotal, total, status, created_at
		FROM orders WHERE buyer_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, buyerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.BuyerID, &o.SellerID, &o.AddressID, &o.ShippingMethod,
			&o.ShippingCost, &o.Subtotal, &o.Total, &o.Status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
