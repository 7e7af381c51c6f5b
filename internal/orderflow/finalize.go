package orderflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sungwon/wa-commerce/internal/session"
	"github.com/sungwon/wa-commerce/internal/storage"
)

// sellerGroup is the part of a cart one seller fulfils.
type sellerGroup struct {
	sellerID uuid.UUID
	items    []storage.CartItem
}

// partitionBySeller groups cart items by seller, keeping first-seen order.
func partitionBySeller(items []storage.CartItem) []sellerGroup {
	var groups []sellerGroup
	index := make(map[uuid.UUID]int)
	for _, item := range items {
		i, ok := index[item.SellerID]
		if !ok {
			i = len(groups)
			index[item.SellerID] = i
			groups = append(groups, sellerGroup{sellerID: item.SellerID})
		}
		groups[i].items = append(groups[i].items, item)
	}
	return groups
}

// finalize places one order per seller, dispatches their invoices and resets
// the session. A seller whose stock ran out is skipped and its items stay in
// the cart; orders already placed are kept whatever happens after them.
func (e *Engine) finalize(ctx context.Context, conv Conversation, sess *session.Session) error {
	if sess.SelectedShipping == nil {
		return errors.New("finalize without a shipping method")
	}
	if sess.AddressID == uuid.Nil {
		return errors.New("finalize without an address")
	}

	items, err := e.Carts.ListCartItems(ctx, conv.Customer.ID)
	if err != nil {
		return fmt.Errorf("list cart: %w", err)
	}
	if len(items) == 0 {
		sess.Reset()
		return e.reply(conv, "Your cart is empty. Send a product name to start a new order.")
	}

	shipping := *sess.SelectedShipping
	var (
		summaries []string
		soldOut   []string
	)
	for _, group := range partitionBySeller(items) {
		order, err := e.Orders.CreateOrder(ctx, storage.NewOrder{
			BuyerID:        conv.Customer.ID,
			SellerID:       group.sellerID,
			AddressID:      sess.AddressID,
			ShippingMethod: shipping.Code,
			ShippingCost:   shipping.Cost,
			Items:          group.items,
		})
		if errors.Is(err, storage.ErrInsufficientStock) {
			for _, item := range group.items {
				soldOut = append(soldOut, item.ProductName)
			}
			e.log.Info().
				Str("customer", conv.Customer.ID.String()).
				Str("seller", group.sellerID.String()).
				Msg("order skipped, insufficient stock")
			continue
		}
		if err != nil {
			return fmt.Errorf("create order for seller %s: %w", group.sellerID, err)
		}

		productIDs := make([]uuid.UUID, len(group.items))
		for i, item := range group.items {
			productIDs[i] = item.ProductID
		}
		if err := e.Carts.RemoveCartItems(ctx, conv.Customer.ID, productIDs); err != nil {
			return fmt.Errorf("remove ordered items from cart: %w", err)
		}

		OrdersCreatedTotal.Inc()
		summary := orderSummary(order, group.items)
		summaries = append(summaries, summary)
		e.dispatchInvoice(ctx, conv, order.ID, summary)
	}

	sess.Reset()

	var b strings.Builder
	if len(summaries) > 0 {
		fmt.Fprintf(&b, "Thank you! %d order(s) placed:\n\n%s", len(summaries), strings.Join(summaries, "\n\n"))
	}
	if len(soldOut) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Sorry, there is not enough stock left for: %s. These items are still in your cart.",
			strings.Join(soldOut, ", "))
	}
	return e.reply(conv, b.String())
}

// dispatchInvoice renders and sends the invoice of one order in the
// background. Failures fall back to a text summary and never affect other
// orders.
func (e *Engine) dispatchInvoice(ctx context.Context, conv Conversation, orderID uuid.UUID, summary string) {
	e.invoices.Add(1)
	go func() {
		defer e.invoices.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.invoiceTimeout)
		defer cancel()

		log := e.log.With().Str("order_id", orderID.String()).Logger()

		key, err := e.Invoices.Render(ctx, orderID)
		if err == nil {
			caption := "Invoice " + shortID(orderID.String())
			if err = e.Replies.SendImage(conv.Credential, conv.Phone, key, caption); err == nil {
				InvoicesTotal.WithLabelValues("sent").Inc()
				return
			}
		}

		InvoicesTotal.WithLabelValues("fallback").Inc()
		log.Error().Err(err).Msg("invoice dispatch failed, sending text summary")
		if err := e.Replies.SendText(conv.Credential, conv.Phone, "Invoice\n"+summary); err != nil {
			log.Error().Err(err).Msg("failed to send invoice summary")
		}
	}()
}
