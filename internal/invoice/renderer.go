// Package invoice renders order invoices to images through an external HTML
// render service and stores them in the media store.
package invoice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sungwon/wa-commerce/internal/gateway"
	"github.com/sungwon/wa-commerce/internal/storage"
)

// ErrNotImage is returned when the render service answers with something
// other than an image.
var ErrNotImage = errors.New("render service did not return an image")

// OrderReader loads orders with their items.
type OrderReader interface {
	GetOrder(ctx context.Context, id uuid.UUID) (storage.Order, []storage.OrderItem, error)
}

// UserDirectory resolves buyer and seller names.
type UserDirectory interface {
	GetUser(ctx context.Context, id uuid.UUID) (storage.User, error)
}

// MediaWriter stores rendered invoices.
type MediaWriter interface {
	Put(ctx context.Context, key string, data []byte) error
}

var invoiceTemplate = template.Must(template.New("invoice").Funcs(template.FuncMap{
	"money": func(d decimal.Decimal) string { return "Rp " + d.StringFixed(0) },
	"line": func(it storage.OrderItem) decimal.Decimal {
		return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
	},
}).Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Invoice {{.Number}}</title></head>
<body>
<h1>Invoice {{.Number}}</h1>
<p>Date: {{.Order.CreatedAt.Format "2006-01-02 15:04"}}</p>
<p>Seller: {{.Seller.Name}}<br>Buyer: {{.Buyer.Name}} ({{.Buyer.Phone}})</p>
<table>
<tr><th>Product</th><th>Qty</th><th>Price</th><th>Total</th></tr>
{{range .Items}}<tr><td>{{.ProductName}}</td><td>{{.Quantity}}</td><td>{{money .Price}}</td><td>{{money (line .)}}</td></tr>
{{end}}</table>
<p>Subtotal: {{money .Order.Subtotal}}</p>
<p>Shipping ({{.Order.ShippingMethod}}): {{money .Order.ShippingCost}}</p>
<p><strong>Total: {{money .Order.Total}}</strong></p>
</body></html>
`))

type invoiceView struct {
	Number string
	Order  storage.Order
	Items  []storage.OrderItem
	Buyer  storage.User
	Seller storage.User
}

// HTTPRenderer posts invoice HTML to a render service and stores the image
// it returns.
type HTTPRenderer struct {
	orders    OrderReader
	users     UserDirectory
	media     MediaWriter
	client    gateway.HTTPClient
	renderURL string
	log       zerolog.Logger
}

// NewHTTPRenderer creates an HTTPRenderer.
func NewHTTPRenderer(orders OrderReader, users UserDirectory, media MediaWriter,
	client gateway.HTTPClient, renderURL string, log zerolog.Logger) *HTTPRenderer {
	return &HTTPRenderer{
		orders:    orders,
		users:     users,
		media:     media,
		client:    client,
		renderURL: renderURL,
		log:       log,
	}
}

// Render renders the invoice of orderID and returns its media key.
func (r *HTTPRenderer) Render(ctx context.Context, orderID uuid.UUID) (string, error) {
	html, err := r.buildHTML(ctx, orderID)
	if err != nil {
		return "", err
	}

	resp, err := r.client.Do(ctx, &gateway.HTTPRequest{
		Method:  "POST",
		URL:     r.renderURL,
		Headers: map[string]string{"Content-Type": "text/html; charset=utf-8", "Accept": "image/png"},
		Body:    html,
	})
	if err != nil {
		return "", fmt.Errorf("render invoice %s: %w", orderID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("render invoice %s: status %d", orderID, resp.StatusCode)
	}

	mtype := mimetype.Detect(resp.Body)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", fmt.Errorf("render invoice %s: %w (got %s)", orderID, ErrNotImage, mtype.String())
	}

	key := "invoices/" + orderID.String() + mtype.Extension()
	if err := r.media.Put(ctx, key, resp.Body); err != nil {
		return "", fmt.Errorf("store invoice %s: %w", orderID, err)
	}

	r.log.Debug().
		Str("order_id", orderID.String()).
		Str("media_key", key).
		Int("size", len(resp.Body)).
		Msg("invoice rendered")
	return key, nil
}

func (r *HTTPRenderer) buildHTML(ctx context.Context, orderID uuid.UUID) ([]byte, error) {
	order, items, err := r.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	buyer, err := r.users.GetUser(ctx, order.BuyerID)
	if err != nil {
		return nil, fmt.Errorf("load buyer: %w", err)
	}
	seller, err := r.users.GetUser(ctx, order.SellerID)
	if err != nil {
		return nil, fmt.Errorf("load seller: %w", err)
	}

	var buf bytes.Buffer
	err = invoiceTemplate.Execute(&buf, invoiceView{
		Number: strings.ToUpper(orderID.String()[:8]),
		Order:  order,
		Items:  items,
		Buyer:  buyer,
		Seller: seller,
	})
	if err != nil {
		return nil, fmt.Errorf("execute invoice template: %w", err)
	}
	return buf.Bytes(), nil
}
