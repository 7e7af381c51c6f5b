package orderflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/shopspring/decimal"

	"github.com/sungwon/wa-commerce/internal/session"
	"github.com/sungwon/wa-commerce/internal/storage"
)

const freeShippingCode = "free"

func formatMoney(d decimal.Decimal) string {
	return "Rp " + d.StringFixed(0)
}

// rankProducts orders products by how closely their names match query. Names
// the fuzzy ranking does not match keep their catalog order at the end.
func rankProducts(query string, products []storage.Product) []storage.Product {
	names := make([]string, len(products))
	for i, p := range products {
		names[i] = p.Name
	}
	ranks := fuzzy.RankFindNormalizedFold(query, names)
	sort.Sort(ranks)

	out := make([]storage.Product, 0, len(products))
	seen := make(map[int]bool, len(products))
	for _, r := range ranks {
		out = append(out, products[r.OriginalIndex])
		seen[r.OriginalIndex] = true
	}
	for i, p := range products {
		if !seen[i] {
			out = append(out, p)
		}
	}
	return out
}

func candidateList(query string, products []storage.Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "We found several products matching %q:\n", query)
	for i, p := range rankProducts(query, products) {
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, p.Name, formatMoney(p.Price))
	}
	b.WriteString("\nPlease send the full name of the product you want.")
	return b.String()
}

func cartSubtotal(items []storage.CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// shippingOptions lists the merchant's enabled methods, plus free shipping
// when it is enabled and the subtotal reaches the minimum.
func shippingOptions(settings storage.ShippingSettings, subtotal decimal.Decimal) []session.ShippingOption {
	var options []session.ShippingOption
	for _, m := range settings.Methods {
		if !m.Enabled {
			continue
		}
		options = append(options, session.ShippingOption{Code: m.Code, Name: m.Name, Cost: m.Cost})
	}
	if settings.FreeShippingEnabled && subtotal.GreaterThanOrEqual(settings.FreeShippingMinimum) {
		options = append(options, session.ShippingOption{Code: freeShippingCode, Name: "Free shipping", Cost: decimal.Zero})
	}
	return options
}

func shippingPrompt(options []session.ShippingOption) string {
	var b strings.Builder
	b.WriteString("Choose a shipping method:\n")
	for i, o := range options {
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, o.Name, formatMoney(o.Cost))
	}
	b.WriteString("\nReply with the number of your choice.")
	return b.String()
}

func orderSummary(order storage.Order, items []storage.CartItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order %s\n", shortID(order.ID.String()))
	for _, item := range items {
		fmt.Fprintf(&b, "- %d x %s @ %s\n", item.Quantity, item.ProductName, formatMoney(item.Price))
	}
	fmt.Fprintf(&b, "Subtotal: %s\n", formatMoney(order.Subtotal))
	fmt.Fprintf(&b, "Shipping (%s): %s\n", order.ShippingMethod, formatMoney(order.ShippingCost))
	fmt.Fprintf(&b, "Total: %s", formatMoney(order.Total))
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return strings.ToUpper(id[:8])
	}
	return strings.ToUpper(id)
}
