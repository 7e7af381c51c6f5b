package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// completion is one prompt sent to a chat model.
type completion struct {
	System   string
	User     string
	Image    []byte
	MIMEType string
	// Vision selects the provider's vision model.
	Vision bool
}

// completer sends a single prompt and returns the model's text.
type completer interface {
	complete(ctx context.Context, req completion) (string, error)
}

const (
	replyPrompt = "You are a helpful shop assistant answering customers on WhatsApp. " +
		"Reply briefly and politely in the customer's language."

	isDepositPrompt = "Decide whether the message is a customer reporting a bank transfer or deposit " +
		"they have made. Answer with exactly one word: yes or no."

	depositFieldsPrompt = "Extract the bank transfer details from the message or receipt. " +
		"Respond with a JSON object only, using null for anything not present: " +
		`{"amount": number, "transaction_date": "YYYY-MM-DD", "transaction_time": "HH:MM", ` +
		`"reference_id": string, "source_account": string, "payment_method": string}`

	isProductRequestPrompt = "Decide whether the customer wants to buy or order a product. " +
		"Answer with exactly one word: yes or no."

	productNamePrompt = "Extract the name of the product the customer wants to order. " +
		"Respond with the product name only, or NONE if no product is named."

	quantityPrompt = "Extract how many units the customer wants. " +
		"Respond with a single integer, or 0 if no quantity is given."

	sentimentPrompt = "The customer was asked whether they want to order more products. " +
		"Classify the reply. Answer with exactly one word: positive, negative or unknown."

	faqPrompt = "Pick the numbered question that the customer's message is asking. " +
		"Respond with the number only, or 0 if none of them match."
)

// assistant implements Capabilities over any completer. Both provider
// variants share it so prompts and parsing stay identical.
type assistant struct {
	c completer
}

func (a *assistant) GenerateReply(ctx context.Context, text string) (string, error) {
	out, err := a.c.complete(ctx, completion{System: replyPrompt, User: text})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (a *assistant) ClassifyIsDeposit(ctx context.Context, text string) (bool, error) {
	return a.yesNo(ctx, isDepositPrompt, text)
}

func (a *assistant) ClassifyIsProductRequest(ctx context.Context, text string) (bool, error) {
	return a.yesNo(ctx, isProductRequestPrompt, text)
}

func (a *assistant) yesNo(ctx context.Context, system, text string) (bool, error) {
	out, err := a.c.complete(ctx, completion{System: system, User: text})
	if err != nil {
		return false, err
	}
	return firstWord(out) == "yes", nil
}

func (a *assistant) ExtractDepositFields(ctx context.Context, in DepositInput) (DepositFields, error) {
	req := completion{System: depositFieldsPrompt, User: in.Text}
	if in.HasImage() {
		req.Image = in.Image
		req.MIMEType = in.MIMEType
		req.Vision = true
		if req.User == "" {
			req.User = "Receipt image attached."
		}
	}
	out, err := a.c.complete(ctx, req)
	if err != nil {
		return DepositFields{}, err
	}
	return parseDepositFields(out)
}

func (a *assistant) ExtractProductName(ctx context.Context, text string) (string, error) {
	out, err := a.c.complete(ctx, completion{System: productNamePrompt, User: text})
	if err != nil {
		return "", err
	}
	name := strings.Trim(strings.TrimSpace(out), `"'.`)
	if strings.EqualFold(name, "none") {
		return "", nil
	}
	return name, nil
}

func (a *assistant) ExtractQuantity(ctx context.Context, text string) (int, error) {
	out, err := a.c.complete(ctx, completion{System: quantityPrompt, User: text})
	if err != nil {
		return 0, err
	}
	n, ok := firstInt(out)
	if !ok || n < 0 {
		return 0, nil
	}
	return n, nil
}

func (a *assistant) ClassifyPositiveNegative(ctx context.Context, text string) (Sentiment, error) {
	out, err := a.c.complete(ctx, completion{System: sentimentPrompt, User: text})
	if err != nil {
		return SentimentUnknown, err
	}
	switch firstWord(out) {
	case "positive", "yes":
		return SentimentPositive, nil
	case "negative", "no":
		return SentimentNegative, nil
	default:
		return SentimentUnknown, nil
	}
}

func (a *assistant) MatchFAQ(ctx context.Context, text string, questions []string) (int, error) {
	if len(questions) == 0 {
		return -1, nil
	}
	var b strings.Builder
	b.WriteString("Questions:\n")
	for i, q := range questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	b.WriteString("\nCustomer message: ")
	b.WriteString(text)

	out, err := a.c.complete(ctx, completion{System: faqPrompt, User: b.String()})
	if err != nil {
		return -1, err
	}
	n, ok := firstInt(out)
	if !ok || n < 1 || n > len(questions) {
		return -1, nil
	}
	return n - 1, nil
}

var intPattern = regexp.MustCompile(`-?\d+`)

func firstInt(s string) (int, bool) {
	m := intPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

func firstWord(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], `"'.,!`)
}

type depositJSON struct {
	Amount          json.RawMessage `json:"amount"`
	TransactionDate *string         `json:"transaction_date"`
	TransactionTime *string         `json:"transaction_time"`
	ReferenceID     *string         `json:"reference_id"`
	SourceAccount   *string         `json:"source_account"`
	PaymentMethod   *string         `json:"payment_method"`
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "02-01-2006", "2 January 2006", "2 Jan 2006"}

// parseDepositFields reads the model's JSON answer. Models often wrap JSON in
// a fenced code block, so only the outermost object is decoded.
func parseDepositFields(out string) (DepositFields, error) {
	start := strings.Index(out, "{")
	end := strings.LastIndex(out, "}")
	if start < 0 || end < start {
		return DepositFields{}, nil
	}

	var raw depositJSON
	if err := json.Unmarshal([]byte(out[start:end+1]), &raw); err != nil {
		return DepositFields{}, fmt.Errorf("decode deposit fields: %w", err)
	}

	f := DepositFields{
		Amount:          parseAmount(raw.Amount),
		TransactionTime: deref(raw.TransactionTime),
		ReferenceID:     deref(raw.ReferenceID),
		SourceAccount:   deref(raw.SourceAccount),
		PaymentMethod:   deref(raw.PaymentMethod),
	}
	if d := deref(raw.TransactionDate); d != "" {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, d); err == nil {
				f.TransactionDate = t
				break
			}
		}
	}
	return f, nil
}

var (
	groupedAmount = regexp.MustCompile(`^\d{1,3}([.,]\d{3})+$`)
	amountChars   = regexp.MustCompile(`[^0-9.,]`)
)

// parseAmount accepts a JSON number or a string such as "Rp 150.000" or
// "1,250.50". Unreadable amounts are reported as missing.
func parseAmount(raw json.RawMessage) decimal.NullDecimal {
	if len(raw) == 0 {
		return decimal.NullDecimal{}
	}
	if raw[0] != '"' {
		var d decimal.NullDecimal
		if err := d.UnmarshalJSON(raw); err != nil {
			return decimal.NullDecimal{}
		}
		return d
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return decimal.NullDecimal{}
	}
	s = strings.Trim(amountChars.ReplaceAllString(s, ""), ".,")
	switch {
	case groupedAmount.MatchString(s):
		s = strings.NewReplacer(".", "", ",", "").Replace(s)
	case strings.Contains(s, ".") && strings.Contains(s, ","):
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	default:
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	v := strings.TrimSpace(*s)
	if strings.EqualFold(v, "null") {
		return ""
	}
	return v
}
