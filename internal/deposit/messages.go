package deposit

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sungwon/wa-commerce/internal/storage"
)

func formatMoney(d decimal.Decimal) string {
	return "Rp " + d.StringFixed(0)
}

func clarifyMessage(missing []string) string {
	return fmt.Sprintf("Thanks for your payment notice. We could not read the %s. "+
		"Please send those details so we can record your deposit.", strings.Join(missing, ", "))
}

func duplicateMessage(referenceID string) string {
	return fmt.Sprintf("A deposit with reference %s was already reported and will not be recorded again.", referenceID)
}

func receiptMessage(tx storage.Transaction) string {
	return fmt.Sprintf("We received your deposit notice of %s (ref %s, %s). It is waiting for merchant approval.",
		formatMoney(tx.Amount), tx.ReferenceID, tx.TransactionDate.Format("2006-01-02"))
}

func reviewMessage(tx storage.Transaction, balance decimal.Decimal) string {
	verdict := "rejected"
	if tx.Status == storage.TransactionApproved {
		verdict = "approved"
	}
	return fmt.Sprintf("Your deposit of %s (ref %s) was %s. Your approved balance is %s.",
		formatMoney(tx.Amount), tx.ReferenceID, verdict, formatMoney(balance))
}
