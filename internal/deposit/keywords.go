package deposit

import (
	"strings"
	"unicode"
)

// MinKeywords is the number of distinct banking words a text message needs
// before it is sent to the deposit classifier.
const MinKeywords = 5

// Banking vocabulary in English and Indonesian.
var depositWords = map[string]struct{}{
	"deposit": {}, "transfer": {}, "transferred": {}, "bank": {}, "reference": {}, "ref": {},
	"amount": {}, "account": {}, "paid": {}, "payment": {}, "receipt": {}, "proof": {},
	"date": {}, "sender": {}, "balance": {}, "topup": {}, "top": {}, "rp": {}, "idr": {},
	"setor": {}, "setoran": {}, "rekening": {}, "nominal": {}, "bukti": {}, "tanggal": {},
	"bayar": {}, "pembayaran": {}, "dibayar": {}, "transaksi": {}, "referensi": {},
	"norek": {}, "pengirim": {}, "saldo": {}, "jumlah": {}, "berita": {}, "mutasi": {},
	"bca": {}, "bni": {}, "bri": {}, "mandiri": {}, "cimb": {}, "permata": {}, "btn": {},
}

// CountKeywords returns how many distinct banking words appear in text.
func CountKeywords(text string) int {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, ok := depositWords[w]; ok {
			seen[w] = struct{}{}
		}
	}
	return len(seen)
}
