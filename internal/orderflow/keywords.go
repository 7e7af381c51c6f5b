package orderflow

import (
	"strings"
	"unicode"

	"github.com/sungwon/wa-commerce/internal/ai"
)

// Replies to "order another product?" in English and Indonesian.
var (
	positiveWords = map[string]struct{}{
		"yes": {}, "y": {}, "yeah": {}, "yep": {}, "ok": {}, "okay": {}, "sure": {}, "more": {},
		"ya": {}, "iya": {}, "yup": {}, "oke": {}, "mau": {}, "boleh": {}, "tambah": {}, "lagi": {},
	}
	negativeWords = map[string]struct{}{
		"no": {}, "n": {}, "nope": {}, "done": {}, "enough": {}, "checkout": {}, "finish": {},
		"tidak": {}, "nggak": {}, "gak": {}, "ga": {}, "enggak": {}, "engga": {}, "cukup": {},
		"selesai": {}, "sudah": {}, "udah": {},
	}
)

// classifyKeywords looks the reply up in the keyword tables. It returns
// unknown when no keyword matched or both kinds did.
func classifyKeywords(text string) ai.Sentiment {
	var pos, neg bool
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		if _, ok := positiveWords[w]; ok {
			pos = true
		}
		if _, ok := negativeWords[w]; ok {
			neg = true
		}
	}
	switch {
	case pos && !neg:
		return ai.SentimentPositive
	case neg && !pos:
		return ai.SentimentNegative
	default:
		return ai.SentimentUnknown
	}
}
