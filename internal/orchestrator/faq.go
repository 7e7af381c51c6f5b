package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/sungwon/wa-commerce/internal/storage"
)

// maxFAQCandidates caps how many questions are offered to the AI matcher.
const maxFAQCandidates = 10

// answerFAQ replies with the answer of the FAQ entry matching the message.
// A failed AI match falls through to the next flow.
func (r *Router) answerFAQ(ctx context.Context, req *request) (bool, error) {
	faqs, err := r.FAQs.ListActiveFAQs(ctx, req.account.MerchantID)
	if err != nil {
		return false, fmt.Errorf("list faqs: %w", err)
	}
	if len(faqs) == 0 {
		return false, nil
	}

	candidates := rankFAQs(req.msg.Text, faqs, maxFAQCandidates)
	questions := make([]string, len(candidates))
	for i, f := range candidates {
		questions[i] = f.Question
	}

	idx, err := r.AI.MatchFAQ(ctx, req.msg.Text, questions)
	if err != nil {
		req.log.Warn().Err(err).Msg("faq match failed")
		return false, nil
	}
	if idx < 0 || idx >= len(candidates) {
		return false, nil
	}

	req.log.Debug().Str("faq_id", candidates[idx].ID.String()).Msg("faq matched")
	if err := r.Replies.SendText(req.account.Credential, req.msg.Sender, candidates[idx].Answer); err != nil {
		return true, fmt.Errorf("send faq answer: %w", err)
	}
	return true, nil
}

// rankFAQs orders entries by how many words of text fuzzily occur in their
// question and keeps the first limit. Ties keep the stored order.
func rankFAQs(text string, faqs []storage.FAQ, limit int) []storage.FAQ {
	questions := make([]string, len(faqs))
	for i, f := range faqs {
		questions[i] = f.Question
	}

	hits := make([]int, len(faqs))
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if len([]rune(w)) < 3 {
			continue
		}
		for _, rank := range fuzzy.RankFindNormalizedFold(w, questions) {
			hits[rank.OriginalIndex]++
		}
	}

	order := make([]int, len(faqs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return hits[order[a]] > hits[order[b]]
	})
	if len(order) > limit {
		order = order[:limit]
	}

	out := make([]storage.FAQ, len(order))
	for i, idx := range order {
		out[i] = faqs[idx]
	}
	return out
}
