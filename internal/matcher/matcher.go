package matcher

import (
	"context"
	"strings"

	apperrors "github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/errors"
	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/pkg/logger"
)

// Candidate is one transaction entry on the fulfillment platform's paginated
// listing.
type Candidate struct {
	TransactionID string
	Product       string
	Recipient     string
	ReturnFiled   bool
}

// PageLister walks the platform's transaction history most-recent-first.
// An empty page means the history is exhausted.
type PageLister interface {
	ListTransactions(ctx context.Context, page int) ([]Candidate, error)
}

// Match reports whether a candidate corresponds to the given product and
// recipient names. Both labels must satisfy bidirectional containment: the
// two platforms use inconsistent naming schemes, so either side may carry
// the longer form.
func Match(productName, recipientName string, cand Candidate) bool {
	return contains(productName, cand.Product) && contains(recipientName, cand.Recipient)
}

// contains is the bidirectional containment predicate, commutative by
// construction. Both sides are trimmed and case folded.
func contains(a, b string) bool {
	na := normalize(a)
	nb := normalize(b)
	if na == "" || nb == "" {
		return false
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Searcher locates the transaction corresponding to a return record.
type Searcher struct {
	maxPages int
	logger   *logger.Logger
}

func NewSearcher(maxPages int, log *logger.Logger) *Searcher {
	if maxPages <= 0 {
		maxPages = 10
	}
	return &Searcher{maxPages: maxPages, logger: log}
}

// Search scans pages until a candidate matches, the history is exhausted, or
// the page cap is hit. The first match in page order wins; no similarity
// ranking is applied. When several candidates on the scanned pages satisfy
// containment, all of them are logged so operators can audit ambiguous
// matches.
func (s *Searcher) Search(ctx context.Context, lister PageLister, productName, recipientName string) (*Candidate, error) {
	var first *Candidate
	ambiguous := 0

	for page := 1; page <= s.maxPages; page++ {
		candidates, err := lister.ListTransactions(ctx, page)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			break
		}
		for i := range candidates {
			cand := candidates[i]
			if !Match(productName, recipientName, cand) {
				continue
			}
			if first == nil {
				c := cand
				first = &c
				continue
			}
			ambiguous++
			s.logger.Warn("additional candidate also satisfied containment",
				"transaction_id", cand.TransactionID,
				"product", cand.Product,
				"recipient", cand.Recipient)
		}
		if first != nil {
			break
		}
	}

	if first == nil {
		return nil, apperrors.NotFound("no matching transaction within page cap")
	}
	if ambiguous > 0 {
		s.logger.Warn("match was ambiguous; first page-order candidate used",
			"transaction_id", first.TransactionID, "others", ambiguous)
	}
	return first, nil
}
