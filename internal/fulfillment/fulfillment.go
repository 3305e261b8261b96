package fulfillment

import (
	"context"

	"github.com/lhs0609a-cpu/coupang-wing-cs-automation-sub002/internal/matcher"
)

// ReturnRequest carries everything the platform needs to file a return for a
// matched transaction.
type ReturnRequest struct {
	Transaction    matcher.Candidate
	ReasonCategory string
}

// Actuator is the capability surface of the fulfillment platform. The
// pipeline's correctness properties do not depend on how an implementation
// drives the platform (authenticated HTTP, browser driver, ...), only on
// this contract.
//
// SubmitReturn is NOT idempotent: callers must guard replays with
// VerifyReturned when a prior attempt's outcome is unknown.
type Actuator interface {
	// Authenticate establishes or refreshes the platform session.
	Authenticate(ctx context.Context) error
	// ListTransactions pages through the transaction history,
	// most-recent-first. Page numbers start at 1.
	ListTransactions(ctx context.Context, page int) ([]matcher.Candidate, error)
	// SubmitReturn executes the multi-step return action for a transaction.
	SubmitReturn(ctx context.Context, req ReturnRequest) error
	// VerifyReturned re-queries the transaction and reports whether a return
	// is already filed for it.
	VerifyReturned(ctx context.Context, transactionID string) (bool, error)
}
