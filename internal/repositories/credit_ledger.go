package repositories

import "context"

// CreditLedger owns the per-user generation credit balance.
//
// ConsumeOne must be atomic with respect to concurrent callers for the same
// user: when one credit remains, exactly one of two racing calls may succeed.
// Exhaustion is reported through the models.CreditsExhausted sentinel with a
// nil error; a non-nil error always means no debit can be assumed to have
// happened and the caller may retry.
type CreditLedger interface {
	ConsumeOne(ctx context.Context, userID string) (int, error)
	Balance(ctx context.Context, userID string) (int, error)
	Grant(ctx context.Context, userID string, amount int) (int, error)
}
