// Package periods decides whether a movement date may still be written:
// the accounting period must be open and the date must not lie deeper in the
// past than the retroactive policy allows.
package periods

import (
	"context"
	"fmt"
	"time"

	"kardex/internal/core/apperror"
	"kardex/internal/core/id"
)

// Verdict is the answer of a validation.
type Verdict struct {
	Valid  bool
	Reason string
}

// Allow is the positive verdict.
var Allow = Verdict{Valid: true}

// Deny returns a negative verdict.
func Deny(format string, args ...any) Verdict {
	return Verdict{Reason: fmt.Sprintf(format, args...)}
}

// Validator is the period validation contract.
type Validator interface {
	ValidateDate(ctx context.Context, ownerID id.ID, date time.Time) (Verdict, error)
	ValidateRetroactiveDepth(ctx context.Context, ownerID id.ID, date time.Time) (Verdict, error)
}

// Check runs both validations and converts negative verdicts into typed errors.
func Check(ctx context.Context, v Validator, ownerID id.ID, date time.Time) error {
	verdict, err := v.ValidateDate(ctx, ownerID, date)
	if err != nil {
		return fmt.Errorf("validate period: %w", err)
	}
	if !verdict.Valid {
		return apperror.NewPeriodClosed(date, verdict.Reason).WithDetail("owner_id", ownerID)
	}

	verdict, err = v.ValidateRetroactiveDepth(ctx, ownerID, date)
	if err != nil {
		return fmt.Errorf("validate retroactive depth: %w", err)
	}
	if !verdict.Valid {
		return apperror.NewRetroactiveLimitExceeded(date, verdict.Reason).WithDetail("owner_id", ownerID)
	}
	return nil
}

// AllowAll accepts every date. Used by tooling that runs with policy checks
// already done.
type AllowAll struct{}

func (AllowAll) ValidateDate(context.Context, id.ID, time.Time) (Verdict, error) { return Allow, nil }

func (AllowAll) ValidateRetroactiveDepth(context.Context, id.ID, time.Time) (Verdict, error) {
	return Allow, nil
}
