package periods

import (
	"context"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	"kardex/internal/core/id"
	"kardex/internal/core/types"
)

// DefaultDepthExpression allows corrections up to one year back.
const DefaultDepthExpression = "depth_days <= 365"

// LockRepository reads period locks.
type LockRepository interface {
	// ClosedUntil returns the last closed day of the owner, nil when no
	// period is closed.
	ClosedUntil(ctx context.Context, ownerID id.ID) (*time.Time, error)
}

// Policy implements Validator over stored period locks and a CEL expression
// for retroactive depth. The expression sees depth_days (int, days between the
// date and now), owner_id (string) and weekday (string, e.g. "Monday") and
// must evaluate to bool.
type Policy struct {
	locks      LockRepository
	expression string
	program    cel.Program
	now        func() time.Time
}

var _ Validator = (*Policy)(nil)

// NewPolicy compiles expression. An empty expression selects
// DefaultDepthExpression.
func NewPolicy(locks LockRepository, expression string) (*Policy, error) {
	if expression == "" {
		expression = DefaultDepthExpression
	}

	env, err := cel.NewEnv(
		cel.Variable("depth_days", cel.IntType),
		cel.Variable("owner_id", cel.StringType),
		cel.Variable("weekday", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	ast, iss := env.Compile(expression)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile depth expression %q: %w", expression, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("depth expression %q must evaluate to bool, got %s", expression, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("depth expression program: %w", err)
	}

	return &Policy{
		locks:      locks,
		expression: expression,
		program:    prg,
		now:        time.Now,
	}, nil
}

// WithClock replaces the time source.
func (p *Policy) WithClock(now func() time.Time) *Policy {
	p.now = now
	return p
}

// Expression returns the compiled source.
func (p *Policy) Expression() string { return p.expression }

// ValidateDate rejects dates inside a closed period.
func (p *Policy) ValidateDate(ctx context.Context, ownerID id.ID, date time.Time) (Verdict, error) {
	if p.locks == nil {
		return Allow, nil
	}
	closedUntil, err := p.locks.ClosedUntil(ctx, ownerID)
	if err != nil {
		return Verdict{}, err
	}
	if closedUntil != nil && !types.Day(date).After(types.Day(*closedUntil)) {
		return Deny("period closed until %s", closedUntil.Format(time.DateOnly)), nil
	}
	return Allow, nil
}

// ValidateRetroactiveDepth evaluates the depth expression for date.
func (p *Policy) ValidateRetroactiveDepth(ctx context.Context, ownerID id.ID, date time.Time) (Verdict, error) {
	depth := DepthDays(p.now(), date)

	out, _, err := p.program.ContextEval(ctx, map[string]any{
		"depth_days": depth,
		"owner_id":   ownerID.String(),
		"weekday":    date.Weekday().String(),
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("evaluate depth expression: %w", err)
	}

	allowed, ok := out.Value().(bool)
	if !ok {
		return Verdict{}, fmt.Errorf("depth expression returned %T", out.Value())
	}
	if !allowed {
		return Deny("retroactive depth of %d days rejected by policy %q", depth, p.expression), nil
	}
	return Allow, nil
}

// DepthDays counts whole calendar days from date back to now; dates in the
// future have depth 0.
func DepthDays(now, date time.Time) int64 {
	d := types.Day(now).Sub(types.Day(date))
	if d <= 0 {
		return 0
	}
	return int64(d / (24 * time.Hour))
}

