package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// step is one forward action with its compensation. undo may be nil when
// the action has nothing to roll back.
type step struct {
	name string
	do   func(ctx context.Context) error
	undo func(ctx context.Context) error
}

// StepError reports where a multi-step flow stopped. Completed steps have
// already been compensated, and so has the failed step when its outcome was
// unknown. Compensation holds the undo failures, if any, which need an
// operator.
type StepError struct {
	Op           string
	Step         string
	Completed    int
	Total        int
	Err          error
	Compensation []error
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("%s: step %q failed after %d/%d steps: %v", e.Op, e.Step, e.Completed, e.Total, e.Err)
	if len(e.Compensation) > 0 {
		parts := make([]string, len(e.Compensation))
		for i, c := range e.Compensation {
			parts[i] = c.Error()
		}
		msg += "; compensation failed: " + strings.Join(parts, "; ")
	}
	return msg
}

func (e *StepError) Unwrap() error { return e.Err }

const compensateTimeout = 10 * time.Second

// runSaga runs steps in order. On the first failure the undo of every
// completed step runs in reverse under a context detached from the caller,
// so a cancelled request still rolls back. A retryable failure may have
// applied remotely with the reply lost, so the failed step's own undo runs
// first; undo actions therefore tolerate a do that never happened.
func (s *Service) runSaga(ctx context.Context, op string, steps []step) error {
	ctx, span := tracer.Start(ctx, "saga."+op)
	defer span.End()
	span.SetAttributes(attribute.Int("saga.steps", len(steps)))

	for i, st := range steps {
		err := st.do(ctx)
		if err == nil {
			continue
		}
		se := &StepError{Op: op, Step: st.name, Completed: i, Total: len(steps), Err: err}
		s.Log.Warn("saga step failed, compensating",
			zap.String("op", op),
			zap.String("step", st.name),
			zap.Int("completed", i),
			zap.Error(err),
		)

		from := i - 1
		if apperr.Retryable(err) {
			from = i
		}
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
		for j := from; j >= 0; j-- {
			if steps[j].undo == nil {
				continue
			}
			if uerr := steps[j].undo(cctx); uerr != nil {
				se.Compensation = append(se.Compensation, fmt.Errorf("undo %s: %w", steps[j].name, uerr))
				s.Log.Error("saga compensation failed",
					zap.String("op", op),
					zap.String("step", steps[j].name),
					zap.Error(uerr),
				)
			}
		}
		cancel()

		span.RecordError(se)
		span.SetStatus(codes.Error, se.Error())
		return se
	}
	return nil
}

// IsPartial reports whether err left compensation work undone.
func IsPartial(err error) bool {
	var se *StepError
	return errors.As(err, &se) && len(se.Compensation) > 0
}
