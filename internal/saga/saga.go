package saga

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// State tracks where a run is in its lifecycle. Keeping the transitions
// explicit makes rollback ordering auditable without digging through
// nested error handling.
type State string

const (
	StatePending         State = "pending"
	StateStepExecuting   State = "step_executing"
	StateStepsCompleting State = "steps_completing"
	StateRollingBack     State = "rolling_back"
	StateCommitted       State = "committed"
	StateRolledBack      State = "rolled_back"
)

// Step is one unit of a compensating transaction. Execute receives the
// results of every prior step in order; Rollback receives only this step's
// own execute result.
type Step struct {
	Name     string
	Execute  func(prior []interface{}) (interface{}, error)
	Rollback func(own interface{}) error
}

// Options tunes rollback behavior. By default a failed rollback is logged
// and the remaining completed steps are still unwound, so one irrecoverable
// side effect does not block cleanup of the others.
type Options struct {
	AbortOnRollbackError bool
}

// Result reports what happened. Run never returns a Go error for a step
// failure; callers must check Success and must not infer it from the absence
// of a panic or error value.
type Result struct {
	Success      bool
	State        State
	Results      []interface{}
	Err          error
	FailedStep   string
	RolledBack   []string
	RollbackErrs map[string]error
}

// Runner executes ordered (execute, rollback) step lists against a store
// with no native multi-statement transactions.
type Runner struct {
	logger *logrus.Logger
}

func NewRunner(logger *logrus.Logger) *Runner {
	return &Runner{logger: logger}
}

// Run executes steps sequentially. On the first failure it rolls back every
// already-completed step in strict reverse order and reports which step
// failed and what was undone.
func (r *Runner) Run(ctx context.Context, steps []Step, opts Options) Result {
	result := Result{
		State:        StatePending,
		Results:      make([]interface{}, 0, len(steps)),
		RollbackErrs: make(map[string]error),
	}

	completed := make([]Step, 0, len(steps))

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			result.Err = err
			result.FailedStep = step.Name
			return r.rollback(result, completed, opts)
		}

		result.State = StateStepExecuting
		out, err := step.Execute(result.Results)
		if err != nil {
			r.logger.WithFields(logrus.Fields{
				"step":  step.Name,
				"error": err.Error(),
			}).Warn("Transaction step failed, rolling back")
			result.Err = err
			result.FailedStep = step.Name
			return r.rollback(result, completed, opts)
		}

		result.Results = append(result.Results, out)
		completed = append(completed, step)
	}

	result.State = StateStepsCompleting
	result.Success = true
	result.State = StateCommitted
	return result
}

func (r *Runner) rollback(result Result, completed []Step, opts Options) Result {
	result.State = StateRollingBack

	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if step.Rollback == nil {
			continue
		}
		if err := step.Rollback(result.Results[i]); err != nil {
			r.logger.WithFields(logrus.Fields{
				"step":  step.Name,
				"error": err.Error(),
			}).Error("Rollback failed")
			result.RollbackErrs[step.Name] = err
			if opts.AbortOnRollbackError {
				break
			}
			continue
		}
		result.RolledBack = append(result.RolledBack, step.Name)
	}

	result.State = StateRolledBack
	return result
}

// Op is one independent operation of a parallel transaction.
type Op struct {
	Name     string
	Execute  func() (interface{}, error)
	Rollback func(own interface{}) error
}

// RunParallel fans the operations out concurrently and joins on all of them.
// If any fail, every operation that did complete is rolled back, in
// completion order since concurrent work has no natural reverse order.
// Operation bodies must not share mutable state beyond their own result.
func (r *Runner) RunParallel(ctx context.Context, ops []Op, opts Options) Result {
	result := Result{
		State:        StatePending,
		Results:      make([]interface{}, len(ops)),
		RollbackErrs: make(map[string]error),
	}

	type completion struct {
		index int
		out   interface{}
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed []completion
		firstErr  error
		failed    string
	)

	result.State = StateStepExecuting
	for i, op := range ops {
		wg.Add(1)
		go func(i int, op Op) {
			defer wg.Done()
			out, err := op.Execute()
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
					failed = op.Name
				}
				return
			}
			result.Results[i] = out
			completed = append(completed, completion{index: i, out: out})
		}(i, op)
	}
	wg.Wait()

	if firstErr == nil {
		result.Success = true
		result.State = StateCommitted
		return result
	}

	result.Err = firstErr
	result.FailedStep = failed
	result.State = StateRollingBack

	for _, c := range completed {
		op := ops[c.index]
		if op.Rollback == nil {
			continue
		}
		if err := op.Rollback(c.out); err != nil {
			r.logger.WithFields(logrus.Fields{
				"step":  op.Name,
				"error": err.Error(),
			}).Error("Rollback failed")
			result.RollbackErrs[op.Name] = err
			if opts.AbortOnRollbackError {
				break
			}
			continue
		}
		result.RolledBack = append(result.RolledBack, op.Name)
	}

	result.State = StateRolledBack
	return result
}
