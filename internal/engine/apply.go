package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/caisson-io/caisson/internal/decl"
	"github.com/caisson-io/caisson/internal/ir"
	"github.com/caisson-io/caisson/internal/logging"
	"github.com/caisson-io/caisson/internal/state"
)

// ActionStatus is the terminal state of one action within a run.
type ActionStatus string

const (
	StatusApplied ActionStatus = "applied"
	StatusFailed  ActionStatus = "failed"
	StatusSkipped ActionStatus = "skipped"
)

// ActionResult records how one action ended. Every action of the plan gets
// exactly one result; nothing fails silently.
type ActionResult struct {
	Action   *ir.Action
	Status   ActionStatus
	Err      error  // set when Status is failed
	Reason   string // set when Status is skipped
	Duration time.Duration
}

// ApplyResult is the run summary, in plan order.
type ApplyResult struct {
	Results []*ActionResult
}

// Counts returns how many actions applied, failed, and were skipped.
func (r *ApplyResult) Counts() (applied, failed, skipped int) {
	for _, res := range r.Results {
		switch res.Status {
		case StatusApplied:
			applied++
		case StatusFailed:
			failed++
		case StatusSkipped:
			skipped++
		}
	}
	return applied, failed, skipped
}

// Incomplete returns the results of every action that did not reach
// applied, for the run summary.
func (r *ApplyResult) Incomplete() []*ActionResult {
	var out []*ActionResult
	for _, res := range r.Results {
		if res.Status != StatusApplied {
			out = append(out, res)
		}
	}
	return out
}

// ApplyEvent is a progress event during apply.
type ApplyEvent struct {
	Address  string
	Op       ir.Op
	Replace  bool
	Status   string // "started", "applied", "failed", "skipped"
	Duration time.Duration
	Reason   string
	Err      error
}

// ApplyCallback is called for each apply event if set.
type ApplyCallback func(event ApplyEvent)

// Apply executes a plan against the providers and persists the resulting
// snapshot through the store. Independent actions run in parallel up to
// e.Parallelism; an action never starts before all the actions it depends
// on have applied. When an action fails, everything transitively depending
// on it is skipped with a reason while independent branches continue.
// The snapshot, complete or partial, is always saved before an error is
// reported, so a re-run retries only the failed subgraph.
func (e *Engine) Apply(ctx context.Context, cfg *ir.Config, plan *ir.Plan, snap *ir.Snapshot, store state.Store, callback ApplyCallback) (*ApplyResult, error) {
	result := &ApplyResult{}
	if plan.Empty() {
		return result, nil
	}

	emit := func(event ApplyEvent) {
		if callback != nil {
			callback(event)
		}
	}

	var (
		mu   sync.Mutex
		cond = sync.NewCond(&mu)
		done = make(map[string]*ActionResult, len(plan.Actions))
		sem  = make(chan struct{}, e.parallelism())
		wg   sync.WaitGroup
	)

	finish := func(a *ir.Action, res *ActionResult) {
		mu.Lock()
		done[a.Key()] = res
		mu.Unlock()
		cond.Broadcast()
	}

	for _, action := range plan.Actions {
		wg.Add(1)
		go func(a *ir.Action) {
			defer wg.Done()

			// Wait for upstream actions. A dependency that failed or was
			// skipped makes this action unrunnable.
			mu.Lock()
			blockedOn := ""
			blockedBy := ActionStatus("")
			for {
				pending := false
				for _, dep := range a.DependsOn {
					res, ok := done[dep]
					if !ok {
						pending = true
						continue
					}
					if res.Status != StatusApplied {
						blockedOn = dep
						blockedBy = res.Status
						break
					}
				}
				if blockedOn != "" || !pending {
					break
				}
				cond.Wait()
			}
			mu.Unlock()

			if blockedOn != "" {
				reason := fmt.Sprintf("dependency %s failed", actionKeyAddr(blockedOn))
				if blockedBy == StatusSkipped {
					reason = fmt.Sprintf("dependency %s was skipped", actionKeyAddr(blockedOn))
				}
				finish(a, &ActionResult{Action: a, Status: StatusSkipped, Reason: reason})
				emit(ApplyEvent{Address: a.Address, Op: a.Op, Replace: a.Replace, Status: "skipped", Reason: reason})
				return
			}

			// Cancellation stops scheduling; actions already running
			// finish on their own.
			if ctx.Err() != nil {
				reason := "run cancelled"
				finish(a, &ActionResult{Action: a, Status: StatusSkipped, Reason: reason})
				emit(ApplyEvent{Address: a.Address, Op: a.Op, Replace: a.Replace, Status: "skipped", Reason: reason})
				return
			}

			sem <- struct{}{}
			start := time.Now()
			emit(ApplyEvent{Address: a.Address, Op: a.Op, Replace: a.Replace, Status: "started"})
			err := e.executeAction(ctx, a, snap, &mu)
			<-sem

			elapsed := time.Since(start)
			if err != nil {
				finish(a, &ActionResult{Action: a, Status: StatusFailed, Err: err, Duration: elapsed})
				emit(ApplyEvent{Address: a.Address, Op: a.Op, Replace: a.Replace, Status: "failed", Duration: elapsed, Err: err})
				return
			}
			finish(a, &ActionResult{Action: a, Status: StatusApplied, Duration: elapsed})
			emit(ApplyEvent{Address: a.Address, Op: a.Op, Replace: a.Replace, Status: "applied", Duration: elapsed})
		}(action)
	}

	wg.Wait()

	var errs []error
	for _, a := range plan.Actions {
		res := done[a.Key()]
		result.Results = append(result.Results, res)
		if res.Status == StatusFailed {
			errs = append(errs, res.Err)
		}
	}
	if err := ctx.Err(); err != nil {
		errs = append(errs, fmt.Errorf("apply cancelled: %w", err))
	}

	// Declared outputs are refreshed only when the whole plan applied;
	// outputs referencing destroyed resources drop out.
	applied, failed, _ := result.Counts()
	if applied == len(plan.Actions) {
		snap.Outputs = evaluateOutputs(cfg, snap)
	}

	// Persist whatever was reached, even on cancellation, so the next run
	// resumes instead of repeating work.
	if err := store.Save(context.WithoutCancel(ctx), snap); err != nil {
		errs = append(errs, fmt.Errorf("failed to save state: %w", err))
	}

	if len(errs) > 0 {
		return result, fmt.Errorf("%d action(s) failed: %w", failed, errors.Join(errs...))
	}
	return result, nil
}

func (e *Engine) parallelism() int {
	if e.Parallelism > 0 {
		return e.Parallelism
	}
	return DefaultParallelism
}

// executeAction runs one provider operation and records the outcome into
// the snapshot. The mutex guards the shared snapshot; provider calls run
// outside it.
func (e *Engine) executeAction(ctx context.Context, a *ir.Action, snap *ir.Snapshot, mu *sync.Mutex) error {
	logging.Debug("executing action", "address", a.Address, "op", a.Op)

	providerName := ""
	if a.Resource != nil {
		providerName = a.Resource.Provider
	} else if a.Prior != nil {
		providerName = a.Prior.Provider
	}
	prov, err := e.registry.Get(providerName)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()

	switch a.Op {
	case ir.OpCreate, ir.OpUpdate:
		r := a.Resource

		// Upstream outputs are concrete by now; evaluate the attribute
		// expressions against the current snapshot.
		mu.Lock()
		scope := decl.NewScope()
		for _, rs := range snap.Resources {
			scope.SetOutputs(rs.Addr(), rs.Outputs)
		}
		mu.Unlock()

		desired, err := scope.EvaluateResource(r)
		if err != nil {
			return &UnresolvedReferenceError{SourceAddr: a.Address, Err: err}
		}
		attrs := make(map[string]any, len(desired))
		for k, v := range desired {
			if !v.IsWhollyKnown() {
				return fmt.Errorf("%s: attribute %q did not resolve to a concrete value", a.Address, k)
			}
			attrs[k] = decl.FromCty(v)
		}

		var id string
		var outputs map[string]any
		if a.Op == ir.OpCreate {
			err = RetryWithBackoff(ctx, e.Retry, func() error {
				var opErr error
				id, outputs, opErr = prov.Create(ctx, r.Type, attrs)
				return opErr
			}, IsTransientError)
		} else {
			id = a.Prior.ID
			err = RetryWithBackoff(ctx, e.Retry, func() error {
				var opErr error
				outputs, opErr = prov.Update(ctx, r.Type, a.Prior.ID, attrs, a.Prior.Outputs)
				return opErr
			}, IsTransientError)
		}
		if err != nil {
			return &ProviderError{Address: a.Address, Provider: r.Provider, Op: a.Op, Err: err}
		}

		if outputs == nil {
			outputs = map[string]any{}
		}
		if _, ok := outputs["id"]; !ok && id != "" {
			outputs["id"] = id
		}

		mu.Lock()
		snap.Put(&ir.ResourceState{
			Type:         r.Type,
			Name:         r.Name,
			Provider:     r.Provider,
			ID:           id,
			Inputs:       attrs,
			Outputs:      outputs,
			Dependencies: resourceDeps(r),
		})
		mu.Unlock()
		return nil

	case ir.OpDelete:
		prior := a.Prior
		err := RetryWithBackoff(ctx, e.Retry, func() error {
			return prov.Delete(ctx, prior.Type, prior.ID, prior.Outputs)
		}, IsTransientError)
		if err != nil {
			return &ProviderError{Address: a.Address, Provider: prior.Provider, Op: a.Op, Err: err}
		}

		// Under create_before_destroy the new instance has already been
		// recorded at this address; only remove the entry if it still
		// describes the instance being deleted.
		mu.Lock()
		if cur := snap.Resource(a.Address); cur != nil && cur.ID == prior.ID {
			snap.Remove(a.Address)
		}
		mu.Unlock()
		return nil
	}

	return fmt.Errorf("unknown operation %q for %s", a.Op, a.Address)
}

func (e *Engine) timeout() time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}
	return DefaultTimeout
}

// evaluateOutputs computes the declared output values against the final
// snapshot. Outputs that no longer resolve are dropped.
func evaluateOutputs(cfg *ir.Config, snap *ir.Snapshot) map[string]any {
	scope := decl.NewScope()
	for _, rs := range snap.Resources {
		scope.SetOutputs(rs.Addr(), rs.Outputs)
	}

	outs := make(map[string]any, len(cfg.Outputs))
	for _, o := range cfg.Outputs {
		v, err := scope.Evaluate(o.Value)
		if err != nil || !v.IsWhollyKnown() {
			continue
		}
		outs[o.Name] = decl.FromCty(v)
	}
	return outs
}

// actionKeyAddr strips the op suffix from an action key for messages.
func actionKeyAddr(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == ':' {
			return key[:i]
		}
	}
	return key
}
