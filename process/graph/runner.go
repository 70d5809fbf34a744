package graph

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dmoreira/graphflow/internal/metrics"
	"github.com/dmoreira/graphflow/process/agent"
	"github.com/dmoreira/graphflow/process/state"
)

// DefaultMaxVisits is the per-node visit cap: once any single node has
// executed this many times in one run, the run stops with a loop-guard
// marker in quality.error.
const DefaultMaxVisits = 50

// Runner executes a compiled Definition end to end. One Runner may serve
// any number of sequential runs; each run carries its own state and visit
// counters, so a Runner is safe to reuse.
type Runner struct {
	def       *Definition
	logger    *zap.Logger
	collector *metrics.Collector
	tracer    trace.Tracer
	maxVisits int
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the step-dispatch logger; nil keeps the no-op default.
func WithLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithCollector attaches a metrics collector; without one, no metrics
// are recorded.
func WithCollector(c *metrics.Collector) RunnerOption {
	return func(r *Runner) { r.collector = c }
}

// WithMaxVisits overrides the per-node visit cap.
func WithMaxVisits(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.maxVisits = n
		}
	}
}

// NewRunner builds a Runner over an immutable Definition.
func NewRunner(def *Definition, opts ...RunnerOption) *Runner {
	r := &Runner{
		def:       def,
		logger:    zap.NewNop(),
		tracer:    otel.Tracer("graphflow/process/graph"),
		maxVisits: DefaultMaxVisits,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("process", def.Name))
	return r
}

// Run drives the process from its start node to termination and returns
// the final state. Faults inside agents never escape: they are folded
// into quality.error and the run continues through routing, so the only
// ways out are the done condition, the __end__ sentinel, the loop guard,
// cancellation, or running out of matching edges.
func (r *Runner) Run(ctx context.Context, initialContext map[string]any) state.Global {
	s := state.WithContext(initialContext)
	current := r.def.Start
	visits := make(map[string]int)

	r.logger.Info("run started", zap.String("start", current))

	for {
		select {
		case <-ctx.Done():
			r.logger.Warn("run cancelled", zap.String("node", current))
			return r.finish(s, current, "cancelled", nil)
		default:
		}

		if current == TerminalNode {
			return r.finish(s, current, "end", nil)
		}

		if r.def.DoneCondition != nil {
			done, err := r.def.DoneCondition.Eval(s)
			if err != nil {
				r.logger.Warn("done_condition failed to evaluate, treating as false",
					zap.String("condition", r.def.DoneCondition.String()), zap.Error(err))
			}
			if done {
				return r.finish(s, current, "done", nil)
			}
		}

		visits[current]++
		if visits[current] > r.maxVisits {
			r.logger.Warn("loop guard triggered",
				zap.String("node", current), zap.Int("visits", visits[current]))
			if r.collector != nil {
				r.collector.RecordLoopGuard(r.def.Name, current)
			}
			errMsg := fmt.Sprintf("loop-guard: agent %q exceeded %d visits", current, r.maxVisits)
			return r.finish(s, current, "loop_guard", map[string]any{"error": errMsg})
		}

		ag, ok := r.def.Agents[current]
		if !ok {
			// A well-formed Definition can't reach this; a hand-built one can.
			errMsg := fmt.Sprintf("runtime: no agent registered for node %q", current)
			return r.finish(s, current, "end", map[string]any{"error": errMsg})
		}

		delta := r.executeNode(ctx, current, ag, s)
		s = state.Apply(s, delta)
		s = state.Apply(s, state.Delta{Messages: []map[string]any{
			{"agent": current, "kind": "step"},
		}})
		if r.collector != nil {
			r.collector.RecordStep(r.def.Name)
		}

		next, found, faults := r.pickNext(current, s)
		if len(faults) > 0 {
			s = state.Apply(s, state.Delta{Messages: faults})
		}
		if !found {
			r.logger.Info("no outgoing edge matched, terminating", zap.String("node", current))
			return r.finish(s, current, "no_edge", nil)
		}

		if r.collector != nil {
			r.collector.RecordStateTransition(r.def.Name, current, next)
		}
		r.logger.Debug("transition", zap.String("from", current), zap.String("to", next))
		current = next
	}
}

// finish stamps the termination message (and, for faulting reasons, the
// quality.error marker) and records the run's terminal reason.
func (r *Runner) finish(s state.Global, node, reason string, quality map[string]any) state.Global {
	out := state.Apply(s, state.Delta{
		Quality:  quality,
		Messages: []map[string]any{{"agent": node, "kind": reason}},
	})
	if r.collector != nil {
		r.collector.RecordProcessRun(r.def.Name, reason)
	}
	r.logger.Info("run finished", zap.String("reason", reason), zap.String("node", node))
	return out
}

// executeNode runs one agent under a span, converting both returned
// errors and panics into a quality.error delta so no fault crosses the
// runtime boundary.
func (r *Runner) executeNode(ctx context.Context, name string, ag agent.Agent, s state.Global) (delta state.Delta) {
	kind := r.def.kindOf(name)
	ctx, span := r.tracer.Start(ctx, "graph.step",
		trace.WithAttributes(
			attribute.String("process", r.def.Name),
			attribute.String("node", name),
			attribute.String("kind", kind),
		))
	start := time.Now()
	status := "success"
	defer func() {
		if rec := recover(); rec != nil {
			status = "panic"
			r.logger.Error("agent panicked", zap.String("node", name), zap.Any("panic", rec))
			delta = faultDelta(name, fmt.Sprintf("agent-panic: %v", rec))
		}
		if r.collector != nil {
			r.collector.RecordAgentExecution(name, kind, status, time.Since(start))
		}
		span.SetAttributes(attribute.String("status", status))
		span.End()
	}()

	d, err := ag.Execute(ctx, s)
	if err != nil {
		status = "error"
		r.logger.Warn("agent returned an error", zap.String("node", name), zap.Error(err))
		return faultDelta(name, fmt.Sprintf("agent-execution: %v", err))
	}
	if d.Quality != nil {
		if _, ok := d.Quality["error"]; ok {
			status = "error"
		}
	}
	return d
}

func faultDelta(name, msg string) state.Delta {
	return state.Delta{
		Quality:  map[string]any{"error": msg},
		Messages: []map[string]any{{"agent": name, "kind": "error", "detail": msg}},
	}
}

// pickNext applies the routing rule: conditional edges from the current
// node are tried in declaration order and the first match wins; if none
// match, the first unconditional edge is the fallback; otherwise the run
// is out of edges. A condition that fails to evaluate counts as
// non-matching and is reported as an audit message, never as a fault.
func (r *Runner) pickNext(current string, s state.Global) (string, bool, []map[string]any) {
	var faults []map[string]any
	fallback := ""
	hasFallback := false

	for _, e := range r.def.edgesFrom(current) {
		if e.Condition == nil {
			if !hasFallback {
				fallback, hasFallback = e.To, true
			}
			continue
		}
		match, err := e.Condition.Eval(s)
		if err != nil {
			r.logger.Warn("edge condition failed to evaluate, treating as non-matching",
				zap.String("condition", e.Condition.String()), zap.Error(err))
			faults = append(faults, map[string]any{
				"agent":     current,
				"kind":      "expression_error",
				"condition": e.Condition.String(),
				"detail":    err.Error(),
			})
			continue
		}
		if match {
			return e.To, true, faults
		}
	}

	if hasFallback {
		return fallback, true, faults
	}
	return "", false, faults
}
