package threshold

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/prload/internal/logging"
	"github.com/wesleyorama2/prload/internal/performance/metrics"
)

// DefaultInterval is how often abortOnFail thresholds are checked during
// a run.
const DefaultInterval = 2 * time.Second

// Definition is one configured threshold.
type Definition struct {
	// Metric is a metric name, optionally with a "{tag:value}" selector.
	Metric      string
	Expression  string
	AbortOnFail bool
}

// Result is the outcome of one threshold.
type Result struct {
	Metric      string  `json:"metric"`
	Expression  string  `json:"expression"`
	Passed      bool    `json:"passed"`
	Value       float64 `json:"value"`
	Reason      string  `json:"reason,omitempty"`
	AbortOnFail bool    `json:"abortOnFail,omitempty"`
}

// Source provides metric snapshots.
type Source interface {
	Snapshot(name string) (metrics.Snapshot, bool)
}

type threshold struct {
	def  Definition
	expr *Expression
}

// Evaluator checks thresholds against a Source. It only reads snapshots.
type Evaluator struct {
	thresholds []threshold
	source     Source
	logger     *zap.Logger
}

// New parses every definition. All parse errors are returned joined.
func New(defs []Definition, source Source, logger *zap.Logger) (*Evaluator, error) {
	e := &Evaluator{source: source, logger: logging.OrNop(logger)}

	var errs []error
	for _, def := range defs {
		if _, _, err := metrics.ParseSelector(def.Metric); err != nil {
			errs = append(errs, fmt.Errorf("threshold on %q: %w", def.Metric, err))
			continue
		}
		expr, err := Parse(def.Expression)
		if err != nil {
			errs = append(errs, fmt.Errorf("threshold on %q: %w", def.Metric, err))
			continue
		}
		e.thresholds = append(e.thresholds, threshold{def: def, expr: expr})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	sort.SliceStable(e.thresholds, func(i, j int) bool {
		return e.thresholds[i].def.Metric < e.thresholds[j].def.Metric
	})
	return e, nil
}

// Len returns the number of thresholds.
func (e *Evaluator) Len() int {
	return len(e.thresholds)
}

// HasAbort reports whether any threshold sets abortOnFail.
func (e *Evaluator) HasAbort() bool {
	for _, t := range e.thresholds {
		if t.def.AbortOnFail {
			return true
		}
	}
	return false
}

// Evaluate checks every threshold. The run passes iff all results pass.
func (e *Evaluator) Evaluate() ([]Result, bool) {
	results := make([]Result, 0, len(e.thresholds))
	passed := true
	for _, t := range e.thresholds {
		r := e.evaluate(t)
		if !r.Passed {
			passed = false
		}
		results = append(results, r)
	}
	return results, passed
}

func (e *Evaluator) evaluate(t threshold) Result {
	r := Result{
		Metric:      t.def.Metric,
		Expression:  t.expr.Raw,
		AbortOnFail: t.def.AbortOnFail,
	}

	snap, ok := e.source.Snapshot(t.def.Metric)
	if !ok {
		r.Reason = fmt.Sprintf("metric %s not found", t.def.Metric)
		return r
	}

	value, err := t.expr.Observe(snap)
	if err != nil {
		r.Reason = err.Error()
		return r
	}

	r.Value = value
	r.Passed = t.expr.Op.Compare(value, t.expr.Value)
	if !r.Passed {
		r.Reason = fmt.Sprintf("%s is %s, want %s %s", t.expr.StatName(),
			formatFloat(value), t.expr.Op, formatFloat(t.expr.Value))
	}
	return r
}

// CheckAbort evaluates only abortOnFail thresholds and returns the first
// breach. Metrics that do not exist yet or have no samples yet are not a
// breach mid-run.
func (e *Evaluator) CheckAbort() (Result, bool) {
	for _, t := range e.thresholds {
		if !t.def.AbortOnFail {
			continue
		}
		if snap, ok := e.source.Snapshot(t.def.Metric); !ok || snap.Count == 0 {
			continue
		}
		if r := e.evaluate(t); !r.Passed {
			return r, true
		}
	}
	return Result{}, false
}

// Watch checks abortOnFail thresholds every interval until ctx is done.
// On the first breach it calls onBreach once and returns.
func (e *Evaluator) Watch(ctx context.Context, interval time.Duration, onBreach func(Result)) {
	if !e.HasAbort() {
		return
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r, breached := e.CheckAbort(); breached {
				e.logger.Warn("threshold breached, aborting run",
					zap.String("metric", r.Metric),
					zap.String("expression", r.Expression),
					zap.Float64("value", r.Value))
				onBreach(r)
				return
			}
		}
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
