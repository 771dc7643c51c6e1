// Package threshold evaluates pass/fail expressions against metric
// snapshots.
package threshold

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/prload/internal/performance/metrics"
)

// Statistic names.
const (
	StatAvg        = "avg"
	StatMin        = "min"
	StatMax        = "max"
	StatMed        = "med"
	StatCount      = "count"
	StatRate       = "rate"
	StatValue      = "value"
	StatSum        = "sum"
	StatPercentile = "p"
)

// Operator compares an observed value with the threshold value.
type Operator string

const (
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
)

// Compare reports whether actual op threshold holds.
func (o Operator) Compare(actual, threshold float64) bool {
	switch o {
	case OpLess:
		return actual < threshold
	case OpLessEqual:
		return actual <= threshold
	case OpGreater:
		return actual > threshold
	case OpGreaterEqual:
		return actual >= threshold
	case OpEqual:
		return actual == threshold
	case OpNotEqual:
		return actual != threshold
	default:
		return false
	}
}

// Expression is a parsed threshold such as "p(95)<300".
type Expression struct {
	Raw        string
	Stat       string
	Percentile float64
	Op         Operator
	Value      float64
}

// Accepts "p(95) < 300", "p95<300ms", "rate<0.01", "avg <= 1.5s".
var exprPattern = regexp.MustCompile(`^\s*([a-z]+)(?:\(\s*([0-9.]+)\s*\)|([0-9.]+))?\s*(<=|>=|==|!=|<|>|=)\s*(\S+)\s*$`)

// Parse parses a threshold expression.
//
// Durations on the right-hand side ("500ms", "1s") are converted to
// milliseconds, the unit trends are recorded in.
func Parse(raw string) (*Expression, error) {
	m := exprPattern.FindStringSubmatch(raw)
	if m == nil {
		return nil, fmt.Errorf("invalid threshold expression %q", raw)
	}

	expr := &Expression{Raw: strings.TrimSpace(raw), Stat: m[1], Op: Operator(m[4])}
	if expr.Op == "=" {
		expr.Op = OpEqual
	}

	pct := m[2]
	if pct == "" {
		pct = m[3]
	}

	switch expr.Stat {
	case StatAvg, StatMin, StatMax, StatMed, StatCount, StatRate, StatValue, StatSum:
		if pct != "" {
			return nil, fmt.Errorf("invalid threshold expression %q: %s takes no argument", raw, expr.Stat)
		}
	case StatPercentile:
		if pct == "" {
			return nil, fmt.Errorf("invalid threshold expression %q: percentile missing", raw)
		}
		p, err := strconv.ParseFloat(pct, 64)
		if err != nil || p < 0 || p > 100 {
			return nil, fmt.Errorf("invalid threshold expression %q: percentile must be in [0, 100]", raw)
		}
		expr.Percentile = p
	default:
		return nil, fmt.Errorf("invalid threshold expression %q: unknown statistic %q", raw, expr.Stat)
	}

	v, err := parseValue(m[5])
	if err != nil {
		return nil, fmt.Errorf("invalid threshold expression %q: %w", raw, err)
	}
	expr.Value = v
	return expr, nil
}

func parseValue(s string) (float64, error) {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("value %q is neither a number nor a duration", s)
	}
	return float64(d) / float64(time.Millisecond), nil
}

// StatName renders the statistic, e.g. "p(95)".
func (e *Expression) StatName() string {
	if e.Stat == StatPercentile {
		return "p(" + strconv.FormatFloat(e.Percentile, 'f', -1, 64) + ")"
	}
	return e.Stat
}

// Observe reads the statistic from a snapshot. It fails when the statistic
// does not apply to the metric kind.
func (e *Expression) Observe(snap metrics.Snapshot) (float64, error) {
	switch snap.Kind {
	case metrics.KindTrend:
		switch e.Stat {
		case StatAvg:
			return snap.Avg, nil
		case StatMin:
			return snap.Min, nil
		case StatMax:
			return snap.Max, nil
		case StatMed:
			return snap.Med, nil
		case StatPercentile:
			return snap.Percentile(e.Percentile), nil
		case StatCount:
			return float64(snap.Count), nil
		case StatSum:
			return snap.Sum, nil
		}

	case metrics.KindRate:
		switch e.Stat {
		case StatRate:
			return snap.Rate, nil
		case StatCount:
			return float64(snap.Count), nil
		}

	case metrics.KindCounter:
		switch e.Stat {
		case StatCount, StatSum:
			return snap.Value, nil
		case StatRate:
			return snap.Rate, nil
		}

	case metrics.KindGauge:
		switch e.Stat {
		case StatValue:
			return snap.Value, nil
		case StatMin:
			return snap.Min, nil
		case StatMax:
			return snap.Max, nil
		}
	}

	return 0, fmt.Errorf("statistic %s does not apply to %s metric %s", e.StatName(), snap.Kind, snap.Name)
}
