package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gorhill/cronexpr"
)

// Cadence yields the tick boundary following prev. A zero time means the
// schedule has no further ticks.
type Cadence interface {
	Next(prev time.Time) time.Time
	String() string
}

type rateCadence struct {
	every time.Duration
	raw   string
}

func (c rateCadence) Next(prev time.Time) time.Time { return prev.Add(c.every) }
func (c rateCadence) String() string                { return c.raw }

type cronCadence struct {
	expr *cronexpr.Expression
	raw  string
}

func (c cronCadence) Next(prev time.Time) time.Time { return c.expr.Next(prev) }
func (c cronCadence) String() string                { return c.raw }

var rateExpr = regexp.MustCompile(`^rate\(\s*(\d+)\s+([a-z]+)\s*\)$`)

var rateUnits = map[string]time.Duration{
	"second":  time.Second,
	"seconds": time.Second,
	"minute":  time.Minute,
	"minutes": time.Minute,
	"hour":    time.Hour,
	"hours":   time.Hour,
	"day":     24 * time.Hour,
	"days":    24 * time.Hour,
}

// ParseCadence accepts "rate(5 minutes)", a Go duration such as "90s", or a
// six-field "cron(min hour day-of-month month day-of-week year)" expression
// where day-of-week counts 1 (Sunday) to 7.
func ParseCadence(s string) (Cadence, error) {
	raw := strings.TrimSpace(s)
	switch {
	case raw == "":
		return nil, fmt.Errorf("cadence is required")

	case strings.HasPrefix(raw, "rate("):
		m := rateExpr.FindStringSubmatch(raw)
		if m == nil {
			return nil, fmt.Errorf("invalid rate expression %q", raw)
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("rate value must be a positive integer: %q", raw)
		}
		unit, ok := rateUnits[m[2]]
		if !ok {
			return nil, fmt.Errorf("unknown rate unit %q", m[2])
		}
		return rateCadence{every: time.Duration(n) * unit, raw: raw}, nil

	case strings.HasPrefix(raw, "cron(") && strings.HasSuffix(raw, ")"):
		spec, err := translateCron(raw[len("cron(") : len(raw)-1])
		if err != nil {
			return nil, err
		}
		expr, err := cronexpr.Parse(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", raw, err)
		}
		return cronCadence{expr: expr, raw: raw}, nil

	default:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid cadence %q: %w", raw, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("cadence must be positive: %q", raw)
		}
		return rateCadence{every: d, raw: raw}, nil
	}
}

// translateCron rewrites the six-field form for cronexpr, which prepends a
// zero seconds field itself and numbers weekdays from 0.
func translateCron(spec string) (string, error) {
	fields := strings.Fields(spec)
	if len(fields) != 6 {
		return "", fmt.Errorf("cron expression needs 6 fields, got %d", len(fields))
	}
	for i, f := range fields {
		if f == "?" {
			fields[i] = "*"
		}
	}
	dow, err := shiftWeekdays(fields[4])
	if err != nil {
		return "", err
	}
	fields[4] = dow
	return strings.Join(fields, " "), nil
}

func shiftWeekdays(field string) (string, error) {
	parts := strings.Split(field, ",")
	for i, part := range parts {
		rng, step, hasStep := strings.Cut(part, "/")
		bounds := strings.Split(rng, "-")
		for j, b := range bounds {
			day, nth, hasNth := strings.Cut(b, "#")
			n, err := strconv.Atoi(day)
			if err != nil {
				// names, "*" and "L" forms pass through
				continue
			}
			if n < 1 || n > 7 {
				return "", fmt.Errorf("day-of-week %d out of range 1-7", n)
			}
			bounds[j] = strconv.Itoa(n - 1)
			if hasNth {
				bounds[j] += "#" + nth
			}
		}
		parts[i] = strings.Join(bounds, "-")
		if hasStep {
			parts[i] += "/" + step
		}
	}
	return strings.Join(parts, ","), nil
}
