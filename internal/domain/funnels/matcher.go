package funnels

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/PulseMetrics/pulsetrack-go/internal/domain/events"
)

// Matches reports whether an event satisfies any of a step's match rules.
// It is a pure function over the event and rule list and performs no I/O.
func Matches(event *events.Event, rules []MatchRule) bool {
	for _, rule := range rules {
		if matchRule(event, rule) {
			return true
		}
	}
	return false
}

func matchRule(event *events.Event, rule MatchRule) bool {
	switch rule.Kind {
	case RulePage:
		return matchURL(event.URL(), rule.URLOperator, rule.URLValue)
	case RuleEvent:
		if event.Name != rule.EventName {
			return false
		}
		for _, filter := range rule.PropFilters {
			value, ok := event.Props[filter.Key]
			if !ok {
				return false
			}
			match, err := compareProp(filter.Operator, value, filter.Value)
			if err != nil || !match {
				return false
			}
		}
		return true
	}
	return false
}

func matchURL(url string, op URLOperator, value string) bool {
	if url == "" {
		return false
	}
	switch op {
	case URLExact, "":
		return url == value
	case URLContains:
		return strings.Contains(url, value)
	case URLPrefix:
		return strings.HasPrefix(url, value)
	case URLRegex:
		re, err := regexp.Compile(value)
		if err != nil {
			return false
		}
		return re.MatchString(url)
	}
	return false
}

// toFloat64 coerces a numeric value to float64. JSON decoding hands us
// float64 for all numbers, but snapshot fixtures may carry native ints.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func compareProp(op PropOperator, left, right any) (bool, error) {
	switch op {
	case PropEq, "":
		return propEqual(left, right), nil
	case PropNeq:
		return !propEqual(left, right), nil
	case PropContains:
		ls, ok := left.(string)
		if !ok {
			return false, fmt.Errorf("contains: property must be a string, got %T", left)
		}
		return strings.Contains(ls, fmt.Sprintf("%v", right)), nil
	case PropGt, PropGte, PropLt, PropLte:
		lf, lok := toFloat64(left)
		rf, rok := toFloat64(right)
		if !lok || !rok {
			return false, fmt.Errorf("operator %s requires numeric operands, got %T and %T", op, left, right)
		}
		switch op {
		case PropGt:
			return lf > rf, nil
		case PropGte:
			return lf >= rf, nil
		case PropLt:
			return lf < rf, nil
		default:
			return lf <= rf, nil
		}
	}
	return false, fmt.Errorf("unknown operator: %s", op)
}

func propEqual(left, right any) bool {
	lf, lok := toFloat64(left)
	rf, rok := toFloat64(right)
	if lok && rok {
		return math.Abs(lf-rf) < 1e-9
	}
	if lb, ok := left.(bool); ok {
		rb, ok := right.(bool)
		return ok && lb == rb
	}
	return fmt.Sprintf("%v", left) == fmt.Sprintf("%v", right)
}
