package pattern

import (
	"encoding/json"
	"math"
	"strings"

	"eventrouter/pkg/models"
)

// Matches reports whether env satisfies the pattern. It has no side effects
// and returns the same answer for the same inputs.
func (p *Pattern) Matches(env models.Envelope) bool {
	if p == nil || p.root == nil {
		return false
	}
	for _, fc := range p.root.Fields {
		value, present := topLevelValue(env, fc.Name)
		if !matchNode(fc.Node, value, present) {
			return false
		}
	}
	return true
}

// Matches is the free-function form used where a nil pattern must not match.
func Matches(p *Pattern, env models.Envelope) bool {
	return p.Matches(env)
}

func topLevelValue(env models.Envelope, name string) (interface{}, bool) {
	switch name {
	case FieldID:
		return env.ID, env.ID != ""
	case FieldSource:
		return env.Source, env.Source != ""
	case FieldDetailType:
		return env.DetailType, env.DetailType != ""
	case FieldAccount:
		return env.Account, env.Account != ""
	case FieldRegion:
		return env.Region, env.Region != ""
	case FieldResources:
		if len(env.Resources) == 0 {
			return nil, false
		}
		out := make([]interface{}, len(env.Resources))
		for i, r := range env.Resources {
			out[i] = r
		}
		return out, true
	case FieldDetail:
		return env.Detail, env.Detail != nil
	default:
		return nil, false
	}
}

func matchNode(node *Node, value interface{}, present bool) bool {
	switch node.Kind {
	case KindFields:
		obj, ok := value.(map[string]interface{})
		if !present || !ok {
			return false
		}
		for _, fc := range node.Fields {
			child, childPresent := obj[fc.Name]
			if !matchNode(fc.Node, child, childPresent) {
				return false
			}
		}
		return true
	case KindValueSet:
		return matchValueSet(node.Values, value, present)
	default:
		return false
	}
}

func matchValueSet(matchers []Matcher, value interface{}, present bool) bool {
	if !present {
		for _, m := range matchers {
			if m.Op == OpExists && !m.Exists {
				return true
			}
		}
		return false
	}

	for _, m := range matchers {
		if m.Op == OpExists {
			if m.Exists {
				return true
			}
			continue
		}
		if matchAny(m, value) {
			return true
		}
	}
	return false
}

// matchAny applies m to a scalar, or to every element of an array value.
func matchAny(m Matcher, value interface{}) bool {
	switch v := value.(type) {
	case []interface{}:
		for _, item := range v {
			if matchScalar(m, item) {
				return true
			}
		}
		return false
	case []string:
		for _, item := range v {
			if matchScalar(m, item) {
				return true
			}
		}
		return false
	default:
		return matchScalar(m, value)
	}
}

func matchScalar(m Matcher, value interface{}) bool {
	if _, isObj := value.(map[string]interface{}); isObj {
		return false
	}

	switch m.Op {
	case OpEquals:
		return scalarEqual(m.Value, value)
	case OpPrefix:
		s, ok := value.(string)
		return ok && strings.HasPrefix(s, m.Text)
	case OpSuffix:
		s, ok := value.(string)
		return ok && strings.HasSuffix(s, m.Text)
	case OpAnythingBut:
		for _, excluded := range m.Values {
			if scalarEqual(excluded, value) {
				return false
			}
		}
		return true
	case OpNumeric:
		n, ok := toFloat(value)
		if !ok {
			return false
		}
		for _, b := range m.Bounds {
			if !b.holds(n) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (b Bound) holds(n float64) bool {
	switch b.Op {
	case "=":
		return n == b.Value
	case "<":
		return n < b.Value
	case "<=":
		return n <= b.Value
	case ">":
		return n > b.Value
	case ">=":
		return n >= b.Value
	default:
		return false
	}
}

func scalarEqual(expected, actual interface{}) bool {
	switch e := expected.(type) {
	case nil:
		return actual == nil
	case string:
		s, ok := actual.(string)
		return ok && s == e
	case bool:
		b, ok := actual.(bool)
		return ok && b == e
	case float64:
		n, ok := toFloat(actual)
		return ok && n == e
	default:
		return false
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
