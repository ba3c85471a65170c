package pattern

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

const (
	FieldID         = "id"
	FieldSource     = "source"
	FieldDetailType = "detail-type"
	FieldAccount    = "account"
	FieldRegion     = "region"
	FieldResources  = "resources"
	FieldDetail     = "detail"
)

var topLevelFields = map[string]bool{
	FieldID:         true,
	FieldSource:     true,
	FieldDetailType: true,
	FieldAccount:    true,
	FieldRegion:     true,
	FieldResources:  true,
	FieldDetail:     true,
}

var numericOps = map[string]bool{
	"=": true, "<": true, "<=": true, ">": true, ">=": true,
}

const maxDepth = 16

// Compile parses a JSON pattern document.
func Compile(doc []byte) (*Pattern, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, malformed("", "invalid JSON: %v", err)
	}
	if dec.More() {
		return nil, malformed("", "trailing data after pattern document")
	}

	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, malformed("", "pattern must be a JSON object")
	}
	return FromMap(obj)
}

// MustCompile is Compile for patterns known at init time.
func MustCompile(doc string) *Pattern {
	p, err := Compile([]byte(doc))
	if err != nil {
		panic(err)
	}
	return p
}

// FromMap compiles an already decoded pattern document.
func FromMap(doc map[string]interface{}) (*Pattern, error) {
	if len(doc) == 0 {
		return nil, malformed("", "pattern must constrain at least one field")
	}

	for key := range doc {
		if !topLevelFields[key] {
			return nil, malformed(key, "unknown top-level field")
		}
	}

	for key, value := range doc {
		_, isObj := value.(map[string]interface{})
		if key == FieldDetail && !isObj {
			return nil, malformed(FieldDetail, "detail must be an object")
		}
		if key != FieldDetail && isObj {
			return nil, malformed(key, "expected an array of accepted values")
		}
	}

	root, err := compileFields(doc, "", 0)
	if err != nil {
		return nil, err
	}

	canonical, err := json.Marshal(doc)
	if err != nil {
		return nil, malformed("", "cannot encode pattern: %v", err)
	}

	return &Pattern{root: root, doc: canonical}, nil
}

func compileFields(obj map[string]interface{}, path string, depth int) (*Node, error) {
	if depth > maxDepth {
		return nil, malformed(path, "pattern nesting exceeds %d levels", maxDepth)
	}
	if len(obj) == 0 {
		return nil, malformed(path, "object must constrain at least one field")
	}

	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	sort.Strings(names)

	node := &Node{Kind: KindFields, Fields: make([]FieldConstraint, 0, len(names))}
	for _, name := range names {
		if name == "" {
			return nil, malformed(path, "empty field name")
		}
		childPath := joinPath(path, name)

		var child *Node
		var err error
		switch v := obj[name].(type) {
		case map[string]interface{}:
			child, err = compileFields(v, childPath, depth+1)
		case []interface{}:
			child, err = compileValueSet(v, childPath)
		case []string:
			values := make([]interface{}, len(v))
			for i, item := range v {
				values[i] = item
			}
			child, err = compileValueSet(values, childPath)
		default:
			err = malformed(childPath, "expected an array of accepted values or a nested object, got %T", v)
		}
		if err != nil {
			return nil, err
		}
		node.Fields = append(node.Fields, FieldConstraint{Name: name, Node: child})
	}
	return node, nil
}

func compileValueSet(values []interface{}, path string) (*Node, error) {
	if len(values) == 0 {
		return nil, malformed(path, "accepted value set cannot be empty")
	}

	node := &Node{Kind: KindValueSet, Values: make([]Matcher, 0, len(values))}
	for i, v := range values {
		m, err := compileMatcher(v, path)
		if err != nil {
			return nil, err
		}
		if m.Op == OpExists && len(values) > 1 {
			return nil, malformed(path, "exists cannot be combined with other values (index %d)", i)
		}
		node.Values = append(node.Values, m)
	}
	return node, nil
}

func compileMatcher(v interface{}, path string) (Matcher, error) {
	if obj, ok := v.(map[string]interface{}); ok {
		return compileOperator(obj, path)
	}
	scalar, err := normalizeScalar(v, path)
	if err != nil {
		return Matcher{}, err
	}
	return Matcher{Op: OpEquals, Value: scalar}, nil
}

func compileOperator(obj map[string]interface{}, path string) (Matcher, error) {
	if len(obj) != 1 {
		return Matcher{}, malformed(path, "operator object must have exactly one key")
	}

	for op, arg := range obj {
		switch op {
		case "prefix", "suffix":
			s, ok := arg.(string)
			if !ok || s == "" {
				return Matcher{}, malformed(path, "%s requires a non-empty string", op)
			}
			if op == "prefix" {
				return Matcher{Op: OpPrefix, Text: s}, nil
			}
			return Matcher{Op: OpSuffix, Text: s}, nil

		case "exists":
			b, ok := arg.(bool)
			if !ok {
				return Matcher{}, malformed(path, "exists requires a boolean")
			}
			return Matcher{Op: OpExists, Exists: b}, nil

		case "anything-but":
			var raw []interface{}
			switch a := arg.(type) {
			case []interface{}:
				raw = a
			default:
				raw = []interface{}{a}
			}
			if len(raw) == 0 {
				return Matcher{}, malformed(path, "anything-but requires at least one value")
			}
			excluded := make([]interface{}, 0, len(raw))
			for _, item := range raw {
				scalar, err := normalizeScalar(item, path)
				if err != nil {
					return Matcher{}, err
				}
				excluded = append(excluded, scalar)
			}
			return Matcher{Op: OpAnythingBut, Values: excluded}, nil

		case "numeric":
			args, ok := arg.([]interface{})
			if !ok || len(args) == 0 || len(args)%2 != 0 {
				return Matcher{}, malformed(path, "numeric requires operator/value pairs")
			}
			bounds := make([]Bound, 0, len(args)/2)
			for i := 0; i < len(args); i += 2 {
				opStr, ok := args[i].(string)
				if !ok || !numericOps[opStr] {
					return Matcher{}, malformed(path, "invalid numeric operator %v", args[i])
				}
				n, ok := toFloat(args[i+1])
				if !ok {
					return Matcher{}, malformed(path, "numeric operand must be a number, got %T", args[i+1])
				}
				bounds = append(bounds, Bound{Op: opStr, Value: n})
			}
			return Matcher{Op: OpNumeric, Bounds: bounds}, nil

		default:
			return Matcher{}, malformed(path, "unknown operator %q", op)
		}
	}
	return Matcher{}, malformed(path, "empty operator object")
}

func normalizeScalar(v interface{}, path string) (interface{}, error) {
	switch val := v.(type) {
	case nil, string, bool:
		return val, nil
	case []interface{}:
		return nil, malformed(path, "nested arrays are not allowed in a value set")
	case map[string]interface{}:
		return nil, malformed(path, "objects are only allowed as operators")
	}
	if n, ok := toFloat(v); ok {
		return n, nil
	}
	return nil, malformed(path, "unsupported value type %T", v)
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return strings.Join([]string{parent, name}, ".")
}
