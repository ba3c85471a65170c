// Package pattern implements event patterns: declarative match expressions
// evaluated against event envelopes.
//
// A pattern is a JSON document in the EventBridge style:
//
//	{
//	  "source": ["aws.ec2"],
//	  "detail-type": ["EC2 Instance State-change Notification"],
//	  "detail": {"state": ["stopped", "terminated"]}
//	}
//
// Fields are conjunctive, the values listed for a field are disjunctive, and
// objects nest. Documents are compiled once into a typed tree; compilation is
// where malformed patterns are rejected, so matching itself cannot fail.
package pattern

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMalformedPattern = errors.New("malformed pattern")

// Kind tags a Node variant.
type Kind int

const (
	// KindFields is a conjunction of named field constraints.
	KindFields Kind = iota
	// KindValueSet is a disjunction of value matchers for one field.
	KindValueSet
)

func (k Kind) String() string {
	switch k {
	case KindFields:
		return "fields"
	case KindValueSet:
		return "value_set"
	default:
		return "unknown"
	}
}

type Node struct {
	Kind   Kind
	Fields []FieldConstraint
	Values []Matcher
}

type FieldConstraint struct {
	Name string
	Node *Node
}

// Op tags a Matcher variant.
type Op int

const (
	OpEquals Op = iota
	OpPrefix
	OpSuffix
	OpAnythingBut
	OpExists
	OpNumeric
)

func (o Op) String() string {
	switch o {
	case OpEquals:
		return "equals"
	case OpPrefix:
		return "prefix"
	case OpSuffix:
		return "suffix"
	case OpAnythingBut:
		return "anything-but"
	case OpExists:
		return "exists"
	case OpNumeric:
		return "numeric"
	default:
		return "unknown"
	}
}

type Matcher struct {
	Op     Op
	Value  interface{}   // OpEquals: string, float64, bool or nil
	Text   string        // OpPrefix, OpSuffix
	Values []interface{} // OpAnythingBut
	Exists bool          // OpExists
	Bounds []Bound       // OpNumeric, all must hold
}

type Bound struct {
	Op    string // one of =, <, <=, >, >=
	Value float64
}

// Pattern is a compiled, immutable match expression.
type Pattern struct {
	root *Node
	doc  json.RawMessage
}

// Root exposes the compiled tree for inspection.
func (p *Pattern) Root() *Node {
	return p.root
}

// String returns the canonical JSON document the pattern was compiled from.
func (p *Pattern) String() string {
	if p == nil {
		return ""
	}
	return string(p.doc)
}

func (p *Pattern) MarshalJSON() ([]byte, error) {
	if p == nil || len(p.doc) == 0 {
		return []byte("null"), nil
	}
	return p.doc, nil
}

func (p *Pattern) UnmarshalJSON(data []byte) error {
	compiled, err := Compile(data)
	if err != nil {
		return err
	}
	*p = *compiled
	return nil
}

func malformed(path, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if path == "" {
		return fmt.Errorf("%w: %s", ErrMalformedPattern, msg)
	}
	return fmt.Errorf("%w: %s: %s", ErrMalformedPattern, path, msg)
}
