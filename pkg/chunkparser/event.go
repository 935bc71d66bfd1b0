package chunkparser

import (
	"strconv"
)

// Kind identifies a structural event.
type Kind int

// Event kinds in the order a consumer would typically switch on them.
const (
	OpenObject Kind = iota + 1
	CloseObject
	OpenArray
	CloseArray
	Key
	Value
)

var kindNames = map[Kind]string{
	OpenObject:  "openObject",
	CloseObject: "closeObject",
	OpenArray:   "openArray",
	CloseArray:  "closeArray",
	Key:         "key",
	Value:       "value",
}

// String returns the event kind name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// ScalarKind is the JSON type of a Value event.
type ScalarKind int

// Scalar kinds.
const (
	String ScalarKind = iota + 1
	Number
	Bool
	Null
)

// Scalar is a JSON scalar. Text holds the decoded string for strings and the
// literal source text for numbers, booleans and null.
type Scalar struct {
	Kind ScalarKind
	Text string
}

// Bool returns the value of a boolean scalar.
func (s Scalar) Bool() bool {
	return s.Kind == Bool && s.Text == literalTrue
}

// Event is one structural event.
//
// Key holds the member name for Key events and, when HasKey is set, the
// member name an Open*, Close* or Value event is bound to. Depth is the number
// of containers enclosing the value the event belongs to; the root value has
// depth zero and both events of a container share its depth.
type Event struct {
	Kind   Kind
	Key    string
	HasKey bool
	Value  Scalar
	Depth  int
}
