// Package payload provides the concrete payloads carried by proof edits and a
// JSON envelope codec for them.
package payload

import (
	"errors"
	"fmt"

	"github.com/aretw0/concord/pkg/core"
)

// ErrIncompatible is returned when a payload is transformed against a payload
// of another kind.
var ErrIncompatible = errors.New("incompatible payload kinds")

// Kinds of the built-in payloads.
const (
	KindValue  = "value"
	KindMove   = "move"
	KindInsert = "insert"
)

// Kinded is implemented by payloads that can go through the codec.
type Kinded interface {
	core.Payload
	Kind() string
}

func incompatible(p Kinded, other core.Payload) error {
	if k, ok := other.(Kinded); ok {
		return fmt.Errorf("%w: %s against %s", ErrIncompatible, p.Kind(), k.Kind())
	}
	return fmt.Errorf("%w: %s against %T", ErrIncompatible, p.Kind(), other)
}

// Value is opaque content, such as the text of a statement. Concurrent values
// do not shift each other.
type Value struct {
	Content any `json:"content" yaml:"content"`
}

func (Value) Kind() string { return KindValue }

func (v Value) Transform(other core.Payload, _ core.TransformMode) (core.Payload, error) {
	switch other.(type) {
	case nil, Value:
		return v, nil
	}
	return nil, incompatible(v, other)
}

// Move displaces a node of the proof tree relative to its current position.
// Displacements add up, so concurrent moves commute unchanged.
type Move struct {
	DX float64 `json:"dx" yaml:"dx"`
	DY float64 `json:"dy" yaml:"dy"`
}

func (Move) Kind() string { return KindMove }

func (m Move) Transform(other core.Payload, _ core.TransformMode) (core.Payload, error) {
	switch other.(type) {
	case nil, Move:
		return m, nil
	}
	return nil, incompatible(m, other)
}

// Insert adds Items to an ordered child list at Index. Site identifies the
// author and breaks ties between insertions at the same index.
type Insert struct {
	Index int      `json:"index" yaml:"index"`
	Items []string `json:"items" yaml:"items"`
	Site  string   `json:"site" yaml:"site"`
}

func (Insert) Kind() string { return KindInsert }

// Transform shifts the insertion point past a concurrent insertion that lands
// before it. At the same index the insertion with the smaller Site goes first.
func (in Insert) Transform(other core.Payload, _ core.TransformMode) (core.Payload, error) {
	switch o := other.(type) {
	case nil:
		return in, nil
	case Insert:
		if o.Index < in.Index || (o.Index == in.Index && o.Site < in.Site) {
			shifted := in
			shifted.Items = append([]string(nil), in.Items...)
			shifted.Index += len(o.Items)
			return shifted, nil
		}
		return in, nil
	}
	return nil, incompatible(in, other)
}
