package payload

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/concord/pkg/core"
)

// DecodeFunc builds a payload from the data part of an envelope.
type DecodeFunc func(data json.RawMessage) (core.Payload, error)

type envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

var (
	mu       sync.RWMutex
	decoders = map[string]DecodeFunc{
		KindValue:  decodeAs[Value],
		KindMove:   decodeAs[Move],
		KindInsert: decodeAs[Insert],
	}
)

func decodeAs[T core.Payload](data json.RawMessage) (core.Payload, error) {
	var v T
	if len(data) > 0 {
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Register makes a payload kind known to Decode. Registering a kind twice
// replaces the previous decoder.
func Register(kind string, fn DecodeFunc) {
	mu.Lock()
	defer mu.Unlock()
	decoders[kind] = fn
}

// Kinds lists the registered kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	kinds := make([]string, 0, len(decoders))
	for k := range decoders {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Encode wraps p in a {"kind", "data"} envelope. A nil payload encodes as JSON
// null.
func Encode(p core.Payload) (json.RawMessage, error) {
	if p == nil {
		return json.RawMessage("null"), nil
	}
	k, ok := p.(Kinded)
	if !ok {
		return nil, fmt.Errorf("payload %T has no kind", p)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", k.Kind(), err)
	}
	return json.Marshal(envelope{Kind: k.Kind(), Data: data})
}

// Decode is the inverse of Encode.
func Decode(raw json.RawMessage) (core.Payload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}

	mu.RLock()
	fn, ok := decoders[env.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown payload kind %q", env.Kind)
	}

	p, err := fn(env.Data)
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.Kind, err)
	}
	return p, nil
}
