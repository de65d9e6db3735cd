package eventbus

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

// Codec encodes and decodes message bodies. A codec is referenced by name on
// the wire (DeliveryOptions.CodecName, Message.CodecName) and may also be
// registered as the default codec for a Go type so callers never have to
// name it explicitly.
type Codec interface {
	// Name identifies the codec for DeliveryOptions.CodecName lookups.
	Name() string
	// Encode is applied before a message crosses a context boundary; for the
	// local bus this is invoked once per delivered copy so each handler can
	// mutate its own decoded view without affecting others.
	Encode(body any) (any, error)
	// Decode is applied on the receiving side, turning the encoded form back
	// into the body a handler observes.
	Decode(encoded any) (any, error)
}

// passthroughCodec is the system fallback: bodies flow through unmodified.
// It is registered by name at construction and always stays the fallback;
// unregistering its name removes only the by-name lookup.
type passthroughCodec struct{}

func (passthroughCodec) Name() string                   { return "passthrough" }
func (passthroughCodec) Encode(body any) (any, error)    { return body, nil }
func (passthroughCodec) Decode(encoded any) (any, error) { return encoded, nil }

// jsonCodec round-trips bodies through encoding/json, giving handlers a
// defensively-copied value even when the original body was a pointer or map.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Encode(body any) (any, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("eventbus: json encode: %w", err)
	}
	return raw, nil
}

func (jsonCodec) Decode(encoded any) (any, error) {
	raw, ok := encoded.([]byte)
	if !ok {
		return encoded, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("eventbus: json decode: %w", err)
	}
	return out, nil
}

// stringCodec treats the body as an opaque string, no transformation.
type stringCodec struct{}

func (stringCodec) Name() string                   { return "string" }
func (stringCodec) Encode(body any) (any, error)    { return body, nil }
func (stringCodec) Decode(encoded any) (any, error) { return encoded, nil }

// CodecRegistry owns the set of named codecs and the per-type default
// bindings, both mutable at runtime under a single RWMutex (this is not a
// dispatch-path hot structure, so a mutex is simpler than an atomic map and
// carries no measurable cost).
type CodecRegistry struct {
	mu       sync.RWMutex
	byName   map[string]Codec
	byType   map[reflect.Type]Codec
	fallback Codec
}

// NewCodecRegistry returns a registry seeded with the system's built-in
// codecs (passthrough, json, string); passthrough is the fallback used when
// no name override and no type default apply.
func NewCodecRegistry() *CodecRegistry {
	r := &CodecRegistry{
		byName:   make(map[string]Codec),
		byType:   make(map[reflect.Type]Codec),
		fallback: passthroughCodec{},
	}
	_ = r.Register(passthroughCodec{})
	_ = r.Register(jsonCodec{})
	_ = r.Register(stringCodec{})
	return r
}

// Register adds a named codec, replacing any existing codec with that name.
func (r *CodecRegistry) Register(codec Codec) error {
	if codec == nil {
		return ErrCodecNil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[codec.Name()] = codec
	return nil
}

// Unregister removes a named codec. Idempotent.
func (r *CodecRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byName, name)
}

// RegisterDefault binds codec as the default for every body whose runtime
// type equals reflect.TypeOf(sample).
func (r *CodecRegistry) RegisterDefault(sample any, codec Codec) error {
	if codec == nil {
		return ErrCodecNil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[reflect.TypeOf(sample)] = codec
	return nil
}

// UnregisterDefault removes the default codec binding for sample's type.
func (r *CodecRegistry) UnregisterDefault(sample any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byType, reflect.TypeOf(sample))
}

// Resolve picks the codec for a message: name override, then the per-type
// default for body, then the system fallback. This mirrors the teacher
// module's createMessage codec resolution order (name, then type, then
// built-in).
func (r *CodecRegistry) Resolve(name string, body any) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name != "" {
		codec, ok := r.byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrCodecNotFound, name)
		}
		return codec, nil
	}

	if body != nil {
		if codec, ok := r.byType[reflect.TypeOf(body)]; ok {
			return codec, nil
		}
	}

	return r.fallback, nil
}
