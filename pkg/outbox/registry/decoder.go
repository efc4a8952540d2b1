package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// Decoder turns an envelope's data field into a typed payload.
type Decoder func(payload json.RawMessage) (any, error)

// DecoderRegistry maps inbound event type and schema version to a Decoder.
// Unknown pairs decode to a NonRetryableError.
type DecoderRegistry struct {
	mu       sync.RWMutex
	decoders map[string]Decoder
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: make(map[string]Decoder)}
}

func decoderKey(eventType string, version int) string {
	return eventType + "@v" + strconv.Itoa(version)
}

// Register adds a decoder. Versions start at 1 and each pair registers once.
func (r *DecoderRegistry) Register(eventType string, version int, decoder Decoder) error {
	switch {
	case eventType == "":
		return fmt.Errorf("event type is required")
	case version < 1:
		return fmt.Errorf("invalid version %d for %s", version, eventType)
	case decoder == nil:
		return fmt.Errorf("nil decoder for %s", decoderKey(eventType, version))
	}

	key := decoderKey(eventType, version)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.decoders[key]; exists {
		return fmt.Errorf("decoder already registered for %s", key)
	}
	r.decoders[key] = decoder
	return nil
}

// MustRegister is Register for package-level wiring; it panics on error.
func (r *DecoderRegistry) MustRegister(eventType string, version int, decoder Decoder) {
	if err := r.Register(eventType, version, decoder); err != nil {
		panic(err)
	}
}

func (r *DecoderRegistry) Decode(eventType string, version int, payload json.RawMessage) (any, error) {
	key := decoderKey(eventType, version)
	r.mu.RLock()
	decoder, ok := r.decoders[key]
	r.mu.RUnlock()
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("decoder not registered for %s", key))
	}
	return decoder(payload)
}

// Registered lists the known type@version pairs, sorted.
func (r *DecoderRegistry) Registered() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.decoders))
	for key := range r.decoders {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// JSONDecoder unmarshals into a new *T. Empty or null payloads are rejected.
func JSONDecoder[T any]() Decoder {
	return func(payload json.RawMessage) (any, error) {
		trimmed := bytes.TrimSpace(payload)
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
			return nil, NewNonRetryableError(fmt.Errorf("payload is empty"))
		}
		value := new(T)
		if err := json.Unmarshal(trimmed, value); err != nil {
			return nil, NewNonRetryableError(fmt.Errorf("decode payload: %w", err))
		}
		return value, nil
	}
}
