// Package codec provides the byte encodings used for cache values and
// pub/sub messages.
package codec

import "fmt"

// Codec encodes and decodes structured values to bytes.
type Codec interface {
	// Marshal serializes v into bytes.
	Marshal(v any) ([]byte, error)
	// Unmarshal deserializes data into v (must be a pointer).
	Unmarshal(data []byte, v any) error
	// Name returns the codec identifier used in configuration.
	Name() string
}

// ByName returns the codec registered under name ("json" or "msgpack").
func ByName(name string) (Codec, error) {
	switch name {
	case "", JSON{}.Name():
		return JSON{}, nil
	case MsgPack{}.Name():
		return MsgPack{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}
