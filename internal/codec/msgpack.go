package codec

import "github.com/vmihailenco/msgpack/v5"

// MsgPack encodes with MessagePack; the compact choice for Redis values.
type MsgPack struct{}

// Marshal serializes v to MessagePack bytes.
func (MsgPack) Marshal(v any) ([]byte, error) { return msgpack.Marshal(v) }

// Unmarshal deserializes MessagePack bytes into v.
func (MsgPack) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

// Name returns "msgpack".
func (MsgPack) Name() string { return "msgpack" }
