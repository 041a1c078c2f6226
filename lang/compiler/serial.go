package compiler

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Magic is the 4-byte header of a persisted bytecode file.
var Magic = [4]byte{'b', 'l', 'o', 'x'}

// Marshal serializes the chunk and its full constant pool (including nested
// function prototypes) into the persisted bytecode format: the 4-byte magic
// followed by a MessagePack payload.
func Marshal(ch *Chunk) ([]byte, error) {
	payload, err := msgpack.Marshal(ch)
	if err != nil {
		return nil, fmt.Errorf("serialize bytecode: %w", err)
	}
	out := make([]byte, 0, len(Magic)+len(payload))
	out = append(out, Magic[:]...)
	out = append(out, payload...)
	return out, nil
}

// Unmarshal deserializes a persisted bytecode file. It rejects any input
// whose first 4 bytes are not the magic.
func Unmarshal(b []byte) (*Chunk, error) {
	if !IsCompiled(b) {
		return nil, fmt.Errorf("not a valid bytecode file (missing %q header)", Magic[:])
	}
	var ch Chunk
	if err := msgpack.Unmarshal(b[len(Magic):], &ch); err != nil {
		return nil, fmt.Errorf("deserialize bytecode: %w", err)
	}
	return &ch, nil
}

// IsCompiled reports whether b starts with the bytecode magic header.
func IsCompiled(b []byte) bool {
	return len(b) >= len(Magic) && bytes.Equal(b[:len(Magic)], Magic[:])
}
