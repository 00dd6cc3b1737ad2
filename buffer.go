package jshost

import "fmt"

// SourceBuffer is program text handed to the runtime together with the URL
// used in diagnostics. The runtime borrows Text for the duration of a call
// and never modifies it.
type SourceBuffer struct {
	Text []byte
	URL  string
}

// Source builds a SourceBuffer from a string.
func Source(url, text string) SourceBuffer {
	return SourceBuffer{Text: []byte(text), URL: url}
}

// BytecodeBuffer holds a serialized script artifact. Its length is fixed
// when it is created and its contents are not exposed for mutation.
type BytecodeBuffer struct {
	data []byte
}

// NewBytecodeBuffer allocates a zeroed buffer of exactly size bytes.
func NewBytecodeBuffer(size int) (*BytecodeBuffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: bytecode size must be positive, got %d", ErrInvalidArgument, size)
	}
	return &BytecodeBuffer{data: make([]byte, size)}, nil
}

// BytecodeFromBytes wraps a copy of b, typically bytes read back from a
// bytecode store. It returns nil for an empty slice.
func BytecodeFromBytes(b []byte) *BytecodeBuffer {
	if len(b) == 0 {
		return nil
	}
	return &BytecodeBuffer{data: append([]byte(nil), b...)}
}

// Len returns the artifact size in bytes. A nil buffer has length 0.
func (b *BytecodeBuffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Bytes returns a copy of the artifact.
func (b *BytecodeBuffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b.data...)
}
