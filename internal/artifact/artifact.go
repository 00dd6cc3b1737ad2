// Package artifact defines the portable envelope wrapped around engine
// bytecode. The envelope binds a payload to the engine, engine version and
// exact source text it was compiled from, so a stale artifact is detected
// before the engine ever parses the payload.
package artifact

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/xxh3"
)

// Magic prefixes every envelope.
const Magic = "JSHB"

// FormatVersion is bumped whenever the envelope layout changes.
const FormatVersion = 1

// ErrStale reports an artifact that cannot be used with the current engine
// or source. Callers map it to a bad-serialized-script status.
var ErrStale = errors.New("stale bytecode artifact")

// Envelope is the CBOR-encoded container for engine bytecode.
type Envelope struct {
	Magic         string `cbor:"1,keyasint"`
	Format        int    `cbor:"2,keyasint"`
	Engine        string `cbor:"3,keyasint"`
	EngineVersion string `cbor:"4,keyasint"`
	SourceDigest  uint64 `cbor:"5,keyasint"`
	SourceLen     int    `cbor:"6,keyasint"`
	PayloadDigest uint64 `cbor:"7,keyasint"`
	Payload       []byte `cbor:"8,keyasint"`
}

// Target names the engine build an artifact is valid for.
type Target struct {
	Engine  string
	Version string
}

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("artifact: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Digest returns the source digest stored in envelopes.
func Digest(source string) uint64 {
	return xxh3.HashString(source)
}

// Seal wraps payload for target and source.
func Seal(target Target, source string, payload []byte) ([]byte, error) {
	env := Envelope{
		Magic:         Magic,
		Format:        FormatVersion,
		Engine:        target.Engine,
		EngineVersion: target.Version,
		SourceDigest:  Digest(source),
		SourceLen:     len(source),
		PayloadDigest: xxh3.Hash(payload),
		Payload:       payload,
	}
	b, err := encMode.Marshal(&env)
	if err != nil {
		return nil, fmt.Errorf("artifact: marshal envelope: %w", err)
	}
	return b, nil
}

// Open validates data against target and source and returns the payload.
// Every validation failure wraps ErrStale.
func Open(target Target, source string, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty artifact", ErrStale)
	}
	var env Envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStale, err)
	}
	switch {
	case env.Magic != Magic:
		return nil, fmt.Errorf("%w: bad magic %q", ErrStale, env.Magic)
	case env.Format != FormatVersion:
		return nil, fmt.Errorf("%w: format %d, want %d", ErrStale, env.Format, FormatVersion)
	case env.Engine != target.Engine:
		return nil, fmt.Errorf("%w: compiled for %s, running on %s", ErrStale, env.Engine, target.Engine)
	case env.EngineVersion != target.Version:
		return nil, fmt.Errorf("%w: engine version %s, want %s", ErrStale, env.EngineVersion, target.Version)
	case env.SourceLen != len(source) || env.SourceDigest != Digest(source):
		return nil, fmt.Errorf("%w: source changed", ErrStale)
	case len(env.Payload) == 0:
		return nil, fmt.Errorf("%w: empty payload", ErrStale)
	case env.PayloadDigest != xxh3.Hash(env.Payload):
		return nil, fmt.Errorf("%w: payload corrupted", ErrStale)
	}
	return env.Payload, nil
}

// Memo remembers the most recent sealed artifact so that a size probe and
// the following fill call return byte-identical data even when the engine's
// serializer is not deterministic.
type Memo struct {
	digest uint64
	length int
	data   []byte
}

// Get returns the memoized artifact for source, if any.
func (m *Memo) Get(source string) ([]byte, bool) {
	if m.data == nil || m.length != len(source) || m.digest != Digest(source) {
		return nil, false
	}
	return m.data, true
}

// Put memoizes data for source.
func (m *Memo) Put(source string, data []byte) {
	m.digest = Digest(source)
	m.length = len(source)
	m.data = data
}

// Reset forgets the memoized artifact.
func (m *Memo) Reset() { *m = Memo{} }
