package artifact

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

var testTarget = Target{Engine: "quickjs", Version: "test-1"}

func TestSealOpen(t *testing.T) {
	data, err := Seal(testTarget, "1 + 2", []byte{1, 2, 3})
	require.NoError(t, err)

	payload, err := Open(testTarget, "1 + 2", data)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, payload)
}

func TestSealIsDeterministic(t *testing.T) {
	a, err := Seal(testTarget, "x", []byte("payload"))
	require.NoError(t, err)
	b, err := Seal(testTarget, "x", []byte("payload"))
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestOpenRejects(t *testing.T) {
	good, err := Seal(testTarget, "src", []byte("payload"))
	require.NoError(t, err)

	cases := map[string]struct {
		target Target
		source string
		data   []byte
	}{
		"empty":          {testTarget, "src", nil},
		"truncated":      {testTarget, "src", good[:len(good)/2]},
		"garbage":        {testTarget, "src", []byte("not cbor at all \xff\xfe")},
		"other engine":   {Target{Engine: "v8", Version: "test-1"}, "src", good},
		"other version":  {Target{Engine: "quickjs", Version: "test-2"}, "src", good},
		"source changed": {testTarget, "src2", good},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Open(tc.target, tc.source, tc.data)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrStale), "got %v", err)
		})
	}
}

func TestOpenRejectsEmptyPayload(t *testing.T) {
	data, err := Seal(testTarget, "src", nil)
	require.NoError(t, err)
	_, err = Open(testTarget, "src", data)
	require.ErrorIs(t, err, ErrStale)
}

func TestMemo(t *testing.T) {
	var m Memo
	_, ok := m.Get("a")
	require.False(t, ok)

	m.Put("a", []byte("A"))
	got, ok := m.Get("a")
	require.True(t, ok)
	require.Equal(t, []byte("A"), got)

	_, ok = m.Get("b")
	require.False(t, ok)

	m.Reset()
	_, ok = m.Get("a")
	require.False(t, ok)
}

func TestOpenRejectsFlippedPayloadByte(t *testing.T) {
	data, err := Seal(testTarget, "src", []byte("payload-bytes"))
	require.NoError(t, err)

	// The payload is the tail of the canonical encoding.
	corrupt := append([]byte(nil), data...)
	corrupt[len(corrupt)-1] ^= 0xFF
	_, err = Open(testTarget, "src", corrupt)
	require.ErrorIs(t, err, ErrStale)
}
