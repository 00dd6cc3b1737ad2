package textenc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToNativeTextPassthrough(t *testing.T) {
	require.Equal(t, "1 + 1", ToNativeText([]byte("1 + 1")))
	require.Equal(t, "'héllo ✓'", ToNativeText([]byte("'héllo ✓'")))
}

func TestToNativeTextEmpty(t *testing.T) {
	require.Equal(t, "", ToNativeText(nil))
	require.Equal(t, "", ToNativeText([]byte{}))
}

func TestToNativeTextStripsBOM(t *testing.T) {
	require.Equal(t, "42", ToNativeText([]byte("\xEF\xBB\xBF42")))
	require.Equal(t, "", ToNativeText([]byte("\xEF\xBB\xBF")))
}

func TestToNativeTextReplacesMalformed(t *testing.T) {
	got := ToNativeText([]byte("a\xffb"))
	require.Equal(t, "a�b", got)
}
