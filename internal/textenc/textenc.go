// Package textenc converts host-supplied script bytes into the text form the
// engines consume.
package textenc

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// utf8BOM decodes UTF-8, dropping a leading byte order mark and replacing
// malformed sequences with U+FFFD.
var utf8BOM = unicode.UTF8BOM

// ToNativeText normalizes UTF-8 script bytes. Valid input without a BOM is
// returned unchanged.
func ToNativeText(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if utf8.Valid(b) && !hasBOM(b) {
		return string(b)
	}
	out, err := utf8BOM.NewDecoder().Bytes(b)
	if err != nil {
		// The UTF-8 decoder replaces rather than rejects; keep the raw text
		// if a transformer error slips through anyway.
		return string(b)
	}
	return string(out)
}

func hasBOM(b []byte) bool {
	return len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF
}
