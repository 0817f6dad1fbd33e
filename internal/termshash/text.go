package termshash

import (
	"unicode/utf16"
	"unicode/utf8"
)

const (
	surrogateHighStart = 0xD800
	surrogateHighEnd   = 0xDBFF
	surrogateLowStart  = 0xDC00
	surrogateLowEnd    = 0xDFFF

	// ReplacementChar substitutes invalid code units.
	ReplacementChar = 0xFFFD
	// Terminator ends every interned text in the char pool.
	Terminator = 0xFFFF
)

// hashText normalizes text in place and returns its hash. Lone surrogates and
// the terminator value are replaced with ReplacementChar. The text is walked
// from the end; a valid pair contributes low then high.
func hashText(text []uint16) int32 {
	var code int32
	downto := len(text)
	for downto > 0 {
		downto--
		ch := text[downto]
		switch {
		case ch >= surrogateLowStart && ch <= surrogateLowEnd:
			if downto > 0 {
				ch2 := text[downto-1]
				if ch2 >= surrogateHighStart && ch2 <= surrogateHighEnd {
					code = (code*31+int32(ch))*31 + int32(ch2)
					downto--
					continue
				}
			}
			ch = ReplacementChar
			text[downto] = ch
		case ch >= surrogateHighStart && (ch <= surrogateHighEnd || ch == Terminator):
			ch = ReplacementChar
			text[downto] = ch
		}
		code = code*31 + int32(ch)
	}
	return code
}

// hashInterned hashes text read back from the char pool. Interned text is
// already normalized, so every unit contributes in order.
func hashInterned(text []uint16) int32 {
	var code int32
	for i := len(text) - 1; i >= 0; i-- {
		code = code*31 + int32(text[i])
	}
	return code
}

// Normalize replaces lone surrogates and the terminator value in text with
// ReplacementChar and returns text.
func Normalize(text []uint16) []uint16 {
	hashText(text)
	return text
}

// compareUnit orders code units so that UTF-16 sequences sort in code point
// order. Supplementary characters (surrogates) sort above U+E000..U+FFFF.
func compareUnit(c1, c2 uint16) int {
	return int(fixup(c1)) - int(fixup(c2))
}

func fixup(c uint16) uint32 {
	if c >= surrogateHighStart {
		if c >= 0xE000 {
			return uint32(c) - 0x800
		}
		return uint32(c) + 0x2000
	}
	return uint32(c)
}

// CompareText compares two unterminated texts in code point order.
func CompareText(a, b []uint16) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return compareUnit(a[i], b[i])
		}
	}
	return len(a) - len(b)
}

// String decodes UTF-16 text.
func String(text []uint16) string {
	return string(utf16.Decode(text))
}

// FromString encodes s as UTF-16.
func FromString(s string) []uint16 {
	return utf16.Encode([]rune(s))
}

// AppendUTF8 appends the UTF-8 encoding of text to dst.
func AppendUTF8(dst []byte, text []uint16) []byte {
	for i := 0; i < len(text); i++ {
		r := rune(text[i])
		if utf16.IsSurrogate(r) && i+1 < len(text) {
			if pair := utf16.DecodeRune(r, rune(text[i+1])); pair != utf8.RuneError {
				r = pair
				i++
			}
		}
		dst = utf8.AppendRune(dst, r)
	}
	return dst
}
