package heap

import (
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Strings are stored as WTF-8: UTF-8 in which a lone surrogate code unit
// keeps its three-byte encoding instead of turning into U+FFFD. A surrogate
// pair is always stored as the four-byte encoding of its code point, so two
// strings with the same code units are the same Go string. Indices and
// lengths exposed to guest code are in UTF-16 code units.

const (
	surrogateMin = 0xD800
	surrogateMax = 0xDFFF
	lowMin       = 0xDC00
)

func isSurrogate(r rune) bool { return r >= surrogateMin && r <= surrogateMax }
func isHigh(r rune) bool      { return r >= surrogateMin && r < lowMin }
func isLow(r rune) bool       { return r >= lowMin && r <= surrogateMax }

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// DecodeRune decodes the first code point of s. A lone surrogate is
// returned as itself with size 3.
func DecodeRune(s string) (rune, int) {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError && size == 1 && len(s) >= 3 &&
		s[0] == 0xED && s[1] >= 0xA0 && s[1] <= 0xBF && s[2]&0xC0 == 0x80 {
		return 0xD000 | rune(s[1]&0x3F)<<6 | rune(s[2]&0x3F), 3
	}
	return r, size
}

// AppendRune appends r to b, writing surrogates in their three-byte form.
func AppendRune(b []byte, r rune) []byte {
	if isSurrogate(r) {
		return append(b, 0xED, 0x80|byte(r>>6)&0x3F, 0x80|byte(r)&0x3F)
	}
	return utf8.AppendRune(b, r)
}

// canonical joins a lone high surrogate followed by a lone low surrogate
// into the code point they encode.
func canonical(s string) string {
	var b []byte
	last := 0
	for i := 0; i+6 <= len(s); {
		j := strings.IndexByte(s[i:], 0xED)
		if j < 0 {
			break
		}
		i += j
		if i+6 > len(s) {
			break
		}
		hi, n := DecodeRune(s[i:])
		if n == 3 && isHigh(hi) {
			if lo, m := DecodeRune(s[i+3:]); m == 3 && isLow(lo) {
				b = append(b, s[last:i]...)
				b = utf8.AppendRune(b, utf16.DecodeRune(hi, lo))
				i += 6
				last = i
				continue
			}
		}
		i++
	}
	if b == nil {
		return s
	}
	return string(append(b, s[last:]...))
}

// UTF16Len is the JS length of s.
func UTF16Len(s string) int {
	if isASCII(s) {
		return len(s)
	}
	n := 0
	for i := 0; i < len(s); {
		r, size := DecodeRune(s[i:])
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
		i += size
	}
	return n
}

// ToUTF16 converts s to code units.
func ToUTF16(s string) []uint16 {
	u := make([]uint16, 0, len(s))
	for i := 0; i < len(s); {
		r, size := DecodeRune(s[i:])
		if r >= 0x10000 {
			hi, lo := utf16.EncodeRune(r)
			u = append(u, uint16(hi), uint16(lo))
		} else {
			u = append(u, uint16(r))
		}
		i += size
	}
	return u
}

// FromUTF16 converts code units back to a string. Unpaired surrogates are
// kept.
func FromUTF16(u []uint16) string {
	b := make([]byte, 0, len(u))
	for i := 0; i < len(u); i++ {
		r := rune(u[i])
		if isHigh(r) && i+1 < len(u) && isLow(rune(u[i+1])) {
			r = utf16.DecodeRune(r, rune(u[i+1]))
			i++
		}
		b = AppendRune(b, r)
	}
	return string(b)
}

// Runes splits s into code points, lone surrogates included.
func Runes(s string) []rune {
	out := make([]rune, 0, len(s))
	for i := 0; i < len(s); {
		r, size := DecodeRune(s[i:])
		out = append(out, r)
		i += size
	}
	return out
}

// FromRunes is the inverse of Runes.
func FromRunes(rs []rune) string {
	b := make([]byte, 0, len(rs))
	for _, r := range rs {
		b = AppendRune(b, r)
	}
	return canonical(string(b))
}

// IsWellFormed reports whether s has no lone surrogates.
func IsWellFormed(s string) bool { return utf8.ValidString(s) }

// ToWellFormed replaces each lone surrogate with U+FFFD.
func ToWellFormed(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); {
		r, size := DecodeRune(s[i:])
		if isSurrogate(r) {
			r = utf8.RuneError
		}
		b = utf8.AppendRune(b, r)
		i += size
	}
	return string(b)
}

// QuoteString renders s as a double-quoted literal with lone surrogates
// escaped as \uXXXX.
func QuoteString(s string) string {
	if utf8.ValidString(s) {
		return strconv.Quote(s)
	}
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := DecodeRune(s[i:])
		if isSurrogate(r) {
			b.WriteString(`\u`)
			b.WriteString(strings.ToUpper(strconv.FormatInt(int64(r), 16)))
		} else {
			q := strconv.Quote(s[i : i+size])
			b.WriteString(q[1 : len(q)-1])
		}
		i += size
	}
	b.WriteByte('"')
	return b.String()
}

// CharAt returns the code unit at i as a string.
func CharAt(s string, i int) (string, bool) {
	if i < 0 {
		return "", false
	}
	if isASCII(s) {
		if i >= len(s) {
			return "", false
		}
		return s[i : i+1], true
	}
	u, ok := CodeUnitAt(s, i)
	if !ok {
		return "", false
	}
	return string(AppendRune(nil, rune(u))), true
}

// CodeUnitAt returns the UTF-16 code unit at i.
func CodeUnitAt(s string, i int) (uint16, bool) {
	if i < 0 {
		return 0, false
	}
	if isASCII(s) {
		if i >= len(s) {
			return 0, false
		}
		return uint16(s[i]), true
	}
	u := ToUTF16(s)
	if i >= len(u) {
		return 0, false
	}
	return u[i], true
}

// Substring slices s by code-unit offsets, clamped to the string.
func Substring(s string, start, end int) string {
	if isASCII(s) {
		start, end = clampRange(start, end, len(s))
		return s[start:end]
	}
	u := ToUTF16(s)
	start, end = clampRange(start, end, len(u))
	return FromUTF16(u[start:end])
}

func clampRange(start, end, n int) (int, int) {
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	if start > end {
		start = end
	}
	return start, end
}

// IndexOf finds sub in s at or after code-unit position from.
func IndexOf(s, sub string, from int) int {
	if isASCII(s) && isASCII(sub) {
		if from < 0 {
			from = 0
		}
		if from > len(s) {
			return -1
		}
		for i := from; i+len(sub) <= len(s); i++ {
			if s[i:i+len(sub)] == sub {
				return i
			}
		}
		return -1
	}
	u, w := ToUTF16(s), ToUTF16(sub)
	if from < 0 {
		from = 0
	}
	for i := from; i+len(w) <= len(u); i++ {
		match := true
		for j := range w {
			if u[i+j] != w[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// LastIndexOf finds the last sub in s starting at or before from.
func LastIndexOf(s, sub string, from int) int {
	u, w := ToUTF16(s), ToUTF16(sub)
	if from > len(u)-len(w) {
		from = len(u) - len(w)
	}
	for i := from; i >= 0; i-- {
		match := true
		for j := range w {
			if u[i+j] != w[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
