package heap

import (
	"slices"
	"testing"
)

func TestStrings_LoneSurrogatesSurvive(t *testing.T) {
	lone := FromUTF16([]uint16{0xD83D})
	if got := ToUTF16(lone); !slices.Equal(got, []uint16{0xD83D}) {
		t.Fatalf("ToUTF16 = %x", got)
	}
	if UTF16Len(lone) != 1 {
		t.Errorf("UTF16Len = %d", UTF16Len(lone))
	}
	if u, _ := CodeUnitAt("a"+lone, 1); u != 0xD83D {
		t.Errorf("CodeUnitAt = %x", u)
	}
	if IsWellFormed(lone) || ToWellFormed(lone) != "�" {
		t.Errorf("well-formedness of a lone surrogate: %q", ToWellFormed(lone))
	}
	if got := QuoteString("x" + lone); got != `"x\uD83D"` {
		t.Errorf("QuoteString = %s", got)
	}
	if got := Runes(lone + "b"); !slices.Equal(got, []rune{0xD83D, 'b'}) {
		t.Errorf("Runes = %x", got)
	}
	if FromRunes([]rune{0xD83D, 'b'}) != lone+"b" {
		t.Error("FromRunes does not invert Runes")
	}
}

func TestStrings_HalvesJoinIntoPairs(t *testing.T) {
	const face = "😀"
	hi, _ := CharAt(face, 0)
	lo, _ := CharAt(face, 1)
	if hi == lo || UTF16Len(hi) != 1 {
		t.Fatalf("halves %q %q", hi, lo)
	}
	if got := NewString(hi + lo).AsString(); got != face {
		t.Errorf("joined halves = %q, want %q", got, face)
	}
	if got := NewString("a" + Substring(face, 0, 1) + Substring(face, 1, 2) + "b").AsString(); got != "a"+face+"b" {
		t.Errorf("joined substrings = %q", got)
	}
	if FromUTF16([]uint16{0xD83D, 0xDE00}) != face {
		t.Error("a pair of code units decodes to its code point")
	}
	// Low then high is not a pair.
	if n := UTF16Len(NewString(lo + hi).AsString()); n != 2 {
		t.Errorf("reversed halves length %d", n)
	}
	if NewString("한국어").AsString() != "한국어" {
		t.Error("Hangul shares the lead byte of surrogates but must not change")
	}
}
