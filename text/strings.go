package text

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

func RemoveRedundantWhitespace(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}

func RemoveAllWhitespace(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), "")
}

// CollapseNewlines replaces every line break in s with a single space. Windows
// line endings count as one break.
func CollapseNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.ReplaceAll(s, "\n", " ")
}

// HasInteriorNewline reports whether s contains a line break that is not part of
// trailing whitespace.
func HasInteriorNewline(s string) bool {
	return strings.ContainsAny(strings.TrimRightFunc(s, unicode.IsSpace), "\r\n")
}

// ASCIIOnly drops every rune outside printable ASCII and tidies the whitespace
// that remains.
func ASCIIOnly(s string) string {
	s = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII || (!unicode.IsPrint(r) && !unicode.IsSpace(r)) {
			return -1
		}
		return r
	}, s)
	return RemoveRedundantWhitespace(s)
}

var bracketed = regexp.MustCompile(`\(.*?\)`)

// StripBrackets removes parenthesised text, including the parentheses.
func StripBrackets(s string) string {
	return RemoveRedundantWhitespace(bracketed.ReplaceAllString(s, ""))
}

var labelReplacer = strings.NewReplacer(
	"<>", "_",
	"&", "_",
	"(", "_",
	")", "_",
	".", "",
	":", "",
)

// SanitizeLabel makes s safe for use as an Archivist label.
func SanitizeLabel(s string) string {
	return labelReplacer.Replace(strings.TrimSpace(s))
}

// EnsurePrefix adds prefix to s unless it is already present.
func EnsurePrefix(s, prefix string) string {
	if strings.HasPrefix(s, prefix) {
		return s
	}
	return prefix + s
}

// ReplacePrefix swaps the prefix old for new when s starts with old.
func ReplacePrefix(s, old, new string) string {
	if strings.HasPrefix(s, old) {
		return new + strings.TrimPrefix(s, old)
	}
	return s
}

// FirstWord returns the first whitespace separated word of s.
func FirstWord(s string) string {
	f := strings.Fields(s)
	if len(f) == 0 {
		return ""
	}
	return f[0]
}

// IsSingleWord reports whether s is non-empty and contains no whitespace separated parts.
func IsSingleWord(s string) bool {
	return len(strings.Fields(s)) == 1
}

var romanNumerals = []struct {
	value  int
	symbol string
}{
	{1000, "m"},
	{900, "cm"},
	{500, "d"},
	{400, "cd"},
	{100, "c"},
	{90, "xc"},
	{50, "l"},
	{40, "xl"},
	{10, "x"},
	{9, "ix"},
	{5, "v"},
	{4, "iv"},
	{1, "i"},
}

// Roman formats n as a lower case roman numeral. Zero and negative numbers are
// formatted as "0".
func Roman(n int) string {
	if n <= 0 {
		return "0"
	}
	var b strings.Builder
	for _, rn := range romanNumerals {
		for n >= rn.value {
			b.WriteString(rn.symbol)
			n -= rn.value
		}
	}
	return b.String()
}

// NumberAll disambiguates repeated labels by suffixing every member of a
// repeated group with an underscore and a roman numeral counting from one.
// Labels that occur once are unchanged.
func NumberAll(labels []string) []string {
	counts := make(map[string]int, len(labels))
	for _, l := range labels {
		counts[l]++
	}

	seen := make(map[string]int, len(counts))
	out := make([]string, len(labels))
	for i, l := range labels {
		if counts[l] == 1 {
			out[i] = l
			continue
		}
		seen[l]++
		out[i] = l + "_" + Roman(seen[l])
	}
	return out
}

// NumberAfterFirst disambiguates repeated labels leaving the first occurrence
// unchanged and suffixing later occurrences with an underscore and a roman
// numeral counting from one.
func NumberAfterFirst(labels []string) []string {
	seen := make(map[string]int, len(labels))
	out := make([]string, len(labels))
	for i, l := range labels {
		n := seen[l]
		seen[l]++
		if n == 0 {
			out[i] = l
			continue
		}
		out[i] = l + "_" + Roman(n)
	}
	return out
}

// Similar returns a score between 0 and 1 indicating how alike a and b are,
// where 1 means identical.
func Similar(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	return strutil.Similarity(a, b, metrics.NewLevenshtein())
}

// Unused returns label when it is not in used, otherwise the first of label_i,
// label_ii and so on that is not.
func Unused(label string, used map[string]bool) string {
	if !used[label] {
		return label
	}
	for n := 1; ; n++ {
		l := label + "_" + Roman(n)
		if !used[l] {
			return l
		}
	}
}
