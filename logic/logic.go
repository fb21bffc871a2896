// Package logic rewrites questionnaire routing expressions into the syntax
// expected by Archivist condition and loop logic.
package logic

import (
	"regexp"
	"strings"

	"github.com/iand/cctables/model"
	"github.com/iand/cctables/text"
)

var (
	leadingIf   = regexp.MustCompile(`^\s*IF\b`)
	comparison  = regexp.MustCompile(`<>|!=|>=|<=|==|=|<|>`)
	orSymbol    = regexp.MustCompile(`\|\|?`)
	andSymbol   = regexp.MustCompile(`&&?`)
	orWord      = regexp.MustCompile(`\b(?:OR|or)\b`)
	andWord     = regexp.MustCompile(`\b(?:AND|and)\b`)
	comparedVar = regexp.MustCompile(`(\w+)\s*(?:==|!=|>=|<=|<>|=|<|>)`)
	firstVar    = regexp.MustCompile(`(\w+) *(?:=|>|<)`)
	allDigits   = regexp.MustCompile(`^[0-9]+$`)
)

var comparisonReplacement = map[string]string{
	"<>": " != ",
	"!=": " != ",
	">=": " >= ",
	"<=": " <= ",
	"==": " == ",
	"=":  " == ",
	"<":  " < ",
	">":  " > ",
}

// Convert rewrites a source routing expression. Expressions that reference
// derived flags (ff_ variables) cannot be represented and produce an empty
// result.
func Convert(expr string) string {
	if strings.Contains(expr, "ff_") {
		return ""
	}
	expr = leadingIf.ReplaceAllString(expr, "")
	expr = comparison.ReplaceAllStringFunc(expr, func(op string) string {
		return comparisonReplacement[op]
	})
	expr = orSymbol.ReplaceAllString(expr, " || ")
	expr = andSymbol.ReplaceAllString(expr, " && ")
	expr = orWord.ReplaceAllString(expr, "||")
	expr = andWord.ReplaceAllString(expr, "&&")
	return text.RemoveRedundantWhitespace(expr)
}

// Variables returns the identifiers compared in expr in order of first
// appearance. Numeric literals are ignored.
func Variables(expr string) []string {
	var vars []string
	seen := make(map[string]bool)
	for _, m := range comparedVar.FindAllStringSubmatch(expr, -1) {
		v := m[1]
		if allDigits.MatchString(v) || seen[v] {
			continue
		}
		seen[v] = true
		vars = append(vars, v)
	}
	return vars
}

// Qualify prefixes every compared variable in expr with the question construct
// prefix so the logic refers to Archivist question constructs.
func Qualify(expr string) string {
	for _, v := range Variables(expr) {
		if strings.HasPrefix(v, model.PrefixQuestionConstruct) {
			continue
		}
		expr = QualifyVariable(expr, v)
	}
	return expr
}

// QualifyVariable prefixes whole-word occurrences of v in expr with the question
// construct prefix.
func QualifyVariable(expr string, v string) string {
	if v == "" {
		return expr
	}
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(v) + `\b`)
	return re.ReplaceAllString(expr, model.PrefixQuestionConstruct+v)
}

// FirstVariable returns the first word in s that is immediately followed by a
// comparison, or the empty string.
func FirstVariable(s string) string {
	m := firstVar.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}

var parenthesised = regexp.MustCompile(`\((.*)\)`)

// Parenthesised returns the text between the first opening and the last closing
// parenthesis in s.
func Parenthesised(s string) string {
	m := parenthesised.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}
