// Package relabel normalises the labels of an existing set of Archivist
// tables and derives condition logic from condition literals.
package relabel

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/iand/cctables/logic"
	"github.com/iand/cctables/model"
	"github.com/iand/cctables/text"
)

// MissingLiteral replaces the literal of a question that has none.
const MissingLiteral = "?"

var allDigits = regexp.MustCompile(`^[0-9]+$`)

// Renames records the label changes made to each kind of construct, keyed by
// the old label.
type Renames map[model.Kind]map[string]string

func (r Renames) add(kind model.Kind, old, new string) {
	if old == new {
		return
	}
	m, ok := r[kind]
	if !ok {
		m = make(map[string]string)
		r[kind] = m
	}
	if _, exists := m[old]; !exists {
		m[old] = new
	}
}

// Count returns the number of renamed labels.
func (r Renames) Count() int {
	n := 0
	for _, m := range r {
		n += len(m)
	}
	return n
}

type relabeller struct {
	in      *model.Instrument
	renames Renames
	taken   map[model.Kind]map[string]string // new label to old label
}

// label records the rename of one construct and returns the label it ends up
// with. A new label already given to a construct with a different old label is
// numbered. Collisions are recorded as anomalies.
func (r *relabeller) label(kind model.Kind, old, new string) string {
	t, ok := r.taken[kind]
	if !ok {
		t = make(map[string]string)
		r.taken[kind] = t
	}

	if prev, exists := t[new]; exists {
		if prev == old {
			r.in.AddAnomaly(model.AnomalyCategoryLabel, old, fmt.Sprintf("%s label is used by more than one construct", kind))
		} else {
			used := make(map[string]bool, len(t))
			for l := range t {
				used[l] = true
			}
			renamed := text.Unused(new, used)
			r.in.AddAnomaly(model.AnomalyCategoryLabel, old, fmt.Sprintf("new label %s is already used by %s, renamed %s", new, prev, renamed))
			new = renamed
		}
	}

	t[new] = old
	r.renames.add(kind, old, new)
	return new
}

// Relabel rewrites construct labels into the form Archivist expects. Parent
// references are resolved against the labels as they were before relabelling.
func Relabel(in *model.Instrument) Renames {
	r := &relabeller{
		in:      in,
		renames: make(Renames),
		taken:   make(map[model.Kind]map[string]string),
	}

	conditions := conditionLabels(in.Conditions)
	for i, c := range in.Conditions {
		c.Label = r.label(model.KindCondition, c.Label, conditions[i])
	}

	for _, l := range in.Loops {
		l.Label = r.label(model.KindLoop, l.Label, text.SanitizeLabel(l.Label))
	}

	for _, s := range in.Statements {
		s.Label = r.label(model.KindStatement, s.Label, text.SanitizeLabel(s.Label))
	}

	for _, q := range in.QuestionItems {
		q.Label = r.label(model.KindQuestionItem, q.Label, text.EnsurePrefix(text.SanitizeLabel(q.Label), model.PrefixQuestionItem))
		if strings.TrimSpace(q.Literal) == "" {
			q.Literal = MissingLiteral
		}
	}

	for _, q := range in.QuestionGrids {
		q.Label = r.label(model.KindQuestionGrid, q.Label, text.EnsurePrefix(text.SanitizeLabel(q.Label), model.PrefixQuestionGrid))
		if strings.TrimSpace(q.Literal) == "" {
			q.Literal = MissingLiteral
		}
	}

	for _, l := range in.CodeListLabels() {
		r.label(model.KindCodeList, l, text.SanitizeLabel(l))
	}
	codeLists := r.renames[model.KindCodeList]
	for _, c := range in.Codes {
		if n, ok := codeLists[c.Label]; ok {
			c.Label = n
		}
	}
	in.RemapResponses(codeLists)

	for _, p := range in.Placements() {
		var m map[string]string
		switch p.ParentType {
		case model.ParentTypeCondition:
			m = r.renames[model.KindCondition]
		case model.ParentTypeLoop:
			m = r.renames[model.KindLoop]
		default:
			continue
		}
		if n, ok := m[p.ParentName]; ok {
			p.ParentName = n
		}
	}

	for kind, m := range r.renames {
		for old, label := range m {
			slog.Debug("relabelled construct", "kind", kind, "label", old, "new", label)
		}
	}

	return r.renames
}

// conditionLabels derives the new label of each condition and rewrites its
// logic from the literal. Conditions are named after the first variable they
// compare; later conditions on the same variable are numbered. A condition
// whose literal compares no variable keeps its own label.
func conditionLabels(cs []*model.Condition) []string {
	vars := make([]string, len(cs))
	var named []string
	for i, c := range cs {
		v := logic.FirstVariable(c.Literal)
		if allDigits.MatchString(v) {
			v = ""
		}
		vars[i] = v
		if v != "" {
			named = append(named, v)
		}

		if lit := strings.TrimSpace(c.Literal); lit != "" {
			c.Logic = logic.Convert(lit)
			if v != "" && !strings.HasPrefix(v, model.PrefixQuestionConstruct) {
				c.Logic = logic.QualifyVariable(c.Logic, v)
			}
		}
	}
	named = text.NumberAfterFirst(named)

	labels := make([]string, len(cs))
	n := 0
	for i, c := range cs {
		if vars[i] == "" {
			labels[i] = text.EnsurePrefix(text.SanitizeLabel(c.Label), model.PrefixCondition)
			continue
		}
		labels[i] = model.PrefixCondition + text.SanitizeLabel(named[n])
		n++
	}
	return labels
}
