// Package order places questionnaire constructs listed in spreadsheet
// worksheets into the Archivist sequence, condition and loop hierarchy.
package order

import (
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/iand/cctables/archivist"
	"github.com/iand/cctables/codelist"
	"github.com/iand/cctables/model"
	"github.com/iand/cctables/text"
	"github.com/iand/cctables/tree"
)

type Options struct {
	Study      string  // label of the top level sequence
	Similarity float64 // zero means the tree default
	ReuseCodes bool
}

type Loader struct {
	Dir     string
	Options Options
}

func NewLoader(dir string, opts Options) *Loader {
	return &Loader{Dir: dir, Options: opts}
}

func (l *Loader) Scope() string {
	return l.Dir
}

func (l *Loader) Load(in *model.Instrument) error {
	ws, err := archivist.ReadWorksheets(l.Dir)
	if err != nil {
		return fmt.Errorf("read worksheets: %w", err)
	}
	opts := l.Options
	if opts.Study == "" {
		opts.Study = filepath.Base(filepath.Clean(l.Dir))
	}
	return Build(ws, opts, in)
}

// number parses a spreadsheet number, which may have been written as a
// decimal. It reports false for an empty value.
func number(s string) (int, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, err
	}
	return int(math.Round(f)), true, nil
}

// integerText rewrites a numeric value as a whole number. Empty and
// non-numeric values are returned unchanged and reported as not numeric.
func integerText(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s, false
	}
	return fmt.Sprintf("%.0f", f), true
}

func start(kind model.Kind, label, v string) (int, error) {
	n, ok, err := number(v)
	if err != nil {
		return 0, fmt.Errorf("%s %q: invalid position %q: %w", kind, label, v, err)
	}
	if !ok {
		return 0, fmt.Errorf("%s %q: missing position", kind, label)
	}
	return n, nil
}

func optional(kind model.Kind, label, field, v string, def int) (int, error) {
	n, ok, err := number(v)
	if err != nil {
		return 0, fmt.Errorf("%s %q: invalid %s %q: %w", kind, label, field, v, err)
	}
	if !ok {
		return def, nil
	}
	return n, nil
}

// numberDuplicates leaves the first occurrence of each label alone and
// suffixes later ones with _1, _2 and so on.
func numberDuplicates(labels []string) []string {
	seen := make(map[string]int, len(labels))
	out := make([]string, len(labels))
	for i, l := range labels {
		n := seen[l]
		seen[l]++
		if n == 0 {
			out[i] = l
			continue
		}
		out[i] = l + "_" + strconv.Itoa(n)
	}
	return out
}

// Build converts the worksheets into placed Archivist tables.
func Build(ws *archivist.Worksheets, opts Options, in *model.Instrument) error {
	root := opts.Study
	if root == "" {
		root = "Questionnaire"
	}
	in.Study = model.Study{Title: root, Name: root, Label: root}

	top := &model.Sequence{Label: root}
	top.Place(model.ParentTypeNone, "", 1, 1)
	in.Sequences = append(in.Sequences, top)

	var nodes []*tree.Node

	for _, r := range ws.Sequences {
		s := &model.Sequence{Label: strings.TrimSpace(r.Label)}
		pos, err := start(model.KindSequence, s.Label, r.Start)
		if err != nil {
			return err
		}
		in.Sequences = append(in.Sequences, s)
		nodes = append(nodes, &tree.Node{
			Kind:      model.KindSequence,
			Label:     s.Label,
			Start:     pos,
			Placement: &s.Placement,
			Rename:    func(label string) { s.Label = label },
		})
	}

	labels := make([]string, len(ws.Questions))
	for i, r := range ws.Questions {
		l := text.ReplacePrefix(strings.TrimSpace(r.Label), model.PrefixQuestionConstruct, model.PrefixQuestionItem)
		labels[i] = text.EnsurePrefix(l, model.PrefixQuestionItem)
	}
	labels = numberDuplicates(labels)

	for i, r := range ws.Questions {
		q := &model.QuestionItem{
			Label:        labels[i],
			Literal:      strings.TrimSpace(r.Literal),
			Instructions: strings.TrimSpace(r.Instructions),
			Response:     strings.TrimSpace(r.ResponseDomain),
		}
		pos, err := start(model.KindQuestionItem, q.Label, r.Order)
		if err != nil {
			return err
		}
		if q.MinResponses, err = optional(model.KindQuestionItem, q.Label, "min", r.Min, 1); err != nil {
			return err
		}
		if q.MaxResponses, err = optional(model.KindQuestionItem, q.Label, "max", r.Max, 1); err != nil {
			return err
		}
		in.QuestionItems = append(in.QuestionItems, q)
		nodes = append(nodes, &tree.Node{Kind: model.KindQuestionItem, Label: q.Label, Start: pos, Placement: &q.Placement})
	}

	for _, r := range ws.Statements {
		s := &model.Statement{Label: strings.TrimSpace(r.Label), Literal: strings.TrimSpace(r.Literal)}
		pos, err := start(model.KindStatement, s.Label, r.Order)
		if err != nil {
			return err
		}
		in.Statements = append(in.Statements, s)
		nodes = append(nodes, &tree.Node{Kind: model.KindStatement, Label: s.Label, Start: pos, Placement: &s.Placement})
	}

	for _, r := range ws.Conditions {
		c := &model.Condition{
			Label:   strings.TrimSpace(r.Label),
			Literal: strings.TrimSpace(r.Literal),
			Logic:   strings.TrimSpace(r.Logic),
		}
		pos, err := start(model.KindCondition, c.Label, r.Start)
		if err != nil {
			return err
		}
		end, err := optional(model.KindCondition, c.Label, "end", r.End, 0)
		if err != nil {
			return err
		}
		branch, err := optional(model.KindCondition, c.Label, "branch", r.Branch, 0)
		if err != nil {
			return err
		}
		in.Conditions = append(in.Conditions, c)
		nodes = append(nodes, &tree.Node{Kind: model.KindCondition, Label: c.Label, Start: pos, End: end, Branch: branch, Placement: &c.Placement})
	}

	for _, r := range ws.Loops {
		l := &model.Loop{
			Label:      strings.TrimSpace(r.Label),
			Variable:   strings.TrimSpace(r.Variable),
			StartValue: strings.TrimSpace(r.StartValue),
			EndValue:   strings.TrimSpace(r.EndValue),
			LoopWhile:  strings.TrimSpace(r.LoopWhile),
		}
		pos, err := start(model.KindLoop, l.Label, r.Start)
		if err != nil {
			return err
		}
		end, err := optional(model.KindLoop, l.Label, "end", r.End, 0)
		if err != nil {
			return err
		}
		in.Loops = append(in.Loops, l)
		nodes = append(nodes, &tree.Node{Kind: model.KindLoop, Label: l.Label, Start: pos, End: end, Placement: &l.Placement})
	}

	for _, r := range ws.Responses {
		rd := &model.ResponseDomain{
			Label:   strings.TrimSpace(r.Label),
			Type:    model.ResponseType(strings.TrimSpace(r.Type)),
			Subtype: strings.TrimSpace(r.Type2),
			Format:  strings.TrimSpace(r.Format),
		}
		if rd.Type == "" {
			rd.Type = model.ResponseTypeNumeric
		}
		if strings.HasPrefix(rd.Label, "Range") {
			rd.Subtype = "Integer"
		}
		var ok bool
		if rd.Min, ok = integerText(r.Min); !ok {
			in.AddAnomaly(model.AnomalyCategoryResponse, rd.Label, fmt.Sprintf("minimum %q is not a number", r.Min))
		}
		if rd.Max, ok = integerText(r.Max); !ok {
			in.AddAnomaly(model.AnomalyCategoryResponse, rd.Label, fmt.Sprintf("maximum %q is not a number", r.Max))
		}
		in.Responses = append(in.Responses, rd)
	}

	in.Codes = append(in.Codes, codes(ws.Codes)...)

	anomalies, err := tree.Infer(root, nodes, tree.Options{Similarity: opts.Similarity})
	if err != nil {
		return fmt.Errorf("infer tree: %w", err)
	}
	in.Anomalies = append(in.Anomalies, anomalies...)

	if opts.ReuseCodes {
		mapping := codelist.Reuse(in)
		slog.Info("reused code lists", "lists", len(mapping), "changed", codelist.Changed(mapping))
	}

	return nil
}

// codes groups the codes by list, orders each list by number with unnumbered
// codes last in their sheet order, and then numbers them from one.
func codes(rows []*archivist.CodeSheetRow) []*model.Code {
	type numbered struct {
		row *archivist.CodeSheetRow
		n   int
		ok  bool
	}

	var labels []string
	byLabel := make(map[string][]numbered)
	for _, r := range rows {
		l := strings.TrimSpace(r.Label)
		if _, ok := byLabel[l]; !ok {
			labels = append(labels, l)
		}
		n, ok, err := number(r.Number)
		byLabel[l] = append(byLabel[l], numbered{row: r, n: n, ok: ok && err == nil})
	}

	for _, l := range labels {
		list := byLabel[l]
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].ok != list[j].ok {
				return list[i].ok
			}
			return list[i].ok && list[i].n < list[j].n
		})
	}

	var cs []*model.Code
	for _, l := range labels {
		for i, nr := range byLabel[l] {
			r := nr.row
			value, _ := integerText(r.Value)
			cs = append(cs, &model.Code{
				Label:    l,
				Order:    i + 1,
				Value:    value,
				Category: strings.TrimSpace(r.Category),
			})
		}
	}
	return cs
}
