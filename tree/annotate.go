package tree

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/iand/cctables/model"
)

// Annotations are manual corrections to constructs, keyed by construct kind and
// label. They replace the per-document fixes that would otherwise be written
// into a converter.
type Annotations struct {
	byKind map[model.Kind]map[string]map[string]string
}

func (a *Annotations) Add(kind model.Kind, label string, field string, value string) error {
	field = strings.ToLower(field)
	if !supportedField(kind, field) {
		return fmt.Errorf("unsupported correction field for %s: %s", kind, field)
	}

	if a.byKind == nil {
		a.byKind = make(map[model.Kind]map[string]map[string]string)
	}
	labels, ok := a.byKind[kind]
	if !ok {
		labels = make(map[string]map[string]string)
		a.byKind[kind] = labels
	}
	m, ok := labels[label]
	if !ok {
		m = make(map[string]string)
		labels[label] = m
	}
	m[field] = value
	return nil
}

// Len returns the number of corrected constructs.
func (a *Annotations) Len() int {
	n := 0
	for _, labels := range a.byKind {
		n += len(labels)
	}
	return n
}

// Apply makes the corrections to the instrument. Relabelling is applied last and
// cascades to every reference. A correction for a construct that does not exist
// is recorded as an anomaly.
func (a *Annotations) Apply(in *model.Instrument) error {
	kinds := make([]model.Kind, 0, len(a.byKind))
	for k := range a.byKind {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	for _, kind := range kinds {
		labels := a.byKind[kind]
		keys := make([]string, 0, len(labels))
		for l := range labels {
			keys = append(keys, l)
		}
		sort.Strings(keys)

		for _, label := range keys {
			fvs := labels[label]
			found, err := applyFields(in, kind, label, fvs)
			if err != nil {
				return fmt.Errorf("%s %q: %w", kind, label, err)
			}
			if !found {
				in.AddAnomaly(model.AnomalyCategoryCorrection, label, fmt.Sprintf("no %s with this label to correct", kind))
				continue
			}
			if nl, ok := fvs["label"]; ok {
				in.Rename(kind, label, nl)
			}
			slog.Debug("applied corrections", "kind", kind.String(), "label", label, "fields", len(fvs))
		}
	}
	return nil
}

func applyFields(in *model.Instrument, kind model.Kind, label string, fvs map[string]string) (bool, error) {
	found := false
	apply := func(p *model.Placement, set func(f, v string) (bool, error)) error {
		found = true
		for f, v := range fvs {
			if f == "label" {
				continue
			}
			ok, err := set(f, v)
			if err != nil {
				return fmt.Errorf("%s: %w", f, err)
			}
			if ok {
				continue
			}
			if p == nil {
				return fmt.Errorf("unsupported field %s", f)
			}
			if fn, ok := placementOverrides[f]; ok {
				if err := fn(p, v); err != nil {
					return fmt.Errorf("%s: %w", f, err)
				}
			}
		}
		return nil
	}

	var err error
	switch kind {
	case model.KindSequence:
		for _, s := range in.Sequences {
			if s.Label == label {
				err = errors.Join(err, apply(&s.Placement, noFields))
			}
		}
	case model.KindStatement:
		for _, s := range in.Statements {
			if s.Label == label {
				err = errors.Join(err, apply(&s.Placement, setter(s, statementOverrides)))
			}
		}
	case model.KindCondition:
		for _, c := range in.Conditions {
			if c.Label == label {
				err = errors.Join(err, apply(&c.Placement, setter(c, conditionOverrides)))
			}
		}
	case model.KindLoop:
		for _, l := range in.Loops {
			if l.Label == label {
				err = errors.Join(err, apply(&l.Placement, setter(l, loopOverrides)))
			}
		}
	case model.KindQuestionItem:
		for _, q := range in.QuestionItems {
			if q.Label == label {
				err = errors.Join(err, apply(&q.Placement, setter(q, questionOverrides)))
			}
		}
	case model.KindQuestionGrid:
		for _, q := range in.QuestionGrids {
			if q.Label == label {
				err = errors.Join(err, apply(&q.Placement, setter(q, gridOverrides)))
			}
		}
	case model.KindResponse:
		for _, r := range in.Responses {
			if r.Label == label {
				err = errors.Join(err, apply(nil, setter(r, responseOverrides)))
			}
		}
	case model.KindCodeList:
		for _, c := range in.Codes {
			if c.Label == label {
				found = true
				break
			}
		}
	default:
		return false, fmt.Errorf("unsupported correction kind: %s", kind)
	}
	return found, err
}

func noFields(string, string) (bool, error) { return false, nil }

func setter[T any](v *T, overrides map[string]func(*T, string) error) func(f, value string) (bool, error) {
	return func(f, value string) (bool, error) {
		fn, ok := overrides[f]
		if !ok {
			return false, nil
		}
		return true, fn(v, value)
	}
}

func supportedField(kind model.Kind, field string) bool {
	if kind == model.KindUnknown {
		return false
	}
	if field == "label" {
		return true
	}
	if kind != model.KindResponse && kind != model.KindCodeList {
		if _, ok := placementOverrides[field]; ok {
			return true
		}
	}
	var ok bool
	switch kind {
	case model.KindSequence:
	case model.KindStatement:
		_, ok = statementOverrides[field]
	case model.KindCondition:
		_, ok = conditionOverrides[field]
	case model.KindLoop:
		_, ok = loopOverrides[field]
	case model.KindQuestionItem:
		_, ok = questionOverrides[field]
	case model.KindQuestionGrid:
		_, ok = gridOverrides[field]
	case model.KindResponse:
		_, ok = responseOverrides[field]
	}
	return ok
}

// all possible placement overrides, shared by every placed construct
var placementOverrides = map[string]func(p *model.Placement, v string) error{
	"parent": func(p *model.Placement, v string) error { p.ParentName = v; return nil },
	"parenttype": func(p *model.Placement, v string) error {
		switch pt := model.ParentType(v); pt {
		case model.ParentTypeSequence, model.ParentTypeCondition, model.ParentTypeLoop:
			p.ParentType = pt
			return nil
		default:
			return fmt.Errorf("unknown parent type %q", v)
		}
	},
	"branch":   func(p *model.Placement, v string) error { return atoi(&p.Branch, v) },
	"position": func(p *model.Placement, v string) error { return atoi(&p.Position, v) },
}

var statementOverrides = map[string]func(s *model.Statement, v string) error{
	"literal": func(s *model.Statement, v string) error { s.Literal = v; return nil },
}

var conditionOverrides = map[string]func(c *model.Condition, v string) error{
	"literal": func(c *model.Condition, v string) error { c.Literal = v; return nil },
	"logic":   func(c *model.Condition, v string) error { c.Logic = v; return nil },
}

var loopOverrides = map[string]func(l *model.Loop, v string) error{
	"loopwhile":  func(l *model.Loop, v string) error { l.LoopWhile = v; return nil },
	"startvalue": func(l *model.Loop, v string) error { l.StartValue = v; return nil },
	"endvalue":   func(l *model.Loop, v string) error { l.EndValue = v; return nil },
	"variable":   func(l *model.Loop, v string) error { l.Variable = v; return nil },
}

var questionOverrides = map[string]func(q *model.QuestionItem, v string) error{
	"literal":      func(q *model.QuestionItem, v string) error { q.Literal = v; return nil },
	"instructions": func(q *model.QuestionItem, v string) error { q.Instructions = v; return nil },
	"response":     func(q *model.QuestionItem, v string) error { q.Response = v; return nil },
	"minresponses": func(q *model.QuestionItem, v string) error { return atoi(&q.MinResponses, v) },
	"maxresponses": func(q *model.QuestionItem, v string) error { return atoi(&q.MaxResponses, v) },
}

var gridOverrides = map[string]func(q *model.QuestionGrid, v string) error{
	"literal":      func(q *model.QuestionGrid, v string) error { q.Literal = v; return nil },
	"instructions": func(q *model.QuestionGrid, v string) error { q.Instructions = v; return nil },
	"horizontal":   func(q *model.QuestionGrid, v string) error { q.HorizontalCodeList = v; return nil },
	"vertical":     func(q *model.QuestionGrid, v string) error { q.VerticalCodeList = v; return nil },
}

var responseOverrides = map[string]func(r *model.ResponseDomain, v string) error{
	"type": func(r *model.ResponseDomain, v string) error {
		switch rt := model.ResponseType(v); rt {
		case model.ResponseTypeText, model.ResponseTypeNumeric, model.ResponseTypeDate:
			r.Type = rt
			return nil
		default:
			return fmt.Errorf("unknown response type %q", v)
		}
	},
	"subtype": func(r *model.ResponseDomain, v string) error { r.Subtype = v; return nil },
	"format":  func(r *model.ResponseDomain, v string) error { r.Format = v; return nil },
	"min":     func(r *model.ResponseDomain, v string) error { r.Min = v; return nil },
	"max":     func(r *model.ResponseDomain, v string) error { r.Max = v; return nil },
}

func atoi(dst *int, v string) error {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

var jsonKinds = []struct {
	key  string
	kind model.Kind
}{
	{"sequences", model.KindSequence},
	{"statements", model.KindStatement},
	{"conditions", model.KindCondition},
	{"loops", model.KindLoop},
	{"questions", model.KindQuestionItem},
	{"grids", model.KindQuestionGrid},
	{"responses", model.KindResponse},
	{"codelists", model.KindCodeList},
}

type ConstructCorrectionsJSON struct {
	Label       string           `json:"label,omitempty"`
	Corrections []CorrectionJSON `json:"corrections,omitempty"`
}

type CorrectionJSON struct {
	Field string `json:"field,omitempty"`
	Value string `json:"value"`
}

func (a *Annotations) UnmarshalJSON(data []byte) error {
	d := json.NewDecoder(bytes.NewReader(data))

	var aj map[string][]ConstructCorrectionsJSON
	if err := d.Decode(&aj); err != nil {
		return err
	}

	known := make(map[string]model.Kind, len(jsonKinds))
	for _, jk := range jsonKinds {
		known[jk.key] = jk.kind
	}

	for key, ccs := range aj {
		kind, ok := known[key]
		if !ok {
			return fmt.Errorf("unsupported correction kind: %s", key)
		}
		for _, cc := range ccs {
			for _, c := range cc.Corrections {
				if err := a.Add(kind, cc.Label, c.Field, c.Value); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (a *Annotations) MarshalJSON() ([]byte, error) {
	aj := make(map[string][]ConstructCorrectionsJSON)
	for _, jk := range jsonKinds {
		labels := a.byKind[jk.kind]
		if len(labels) == 0 {
			continue
		}
		ccs := make([]ConstructCorrectionsJSON, 0, len(labels))
		for label, fvs := range labels {
			cc := ConstructCorrectionsJSON{Label: label}
			for f, v := range fvs {
				cc.Corrections = append(cc.Corrections, CorrectionJSON{Field: f, Value: v})
			}
			sort.Slice(cc.Corrections, func(i, j int) bool { return cc.Corrections[i].Field < cc.Corrections[j].Field })
			ccs = append(ccs, cc)
		}
		sort.Slice(ccs, func(i, j int) bool { return ccs[i].Label < ccs[j].Label })
		aj[jk.key] = ccs
	}
	return json.Marshal(aj)
}

func LoadAnnotations(filename string) (*Annotations, error) {
	var a Annotations
	if filename == "" {
		return &a, nil
	}

	slog.Info("reading corrections", "filename", filename)
	f, err := os.Open(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &a, nil
		}
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	d := json.NewDecoder(f)
	if err := d.Decode(&a); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	return &a, nil
}

func SaveAnnotations(filename string, a *Annotations) error {
	if filename == "" {
		return nil
	}

	slog.Info("writing corrections", "filename", filename)
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("create path: %w", err)
	}
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	d := json.NewEncoder(f)
	d.SetIndent("", "  ")
	if err := d.Encode(a); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	return nil
}
