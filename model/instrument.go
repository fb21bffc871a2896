package model

import (
	"sort"
)

// Label prefixes used by Archivist for each kind of construct.
const (
	PrefixQuestionItem      = "qi_"
	PrefixQuestionGrid      = "qg_"
	PrefixQuestionConstruct = "qc_"
	PrefixCondition         = "c_q"
	PrefixLoop              = "l_q"
	PrefixStatement         = "s_q"
	PrefixCodeList          = "cs_"
)

type ParentType string

const (
	ParentTypeNone      ParentType = ""
	ParentTypeSequence  ParentType = "CcSequence"
	ParentTypeCondition ParentType = "CcCondition"
	ParentTypeLoop      ParentType = "CcLoop"
)

func (p ParentType) String() string {
	return string(p)
}

// Placement locates a construct within its parent. Branch is 0 for the then
// branch of a condition and 1 for the else branch; constructs placed in
// sequences and loops always use branch 1.
type Placement struct {
	ParentType ParentType
	ParentName string
	Branch     int
	Position   int
}

func (p *Placement) Place(parentType ParentType, parentName string, branch int, position int) {
	p.ParentType = parentType
	p.ParentName = parentName
	p.Branch = branch
	p.Position = position
}

type Study struct {
	Agency string
	Title  string
	Name   string
	Label  string
}

type Sequence struct {
	Label string
	Placement
}

type Statement struct {
	Label   string
	Literal string
	Placement
}

type Condition struct {
	Label   string
	Literal string
	Logic   string
	Placement
}

type Loop struct {
	Label      string
	LoopWhile  string
	StartValue string
	EndValue   string
	Variable   string
	Placement
}

type QuestionItem struct {
	Label        string
	Literal      string
	Instructions string
	Response     string // label of a response domain or code list
	MinResponses int
	MaxResponses int
	Placement
}

type QuestionGrid struct {
	Label              string
	Literal            string
	Instructions       string
	HorizontalCodeList string
	VerticalCodeList   string
	Placement
}

type ResponseType string

const (
	ResponseTypeText    ResponseType = "Text"
	ResponseTypeNumeric ResponseType = "Numeric"
	ResponseTypeDate    ResponseType = "Date"
)

// ResponseDomain describes a non-coded answer. Min and Max are kept as text since
// they are copied verbatim from the source and may be absent.
type ResponseDomain struct {
	Label   string
	Type    ResponseType
	Subtype string // numeric type code or date type code
	Format  string
	Min     string
	Max     string
}

// Key identifies the shape of the domain independent of its label.
func (r *ResponseDomain) Key() string {
	return string(r.Type) + "\x1f" + r.Subtype + "\x1f" + r.Format + "\x1f" + r.Min + "\x1f" + r.Max
}

type Code struct {
	Label    string // the code list label
	Order    int
	Value    string
	Category string
}

// Instrument is the complete set of Archivist tables for one questionnaire.
type Instrument struct {
	Study         Study
	Sequences     []*Sequence
	Statements    []*Statement
	Conditions    []*Condition
	Loops         []*Loop
	QuestionItems []*QuestionItem
	QuestionGrids []*QuestionGrid
	Responses     []*ResponseDomain
	Codes         []*Code
	Anomalies     []*Anomaly
}

func (in *Instrument) AddAnomaly(cat AnomalyCategory, label string, text string) {
	in.Anomalies = append(in.Anomalies, &Anomaly{
		Category: cat,
		Label:    label,
		Text:     text,
	})
}

// CodeList returns the codes belonging to the code list with the given label in
// code order.
func (in *Instrument) CodeList(label string) []*Code {
	var codes []*Code
	for _, c := range in.Codes {
		if c.Label == label {
			codes = append(codes, c)
		}
	}
	sort.SliceStable(codes, func(i, j int) bool { return codes[i].Order < codes[j].Order })
	return codes
}

// CodeListLabels returns the distinct code list labels in order of first appearance.
func (in *Instrument) CodeListLabels() []string {
	seen := make(map[string]bool)
	var labels []string
	for _, c := range in.Codes {
		if seen[c.Label] {
			continue
		}
		seen[c.Label] = true
		labels = append(labels, c.Label)
	}
	return labels
}

// Constructs returns every construct that may act as a parent, keyed by label.
func (in *Instrument) Constructs() map[string]ParentType {
	cs := make(map[string]ParentType, len(in.Sequences)+len(in.Conditions)+len(in.Loops))
	for _, s := range in.Sequences {
		cs[s.Label] = ParentTypeSequence
	}
	for _, c := range in.Conditions {
		cs[c.Label] = ParentTypeCondition
	}
	for _, l := range in.Loops {
		cs[l.Label] = ParentTypeLoop
	}
	return cs
}

// Placements returns the placement of every placed construct keyed by its label
// in table order: sequences, statements, conditions, loops, question items and
// question grids.
func (in *Instrument) Placements() []LabelledPlacement {
	var ps []LabelledPlacement
	for _, s := range in.Sequences {
		ps = append(ps, LabelledPlacement{Kind: KindSequence, Label: s.Label, Placement: &s.Placement})
	}
	for _, s := range in.Statements {
		ps = append(ps, LabelledPlacement{Kind: KindStatement, Label: s.Label, Placement: &s.Placement})
	}
	for _, c := range in.Conditions {
		ps = append(ps, LabelledPlacement{Kind: KindCondition, Label: c.Label, Placement: &c.Placement})
	}
	for _, l := range in.Loops {
		ps = append(ps, LabelledPlacement{Kind: KindLoop, Label: l.Label, Placement: &l.Placement})
	}
	for _, q := range in.QuestionItems {
		ps = append(ps, LabelledPlacement{Kind: KindQuestionItem, Label: q.Label, Placement: &q.Placement})
	}
	for _, q := range in.QuestionGrids {
		ps = append(ps, LabelledPlacement{Kind: KindQuestionGrid, Label: q.Label, Placement: &q.Placement})
	}
	return ps
}

type LabelledPlacement struct {
	Kind  Kind
	Label string
	*Placement
}

// RenameParent changes every reference to the parent construct old so that it
// refers to new.
func (in *Instrument) RenameParent(old, new string) {
	if old == new {
		return
	}
	for _, p := range in.Placements() {
		if p.ParentName == old {
			p.ParentName = new
		}
	}
}

// RenameCodeList changes the label of a code list and every reference to it.
func (in *Instrument) RenameCodeList(old, new string) {
	if old == new {
		return
	}
	for _, c := range in.Codes {
		if c.Label == old {
			c.Label = new
		}
	}
	in.RemapResponses(map[string]string{old: new})
}

// RemapResponses replaces response and grid code list references using the
// supplied mapping. Labels not present in the mapping are left alone.
func (in *Instrument) RemapResponses(m map[string]string) {
	for _, q := range in.QuestionItems {
		if n, ok := m[q.Response]; ok {
			q.Response = n
		}
	}
	for _, g := range in.QuestionGrids {
		if n, ok := m[g.HorizontalCodeList]; ok {
			g.HorizontalCodeList = n
		}
		if n, ok := m[g.VerticalCodeList]; ok {
			g.VerticalCodeList = n
		}
	}
}

// Rename changes the label of the construct of the given kind and cascades the
// change to every reference. It reports whether a construct was found.
func (in *Instrument) Rename(kind Kind, old, new string) bool {
	found := false
	switch kind {
	case KindSequence:
		for _, s := range in.Sequences {
			if s.Label == old {
				s.Label = new
				found = true
			}
		}
	case KindStatement:
		for _, s := range in.Statements {
			if s.Label == old {
				s.Label = new
				found = true
			}
		}
	case KindCondition:
		for _, c := range in.Conditions {
			if c.Label == old {
				c.Label = new
				found = true
			}
		}
	case KindLoop:
		for _, l := range in.Loops {
			if l.Label == old {
				l.Label = new
				found = true
			}
		}
	case KindQuestionItem:
		for _, q := range in.QuestionItems {
			if q.Label == old {
				q.Label = new
				found = true
			}
		}
	case KindQuestionGrid:
		for _, q := range in.QuestionGrids {
			if q.Label == old {
				q.Label = new
				found = true
			}
		}
	case KindResponse:
		for _, r := range in.Responses {
			if r.Label == old {
				r.Label = new
				found = true
			}
		}
		if found {
			in.RemapResponses(map[string]string{old: new})
		}
		return found
	case KindCodeList:
		for _, c := range in.Codes {
			if c.Label == old {
				found = true
				break
			}
		}
		if found {
			in.RenameCodeList(old, new)
		}
		return found
	}

	if found && kind.IsParent() {
		in.RenameParent(old, new)
	}
	return found
}
