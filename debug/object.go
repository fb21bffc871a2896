package debug

import (
	"fmt"
	"io"
	"strings"

	"github.com/iand/cctables/logging"
	"github.com/iand/cctables/model"
)

func ObjectTitle(obj any) string {
	if obj == nil {
		return "none"
	}
	switch tobj := obj.(type) {
	case *model.Sequence:
		if tobj == nil {
			return "<nil>"
		}
		return fmt.Sprintf("sequence %s [%s]", tobj.Label, PlacementTitle(tobj.Placement))
	case *model.Statement:
		if tobj == nil {
			return "<nil>"
		}
		return fmt.Sprintf("statement %s [%s]", tobj.Label, PlacementTitle(tobj.Placement))
	case *model.Condition:
		if tobj == nil {
			return "<nil>"
		}
		return fmt.Sprintf("condition %s [%s]", tobj.Label, PlacementTitle(tobj.Placement))
	case *model.Loop:
		if tobj == nil {
			return "<nil>"
		}
		return fmt.Sprintf("loop %s [%s]", tobj.Label, PlacementTitle(tobj.Placement))
	case *model.QuestionItem:
		if tobj == nil {
			return "<nil>"
		}
		return fmt.Sprintf("question %s [%s; r=%s]", tobj.Label, PlacementTitle(tobj.Placement), tobj.Response)
	case *model.QuestionGrid:
		if tobj == nil {
			return "<nil>"
		}
		return fmt.Sprintf("grid %s [%s; h=%s; v=%s]", tobj.Label, PlacementTitle(tobj.Placement), tobj.HorizontalCodeList, tobj.VerticalCodeList)
	case *model.ResponseDomain:
		if tobj == nil {
			return "<nil>"
		}
		return fmt.Sprintf("response %s [%s]", tobj.Label, tobj.Type)
	case []*model.Code:
		if len(tobj) == 0 {
			return "codelist <empty>"
		}
		return fmt.Sprintf("codelist %s [n=%d]", tobj[0].Label, len(tobj))
	case *model.Anomaly:
		return tobj.String()
	}

	return "unknown type"
}

func PlacementTitle(p model.Placement) string {
	if p.ParentType == model.ParentTypeNone {
		return "top"
	}
	return fmt.Sprintf("p=%s %s; b=%d; pos=%d", p.ParentType, p.ParentName, p.Branch, p.Position)
}

// Find returns the construct of the given kind with the given label.
func Find(in *model.Instrument, kind model.Kind, label string) (any, bool) {
	switch kind {
	case model.KindSequence:
		for _, s := range in.Sequences {
			if s.Label == label {
				return s, true
			}
		}
	case model.KindStatement:
		for _, s := range in.Statements {
			if s.Label == label {
				return s, true
			}
		}
	case model.KindCondition:
		for _, c := range in.Conditions {
			if c.Label == label {
				return c, true
			}
		}
	case model.KindLoop:
		for _, l := range in.Loops {
			if l.Label == label {
				return l, true
			}
		}
	case model.KindQuestionItem:
		for _, q := range in.QuestionItems {
			if q.Label == label {
				return q, true
			}
		}
	case model.KindQuestionGrid:
		for _, q := range in.QuestionGrids {
			if q.Label == label {
				return q, true
			}
		}
	case model.KindResponse:
		for _, r := range in.Responses {
			if r.Label == label {
				return r, true
			}
		}
	case model.KindCodeList:
		if codes := in.CodeList(label); len(codes) > 0 {
			return codes, true
		}
	}
	return nil, false
}

// Inspect writes the internal structure of the construct named by what, which
// has the form kind/label, followed by the title of each of its children.
func Inspect(in *model.Instrument, what string, w io.Writer) error {
	kindName, label, ok := strings.Cut(what, "/")
	if !ok || label == "" {
		return fmt.Errorf("inspect value should be of the form kind/label")
	}
	kind, err := model.ParseKind(kindName)
	if err != nil {
		return err
	}

	obj, ok := Find(in, kind, label)
	if !ok {
		return fmt.Errorf("no %s found with label %q", kind, label)
	}

	fmt.Fprintln(w, ObjectTitle(obj))
	fmt.Fprintln(w, logging.Sdump(obj))

	if !kind.IsParent() {
		return nil
	}

	var children []model.LabelledPlacement
	for _, p := range in.Placements() {
		if p.ParentName == label && p.ParentType == kind.ParentType() {
			children = append(children, p)
		}
	}
	if len(children) == 0 {
		fmt.Fprintln(w, "CHILDREN: none")
		return nil
	}
	fmt.Fprintln(w, "CHILDREN:")
	for _, c := range children {
		fmt.Fprintf(w, " - %s %s [b=%d; pos=%d]\n", c.Kind, c.Label, c.Branch, c.Position)
	}
	return nil
}
