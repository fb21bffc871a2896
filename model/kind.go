package model

import "fmt"

type Kind int

const (
	KindUnknown Kind = iota
	KindSequence
	KindStatement
	KindCondition
	KindLoop
	KindQuestionItem
	KindQuestionGrid
	KindResponse
	KindCodeList
)

var kindNames = map[Kind]string{
	KindSequence:     "sequence",
	KindStatement:    "statement",
	KindCondition:    "condition",
	KindLoop:         "loop",
	KindQuestionItem: "question",
	KindQuestionGrid: "grid",
	KindResponse:     "response",
	KindCodeList:     "codelist",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// IsParent reports whether constructs of this kind can contain other constructs.
func (k Kind) IsParent() bool {
	return k == KindSequence || k == KindCondition || k == KindLoop
}

// IsQuestion reports whether the kind is a question item or grid.
func (k Kind) IsQuestion() bool {
	return k == KindQuestionItem || k == KindQuestionGrid
}

// ParentType returns the Archivist parent type for a construct of this kind.
func (k Kind) ParentType() ParentType {
	switch k {
	case KindSequence:
		return ParentTypeSequence
	case KindCondition:
		return ParentTypeCondition
	case KindLoop:
		return ParentTypeLoop
	default:
		return ParentTypeNone
	}
}

func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown construct kind: %q", s)
}
