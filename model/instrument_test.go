package model

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testInstrument() *Instrument {
	return &Instrument{
		Sequences: []*Sequence{
			{Label: "Top", Placement: Placement{Branch: 1, Position: 1}},
			{Label: "Health", Placement: Placement{ParentType: ParentTypeSequence, ParentName: "Top", Branch: 1, Position: 1}},
		},
		Conditions: []*Condition{
			{Label: "c_qage", Placement: Placement{ParentType: ParentTypeSequence, ParentName: "Health", Branch: 1, Position: 1}},
		},
		Loops: []*Loop{
			{Label: "l_qperson", Placement: Placement{ParentType: ParentTypeCondition, ParentName: "c_qage", Branch: 0, Position: 1}},
		},
		QuestionItems: []*QuestionItem{
			{Label: "qi_age", Response: "Generic number", Placement: Placement{ParentType: ParentTypeCondition, ParentName: "c_qage", Branch: 1, Position: 1}},
			{Label: "qi_job", Response: "cs_job", Placement: Placement{ParentType: ParentTypeLoop, ParentName: "l_qperson", Branch: 1, Position: 1}},
		},
		QuestionGrids: []*QuestionGrid{
			{Label: "qg_sport", HorizontalCodeList: "cs_job", VerticalCodeList: "cs_sport", Placement: Placement{ParentType: ParentTypeSequence, ParentName: "Health", Branch: 1, Position: 2}},
		},
		Responses: []*ResponseDomain{
			{Label: "Generic number", Type: ResponseTypeNumeric},
		},
		Codes: []*Code{
			{Label: "cs_job", Order: 1, Value: "1", Category: "Employed"},
			{Label: "cs_sport", Order: 1, Value: "1", Category: "Football"},
		},
	}
}

func parents(in *Instrument) map[string]string {
	m := make(map[string]string)
	for _, p := range in.Placements() {
		m[p.Label] = p.ParentName
	}
	return m
}

func TestRename(t *testing.T) {
	testCases := []struct {
		name        string
		kind        Kind
		old, new    string
		found       bool
		wantParents map[string]string
		check       func(t *testing.T, in *Instrument)
	}{
		{
			name:  "sequence",
			kind:  KindSequence,
			old:   "Health",
			new:   "Wellbeing",
			found: true,
			wantParents: map[string]string{
				"Top": "", "Wellbeing": "Top", "c_qage": "Wellbeing", "l_qperson": "c_qage",
				"qi_age": "c_qage", "qi_job": "l_qperson", "qg_sport": "Wellbeing",
			},
		},
		{
			name:  "condition",
			kind:  KindCondition,
			old:   "c_qage",
			new:   "c_qage_i",
			found: true,
			wantParents: map[string]string{
				"Top": "", "Health": "Top", "c_qage_i": "Health", "l_qperson": "c_qage_i",
				"qi_age": "c_qage_i", "qi_job": "l_qperson", "qg_sport": "Health",
			},
		},
		{
			name:  "question",
			kind:  KindQuestionItem,
			old:   "qi_job",
			new:   "qi_work",
			found: true,
			wantParents: map[string]string{
				"Top": "", "Health": "Top", "c_qage": "Health", "l_qperson": "c_qage",
				"qi_age": "c_qage", "qi_work": "l_qperson", "qg_sport": "Health",
			},
		},
		{
			name:  "code list",
			kind:  KindCodeList,
			old:   "cs_job",
			new:   "cs_work",
			found: true,
			check: func(t *testing.T, in *Instrument) {
				if got := in.QuestionItems[1].Response; got != "cs_work" {
					t.Errorf("got response %q, want cs_work", got)
				}
				if got := in.QuestionGrids[0].HorizontalCodeList; got != "cs_work" {
					t.Errorf("got horizontal code list %q, want cs_work", got)
				}
				if diff := cmp.Diff([]string{"cs_work", "cs_sport"}, in.CodeListLabels()); diff != "" {
					t.Errorf("code list labels mismatch (-want +got):\n%s", diff)
				}
			},
		},
		{
			name:  "response",
			kind:  KindResponse,
			old:   "Generic number",
			new:   "Age in years",
			found: true,
			check: func(t *testing.T, in *Instrument) {
				if got := in.QuestionItems[0].Response; got != "Age in years" {
					t.Errorf("got response %q, want Age in years", got)
				}
			},
		},
		{
			name:  "missing",
			kind:  KindLoop,
			old:   "l_qhousehold",
			new:   "l_qhome",
			found: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			in := testInstrument()
			if got := in.Rename(tc.kind, tc.old, tc.new); got != tc.found {
				t.Errorf("Rename() = %v, want %v", got, tc.found)
			}
			if tc.wantParents != nil {
				if diff := cmp.Diff(tc.wantParents, parents(in)); diff != "" {
					t.Errorf("parents mismatch (-want +got):\n%s", diff)
				}
			}
			if tc.check != nil {
				tc.check(t, in)
			}
		})
	}
}
