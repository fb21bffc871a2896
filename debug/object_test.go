package debug

import (
	"bytes"
	"strings"
	"testing"

	"github.com/iand/cctables/model"
)

func testInstrument() *model.Instrument {
	return &model.Instrument{
		Sequences: []*model.Sequence{
			{Label: "Main", Placement: model.Placement{}},
		},
		Conditions: []*model.Condition{
			{Label: "c_qage", Logic: "qc_age > 16", Placement: model.Placement{ParentType: model.ParentTypeSequence, ParentName: "Main", Branch: 1, Position: 2}},
		},
		QuestionItems: []*model.QuestionItem{
			{Label: "qi_age", Response: "Generic number", Placement: model.Placement{ParentType: model.ParentTypeSequence, ParentName: "Main", Branch: 1, Position: 1}},
			{Label: "qi_job", Response: "cs_job", Placement: model.Placement{ParentType: model.ParentTypeCondition, ParentName: "c_qage", Branch: 0, Position: 1}},
		},
		Codes: []*model.Code{
			{Label: "cs_job", Order: 1, Value: "1", Category: "Yes"},
			{Label: "cs_job", Order: 2, Value: "2", Category: "No"},
		},
	}
}

func TestInspect(t *testing.T) {
	testCases := []struct {
		what      string
		wantLines []string
	}{
		{
			what: "sequence/Main",
			wantLines: []string{
				"sequence Main [top]",
				"CHILDREN:",
				" - condition c_qage [b=1; pos=2]",
				" - question qi_age [b=1; pos=1]",
			},
		},
		{
			what: "condition/c_qage",
			wantLines: []string{
				"condition c_qage [p=CcSequence Main; b=1; pos=2]",
				" - question qi_job [b=0; pos=1]",
			},
		},
		{
			what: "question/qi_job",
			wantLines: []string{
				"question qi_job [p=CcCondition c_qage; b=0; pos=1; r=cs_job]",
			},
		},
		{
			what: "codelist/cs_job",
			wantLines: []string{
				"codelist cs_job [n=2]",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.what, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Inspect(testInstrument(), tc.what, &buf); err != nil {
				t.Fatalf("Inspect: unexpected error: %v", err)
			}
			lines := strings.Split(buf.String(), "\n")
			for _, want := range tc.wantLines {
				found := false
				for _, l := range lines {
					if l == want {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("output missing line %q\noutput:\n%s", want, buf.String())
				}
			}
		})
	}
}

func TestInspectErrors(t *testing.T) {
	testCases := []string{
		"Main",
		"sequence/",
		"person/Main",
		"loop/l_qmissing",
	}

	for _, what := range testCases {
		t.Run(what, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Inspect(testInstrument(), what, &buf); err == nil {
				t.Errorf("Inspect(%q): expected error, got none", what)
			}
		})
	}
}
