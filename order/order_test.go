package order

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/iand/cctables/archivist"
	"github.com/iand/cctables/model"
)

func place(pt model.ParentType, name string, branch, pos int) model.Placement {
	return model.Placement{ParentType: pt, ParentName: name, Branch: branch, Position: pos}
}

func testWorksheets() *archivist.Worksheets {
	return &archivist.Worksheets{
		Sequences: []*archivist.SequenceSheetRow{
			{Label: "Household", Start: "1"},
			{Label: "Work", Start: "10.0"},
		},
		Questions: []*archivist.QuestionSheetRow{
			{Order: "2", Label: "qc_age", Literal: "Age?", ResponseDomain: " Generic number "},
			{Order: "4", Label: "qc_job1", Literal: "Job 1?", ResponseDomain: "cs_job", Min: "1", Max: "2.0"},
			{Order: "5", Label: "qc_job2", Literal: "Job 2?", ResponseDomain: "cs_job"},
			{Order: "7", Label: "qc_age", Literal: "Age again?", ResponseDomain: "Generic number"},
			{Order: "11", Label: "qi_hours", Literal: "Hours?", ResponseDomain: "Generic number"},
			{Order: "13", Label: "qc_name", Literal: "Name?", ResponseDomain: "Generic text"},
		},
		Statements: []*archivist.StatementSheetRow{
			{Order: "6", Label: "s_qthanks", Literal: "Thanks"},
		},
		Conditions: []*archivist.ConditionSheetRow{
			{Start: "3", Label: "c_qage", Literal: "If adult", Logic: "qc_age > 16"},
		},
		Loops: []*archivist.LoopSheetRow{
			{Start: "12", End: "14", Label: "l_qperson", Variable: "person", StartValue: "1", EndValue: "10"},
		},
		Codes: []*archivist.CodeSheetRow{
			{Number: "2", Label: "cs_job", Value: "2.0", Category: "No"},
			{Number: "1", Label: "cs_job", Value: "1", Category: "Yes"},
		},
		Responses: []*archivist.ResponseRow{
			{Label: "Generic number", Type: "Numeric", Type2: "Integer", Min: "0.0", Max: "120"},
			{Label: "Generic text", Type: "Text"},
		},
	}
}

func TestBuild(t *testing.T) {
	in := new(model.Instrument)
	if err := Build(testWorksheets(), Options{Study: "NCDS 2004"}, in); err != nil {
		t.Fatalf("Build: unexpected error: %v", err)
	}

	wantSequences := []*model.Sequence{
		{Label: "NCDS 2004", Placement: place(model.ParentTypeNone, "", 1, 1)},
		{Label: "Household", Placement: place(model.ParentTypeSequence, "NCDS 2004", 1, 1)},
		{Label: "Work", Placement: place(model.ParentTypeSequence, "NCDS 2004", 1, 2)},
	}
	if diff := cmp.Diff(wantSequences, in.Sequences); diff != "" {
		t.Errorf("sequences mismatch (-want +got):\n%s", diff)
	}

	wantItems := []*model.QuestionItem{
		{Label: "qi_age", Literal: "Age?", Response: "Generic number", MinResponses: 1, MaxResponses: 1, Placement: place(model.ParentTypeSequence, "Household", 1, 1)},
		{Label: "qi_job1", Literal: "Job 1?", Response: "cs_job", MinResponses: 1, MaxResponses: 2, Placement: place(model.ParentTypeCondition, "c_qage", 0, 1)},
		{Label: "qi_job2", Literal: "Job 2?", Response: "cs_job", MinResponses: 1, MaxResponses: 1, Placement: place(model.ParentTypeCondition, "c_qage", 0, 2)},
		{Label: "qi_age_1", Literal: "Age again?", Response: "Generic number", MinResponses: 1, MaxResponses: 1, Placement: place(model.ParentTypeSequence, "Household", 1, 4)},
		{Label: "qi_hours", Literal: "Hours?", Response: "Generic number", MinResponses: 1, MaxResponses: 1, Placement: place(model.ParentTypeSequence, "Work", 1, 1)},
		{Label: "qi_name", Literal: "Name?", Response: "Generic text", MinResponses: 1, MaxResponses: 1, Placement: place(model.ParentTypeLoop, "l_qperson", 1, 1)},
	}
	if diff := cmp.Diff(wantItems, in.QuestionItems); diff != "" {
		t.Errorf("question items mismatch (-want +got):\n%s", diff)
	}

	wantStatements := []*model.Statement{
		{Label: "s_qthanks", Literal: "Thanks", Placement: place(model.ParentTypeSequence, "Household", 1, 3)},
	}
	if diff := cmp.Diff(wantStatements, in.Statements); diff != "" {
		t.Errorf("statements mismatch (-want +got):\n%s", diff)
	}

	wantConditions := []*model.Condition{
		{Label: "c_qage", Literal: "If adult", Logic: "qc_age > 16", Placement: place(model.ParentTypeSequence, "Household", 1, 2)},
	}
	if diff := cmp.Diff(wantConditions, in.Conditions); diff != "" {
		t.Errorf("conditions mismatch (-want +got):\n%s", diff)
	}

	wantLoops := []*model.Loop{
		{Label: "l_qperson", Variable: "person", StartValue: "1", EndValue: "10", Placement: place(model.ParentTypeSequence, "Work", 1, 2)},
	}
	if diff := cmp.Diff(wantLoops, in.Loops); diff != "" {
		t.Errorf("loops mismatch (-want +got):\n%s", diff)
	}

	wantResponses := []*model.ResponseDomain{
		{Label: "Generic number", Type: model.ResponseTypeNumeric, Subtype: "Integer", Min: "0", Max: "120"},
		{Label: "Generic text", Type: model.ResponseTypeText},
	}
	if diff := cmp.Diff(wantResponses, in.Responses); diff != "" {
		t.Errorf("responses mismatch (-want +got):\n%s", diff)
	}

	wantCodes := []*model.Code{
		{Label: "cs_job", Order: 1, Value: "1", Category: "Yes"},
		{Label: "cs_job", Order: 2, Value: "2", Category: "No"},
	}
	if diff := cmp.Diff(wantCodes, in.Codes); diff != "" {
		t.Errorf("codes mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildReuseCodes(t *testing.T) {
	ws := &archivist.Worksheets{
		Questions: []*archivist.QuestionSheetRow{
			{Order: "1", Label: "qc_a", Literal: "A?", ResponseDomain: "cs_a"},
			{Order: "2", Label: "qc_b", Literal: "B?", ResponseDomain: "cs_b"},
		},
		Codes: []*archivist.CodeSheetRow{
			{Label: "cs_a", Value: "1", Category: "Yes"},
			{Label: "cs_a", Value: "2", Category: "No"},
			{Label: "cs_b", Value: "1", Category: "Yes"},
			{Label: "cs_b", Value: "2", Category: "No"},
		},
	}

	in := new(model.Instrument)
	if err := Build(ws, Options{ReuseCodes: true}, in); err != nil {
		t.Fatalf("Build: unexpected error: %v", err)
	}

	var got []string
	for _, q := range in.QuestionItems {
		got = append(got, q.Response)
	}
	want := []string{"cs_Yes_No", "cs_Yes_No"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("responses mismatch (-want +got):\n%s", diff)
	}
	if len(in.Codes) != 2 {
		t.Errorf("got %d codes, want 2", len(in.Codes))
	}
	if in.Sequences[0].Label != "Questionnaire" {
		t.Errorf("got top sequence %q, want Questionnaire", in.Sequences[0].Label)
	}
}

func TestCodes(t *testing.T) {
	rows := []*archivist.CodeSheetRow{
		{Label: "cs_b", Value: "3", Category: "Maybe"},
		{Number: "2", Label: "cs_a", Value: "2", Category: "No"},
		{Number: "1", Label: "cs_b", Value: "1", Category: "Yes"},
		{Number: "x", Label: "cs_a", Value: "96", Category: "Other"},
		{Label: "cs_a", Value: "99", Category: "Refused"},
		{Number: "1.0", Label: "cs_a", Value: "1", Category: "Yes"},
	}

	want := []*model.Code{
		{Label: "cs_b", Order: 1, Value: "1", Category: "Yes"},
		{Label: "cs_b", Order: 2, Value: "3", Category: "Maybe"},
		{Label: "cs_a", Order: 1, Value: "1", Category: "Yes"},
		{Label: "cs_a", Order: 2, Value: "2", Category: "No"},
		{Label: "cs_a", Order: 3, Value: "96", Category: "Other"},
		{Label: "cs_a", Order: 4, Value: "99", Category: "Refused"},
	}
	if diff := cmp.Diff(want, codes(rows)); diff != "" {
		t.Errorf("codes() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildResponseDefaults(t *testing.T) {
	ws := &archivist.Worksheets{
		Responses: []*archivist.ResponseRow{
			{Label: "Range 1-10", Min: "1", Max: "10"},
			{Label: "How many", Type2: "Integer"},
			{Label: "Generic text", Type: "Text"},
		},
	}

	in := new(model.Instrument)
	if err := Build(ws, Options{}, in); err != nil {
		t.Fatalf("Build: unexpected error: %v", err)
	}

	want := []*model.ResponseDomain{
		{Label: "Range 1-10", Type: model.ResponseTypeNumeric, Subtype: "Integer", Min: "1", Max: "10"},
		{Label: "How many", Type: model.ResponseTypeNumeric, Subtype: "Integer"},
		{Label: "Generic text", Type: model.ResponseTypeText},
	}
	if diff := cmp.Diff(want, in.Responses); diff != "" {
		t.Errorf("responses mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildErrors(t *testing.T) {
	testCases := []struct {
		name string
		ws   *archivist.Worksheets
	}{
		{
			name: "missing order",
			ws: &archivist.Worksheets{
				Questions: []*archivist.QuestionSheetRow{{Label: "qi_a", Literal: "A?"}},
			},
		},
		{
			name: "invalid order",
			ws: &archivist.Worksheets{
				Questions: []*archivist.QuestionSheetRow{{Order: "first", Label: "qi_a", Literal: "A?"}},
			},
		},
		{
			name: "invalid maximum",
			ws: &archivist.Worksheets{
				Questions: []*archivist.QuestionSheetRow{{Order: "1", Label: "qi_a", Literal: "A?", Max: "many"}},
			},
		},
		{
			name: "duplicate condition",
			ws: &archivist.Worksheets{
				Conditions: []*archivist.ConditionSheetRow{
					{Start: "1", Label: "c_qa"},
					{Start: "2", Label: "c_qa"},
				},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := Build(tc.ws, Options{}, new(model.Instrument)); err == nil {
				t.Errorf("Build: expected error, got none")
			}
		})
	}
}

func TestLoader(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ucl_covid19")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	files := map[string]string{
		archivist.SequenceSheet: "Label,Start,End\nIntro,1,\n",
		archivist.QuestionSheet: "Order,Label,Literal,Instructions,Response_domain,min,max\n2,qc_mood,How are you?,,cs_mood,,\n",
		archivist.CodeSheet:     "Number,Label,Value,Category\n1,cs_mood,1,Good\n2,cs_mood,2,Bad\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	in := new(model.Instrument)
	if err := NewLoader(dir, Options{}).Load(in); err != nil {
		t.Fatalf("Load: unexpected error: %v", err)
	}

	want := []*model.QuestionItem{
		{Label: "qi_mood", Literal: "How are you?", Response: "cs_mood", MinResponses: 1, MaxResponses: 1, Placement: place(model.ParentTypeSequence, "Intro", 1, 1)},
	}
	if diff := cmp.Diff(want, in.QuestionItems); diff != "" {
		t.Errorf("question items mismatch (-want +got):\n%s", diff)
	}
	if in.Study.Label != "ucl_covid19" {
		t.Errorf("got study label %q, want ucl_covid19", in.Study.Label)
	}

	err := NewLoader(t.TempDir(), Options{}).Load(new(model.Instrument))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("got error %v, want os.ErrNotExist", err)
	}
}
