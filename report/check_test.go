package report

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/iand/cctables/model"
)

func place(pt model.ParentType, name string, branch, pos int) model.Placement {
	return model.Placement{ParentType: pt, ParentName: name, Branch: branch, Position: pos}
}

func validInstrument() *model.Instrument {
	return &model.Instrument{
		Sequences: []*model.Sequence{
			{Label: "Study", Placement: place(model.ParentTypeNone, "", 1, 1)},
			{Label: "Main", Placement: place(model.ParentTypeSequence, "Study", 1, 1)},
		},
		Conditions: []*model.Condition{
			{Label: "c_qage", Logic: "qc_age > 16", Placement: place(model.ParentTypeSequence, "Main", 1, 2)},
		},
		QuestionItems: []*model.QuestionItem{
			{Label: "qi_age", Response: "Generic number", MinResponses: 1, MaxResponses: 1, Placement: place(model.ParentTypeSequence, "Main", 1, 1)},
			{Label: "qi_job", Response: "cs_job", MinResponses: 1, MaxResponses: 1, Placement: place(model.ParentTypeCondition, "c_qage", 0, 1)},
		},
		QuestionGrids: []*model.QuestionGrid{
			{Label: "qg_hours", HorizontalCodeList: "cs_job", Placement: place(model.ParentTypeCondition, "c_qage", 1, 1)},
		},
		Responses: []*model.ResponseDomain{
			{Label: "Generic number", Type: model.ResponseTypeNumeric},
		},
		Codes: []*model.Code{
			{Label: "cs_job", Order: 1, Value: "1", Category: "Yes"},
		},
	}
}

func TestCheck(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(in *model.Instrument)
		want   []*model.Anomaly
	}{
		{
			name:   "valid",
			modify: func(in *model.Instrument) {},
		},
		{
			name: "unknown parent",
			modify: func(in *model.Instrument) {
				in.QuestionItems[1].ParentName = "c_qjob"
			},
			want: []*model.Anomaly{
				{Category: model.AnomalyCategoryParent, Label: "qi_job", Text: `parent CcCondition "c_qjob" not found`},
			},
		},
		{
			name: "wrong parent type",
			modify: func(in *model.Instrument) {
				in.QuestionItems[1].ParentType = model.ParentTypeLoop
			},
			want: []*model.Anomaly{
				{Category: model.AnomalyCategoryParent, Label: "qi_job", Text: `parent "c_qage" is a CcCondition not a CcLoop`},
			},
		},
		{
			name: "unknown response",
			modify: func(in *model.Instrument) {
				in.QuestionItems[0].Response = "Long number"
			},
			want: []*model.Anomaly{
				{Category: model.AnomalyCategoryResponse, Label: "qi_age", Text: `response "Long number" not found`},
			},
		},
		{
			name: "unknown grid code list",
			modify: func(in *model.Instrument) {
				in.QuestionGrids[0].VerticalCodeList = "cs_days"
			},
			want: []*model.Anomaly{
				{Category: model.AnomalyCategoryCodeList, Label: "qg_hours", Text: `code list "cs_days" not found`},
			},
		},
		{
			name: "duplicate label",
			modify: func(in *model.Instrument) {
				in.QuestionItems[1].Label = "qi_age"
			},
			want: []*model.Anomaly{
				{Category: model.AnomalyCategoryLabel, Label: "qi_age", Text: "question label is used more than once"},
			},
		},
		{
			name: "gap in positions",
			modify: func(in *model.Instrument) {
				in.Conditions[0].Position = 3
			},
			want: []*model.Anomaly{
				{Category: model.AnomalyCategoryPosition, Label: "Main", Text: "positions in branch 1 are not contiguous: 1,3"},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInstrument()
			tc.modify(in)
			got := Check(in)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Check() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
