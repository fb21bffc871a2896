package tree

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/iand/cctables/model"
)

type nodeSpec struct {
	kind   model.Kind
	label  string
	start  int
	end    int
	branch int
}

func nodes(specs []nodeSpec) []*Node {
	ns := make([]*Node, 0, len(specs))
	for _, s := range specs {
		ns = append(ns, &Node{Kind: s.kind, Label: s.label, Start: s.start, End: s.end, Branch: s.branch})
	}
	return ns
}

func placements(t *testing.T, root string, specs []nodeSpec) map[string]model.Placement {
	t.Helper()
	got, anomalies := infer(t, root, specs)
	if len(anomalies) != 0 {
		t.Errorf("Infer: unexpected anomalies: %v", anomalies)
	}
	return got
}

func infer(t *testing.T, root string, specs []nodeSpec) (map[string]model.Placement, []*model.Anomaly) {
	t.Helper()
	ns := nodes(specs)
	anomalies, err := Infer(root, ns, Options{})
	if err != nil {
		t.Fatalf("Infer: unexpected error: %v", err)
	}

	got := make(map[string]model.Placement)
	for _, n := range ns {
		got[n.Label] = *n.Placement
	}
	return got, anomalies
}

func TestGenerateExplicitSpans(t *testing.T) {
	specs := []nodeSpec{
		{kind: model.KindSequence, label: "Household", start: 1},
		{kind: model.KindQuestionItem, label: "qi_q1", start: 2},
		{kind: model.KindCondition, label: "c_qq1", start: 3, end: 5, branch: 0},
		{kind: model.KindQuestionItem, label: "qi_q2", start: 4},
		{kind: model.KindQuestionItem, label: "qi_q3", start: 5},
		{kind: model.KindStatement, label: "s_qend", start: 6},
		{kind: model.KindSequence, label: "Health", start: 7},
		{kind: model.KindQuestionItem, label: "qi_q5", start: 8},
	}

	want := map[string]model.Placement{
		"Household": {ParentType: model.ParentTypeSequence, ParentName: "Study", Branch: 1, Position: 1},
		"qi_q1":     {ParentType: model.ParentTypeSequence, ParentName: "Household", Branch: 1, Position: 1},
		"c_qq1":     {ParentType: model.ParentTypeSequence, ParentName: "Household", Branch: 1, Position: 2},
		"qi_q2":     {ParentType: model.ParentTypeCondition, ParentName: "c_qq1", Branch: 0, Position: 1},
		"qi_q3":     {ParentType: model.ParentTypeSequence, ParentName: "Household", Branch: 1, Position: 3},
		"s_qend":    {ParentType: model.ParentTypeSequence, ParentName: "Household", Branch: 1, Position: 4},
		"Health":    {ParentType: model.ParentTypeSequence, ParentName: "Study", Branch: 1, Position: 2},
		"qi_q5":     {ParentType: model.ParentTypeSequence, ParentName: "Health", Branch: 1, Position: 1},
	}

	got := placements(t, "Study", specs)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Infer() mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateNestedSpans(t *testing.T) {
	// listed out of order to check sorting
	specs := []nodeSpec{
		{kind: model.KindQuestionItem, label: "qi_name", start: 4},
		{kind: model.KindSequence, label: "Grid", start: 1},
		{kind: model.KindCondition, label: "c_qhhsize", start: 2, end: 7, branch: 1},
		{kind: model.KindLoop, label: "l_qperson", start: 3, end: 6},
		{kind: model.KindQuestionItem, label: "qi_age", start: 5},
		{kind: model.KindQuestionItem, label: "qi_done", start: 6},
	}

	want := map[string]model.Placement{
		"Grid":      {ParentType: model.ParentTypeNone, ParentName: "", Branch: 1, Position: 1},
		"c_qhhsize": {ParentType: model.ParentTypeSequence, ParentName: "Grid", Branch: 1, Position: 1},
		"l_qperson": {ParentType: model.ParentTypeCondition, ParentName: "c_qhhsize", Branch: 1, Position: 1},
		"qi_name":   {ParentType: model.ParentTypeLoop, ParentName: "l_qperson", Branch: 1, Position: 1},
		"qi_age":    {ParentType: model.ParentTypeLoop, ParentName: "l_qperson", Branch: 1, Position: 2},
		"qi_done":   {ParentType: model.ParentTypeCondition, ParentName: "c_qhhsize", Branch: 1, Position: 2},
	}

	got := placements(t, "", specs)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Infer() mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateOpenEndedSpans(t *testing.T) {
	specs := []nodeSpec{
		{kind: model.KindSequence, label: "Jobs", start: 10},
		{kind: model.KindCondition, label: "c_qwork", start: 20},
		{kind: model.KindQuestionItem, label: "qi_jobhrs1", start: 30},
		{kind: model.KindQuestionItem, label: "qi_jobhrs2", start: 40},
		{kind: model.KindQuestionItem, label: "qi_commute", start: 50},
		{kind: model.KindLoop, label: "l_qkid", start: 60},
		{kind: model.KindCondition, label: "c_qkid", start: 70},
		{kind: model.KindQuestionItem, label: "qi_kidage", start: 80},
		{kind: model.KindQuestionItem, label: "qi_school", start: 90},
	}

	want := map[string]model.Placement{
		"Jobs":       {ParentType: model.ParentTypeSequence, ParentName: "Survey", Branch: 1, Position: 1},
		"c_qwork":    {ParentType: model.ParentTypeSequence, ParentName: "Jobs", Branch: 1, Position: 1},
		"qi_jobhrs1": {ParentType: model.ParentTypeCondition, ParentName: "c_qwork", Branch: 0, Position: 1},
		"qi_jobhrs2": {ParentType: model.ParentTypeCondition, ParentName: "c_qwork", Branch: 0, Position: 2},
		"qi_commute": {ParentType: model.ParentTypeSequence, ParentName: "Jobs", Branch: 1, Position: 2},
		"l_qkid":     {ParentType: model.ParentTypeSequence, ParentName: "Jobs", Branch: 1, Position: 3},
		"c_qkid":     {ParentType: model.ParentTypeLoop, ParentName: "l_qkid", Branch: 1, Position: 1},
		"qi_kidage":  {ParentType: model.ParentTypeCondition, ParentName: "c_qkid", Branch: 0, Position: 1},
		"qi_school":  {ParentType: model.ParentTypeSequence, ParentName: "Jobs", Branch: 1, Position: 4},
	}

	got := placements(t, "Survey", specs)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Infer() mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateBeforeFirstSequence(t *testing.T) {
	specs := []nodeSpec{
		{kind: model.KindStatement, label: "s_qintro", start: 1},
		{kind: model.KindSequence, label: "Main", start: 2},
	}
	want := map[string]model.Placement{
		"s_qintro": {ParentType: model.ParentTypeSequence, ParentName: "Study", Branch: 1, Position: 1},
		"Main":     {ParentType: model.ParentTypeSequence, ParentName: "Study", Branch: 1, Position: 2},
	}

	got := placements(t, "Study", specs)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Infer() mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateSpanCrossesSequence(t *testing.T) {
	specs := []nodeSpec{
		{kind: model.KindSequence, label: "A", start: 1},
		{kind: model.KindCondition, label: "c_q1", start: 2, end: 10},
		{kind: model.KindQuestionItem, label: "qi_1", start: 3},
		{kind: model.KindSequence, label: "B", start: 4},
		{kind: model.KindQuestionItem, label: "qi_2", start: 5},
	}

	want := map[string]model.Placement{
		"A":    {ParentType: model.ParentTypeSequence, ParentName: "Study", Branch: 1, Position: 1},
		"c_q1": {ParentType: model.ParentTypeSequence, ParentName: "A", Branch: 1, Position: 1},
		"qi_1": {ParentType: model.ParentTypeCondition, ParentName: "c_q1", Branch: 0, Position: 1},
		"B":    {ParentType: model.ParentTypeSequence, ParentName: "Study", Branch: 1, Position: 2},
		"qi_2": {ParentType: model.ParentTypeSequence, ParentName: "B", Branch: 1, Position: 1},
	}
	wantAnomalies := []*model.Anomaly{
		{Category: model.AnomalyCategoryPosition, Label: "c_q1", Text: "span ends at 10 after sequence B starts at 4"},
	}

	got, anomalies := infer(t, "Study", specs)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Infer() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantAnomalies, anomalies); diff != "" {
		t.Errorf("anomalies mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateRenamesSequenceNamedLikeRoot(t *testing.T) {
	var renamed []string
	ns := nodes([]nodeSpec{
		{kind: model.KindSequence, label: "Study", start: 1},
		{kind: model.KindQuestionItem, label: "qi_a", start: 2},
		{kind: model.KindSequence, label: "Study", start: 3},
		{kind: model.KindSequence, label: "Study_i", start: 4},
	})
	for _, n := range ns {
		if n.Kind == model.KindSequence {
			n.Rename = func(label string) { renamed = append(renamed, label) }
		}
	}

	anomalies, err := Infer("Study", ns, Options{})
	if err != nil {
		t.Fatalf("Infer: unexpected error: %v", err)
	}

	got := make(map[string]model.Placement)
	for _, n := range ns {
		got[n.Label] = *n.Placement
	}
	want := map[string]model.Placement{
		"Study_ii":  {ParentType: model.ParentTypeSequence, ParentName: "Study", Branch: 1, Position: 1},
		"qi_a":      {ParentType: model.ParentTypeSequence, ParentName: "Study_ii", Branch: 1, Position: 1},
		"Study_iii": {ParentType: model.ParentTypeSequence, ParentName: "Study", Branch: 1, Position: 2},
		"Study_i":   {ParentType: model.ParentTypeSequence, ParentName: "Study", Branch: 1, Position: 3},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Infer() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Study_ii", "Study_iii"}, renamed); diff != "" {
		t.Errorf("renamed mismatch (-want +got):\n%s", diff)
	}
	wantAnomalies := []*model.Anomaly{
		{Category: model.AnomalyCategoryLabel, Label: "Study", Text: "sequence label is already used, renamed Study_ii"},
		{Category: model.AnomalyCategoryLabel, Label: "Study", Text: "sequence label is already used, renamed Study_iii"},
	}
	if diff := cmp.Diff(wantAnomalies, anomalies); diff != "" {
		t.Errorf("anomalies mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateErrors(t *testing.T) {
	testCases := []struct {
		name  string
		specs []nodeSpec
		want  error
	}{
		{
			name: "duplicate condition",
			specs: []nodeSpec{
				{kind: model.KindCondition, label: "c_qa", start: 1, end: 2},
				{kind: model.KindCondition, label: "c_qa", start: 3, end: 4},
			},
			want: ErrDuplicateLabel,
		},
		{
			name: "loop named like root",
			specs: []nodeSpec{
				{kind: model.KindLoop, label: "Study", start: 1},
			},
			want: ErrDuplicateLabel,
		},
		{
			name: "backwards span",
			specs: []nodeSpec{
				{kind: model.KindLoop, label: "l_qa", start: 5, end: 2},
			},
			want: ErrInvalidSpan,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Infer("Study", nodes(tc.specs), Options{})
			if !errors.Is(err, tc.want) {
				t.Errorf("Infer() got error %v, want %v", err, tc.want)
			}
		})
	}
}

func TestGenerateWritesPlacement(t *testing.T) {
	q := &model.QuestionItem{Label: "qi_a"}
	ns := []*Node{
		{Kind: model.KindSequence, Label: "S", Start: 1},
		{Kind: model.KindQuestionItem, Label: q.Label, Start: 2, Placement: &q.Placement},
	}
	if _, err := Infer("Study", ns, Options{}); err != nil {
		t.Fatalf("Infer: unexpected error: %v", err)
	}
	if q.ParentName != "S" || q.Position != 1 {
		t.Errorf("placement not written through, got %+v", q.Placement)
	}
}
