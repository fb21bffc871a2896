package report

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/iand/cctables/model"
)

// Check validates the structure of an instrument and returns an anomaly for
// each problem found. Problems are reported in a stable order: parents,
// responses, labels then positions.
func Check(in *model.Instrument) []*model.Anomaly {
	var as []*model.Anomaly
	as = append(as, checkParents(in)...)
	as = append(as, checkResponses(in)...)
	as = append(as, checkLabels(in)...)
	as = append(as, checkPositions(in)...)
	return as
}

func checkParents(in *model.Instrument) []*model.Anomaly {
	var as []*model.Anomaly
	constructs := in.Constructs()
	for _, p := range in.Placements() {
		if p.ParentType == model.ParentTypeNone {
			if p.Kind != model.KindSequence {
				as = append(as, &model.Anomaly{
					Category: model.AnomalyCategoryParent,
					Label:    p.Label,
					Text:     fmt.Sprintf("%s has no parent", p.Kind),
				})
			}
			continue
		}
		pt, ok := constructs[p.ParentName]
		if !ok {
			as = append(as, &model.Anomaly{
				Category: model.AnomalyCategoryParent,
				Label:    p.Label,
				Text:     fmt.Sprintf("parent %s %q not found", p.ParentType, p.ParentName),
			})
			continue
		}
		if pt != p.ParentType {
			as = append(as, &model.Anomaly{
				Category: model.AnomalyCategoryParent,
				Label:    p.Label,
				Text:     fmt.Sprintf("parent %q is a %s not a %s", p.ParentName, pt, p.ParentType),
			})
		}
		if p.ParentName == p.Label && p.Kind.IsParent() {
			as = append(as, &model.Anomaly{
				Category: model.AnomalyCategoryParent,
				Label:    p.Label,
				Text:     "construct is its own parent",
			})
		}
	}
	return as
}

func checkResponses(in *model.Instrument) []*model.Anomaly {
	domains := make(map[string]bool, len(in.Responses))
	for _, r := range in.Responses {
		domains[r.Label] = true
	}
	codeLists := make(map[string]bool)
	for _, l := range in.CodeListLabels() {
		codeLists[l] = true
	}

	var as []*model.Anomaly
	for _, q := range in.QuestionItems {
		switch {
		case q.Response == "":
			as = append(as, &model.Anomaly{Category: model.AnomalyCategoryResponse, Label: q.Label, Text: "question has no response"})
		case !domains[q.Response] && !codeLists[q.Response]:
			as = append(as, &model.Anomaly{Category: model.AnomalyCategoryResponse, Label: q.Label, Text: fmt.Sprintf("response %q not found", q.Response)})
		}
		if q.MaxResponses != 0 && q.MinResponses > q.MaxResponses {
			as = append(as, &model.Anomaly{Category: model.AnomalyCategoryResponse, Label: q.Label, Text: fmt.Sprintf("minimum responses %d exceeds maximum %d", q.MinResponses, q.MaxResponses)})
		}
	}
	for _, g := range in.QuestionGrids {
		for _, cl := range []string{g.HorizontalCodeList, g.VerticalCodeList} {
			if cl != "" && !codeLists[cl] {
				as = append(as, &model.Anomaly{Category: model.AnomalyCategoryCodeList, Label: g.Label, Text: fmt.Sprintf("code list %q not found", cl)})
			}
		}
	}
	return as
}

// checkLabels reports labels used more than once within a table, and labels
// shared between parent constructs of different kinds since placements refer
// to parents by label alone.
func checkLabels(in *model.Instrument) []*model.Anomaly {
	var as []*model.Anomaly
	perKind := make(map[model.Kind]map[string]int)
	parents := make(map[string][]model.Kind)
	for _, p := range in.Placements() {
		m, ok := perKind[p.Kind]
		if !ok {
			m = make(map[string]int)
			perKind[p.Kind] = m
		}
		m[p.Label]++
		if m[p.Label] == 2 {
			as = append(as, &model.Anomaly{Category: model.AnomalyCategoryLabel, Label: p.Label, Text: fmt.Sprintf("%s label is used more than once", p.Kind)})
		}
		if p.Kind.IsParent() && m[p.Label] == 1 {
			parents[p.Label] = append(parents[p.Label], p.Kind)
		}
	}

	for _, label := range sortedKeys(parents) {
		kinds := parents[label]
		if len(kinds) < 2 {
			continue
		}
		names := make([]string, len(kinds))
		for i, k := range kinds {
			names[i] = k.String()
		}
		as = append(as, &model.Anomaly{Category: model.AnomalyCategoryLabel, Label: label, Text: "label is shared by " + strings.Join(names, " and ")})
	}

	seen := make(map[string]bool)
	for _, r := range in.Responses {
		if seen[r.Label] {
			as = append(as, &model.Anomaly{Category: model.AnomalyCategoryLabel, Label: r.Label, Text: "response label is used more than once"})
		}
		seen[r.Label] = true
	}
	return as
}

type positionKey struct {
	parentType model.ParentType
	parentName string
	branch     int
}

// checkPositions reports children of a parent branch whose positions do not
// run 1, 2, 3 and so on.
func checkPositions(in *model.Instrument) []*model.Anomaly {
	var keys []positionKey
	positions := make(map[positionKey][]int)
	for _, p := range in.Placements() {
		k := positionKey{parentType: p.ParentType, parentName: p.ParentName, branch: p.Branch}
		if _, ok := positions[k]; !ok {
			keys = append(keys, k)
		}
		positions[k] = append(positions[k], p.Position)
	}

	var as []*model.Anomaly
	for _, k := range keys {
		ps := positions[k]
		sort.Ints(ps)
		for i, pos := range ps {
			if pos != i+1 {
				as = append(as, &model.Anomaly{
					Category: model.AnomalyCategoryPosition,
					Label:    k.parentName,
					Text:     fmt.Sprintf("positions in branch %d are not contiguous: %s", k.branch, formatInts(ps)),
				})
				break
			}
		}
	}
	return as
}

func formatInts(vs []int) string {
	s := make([]string, len(vs))
	for i, v := range vs {
		s[i] = fmt.Sprint(v)
	}
	return strings.Join(s, ",")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LogAnomalies emits a warning for each anomaly.
func LogAnomalies(as []*model.Anomaly) {
	for _, a := range as {
		slog.Warn(a.Text, "category", a.Category.String(), "label", a.Label)
	}
}
