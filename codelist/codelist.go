// Package codelist finds code lists that can be shared between questions.
package codelist

import (
	"fmt"
	"log/slog"

	"github.com/iand/cctables/model"
	"github.com/iand/cctables/text"
)

type row struct {
	order    int
	value    string
	category string
}

type list struct {
	label string
	rows  []row
}

func rowsOf(codes []*model.Code) []row {
	rows := make([]row, len(codes))
	for i, c := range codes {
		rows[i] = row{order: c.Order, value: c.Value, category: c.Category}
	}
	return rows
}

func equalRows(a, b []row) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// pairName returns the generated name for a list of exactly two codes whose
// categories are single words, such as cs_Yes_No.
func pairName(rows []row) (string, bool) {
	if len(rows) != 2 {
		return "", false
	}
	for _, r := range rows {
		if !text.IsSingleWord(r.category) {
			return "", false
		}
	}
	return text.SanitizeLabel(model.PrefixCodeList + rows[0].category + "_" + rows[1].category), true
}

// Reuse replaces code lists that duplicate an earlier list with a reference to
// that list and gives two-code lists of single words a shared name. Code lists
// are considered in order of first appearance. Question responses and grid
// code lists are updated to match. It returns the mapping from old to new
// labels for every code list.
func Reuse(in *model.Instrument) map[string]string {
	mapping := make(map[string]string)
	var kept []*list
	byLabel := make(map[string]*list)
	used := make(map[string]bool)
	for _, l := range in.CodeListLabels() {
		used[l] = true
	}

	for _, old := range in.CodeListLabels() {
		rows := rowsOf(in.CodeList(old))
		label := old

		if name, ok := pairName(rows); ok {
			label = name
			if other, exists := byLabel[name]; exists && !equalRows(other.rows, rows) {
				in.AddAnomaly(model.AnomalyCategoryCodeList, old, fmt.Sprintf("generated name %s is already used by a different code list", name))
				label = old
			}
		} else {
			for _, k := range kept {
				if equalRows(k.rows, rows) {
					label = k.label
					break
				}
			}
		}

		if other, exists := byLabel[label]; exists && !equalRows(other.rows, rows) {
			renamed := text.Unused(label, used)
			in.AddAnomaly(model.AnomalyCategoryCodeList, old, fmt.Sprintf("label %s is already used by a different code list, renamed %s", label, renamed))
			label = renamed
		}
		used[label] = true

		mapping[old] = label
		if label != old {
			slog.Debug("reusing code list", "label", old, "new", label)
		}
		if _, exists := byLabel[label]; !exists {
			l := &list{label: label, rows: rows}
			kept = append(kept, l)
			byLabel[label] = l
		}
	}

	codes := make([]*model.Code, 0, len(in.Codes))
	for _, l := range kept {
		for _, r := range l.rows {
			codes = append(codes, &model.Code{Label: l.label, Order: r.order, Value: r.value, Category: r.category})
		}
	}
	in.Codes = codes
	in.RemapResponses(mapping)

	return mapping
}

// Changed returns the number of code lists whose label changed.
func Changed(mapping map[string]string) int {
	n := 0
	for old, label := range mapping {
		if old != label {
			n++
		}
	}
	return n
}
