package model

import "fmt"

type AnomalyCategory string

const (
	AnomalyCategoryParent     AnomalyCategory = "Parent"
	AnomalyCategoryResponse   AnomalyCategory = "Response"
	AnomalyCategoryLabel      AnomalyCategory = "Label"
	AnomalyCategoryPosition   AnomalyCategory = "Position"
	AnomalyCategoryCodeList   AnomalyCategory = "CodeList"
	AnomalyCategoryReference  AnomalyCategory = "Reference"
	AnomalyCategoryCorrection AnomalyCategory = "Correction"
)

func (c AnomalyCategory) String() string {
	return string(c)
}

// An Anomaly is something detected in the source data that did not stop the
// conversion but may need correcting manually
type Anomaly struct {
	Category AnomalyCategory
	Label    string
	Text     string
}

func (a *Anomaly) String() string {
	if a.Label == "" {
		return fmt.Sprintf("%s: %s", a.Category, a.Text)
	}
	return fmt.Sprintf("%s: %s: %s", a.Category, a.Label, a.Text)
}
