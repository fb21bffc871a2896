package archivist

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
)

var ErrMissingColumn = errors.New("missing required column")

// WorksheetSeparator is the field separator of spreadsheet tabs exported as CSV.
const WorksheetSeparator = ','

const (
	SequenceSheet  = "sequences.csv"
	QuestionSheet  = "questions.csv"
	StatementSheet = "statements.csv"
	ConditionSheet = "conditions.csv"
	LoopSheet      = "loops.csv"
	CodeSheet      = "codes.csv"
	ResponseSheet  = "response.csv"
)

// Numeric columns in worksheets are kept as text since spreadsheet exports
// often write whole numbers as decimals.

type SequenceSheetRow struct {
	Label string `csv:"Label"`
	Start string `csv:"Start"`
	End   string `csv:"End"`
}

type QuestionSheetRow struct {
	Order          string `csv:"Order"`
	Label          string `csv:"Label"`
	Literal        string `csv:"Literal"`
	Instructions   string `csv:"Instructions"`
	ResponseDomain string `csv:"Response_domain"`
	Min            string `csv:"min"`
	Max            string `csv:"max"`
}

type StatementSheetRow struct {
	Order   string `csv:"Order"`
	Label   string `csv:"Label"`
	Literal string `csv:"Literal"`
}

type ConditionSheetRow struct {
	Start   string `csv:"Start"`
	End     string `csv:"End"`
	Label   string `csv:"Label"`
	Literal string `csv:"Literal"`
	Logic   string `csv:"Logic"`
	Branch  string `csv:"Branch"`
}

type LoopSheetRow struct {
	Start      string `csv:"Start"`
	End        string `csv:"End"`
	Label      string `csv:"Label"`
	Variable   string `csv:"Variable"`
	StartValue string `csv:"Start_Value"`
	EndValue   string `csv:"End_Value"`
	LoopWhile  string `csv:"Loop_While"`
}

type CodeSheetRow struct {
	Number   string `csv:"Number"`
	Label    string `csv:"Label"`
	Value    string `csv:"Value"`
	Category string `csv:"Category"`
}

// Worksheets holds the spreadsheet tabs describing a questionnaire in reading
// order, before any placement has been inferred.
type Worksheets struct {
	Sequences  []*SequenceSheetRow
	Questions  []*QuestionSheetRow
	Statements []*StatementSheetRow
	Conditions []*ConditionSheetRow
	Loops      []*LoopSheetRow
	Codes      []*CodeSheetRow
	Responses  []*ResponseRow
}

var sheetColumns = map[string][]string{
	SequenceSheet:  {"Label", "Start"},
	QuestionSheet:  {"Order", "Label", "Literal", "Response_domain"},
	StatementSheet: {"Order", "Label", "Literal"},
	ConditionSheet: {"Start", "Label", "Literal", "Logic"},
	LoopSheet:      {"Start", "Label", "Variable"},
	CodeSheet:      {"Label", "Value", "Category"},
	ResponseSheet:  {"Label", "Type"},
}

// ReadWorksheets reads the worksheet files present in dir. The questions
// sheet is required, every other sheet is optional.
func ReadWorksheets(dir string) (*Worksheets, error) {
	ws := new(Worksheets)

	sheets := []struct {
		name string
		rows any
	}{
		{SequenceSheet, &ws.Sequences},
		{QuestionSheet, &ws.Questions},
		{StatementSheet, &ws.Statements},
		{ConditionSheet, &ws.Conditions},
		{LoopSheet, &ws.Loops},
		{CodeSheet, &ws.Codes},
		{ResponseSheet, &ws.Responses},
	}

	for _, s := range sheets {
		ok, err := readSheet(filepath.Join(dir, s.name), sheetColumns[s.name], s.rows)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", s.name, err)
		}
		if !ok && s.name == QuestionSheet {
			return nil, fmt.Errorf("read %s: %w", s.name, os.ErrNotExist)
		}
	}

	return ws, nil
}

func readSheet(fname string, required []string, rows any) (bool, error) {
	data, err := os.ReadFile(fname)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return true, nil
	}

	header, err := newReader(data, WorksheetSeparator).Read()
	if err != nil {
		return false, fmt.Errorf("header: %w", err)
	}
	if err := checkColumns(header, required); err != nil {
		return false, err
	}

	if err := gocsv.UnmarshalCSV(newReader(data, WorksheetSeparator), rows); err != nil {
		return false, err
	}
	return true, nil
}

func checkColumns(header []string, required []string) error {
	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[strings.TrimSpace(h)] = true
	}
	var missing []string
	for _, r := range required {
		if !have[r] {
			missing = append(missing, r)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return nil
}
