// Package archivist reads and writes the semicolon separated tables that are
// loaded into the Archivist questionnaire database.
package archivist

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/iand/cctables/model"
)

// Separator is the field separator used by every Archivist table.
const Separator = ';'

const (
	StudyFile        = "study.csv"
	SequenceFile     = "sequence.csv"
	StatementFile    = "statement.csv"
	ConditionFile    = "condition.csv"
	LoopFile         = "loop.csv"
	QuestionItemFile = "question_item.csv"
	QuestionGridFile = "question_grid.csv"
	ResponseFile     = "response.csv"
	CodeListFile     = "codelist.csv"
)

type StudyRow struct {
	Agency     string `csv:"Agency"`
	Title      string `csv:"Title"`
	StudyName  string `csv:"Study_Name"`
	StudyLabel string `csv:"Study_Label"`
}

type SequenceRow struct {
	Label      string `csv:"Label"`
	ParentType string `csv:"Parent_Type"`
	ParentName string `csv:"Parent_Name"`
	Branch     int    `csv:"Branch"`
	Position   int    `csv:"Position"`
}

type StatementRow struct {
	Label      string `csv:"Label"`
	Literal    string `csv:"Literal"`
	ParentType string `csv:"Parent_Type"`
	ParentName string `csv:"Parent_Name"`
	Branch     int    `csv:"Branch"`
	Position   int    `csv:"Position"`
}

type ConditionRow struct {
	Label      string `csv:"Label"`
	Literal    string `csv:"Literal"`
	Logic      string `csv:"Logic"`
	ParentType string `csv:"Parent_Type"`
	ParentName string `csv:"Parent_Name"`
	Branch     int    `csv:"Branch"`
	Position   int    `csv:"Position"`
}

type LoopRow struct {
	Label      string `csv:"Label"`
	LoopWhile  string `csv:"Loop_While"`
	StartValue string `csv:"Start_value"`
	EndValue   string `csv:"End_Value"`
	Variable   string `csv:"Variable"`
	ParentType string `csv:"Parent_Type"`
	ParentName string `csv:"Parent_Name"`
	Branch     int    `csv:"Branch"`
	Position   int    `csv:"Position"`
}

type QuestionItemRow struct {
	Label        string `csv:"Label"`
	Literal      string `csv:"Literal"`
	Instructions string `csv:"Instructions"`
	Response     string `csv:"Response"`
	ParentType   string `csv:"Parent_Type"`
	ParentName   string `csv:"Parent_Name"`
	Branch       int    `csv:"Branch"`
	Position     int    `csv:"Position"`
	MinResponses int    `csv:"min_responses"`
	MaxResponses int    `csv:"max_responses"`
}

type QuestionGridRow struct {
	Label              string `csv:"Label"`
	Literal            string `csv:"Literal"`
	Instructions       string `csv:"Instructions"`
	HorizontalCodeList string `csv:"Horizontal_Codelist_Name"`
	VerticalCodeList   string `csv:"Vertical_Codelist_Name"`
	ParentType         string `csv:"Parent_Type"`
	ParentName         string `csv:"Parent_Name"`
	Branch             int    `csv:"Branch"`
	Position           int    `csv:"Position"`
}

type ResponseRow struct {
	Label  string `csv:"Label"`
	Type   string `csv:"Type"`
	Type2  string `csv:"Type2"`
	Format string `csv:"Format"`
	Min    string `csv:"Min"`
	Max    string `csv:"Max"`
}

type CodeRow struct {
	Label     string `csv:"Label"`
	CodeOrder int    `csv:"Code_Order"`
	CodeValue string `csv:"Code_Value"`
	Category  string `csv:"Category"`
}

// CreateFile creates or truncates fname, creating its directory if needed.
func CreateFile(fname string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(fname), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(fname)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	return f, nil
}

// WriteDir writes every table of the instrument to dir, creating it if
// needed. Tables with no rows are still written with their header.
func WriteDir(dir string, in *model.Instrument) error {
	tables := []struct {
		name string
		rows any
	}{
		{StudyFile, studyRows(in)},
		{SequenceFile, sequenceRows(in)},
		{StatementFile, statementRows(in)},
		{ConditionFile, conditionRows(in)},
		{LoopFile, loopRows(in)},
		{QuestionItemFile, questionItemRows(in)},
		{QuestionGridFile, questionGridRows(in)},
		{ResponseFile, responseRows(in)},
		{CodeListFile, codeRows(in)},
	}

	for _, t := range tables {
		if err := writeTable(filepath.Join(dir, t.name), t.rows); err != nil {
			return fmt.Errorf("write %s: %w", t.name, err)
		}
	}
	return nil
}

func writeTable(fname string, rows any) error {
	slog.Debug("writing table", "filename", fname)
	f, err := CreateFile(fname)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = Separator
	if err := gocsv.MarshalCSV(rows, gocsv.NewSafeCSVWriter(w)); err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return f.Close()
}

// ReadDir reads whichever Archivist tables exist in dir.
func ReadDir(dir string) (*model.Instrument, error) {
	var (
		study      []*StudyRow
		sequences  []*SequenceRow
		statements []*StatementRow
		conditions []*ConditionRow
		loops      []*LoopRow
		items      []*QuestionItemRow
		grids      []*QuestionGridRow
		responses  []*ResponseRow
		codes      []*CodeRow
	)

	tables := []struct {
		name string
		rows any
	}{
		{StudyFile, &study},
		{SequenceFile, &sequences},
		{StatementFile, &statements},
		{ConditionFile, &conditions},
		{LoopFile, &loops},
		{QuestionItemFile, &items},
		{QuestionGridFile, &grids},
		{ResponseFile, &responses},
		{CodeListFile, &codes},
	}

	found := 0
	for _, t := range tables {
		ok, err := readTable(filepath.Join(dir, t.name), Separator, t.rows)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", t.name, err)
		}
		if ok {
			found++
		}
	}
	if found == 0 {
		return nil, fmt.Errorf("no archivist tables found in %s", dir)
	}

	in := new(model.Instrument)
	if len(study) > 0 {
		in.Study = model.Study{
			Agency: study[0].Agency,
			Title:  study[0].Title,
			Name:   study[0].StudyName,
			Label:  study[0].StudyLabel,
		}
	}
	for _, r := range sequences {
		in.Sequences = append(in.Sequences, &model.Sequence{
			Label:     r.Label,
			Placement: placement(r.ParentType, r.ParentName, r.Branch, r.Position),
		})
	}
	for _, r := range statements {
		in.Statements = append(in.Statements, &model.Statement{
			Label:     r.Label,
			Literal:   r.Literal,
			Placement: placement(r.ParentType, r.ParentName, r.Branch, r.Position),
		})
	}
	for _, r := range conditions {
		in.Conditions = append(in.Conditions, &model.Condition{
			Label:     r.Label,
			Literal:   r.Literal,
			Logic:     r.Logic,
			Placement: placement(r.ParentType, r.ParentName, r.Branch, r.Position),
		})
	}
	for _, r := range loops {
		in.Loops = append(in.Loops, &model.Loop{
			Label:      r.Label,
			LoopWhile:  r.LoopWhile,
			StartValue: r.StartValue,
			EndValue:   r.EndValue,
			Variable:   r.Variable,
			Placement:  placement(r.ParentType, r.ParentName, r.Branch, r.Position),
		})
	}
	for _, r := range items {
		in.QuestionItems = append(in.QuestionItems, &model.QuestionItem{
			Label:        r.Label,
			Literal:      r.Literal,
			Instructions: r.Instructions,
			Response:     r.Response,
			MinResponses: r.MinResponses,
			MaxResponses: r.MaxResponses,
			Placement:    placement(r.ParentType, r.ParentName, r.Branch, r.Position),
		})
	}
	for _, r := range grids {
		in.QuestionGrids = append(in.QuestionGrids, &model.QuestionGrid{
			Label:              r.Label,
			Literal:            r.Literal,
			Instructions:       r.Instructions,
			HorizontalCodeList: r.HorizontalCodeList,
			VerticalCodeList:   r.VerticalCodeList,
			Placement:          placement(r.ParentType, r.ParentName, r.Branch, r.Position),
		})
	}
	for _, r := range responses {
		in.Responses = append(in.Responses, &model.ResponseDomain{
			Label:   r.Label,
			Type:    model.ResponseType(r.Type),
			Subtype: r.Type2,
			Format:  r.Format,
			Min:     r.Min,
			Max:     r.Max,
		})
	}
	for _, r := range codes {
		in.Codes = append(in.Codes, &model.Code{
			Label:    r.Label,
			Order:    r.CodeOrder,
			Value:    r.CodeValue,
			Category: r.Category,
		})
	}

	return in, nil
}

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// readTable unmarshals the named file into rows. It reports false when the
// file does not exist.
func readTable(fname string, sep rune, rows any) (bool, error) {
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

	slog.Debug("reading table", "filename", fname)
	if err := gocsv.UnmarshalCSV(newReader(data, sep), rows); err != nil {
		return false, err
	}
	return true, nil
}

func newReader(data []byte, sep rune) *csv.Reader {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sep
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	return r
}

func placement(pt string, name string, branch int, position int) model.Placement {
	return model.Placement{
		ParentType: model.ParentType(pt),
		ParentName: name,
		Branch:     branch,
		Position:   position,
	}
}

func studyRows(in *model.Instrument) []*StudyRow {
	if in.Study == (model.Study{}) {
		return []*StudyRow{}
	}
	return []*StudyRow{{
		Agency:     in.Study.Agency,
		Title:      in.Study.Title,
		StudyName:  in.Study.Name,
		StudyLabel: in.Study.Label,
	}}
}

func sequenceRows(in *model.Instrument) []*SequenceRow {
	rows := make([]*SequenceRow, 0, len(in.Sequences))
	for _, s := range in.Sequences {
		rows = append(rows, &SequenceRow{
			Label:      s.Label,
			ParentType: s.ParentType.String(),
			ParentName: s.ParentName,
			Branch:     s.Branch,
			Position:   s.Position,
		})
	}
	return rows
}

func statementRows(in *model.Instrument) []*StatementRow {
	rows := make([]*StatementRow, 0, len(in.Statements))
	for _, s := range in.Statements {
		rows = append(rows, &StatementRow{
			Label:      s.Label,
			Literal:    s.Literal,
			ParentType: s.ParentType.String(),
			ParentName: s.ParentName,
			Branch:     s.Branch,
			Position:   s.Position,
		})
	}
	return rows
}

func conditionRows(in *model.Instrument) []*ConditionRow {
	rows := make([]*ConditionRow, 0, len(in.Conditions))
	for _, c := range in.Conditions {
		rows = append(rows, &ConditionRow{
			Label:      c.Label,
			Literal:    c.Literal,
			Logic:      c.Logic,
			ParentType: c.ParentType.String(),
			ParentName: c.ParentName,
			Branch:     c.Branch,
			Position:   c.Position,
		})
	}
	return rows
}

func loopRows(in *model.Instrument) []*LoopRow {
	rows := make([]*LoopRow, 0, len(in.Loops))
	for _, l := range in.Loops {
		rows = append(rows, &LoopRow{
			Label:      l.Label,
			LoopWhile:  l.LoopWhile,
			StartValue: l.StartValue,
			EndValue:   l.EndValue,
			Variable:   l.Variable,
			ParentType: l.ParentType.String(),
			ParentName: l.ParentName,
			Branch:     l.Branch,
			Position:   l.Position,
		})
	}
	return rows
}

func questionItemRows(in *model.Instrument) []*QuestionItemRow {
	rows := make([]*QuestionItemRow, 0, len(in.QuestionItems))
	for _, q := range in.QuestionItems {
		rows = append(rows, &QuestionItemRow{
			Label:        q.Label,
			Literal:      q.Literal,
			Instructions: q.Instructions,
			Response:     q.Response,
			ParentType:   q.ParentType.String(),
			ParentName:   q.ParentName,
			Branch:       q.Branch,
			Position:     q.Position,
			MinResponses: q.MinResponses,
			MaxResponses: q.MaxResponses,
		})
	}
	return rows
}

func questionGridRows(in *model.Instrument) []*QuestionGridRow {
	rows := make([]*QuestionGridRow, 0, len(in.QuestionGrids))
	for _, q := range in.QuestionGrids {
		rows = append(rows, &QuestionGridRow{
			Label:              q.Label,
			Literal:            q.Literal,
			Instructions:       q.Instructions,
			HorizontalCodeList: q.HorizontalCodeList,
			VerticalCodeList:   q.VerticalCodeList,
			ParentType:         q.ParentType.String(),
			ParentName:         q.ParentName,
			Branch:             q.Branch,
			Position:           q.Position,
		})
	}
	return rows
}

func responseRows(in *model.Instrument) []*ResponseRow {
	rows := make([]*ResponseRow, 0, len(in.Responses))
	for _, r := range in.Responses {
		rows = append(rows, &ResponseRow{
			Label:  r.Label,
			Type:   string(r.Type),
			Type2:  r.Subtype,
			Format: r.Format,
			Min:    r.Min,
			Max:    r.Max,
		})
	}
	return rows
}

func codeRows(in *model.Instrument) []*CodeRow {
	rows := make([]*CodeRow, 0, len(in.Codes))
	for _, c := range in.Codes {
		rows = append(rows, &CodeRow{
			Label:     c.Label,
			CodeOrder: c.Order,
			CodeValue: c.Value,
			Category:  c.Category,
		})
	}
	return rows
}
