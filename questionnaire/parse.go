// Package questionnaire converts questionnaires exported from a word processor
// as HTML into Archivist tables.
package questionnaire

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/iand/cctables/identifier"
	"github.com/iand/cctables/logic"
	"github.com/iand/cctables/model"
	"github.com/iand/cctables/text"
	"github.com/iand/cctables/tree"
)

type role int

const (
	roleNone role = iota
	roleSequence
	roleQuestion
	roleLiteral
	roleInstruction
	roleAnswer
	roleCondition
	roleFootnoteText
	roleFootnoteReference
)

// An element is a classified piece of the document. Ordinal is its position in
// document order among classified elements, counting from one.
type element struct {
	role    role
	ordinal int
	text    string
}

type Loader struct {
	Filename string
	Profile  Profile
}

func NewLoader(filename string, p Profile) *Loader {
	return &Loader{Filename: filename, Profile: p}
}

func (l *Loader) Scope() string {
	return l.Filename
}

func (l *Loader) Load(in *model.Instrument) error {
	f, err := os.Open(l.Filename)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	return Parse(bufio.NewReader(f), l.Profile, in)
}

// Parse reads an HTML questionnaire and fills the tables of in.
func Parse(r io.Reader, p Profile, in *model.Instrument) error {
	r, err := p.decodeReader(r)
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}

	title := text.RemoveRedundantWhitespace(doc.Find("title").First().Text())
	root := p.Study
	if root == "" {
		root = title
	}
	if root == "" {
		root = "Questionnaire"
	}
	in.Study = model.Study{Title: title, Name: root, Label: root}

	b := &builder{profile: &p, in: in, footnotes: make(map[int][]string)}
	b.collect(p.elements(doc))
	return b.build(root)
}

func matchClass(class, name string) bool {
	return name != "" && strings.Contains(class, name)
}

func (p *Profile) classify(s *goquery.Selection) role {
	if p.QuestionTag != "" && goquery.NodeName(s) == p.QuestionTag {
		return roleQuestion
	}
	class := s.AttrOr("class", "")
	if class == "" {
		return roleNone
	}
	switch {
	case matchClass(class, p.FootnoteReferenceClass):
		return roleFootnoteReference
	case matchClass(class, p.FootnoteTextClass):
		return roleFootnoteText
	case matchClass(class, p.SequenceClass):
		return roleSequence
	case matchClass(class, p.ConditionClass):
		return roleCondition
	case matchClass(class, p.InstructionClass):
		return roleInstruction
	}
	for _, c := range p.AnswerClasses {
		if matchClass(class, c) {
			return roleAnswer
		}
	}
	if matchClass(class, p.LiteralClass) {
		return roleLiteral
	}
	return roleNone
}

// elements classifies the document body in document order. An element inside
// one that has already been classified is skipped, except for footnote
// references which are kept unless they belong to a footnote's own text.
func (p *Profile) elements(doc *goquery.Document) []*element {
	claimed := make(map[*html.Node]role)
	ancestor := func(n *html.Node) role {
		for a := n.Parent; a != nil; a = a.Parent {
			if r, ok := claimed[a]; ok {
				return r
			}
		}
		return roleNone
	}

	var els []*element
	doc.Find("body *").Each(func(i int, s *goquery.Selection) {
		r := p.classify(s)
		if r == roleNone {
			return
		}
		n := s.Get(0)
		switch a := ancestor(n); {
		case a == roleNone:
		case r == roleFootnoteReference && a != roleFootnoteText:
		default:
			return
		}
		claimed[n] = r

		skip := p.FootnoteReferenceClass
		if r == roleFootnoteText || r == roleFootnoteReference {
			skip = ""
		}
		t := textOf(n, skip)
		if t == "" {
			return
		}
		els = append(els, &element{role: r, ordinal: len(els) + 1, text: t})
	})
	return els
}

var blockElements = map[string]bool{
	"p": true, "div": true, "li": true, "tr": true, "td": true, "h1": true, "h2": true, "h3": true, "h4": true,
}

// textOf returns the text below n as trimmed, non-empty lines. Line breaks in
// the markup are ignored; br and block elements start new lines. Elements
// whose class contains skipClass are left out.
func textOf(n *html.Node, skipClass string) string {
	var b strings.Builder
	var walk func(*html.Node, bool)
	walk = func(n *html.Node, top bool) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(text.CollapseNewlines(n.Data))
			return
		case html.ElementNode:
			if n.Data == "br" {
				b.WriteString("\n")
				return
			}
			if !top && skipClass != "" {
				for _, a := range n.Attr {
					if a.Key == "class" && strings.Contains(a.Val, skipClass) {
						return
					}
				}
			}
			if !top && blockElements[n.Data] {
				b.WriteString("\n")
				defer b.WriteString("\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, false)
		}
	}
	walk(n, true)

	var lines []string
	for _, l := range strings.Split(b.String(), "\n") {
		if l = text.RemoveRedundantWhitespace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}

type question struct {
	name         string
	ordinal      int
	literal      []string
	instructions []string
	footnotes    []int
	answers      []string
}

type condition struct {
	ordinal  int
	literal  string
	question string // name of the question before the condition
}

type sequence struct {
	ordinal int
	label   string
}

type builder struct {
	profile *Profile
	in      *model.Instrument

	sequences  []*sequence
	questions  []*question
	conditions []*condition
	footnotes  map[int][]string
}

var (
	digits         = regexp.MustCompile(`\d+`)
	footnoteNumber = regexp.MustCompile(`(?s)^\[?(\d+)\]?\s*(.*)$`)
)

func (b *builder) collect(els []*element) {
	var cur *question
	lastFootnote := 0
	for _, e := range els {
		switch e.role {
		case roleSequence:
			b.sequences = append(b.sequences, &sequence{ordinal: e.ordinal, label: e.text})
		case roleQuestion:
			name := text.RemoveAllWhitespace(text.SanitizeLabel(text.ASCIIOnly(e.text)))
			if name == "" {
				name = strings.ToLower(identifier.ForElement(b.profile.QuestionTag, e.ordinal, e.text))
			}
			cur = &question{name: name, ordinal: e.ordinal}
			b.questions = append(b.questions, cur)
		case roleLiteral, roleInstruction, roleAnswer:
			if cur == nil {
				slog.Debug("skipping text before first question", "text", e.text)
				continue
			}
			switch e.role {
			case roleLiteral:
				cur.literal = append(cur.literal, e.text)
			case roleInstruction:
				cur.instructions = append(cur.instructions, e.text)
			default:
				cur.answers = append(cur.answers, e.text)
			}
		case roleCondition:
			if b.skipped(e.text, b.profile.SkipConditions) {
				continue
			}
			c := &condition{ordinal: e.ordinal, literal: e.text}
			if cur != nil {
				c.question = cur.name
			}
			b.conditions = append(b.conditions, c)
		case roleFootnoteText:
			if m := footnoteNumber.FindStringSubmatch(e.text); m != nil {
				lastFootnote, _ = strconv.Atoi(m[1])
				if m[2] != "" {
					b.footnotes[lastFootnote] = append(b.footnotes[lastFootnote], m[2])
				}
				continue
			}
			if lastFootnote == 0 {
				slog.Debug("skipping unnumbered footnote", "text", e.text)
				continue
			}
			b.footnotes[lastFootnote] = append(b.footnotes[lastFootnote], e.text)
		case roleFootnoteReference:
			num, err := strconv.Atoi(digits.FindString(e.text))
			if err != nil || cur == nil {
				continue
			}
			cur.footnotes = append(cur.footnotes, num)
		}
	}
}

func (b *builder) skipped(s string, skip []string) bool {
	for _, k := range skip {
		if strings.EqualFold(strings.TrimSpace(s), k) {
			return true
		}
	}
	return false
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func (b *builder) instructions(q *question) string {
	ins := append([]string{}, q.instructions...)
	for _, num := range q.footnotes {
		fn, ok := b.footnotes[num]
		if !ok {
			b.in.AddAnomaly(model.AnomalyCategoryReference, q.name, fmt.Sprintf("footnote %d not found", num))
			continue
		}
		ins = append(ins, strings.Join(fn, "  "))
	}
	return strings.Join(ins, "\n")
}

// DateResponse is the label shared by every date answer.
const DateResponse = "Generic date"

var (
	rangeLow   = regexp.MustCompile(`(\d+\.\d+|\d+)-`)
	rangeHigh  = regexp.MustCompile(`-\s*(\d+(?:\.\d+)?)`)
	leadingInt = regexp.MustCompile(`^\s*(-?\d+)`)
)

// responseDomain interprets an answer line such as "Numeric RANGE 0..120".
func (p *Profile) responseDomain(s string) *model.ResponseDomain {
	if containsAny(s, p.DateKeywords) {
		return &model.ResponseDomain{Label: DateResponse, Type: model.ResponseTypeDate, Subtype: "Date"}
	}
	rd := &model.ResponseDomain{Label: s, Type: model.ResponseTypeText}
	if containsAny(s, p.NumericKeywords) {
		rd.Type = model.ResponseTypeNumeric
		rd.Subtype = "Integer"
	}
	if strings.Contains(s, "..") || strings.Contains(s, "-") {
		r := strings.NewReplacer("...", "-", "..", "-").Replace(s)
		if m := rangeLow.FindAllStringSubmatch(r, -1); len(m) > 0 {
			rd.Min = m[len(m)-1][1]
		}
		if m := rangeHigh.FindStringSubmatch(r); m != nil {
			rd.Max = m[1]
		}
	}
	return rd
}

// codeOf splits an answer line such as "1. Yes (go to Q5)" into its value and
// category. The value is the integer the line starts with, or the order when
// it starts with none.
func codeOf(line string, order int) (string, string) {
	value := strconv.Itoa(order)
	cat := line
	if m := leadingInt.FindStringSubmatch(line); m != nil {
		value = m[1]
		cat = line[len(m[0]):]
	}
	cat = strings.TrimLeft(strings.TrimSpace(cat), ". ")
	return value, text.StripBrackets(cat)
}

// verticalCodes returns the first word after the grid marker that lists codes
// separated by slashes.
func verticalCodes(literal, marker string) string {
	i := strings.Index(literal, marker)
	if i < 0 {
		return ""
	}
	for _, w := range strings.Fields(literal[i+len(marker):]) {
		if strings.Contains(w, "/") {
			return w
		}
	}
	return ""
}

func (b *builder) build(root string) error {
	p := b.profile

	top := &model.Sequence{Label: root}
	top.Place(model.ParentTypeNone, "", 1, 1)
	b.in.Sequences = append(b.in.Sequences, top)

	var nodes []*tree.Node

	seqLabels := make([]string, len(b.sequences))
	for i, s := range b.sequences {
		seqLabels[i] = s.label
	}
	seqLabels = text.NumberAfterFirst(seqLabels)
	for i, s := range b.sequences {
		seq := &model.Sequence{Label: seqLabels[i]}
		b.in.Sequences = append(b.in.Sequences, seq)
		nodes = append(nodes, &tree.Node{
			Kind:      model.KindSequence,
			Label:     seq.Label,
			Start:     s.ordinal,
			Placement: &seq.Placement,
			Rename:    func(label string) { seq.Label = label },
		})
	}

	literals := make([]string, len(b.questions))
	labels := make([]string, len(b.questions))
	for i, q := range b.questions {
		literals[i] = strings.Join(q.literal, "\n")
		if p.GridMarker != "" && strings.Contains(literals[i], p.GridMarker) {
			labels[i] = model.PrefixQuestionGrid + q.name
		} else {
			labels[i] = model.PrefixQuestionItem + q.name
		}
	}
	labels = text.NumberAfterFirst(labels)

	responses := make(map[string]bool)
	for i, q := range b.questions {
		label := labels[i]
		name := label[len(model.PrefixQuestionItem):]
		literal := literals[i]
		instructions := b.instructions(q)

		var response string
		codeList := model.PrefixCodeList + name
		order := 0
		for _, a := range q.answers {
			if containsAny(a, p.ResponseKeywords) {
				rd := p.responseDomain(a)
				if !responses[rd.Label] {
					responses[rd.Label] = true
					b.in.Responses = append(b.in.Responses, rd)
				}
				if response == "" {
					response = rd.Label
				}
				continue
			}
			for _, line := range strings.Split(a, "\n") {
				if line == "" || b.skipped(line, p.SkipAnswers) {
					continue
				}
				order++
				value, cat := codeOf(line, order)
				b.in.Codes = append(b.in.Codes, &model.Code{Label: codeList, Order: order, Value: value, Category: cat})
			}
		}
		if order == 0 {
			codeList = ""
		}

		if literal == "" {
			literal = "?"
		}

		if strings.HasPrefix(label, model.PrefixQuestionGrid) {
			g := &model.QuestionGrid{
				Label:              label,
				Literal:            literal,
				Instructions:       instructions,
				HorizontalCodeList: codeList,
				VerticalCodeList:   b.gridCodes(label, literal),
			}
			if codeList == "" {
				b.in.AddAnomaly(model.AnomalyCategoryCodeList, label, "grid has no answer codes")
			}
			b.in.QuestionGrids = append(b.in.QuestionGrids, g)
			nodes = append(nodes, &tree.Node{Kind: model.KindQuestionGrid, Label: label, Start: q.ordinal, Placement: &g.Placement})
			continue
		}

		if response == "" {
			response = codeList
		}
		if response == "" {
			// a question with nothing to answer is a statement
			st := &model.Statement{Label: model.PrefixStatement + name, Literal: strings.TrimSpace(literals[i] + "\n" + instructions)}
			if st.Literal == "" {
				slog.Debug("dropping empty question", "label", label)
				continue
			}
			b.in.Statements = append(b.in.Statements, st)
			nodes = append(nodes, &tree.Node{Kind: model.KindStatement, Label: st.Label, Start: q.ordinal, Placement: &st.Placement})
			continue
		}

		qi := &model.QuestionItem{
			Label:        label,
			Literal:      literal,
			Instructions: instructions,
			Response:     response,
			MinResponses: 1,
			MaxResponses: 1,
		}
		b.in.QuestionItems = append(b.in.QuestionItems, qi)
		nodes = append(nodes, &tree.Node{Kind: model.KindQuestionItem, Label: label, Start: q.ordinal, Placement: &qi.Placement})
	}

	condNames := make([]string, len(b.conditions))
	for i, c := range b.conditions {
		v := logic.FirstVariable(c.literal)
		if v == "" || digits.FindString(v) == v {
			v = c.question
		}
		if v == "" {
			v = strings.ToLower(identifier.ForElement(p.ConditionClass, c.ordinal, c.literal))
		}
		condNames[i] = model.PrefixCondition + v
	}
	condNames = text.NumberAfterFirst(condNames)
	for i, c := range b.conditions {
		lg := logic.Convert(logic.Parenthesised(c.literal))
		if lg != "" {
			lg = logic.Qualify(lg)
		}
		cond := &model.Condition{Label: condNames[i], Literal: c.literal, Logic: lg}
		b.in.Conditions = append(b.in.Conditions, cond)
		nodes = append(nodes, &tree.Node{Kind: model.KindCondition, Label: cond.Label, Start: c.ordinal, Branch: 0, Placement: &cond.Placement})
	}

	anomalies, err := tree.Infer(root, nodes, tree.Options{Similarity: p.Similarity})
	if err != nil {
		return fmt.Errorf("infer tree: %w", err)
	}
	b.in.Anomalies = append(b.in.Anomalies, anomalies...)
	return nil
}

// gridCodes adds the code list named by the slash separated word after the grid
// marker, once per list, and returns its label.
func (b *builder) gridCodes(label, literal string) string {
	word := verticalCodes(literal, b.profile.GridMarker)
	if word == "" {
		b.in.AddAnomaly(model.AnomalyCategoryCodeList, label, "grid marker is not followed by a list of row codes")
		return ""
	}
	cl := model.PrefixCodeList + strings.ReplaceAll(word, "/", "")
	if len(b.in.CodeList(cl)) > 0 {
		return cl
	}
	order := 0
	for _, cat := range strings.Split(word, "/") {
		if cat == "" {
			continue
		}
		order++
		b.in.Codes = append(b.in.Codes, &model.Code{Label: cl, Order: order, Value: strconv.Itoa(order), Category: cat})
	}
	return cl
}
