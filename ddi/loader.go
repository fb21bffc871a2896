// Package ddi converts DDI 3.3 fragment instance documents into Archivist
// tables.
package ddi

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/iand/cctables/logic"
	"github.com/iand/cctables/model"
	"github.com/iand/cctables/text"
)

const (
	genericText   = "Generic text"
	longText      = "Long text"
	genericNumber = "Generic number"
	longNumber    = "Long number"
	genericDate   = "Generic date"

	instructionKey = "extension:QuestionInstruction"
)

// element types that carry an identity and may be referenced
var identified = map[string]bool{
	"StudyUnit":         true,
	"DataCollection":    true,
	"Instrument":        true,
	"Sequence":          true,
	"QuestionConstruct": true,
	"QuestionItem":      true,
	"QuestionGrid":      true,
	"StatementItem":     true,
	"IfThenElse":        true,
	"Loop":              true,
	"CodeList":          true,
	"Category":          true,
}

type Loader struct {
	ScopeName   string
	KeepMissing bool // keep codes with negative values, normally used for missing data
	Root        *Node

	fragments []*Node
	byID      map[string]*Node
	byType    map[string][]*Node
}

func NewLoader(filename string) (*Loader, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	return NewReaderLoader(bufio.NewReader(f), filename)
}

func NewReaderLoader(r io.Reader, scope string) (*Loader, error) {
	root, err := Parse(r)
	if err != nil {
		return nil, err
	}

	l := &Loader{
		ScopeName: scope,
		Root:      root,
		byID:      make(map[string]*Node),
		byType:    make(map[string][]*Node),
	}
	l.indexObjects()
	return l, nil
}

func (l *Loader) Scope() string {
	return l.ScopeName
}

func (l *Loader) indexObjects() {
	for _, f := range l.Root.All("Fragment") {
		l.fragments = append(l.fragments, f.Children...)
	}

	var walk func(*Node)
	walk = func(n *Node) {
		if identified[n.Name] {
			if id := n.PathText("ID"); id != "" {
				if _, exists := l.byID[id]; !exists {
					l.byID[id] = n
					l.byType[n.Name] = append(l.byType[n.Name], n)
				}
			}
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(l.Root)
}

// Fragments returns the top level item of every fragment in document order.
func (l *Loader) Fragments() []*Node {
	return l.fragments
}

func (l *Loader) Load(in *model.Instrument) error {
	b := &builder{
		Loader:         l,
		in:             in,
		codeLists:      make(map[string]string),
		responseLabels: make(map[string]string),
		questionRefs:   make(map[string]string),
		items:          make(map[string][]*model.QuestionItem),
		grids:          make(map[string]*model.QuestionGrid),
		statements:     make(map[string]*model.Statement),
		conditions:     make(map[string]*conditionInfo),
		loops:          make(map[string]*loopInfo),
		sequences:      make(map[string]*sequenceInfo),
		derived:        make(map[string]bool),
		placed:         make(map[string]bool),
		positions:      make(map[string]int),
	}

	instruments := b.study()
	if len(instruments) == 0 {
		return fmt.Errorf("no instruments found")
	}

	b.codeListTable()
	b.responseTable()
	b.statementItems()
	b.questionItems()
	b.questionGrids()
	b.ifThenElses()
	b.loopConstructs()
	b.sequenceConstructs()

	for _, inst := range instruments {
		p := parent{label: instrumentLabel(inst), typ: model.ParentTypeSequence, branch: 1}
		b.placeChildren(refIDs(inst.All("ControlConstructReference")), p, true)
	}

	b.relabelLoops()

	unplaced := 0
	for id := range b.statements {
		if !b.placed[id] {
			unplaced++
		}
	}
	for id := range b.conditions {
		if !b.placed[id] {
			unplaced++
		}
	}
	for id := range b.loops {
		if !b.placed[id] {
			unplaced++
		}
	}
	if unplaced > 0 {
		slog.Info("constructs not used by any selected instrument", "count", unplaced)
	}

	return nil
}

type parent struct {
	label  string
	typ    model.ParentType
	branch int
}

type conditionInfo struct {
	condition *model.Condition
	then      []string
	els       []string
}

type loopInfo struct {
	loop  *model.Loop
	named bool // whether the label came from a construct name
	refs  []string
}

type sequenceInfo struct {
	label string
	refs  []string
}

type builder struct {
	*Loader
	in *model.Instrument

	codeLists      map[string]string // code list id to label
	responseLabels map[string]string // domain key to final label
	questionRefs   map[string]string // question construct id to question id
	items          map[string][]*model.QuestionItem
	grids          map[string]*model.QuestionGrid
	statements     map[string]*model.Statement
	conditions     map[string]*conditionInfo
	loops          map[string]*loopInfo
	sequences      map[string]*sequenceInfo
	derived        map[string]bool // questions dropped for lack of a literal
	placed         map[string]bool
	positions      map[string]int
}

// study fills the study row and the top of the sequence table and returns the
// instruments to convert.
func (b *builder) study() []*Node {
	var su, dc *Node
	if nodes := b.byType["StudyUnit"]; len(nodes) > 0 {
		su = nodes[0]
	}
	if nodes := b.byType["DataCollection"]; len(nodes) > 0 {
		dc = nodes[0]
		if len(nodes) > 1 {
			b.in.AddAnomaly(model.AnomalyCategoryReference, "", fmt.Sprintf("found %d data collections, using the first", len(nodes)))
		}
	}

	st := model.Study{
		Agency: su.PathText("Agency"),
		Title:  su.PathText("Citation", "Title", "String"),
	}

	var listed []string
	if dc != nil {
		if ref := su.PathText("DataCollectionReference", "ID"); ref != "" && ref != dc.PathText("ID") {
			b.in.AddAnomaly(model.AnomalyCategoryReference, "", fmt.Sprintf("study refers to data collection %s but found %s", ref, dc.PathText("ID")))
		}
		if st.Agency == "" {
			st.Agency = dc.PathText("Agency")
		}
		st.Name = dc.PathText("DataCollectionModuleName", "String")
		st.Label = dc.PathText("Label", "Content")
		for _, uap := range dc.All("UserAttributePair") {
			if v := uap.PathText("AttributeValue"); strings.Contains(v, "urn:") {
				listed = instrumentIDs(v)
				break
			}
		}
	}
	if st.Label == "" {
		st.Label = st.Title
	}
	if st.Name == "" {
		st.Name = st.Label
	}
	b.in.Study = st

	var instruments []*Node
	if len(listed) > 0 {
		for _, id := range listed {
			n, ok := b.byID[id]
			if !ok || n.Name != "Instrument" {
				b.in.AddAnomaly(model.AnomalyCategoryReference, id, "instrument listed by data collection not found")
				continue
			}
			instruments = append(instruments, n)
		}
	} else {
		instruments = b.byType["Instrument"]
	}

	top := &model.Sequence{Label: st.Label}
	top.Place(model.ParentTypeNone, "", 1, 1)
	b.in.Sequences = append(b.in.Sequences, top)
	for i, inst := range instruments {
		s := &model.Sequence{Label: instrumentLabel(inst)}
		s.Place(model.ParentTypeSequence, st.Label, 1, i+1)
		b.in.Sequences = append(b.in.Sequences, s)
	}

	return instruments
}

// instrumentIDs extracts the ids from a list of urns such as
// ["urn:ddi:uk.iser:1234-abcd:1","urn:ddi:uk.iser:5678-efgh:1"]
func instrumentIDs(v string) []string {
	v = strings.NewReplacer("[", "", "]", "", `"`, "").Replace(v)
	var ids []string
	for _, urn := range strings.Split(v, ",") {
		urn = strings.TrimSpace(urn)
		if urn == "" {
			continue
		}
		parts := strings.Split(urn, ":")
		if len(parts) >= 5 && parts[0] == "urn" {
			ids = append(ids, parts[3])
			continue
		}
		ids = append(ids, urn)
	}
	return ids
}

func instrumentLabel(n *Node) string {
	if l := n.PathText("Label", "Content"); l != "" {
		return l
	}
	if l := n.PathText("InstrumentName", "String"); l != "" {
		return l
	}
	return n.PathText("ID")
}

func (b *builder) codeListTable() {
	categories := make(map[string]string)
	for _, c := range b.byType["Category"] {
		categories[c.PathText("ID")] = c.PathText("Label", "Content")
	}

	owners := make(map[string]string)
	for _, cl := range b.byType["CodeList"] {
		id := cl.PathText("ID")
		name := cl.PathText("CodeListName", "String")
		if name == "" {
			name = text.SanitizeLabel(cl.PathText("Label", "Content"))
		}
		if name == "" {
			name = id
		}
		label := model.PrefixCodeList + name
		b.codeLists[id] = label

		if other, ok := owners[label]; ok {
			b.in.AddAnomaly(model.AnomalyCategoryCodeList, label, fmt.Sprintf("code lists %s and %s share a name", other, id))
			continue
		}
		owners[label] = id

		order := 0
		for _, code := range cl.All("Code") {
			value := code.PathText("Value")
			if strings.HasPrefix(value, "-") && !b.KeepMissing {
				continue
			}
			catID := code.PathText("CategoryReference", "ID")
			cat, ok := categories[catID]
			if !ok {
				b.in.AddAnomaly(model.AnomalyCategoryCodeList, label, fmt.Sprintf("code %s refers to unknown category %s", value, catID))
			}
			order++
			b.in.Codes = append(b.in.Codes, &model.Code{
				Label:    label,
				Order:    order,
				Value:    value,
				Category: cat,
			})
		}
	}
}

// domainOf builds the response domain described by a text, numeric or date
// domain element, labelled with its base label.
func domainOf(n *Node) *model.ResponseDomain {
	rd := &model.ResponseDomain{}
	switch n.Name {
	case "TextDomain":
		rd.Type = model.ResponseTypeText
		rd.Label = n.PathText("Label", "Content")
		rd.Min, _ = n.Attr("minLength")
		rd.Max, _ = n.Attr("maxLength")
		if rd.Label == "" {
			rd.Label = genericText
		}
		if rd.Label == genericText && rd.Min == "" && rd.Max == "" {
			rd.Label = longText
		}
	case "NumericDomain":
		rd.Type = model.ResponseTypeNumeric
		rd.Label = n.PathText("Label", "Content")
		rd.Subtype = n.PathText("NumericTypeCode")
		rd.Min = n.PathText("NumberRange", "Low")
		rd.Max = n.PathText("NumberRange", "High")
		if rd.Label == "" {
			rd.Label = genericNumber
		}
		if rd.Label == genericNumber && rd.Max == "" {
			rd.Label = longNumber
		}
	case "DateTimeDomain":
		rd.Type = model.ResponseTypeDate
		rd.Label = genericDate
		rd.Subtype = n.PathText("DateTypeCode")
		rd.Format = n.PathText("Label", "Content")
	}
	return rd
}

func domainKey(rd *model.ResponseDomain) string {
	return rd.Label + "\x1f" + rd.Key()
}

// responseTable collects every distinct response domain. Distinct domains that
// share a label are numbered after the first.
func (b *builder) responseTable() {
	count := make(map[string]int)
	for _, name := range []string{"TextDomain", "NumericDomain", "DateTimeDomain"} {
		for _, n := range b.Root.Descendants(name) {
			rd := domainOf(n)
			key := domainKey(rd)
			if _, seen := b.responseLabels[key]; seen {
				continue
			}
			base := rd.Label
			if c := count[base]; c > 0 {
				rd.Label = base + " " + strconv.Itoa(c)
			}
			count[base]++
			b.responseLabels[key] = rd.Label
			b.in.Responses = append(b.in.Responses, rd)
		}
	}
}

func (b *builder) responseLabel(n *Node) string {
	return b.responseLabels[domainKey(domainOf(n))]
}

func (b *builder) statementItems() {
	for _, n := range b.byType["StatementItem"] {
		b.statements[n.PathText("ID")] = &model.Statement{
			Label:   model.PrefixStatement + n.PathText("ConstructName", "String"),
			Literal: n.PathText("DisplayText", "LiteralText", "Text"),
		}
	}
	for _, n := range b.byType["QuestionConstruct"] {
		b.questionRefs[n.PathText("ID")] = n.PathText("QuestionReference", "ID")
	}
}

var instructionPattern = regexp.MustCompile(`\*Please.*?\*`)

// splitInstructions moves an instruction written into the literal as *Please...*
// into the instructions.
func splitInstructions(literal, instructions string) (string, string) {
	m := instructionPattern.FindString(literal)
	if m == "" {
		return literal, instructions
	}
	literal = text.RemoveRedundantWhitespace(strings.Replace(literal, m, "", 1))
	return literal, strings.TrimSpace(strings.ReplaceAll(m, "*", ""))
}

func questionInstructions(n *Node) string {
	var ins []string
	for _, uap := range n.All("UserAttributePair") {
		if uap.PathText("UserAttributeKey") == instructionKey {
			if v := uap.PathText("UserAttributeValue"); v != "" {
				ins = append(ins, v)
			}
		}
	}
	return strings.Join(ins, "\n")
}

func cardinality(n *Node) (int, int) {
	lo, hi := 1, 1
	rc := n.Child("ResponseCardinality")
	if v, ok := rc.Attr("minimumResponses"); ok {
		if i, err := strconv.Atoi(v); err == nil {
			lo = i
		}
	}
	if v, ok := rc.Attr("maximumResponses"); ok {
		if i, err := strconv.Atoi(v); err == nil {
			hi = i
		}
	}
	return lo, hi
}

func (b *builder) questionItems() {
	for _, n := range b.byType["QuestionItem"] {
		id := n.PathText("ID")
		label := model.PrefixQuestionItem + n.PathText("QuestionItemName", "String")
		literal := n.PathText("QuestionText", "LiteralText", "Text")
		minR, maxR := cardinality(n)

		var response string
		if d := n.First("TextDomain"); d != nil {
			response = b.responseLabel(d)
		} else if d := n.First("NumericDomain"); d != nil {
			response = b.responseLabel(d)
		} else if d := n.First("DateTimeDomain"); d != nil {
			response = b.responseLabel(d)
		} else if d := n.First("CodeDomain"); d != nil {
			clid := d.PathText("CodeListReference", "ID")
			var ok bool
			response, ok = b.codeLists[clid]
			if !ok {
				b.in.AddAnomaly(model.AnomalyCategoryReference, label, fmt.Sprintf("response refers to unknown code list %s", clid))
			}
			if literal == "" {
				literal = d.PathText("Label", "Content")
			}
		} else {
			b.in.AddAnomaly(model.AnomalyCategoryResponse, label, "question has no response domain")
		}

		if literal == "" {
			slog.Debug("dropping derived question", "label", label)
			b.derived[id] = true
			continue
		}

		literal, instructions := splitInstructions(literal, questionInstructions(n))
		b.items[id] = []*model.QuestionItem{{
			Label:        label,
			Literal:      literal,
			Instructions: instructions,
			Response:     response,
			MinResponses: minR,
			MaxResponses: maxR,
		}}
	}
}

// questionGrids converts grids of numeric domains into one question item per
// domain and grids of code lists into question grids.
func (b *builder) questionGrids() {
	for _, n := range b.byType["QuestionGrid"] {
		id := n.PathText("ID")
		name := n.PathText("QuestionGridName", "String")
		literal := n.PathText("QuestionText", "LiteralText", "Text")
		if literal == "" {
			slog.Debug("dropping derived question grid", "label", model.PrefixQuestionGrid+name)
			b.derived[id] = true
			continue
		}
		literal, instructions := splitInstructions(literal, questionInstructions(n))

		if nums := n.Descendants("NumericDomain"); len(nums) > 0 {
			labels := make([]string, len(nums))
			for k, d := range nums {
				labels[k] = model.PrefixQuestionItem + name + text.FirstWord(domainOf(d).Label)
			}
			labels = text.NumberAfterFirst(labels)

			items := make([]*model.QuestionItem, len(nums))
			for k, d := range nums {
				items[k] = &model.QuestionItem{
					Label:        labels[k],
					Literal:      literal,
					Instructions: instructions,
					Response:     b.responseLabel(d),
					MinResponses: 1,
					MaxResponses: 1,
				}
			}
			b.items[id] = items
			continue
		}

		label := model.PrefixQuestionGrid + name
		dims := n.All("GridDimension")
		sort.SliceStable(dims, func(i, j int) bool {
			ri, _ := dims[i].Attr("rank")
			rj, _ := dims[j].Attr("rank")
			return ri < rj
		})
		var vertical, horizontal string
		if len(dims) > 0 {
			vertical = b.codeListOf(label, dims[0].Child("CodeDomain"))
		}
		if cd := n.Child("CodeDomain"); cd != nil {
			horizontal = b.codeListOf(label, cd)
		} else if len(dims) > 1 {
			horizontal = b.codeListOf(label, dims[1].Child("CodeDomain"))
		}
		if vertical == "" && horizontal == "" {
			b.in.AddAnomaly(model.AnomalyCategoryResponse, label, "grid has neither numeric domains nor code lists")
			continue
		}

		b.grids[id] = &model.QuestionGrid{
			Label:              label,
			Literal:            literal,
			Instructions:       instructions,
			HorizontalCodeList: horizontal,
			VerticalCodeList:   vertical,
		}
	}
}

func (b *builder) codeListOf(label string, cd *Node) string {
	if cd == nil {
		return ""
	}
	clid := cd.PathText("CodeListReference", "ID")
	cl, ok := b.codeLists[clid]
	if !ok {
		b.in.AddAnomaly(model.AnomalyCategoryReference, label, fmt.Sprintf("grid refers to unknown code list %s", clid))
	}
	return cl
}

func (b *builder) ifThenElses() {
	nodes := b.byType["IfThenElse"]
	names := make([]string, len(nodes))
	for i, n := range nodes {
		name := strings.ToLower(n.PathText("ConstructName", "String"))
		names[i] = model.PrefixCondition + strings.TrimSpace(strings.ReplaceAll(name, "condition", ""))
	}
	labels := text.NumberAll(names)

	for i, n := range nodes {
		lg := logic.Convert(n.PathText("IfCondition", "Command", "CommandContent"))
		if lg != "" {
			lg = logic.Qualify(lg)
		}
		b.conditions[n.PathText("ID")] = &conditionInfo{
			condition: &model.Condition{
				Label:   labels[i],
				Literal: n.PathText("Label", "Content"),
				Logic:   lg,
			},
			then: refIDs(n.All("ThenConstructReference")),
			els:  refIDs(n.All("ElseConstructReference")),
		}
	}
}

func (b *builder) loopConstructs() {
	nodes := b.byType["Loop"]
	names := make([]string, len(nodes))
	for i, n := range nodes {
		name := n.PathText("ConstructName", "String")
		if name == "" {
			fields := strings.Fields(strings.ReplaceAll(n.PathText("LoopWhile", "Command", "CommandContent"), ".", ""))
			if len(fields) > 0 {
				name = fields[len(fields)-1]
			}
		}
		name = strings.ReplaceAll(strings.ToLower(name), "loop", "")
		names[i] = model.PrefixLoop + strings.Join(strings.Fields(name), "")
	}
	labels := text.NumberAll(names)

	for i, n := range nodes {
		b.loops[n.PathText("ID")] = &loopInfo{
			loop: &model.Loop{
				Label:      labels[i],
				LoopWhile:  n.PathText("LoopWhile", "Command", "CommandContent"),
				StartValue: n.PathText("InitialValue", "Command", "CommandContent"),
			},
			named: n.Has("ConstructName"),
			refs:  refIDs(n.All("ControlConstructReference")),
		}
	}
}

func (b *builder) sequenceConstructs() {
	for _, n := range b.byType["Sequence"] {
		label := n.PathText("Label", "Content")
		if label == "" {
			label = n.PathText("ConstructName", "String")
		}
		b.sequences[n.PathText("ID")] = &sequenceInfo{
			label: label,
			refs:  refIDs(n.All("ControlConstructReference")),
		}
	}
}

func refIDs(refs []*Node) []string {
	ids := make([]string, 0, len(refs))
	for _, r := range refs {
		if id := r.PathText("ID"); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func (b *builder) next(p parent) int {
	key := p.label + "\x1f" + strconv.Itoa(p.branch)
	b.positions[key]++
	return b.positions[key]
}

// placeChildren places the referenced constructs in order. When inline is true
// referenced sequences are transparent and their children take their place.
func (b *builder) placeChildren(ids []string, p parent, inline bool) {
	for _, id := range ids {
		b.placeConstruct(id, p, inline)
	}
}

func (b *builder) placeConstruct(id string, p parent, inline bool) {
	n, ok := b.byID[id]
	if !ok {
		b.in.AddAnomaly(model.AnomalyCategoryReference, p.label, fmt.Sprintf("reference to unknown construct %s", id))
		return
	}
	if b.placed[id] {
		b.in.AddAnomaly(model.AnomalyCategoryReference, p.label, fmt.Sprintf("%s %s is referenced more than once", n.Name, id))
		return
	}
	b.placed[id] = true

	switch n.Name {
	case "Sequence":
		s := b.sequences[id]
		if inline {
			b.placeChildren(s.refs, p, false)
			return
		}
		seq := &model.Sequence{Label: s.label}
		seq.Place(p.typ, p.label, p.branch, b.next(p))
		b.in.Sequences = append(b.in.Sequences, seq)
		b.placeChildren(s.refs, parent{label: seq.Label, typ: model.ParentTypeSequence, branch: 1}, false)

	case "QuestionConstruct":
		qid := b.questionRefs[id]
		if b.derived[qid] {
			return
		}
		if b.placed[qid] {
			b.in.AddAnomaly(model.AnomalyCategoryReference, p.label, fmt.Sprintf("question %s is used by more than one construct", qid))
			return
		}
		b.placed[qid] = true
		if items, ok := b.items[qid]; ok {
			for _, q := range items {
				q.Place(p.typ, p.label, p.branch, b.next(p))
				b.in.QuestionItems = append(b.in.QuestionItems, q)
			}
			return
		}
		if g, ok := b.grids[qid]; ok {
			g.Place(p.typ, p.label, p.branch, b.next(p))
			b.in.QuestionGrids = append(b.in.QuestionGrids, g)
			return
		}
		b.in.AddAnomaly(model.AnomalyCategoryReference, p.label, fmt.Sprintf("question construct %s refers to unknown question %s", id, qid))

	case "StatementItem":
		s := b.statements[id]
		s.Place(p.typ, p.label, p.branch, b.next(p))
		b.in.Statements = append(b.in.Statements, s)

	case "IfThenElse":
		c := b.conditions[id]
		c.condition.Place(p.typ, p.label, p.branch, b.next(p))
		b.in.Conditions = append(b.in.Conditions, c.condition)
		b.placeChildren(c.then, parent{label: c.condition.Label, typ: model.ParentTypeCondition, branch: 0}, true)
		b.placeChildren(c.els, parent{label: c.condition.Label, typ: model.ParentTypeCondition, branch: 1}, true)

	case "Loop":
		l := b.loops[id]
		l.loop.Place(p.typ, p.label, p.branch, b.next(p))
		b.in.Loops = append(b.in.Loops, l.loop)
		b.placeChildren(l.refs, parent{label: l.loop.Label, typ: model.ParentTypeLoop, branch: 1}, true)

	default:
		b.in.AddAnomaly(model.AnomalyCategoryReference, p.label, fmt.Sprintf("unsupported construct %s %s", n.Name, id))
	}
}

// relabelLoops names loops that had no construct name after the first question
// they contain.
func (b *builder) relabelLoops() {
	for _, n := range b.byType["Loop"] {
		id := n.PathText("ID")
		li := b.loops[id]
		if li.named || !b.placed[id] {
			continue
		}
		for _, q := range b.in.QuestionItems {
			if q.ParentType == model.ParentTypeLoop && q.ParentName == li.loop.Label && q.Position == 1 {
				nl := "l_" + text.ReplacePrefix(q.Label, model.PrefixQuestionItem, model.PrefixQuestionConstruct)
				slog.Debug("relabelling loop", "label", li.loop.Label, "new", nl)
				b.in.Rename(model.KindLoop, li.loop.Label, nl)
				break
			}
		}
	}
}
