package tree

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/iand/cctables/model"
	"github.com/iand/cctables/text"
)

var (
	ErrDuplicateLabel = errors.New("duplicate construct label")
	ErrInvalidSpan    = errors.New("span ends before it starts")
)

// DefaultSimilarity is the label similarity at or above which consecutive
// questions are treated as belonging to the same open-ended condition or loop.
const DefaultSimilarity = 0.8

// A Node is one construct in the flat, ordered list read from a source
// document. Start is its position in the source order. End is the position
// just after the last construct covered by a condition or loop, or zero when
// the source gives no end.
type Node struct {
	Kind   model.Kind
	Label  string
	Start  int
	End    int
	Branch int // for conditions, the branch their children are placed in

	// Placement receives the inferred parent and position.
	Placement *model.Placement

	// Rename, when set, receives the new label of a sequence renamed because
	// its label was already taken.
	Rename func(label string)
}

func (n *Node) isSpan() bool {
	return n.Kind == model.KindCondition || n.Kind == model.KindLoop
}

// Tree infers the sequence, condition and loop hierarchy of a questionnaire
// from constructs listed in document order.
type Tree struct {
	Root       string // label of the top level sequence, may be empty
	Similarity float64
	Nodes      []*Node
	Anomalies  []*model.Anomaly
}

func New(root string) *Tree {
	return &Tree{
		Root:       root,
		Similarity: DefaultSimilarity,
	}
}

type Options struct {
	Similarity float64 // zero means DefaultSimilarity
}

// Infer places the nodes under root, writing each node's placement. It returns
// the anomalies found while placing them.
func Infer(root string, nodes []*Node, opts Options) ([]*model.Anomaly, error) {
	t := New(root)
	if opts.Similarity > 0 {
		t.Similarity = opts.Similarity
	}
	for _, n := range nodes {
		if n.Placement == nil {
			n.Placement = new(model.Placement)
		}
	}
	t.Nodes = nodes
	if err := t.Generate(); err != nil {
		return nil, err
	}
	return t.Anomalies, nil
}

func (t *Tree) anomaly(cat model.AnomalyCategory, label, text string) {
	t.Anomalies = append(t.Anomalies, &model.Anomaly{Category: cat, Label: label, Text: text})
}

// Generate assigns a parent, branch and position to every node.
func (t *Tree) Generate() error {
	nodes := make([]*Node, len(t.Nodes))
	copy(nodes, t.Nodes)
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].Start < nodes[j].Start })

	if err := t.validate(nodes); err != nil {
		return err
	}

	ends := t.spanEnds(nodes)
	positions := make(map[string]int)

	var section *Node
	for i, n := range nodes {
		if n.Kind == model.KindSequence {
			section = n
			positions[t.Root]++
			pt := model.ParentTypeSequence
			if t.Root == "" {
				pt = model.ParentTypeNone
			}
			n.Placement.Place(pt, t.Root, 1, positions[t.Root])
			continue
		}

		parent := t.enclosing(nodes[:i], n, ends)
		switch {
		case parent != nil:
			positions[parent.Label]++
			branch := 1
			if parent.Kind == model.KindCondition {
				branch = parent.Branch
			}
			n.Placement.Place(parent.Kind.ParentType(), parent.Label, branch, positions[parent.Label])
		case section != nil:
			positions[section.Label]++
			n.Placement.Place(model.ParentTypeSequence, section.Label, 1, positions[section.Label])
		default:
			positions[t.Root]++
			pt := model.ParentTypeSequence
			if t.Root == "" {
				pt = model.ParentTypeNone
			}
			n.Placement.Place(pt, t.Root, 1, positions[t.Root])
		}
		slog.Debug("placed construct", "label", n.Label, "parent", n.Placement.ParentName, "position", n.Placement.Position)
	}

	return nil
}

// validate checks spans and parent labels. A sequence whose label is already
// taken by the root or an earlier parent is renamed; any other repeated parent
// label is an error.
func (t *Tree) validate(nodes []*Node) error {
	used := make(map[string]bool)
	if t.Root != "" {
		used[t.Root] = true
	}
	for _, n := range nodes {
		if n.Kind.IsParent() {
			used[n.Label] = true
		}
	}

	seen := make(map[string]bool)
	if t.Root != "" {
		seen[t.Root] = true
	}
	for _, n := range nodes {
		if n.End != 0 && n.End < n.Start {
			return fmt.Errorf("%w: %s %q (%d to %d)", ErrInvalidSpan, n.Kind, n.Label, n.Start, n.End)
		}
		if !n.Kind.IsParent() {
			continue
		}
		if seen[n.Label] {
			if n.Kind != model.KindSequence {
				return fmt.Errorf("%w: %s %q", ErrDuplicateLabel, n.Kind, n.Label)
			}
			label := text.Unused(n.Label, used)
			used[label] = true
			t.anomaly(model.AnomalyCategoryLabel, n.Label, fmt.Sprintf("sequence label is already used, renamed %s", label))
			n.Label = label
			if n.Rename != nil {
				n.Rename(label)
			}
		}
		seen[n.Label] = true
	}
	return nil
}

// spanEnds computes the exclusive end of every condition and loop. A span
// without an end covers the next construct and then any run of questions whose
// labels are similar to the one before. No span reaches past the start of the
// next sequence. Spans are resolved from the last node backwards so a covered
// span extends its parent to its own end.
func (t *Tree) spanEnds(nodes []*Node) map[*Node]int {
	ends := make(map[*Node]int)
	var section *Node
	for i := len(nodes) - 1; i >= 0; i-- {
		n := nodes[i]
		if n.Kind == model.KindSequence {
			section = n
			continue
		}
		if !n.isSpan() {
			continue
		}
		if n.End != 0 {
			end := n.End
			if section != nil && end > section.Start {
				t.anomaly(model.AnomalyCategoryPosition, n.Label, fmt.Sprintf("span ends at %d after sequence %s starts at %d", n.End, section.Label, section.Start))
				end = section.Start
			}
			ends[n] = end
			continue
		}

		end := n.Start + 1
		var prev *Node
		for j := i + 1; j < len(nodes); j++ {
			next := nodes[j]
			if next.Kind == model.KindSequence {
				break
			}
			if prev == nil {
				end = next.Start + 1
				if next.isSpan() && ends[next] > end {
					end = ends[next]
				}
				prev = next
				continue
			}
			if !prev.Kind.IsQuestion() || !next.Kind.IsQuestion() {
				break
			}
			if text.Similar(next.Label, prev.Label) < t.Similarity {
				break
			}
			end = next.Start + 1
			prev = next
		}
		ends[n] = end
	}
	return ends
}

// enclosing finds the innermost condition or loop among the preceding nodes
// whose span covers n.
func (t *Tree) enclosing(preceding []*Node, n *Node, ends map[*Node]int) *Node {
	var best *Node
	for _, c := range preceding {
		if !c.isSpan() || c.Start >= n.Start {
			continue
		}
		cend := ends[c]
		if n.Start >= cend {
			continue
		}
		if n.isSpan() && ends[n] > cend {
			continue
		}
		if best == nil || c.Start >= best.Start {
			best = c
		}
	}
	return best
}
