package ddi

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// Node is a generic XML element. DDI schemas are matched by local name only
// since exports differ in the namespace prefixes and versions they use.
type Node struct {
	Name     string
	Attrs    []xml.Attr
	Text     string
	Children []*Node
}

func (n *Node) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	n.Name = start.Name.Local
	n.Attrs = start.Attr

	var content strings.Builder
	for {
		token, err := d.Token()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}

		switch t := token.(type) {
		case xml.StartElement:
			child := new(Node)
			if err := child.UnmarshalXML(d, t); err != nil {
				return err
			}
			n.Children = append(n.Children, child)
		case xml.EndElement:
			n.Text = content.String()
			return nil
		case xml.CharData:
			content.Write(t)
		}
	}

	n.Text = content.String()
	return nil
}

// Parse reads an XML document into a tree of nodes.
func Parse(r io.Reader) (*Node, error) {
	d := xml.NewDecoder(r)
	d.CharsetReader = charsetReader

	root := new(Node)
	if err := d.Decode(root); err != nil {
		return nil, fmt.Errorf("decode xml: %w", err)
	}
	return root, nil
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	return enc.NewDecoder().Reader(input), nil
}

// Child returns the first child element with the given local name.
func (n *Node) Child(name string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// All returns every child element with the given local name.
func (n *Node) All(name string) []*Node {
	if n == nil {
		return nil
	}
	var nodes []*Node
	for _, c := range n.Children {
		if c.Name == name {
			nodes = append(nodes, c)
		}
	}
	return nodes
}

// Path follows a chain of child names, returning nil if any step is missing.
func (n *Node) Path(names ...string) *Node {
	for _, name := range names {
		n = n.Child(name)
		if n == nil {
			return nil
		}
	}
	return n
}

// PathText returns the trimmed text of the element at the end of the path.
func (n *Node) PathText(names ...string) string {
	p := n.Path(names...)
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.Text)
}

// Has reports whether the element at the end of the path exists.
func (n *Node) Has(names ...string) bool {
	return n.Path(names...) != nil
}

func (n *Node) Attr(name string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attrs {
		if a.Name.Local == name && a.Name.Space != "xmlns" {
			return a.Value, true
		}
	}
	return "", false
}

// Descendants returns every element below n with the given local name in
// document order.
func (n *Node) Descendants(name string) []*Node {
	var nodes []*Node
	var walk func(*Node)
	walk = func(p *Node) {
		for _, c := range p.Children {
			if c.Name == name {
				nodes = append(nodes, c)
			}
			walk(c)
		}
	}
	if n != nil {
		walk(n)
	}
	return nodes
}

// First returns the first descendant with the given local name.
func (n *Node) First(name string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
		if d := c.First(name); d != nil {
			return d
		}
	}
	return nil
}
