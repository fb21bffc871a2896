// Package xmlclean repairs Archivist XML exports: it fixes doubly escaped
// entities, expands character references and joins text broken over lines.
package xmlclean

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/iand/cctables/text"
)

// Declaration is written at the start of every cleaned document.
const Declaration = "<?xml version='1.0' encoding='UTF-8'?>\n"

var entityRepairs = []struct {
	old, new []byte
}{
	{[]byte("&amp;amp;#"), []byte("&#")},
	{[]byte("&amp;amp;"), []byte("&amp;")},
	{[]byte("&amp;#"), []byte("&#")},
}

// a numeric character reference terminated by a colon instead of a semicolon
var colonReference = regexp.MustCompile(`(&#[0-9]+):`)

// RepairEntities undoes the escaping mistakes commonly found in exports. The
// repairs are applied in order, each to the output of the last.
func RepairEntities(b []byte) []byte {
	for _, r := range entityRepairs {
		b = bytes.ReplaceAll(b, r.old, r.new)
	}
	return colonReference.ReplaceAll(b, []byte("${1};"))
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		`"`, "&quot;",
		"\n", "&#10;",
		"\r", "&#13;",
		"\t", "&#9;",
	)
)

func name(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

type writer struct {
	w   *bufio.Writer
	err error
}

func (w *writer) write(ss ...string) {
	for _, s := range ss {
		if w.err != nil {
			return
		}
		_, w.err = w.w.WriteString(s)
	}
}

func (w *writer) start(se xml.StartElement, empty bool) {
	w.write("<", name(se.Name))
	for _, a := range se.Attr {
		w.write(" ", name(a.Name), `="`, attrEscaper.Replace(a.Value), `"`)
	}
	if empty {
		w.write("/>")
		return
	}
	w.write(">")
}

// Clean reads an XML document from r and writes it to w as UTF-8 with an XML
// declaration. Character data containing a line break before its trailing
// whitespace has every line break replaced by a space. Elements with no
// content are written in self-closing form. Namespace prefixes are kept as
// written.
func Clean(r io.Reader, w io.Writer) error {
	d := xml.NewDecoder(r)
	d.CharsetReader = charset.NewReaderLabel
	d.Entity = xml.HTMLEntity

	out := &writer{w: bufio.NewWriter(w)}
	out.write(Declaration)

	var pending *xml.StartElement
	depth := 0
	for {
		tok, err := d.RawToken()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("decode: %w", err)
		}
		tok = xml.CopyToken(tok)

		if pending != nil {
			if _, ok := tok.(xml.EndElement); ok {
				out.start(*pending, true)
				pending = nil
				depth--
				continue
			}
			out.start(*pending, false)
			pending = nil
		}

		switch t := tok.(type) {
		case xml.ProcInst:
			if t.Target == "xml" {
				continue
			}
			out.write("<?", t.Target, " ", string(t.Inst), "?>")
			if depth == 0 {
				out.write("\n")
			}
		case xml.StartElement:
			pending = &t
			depth++
		case xml.EndElement:
			out.write("</", name(t.Name), ">")
			depth--
			if depth == 0 {
				out.write("\n")
			}
		case xml.CharData:
			s := string(t)
			if depth == 0 {
				// whitespace outside the root element
				continue
			}
			if text.HasInteriorNewline(s) {
				s = text.CollapseNewlines(s)
			}
			out.write(textEscaper.Replace(s))
		case xml.Comment:
			out.write("<!--", string(t), "-->")
			if depth == 0 {
				out.write("\n")
			}
		case xml.Directive:
			out.write("<!", string(t), ">")
			if depth == 0 {
				out.write("\n")
			}
		}
	}
	if pending != nil || depth != 0 {
		return fmt.Errorf("decode: %w", io.ErrUnexpectedEOF)
	}

	if out.err != nil {
		return out.err
	}
	return out.w.Flush()
}
