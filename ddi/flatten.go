package ddi

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/iand/cctables/archivist"
)

// DefaultDropPattern matches the bookkeeping columns that are usually
// dropped from flattened fragments.
const DefaultDropPattern = `(@versionDate$|@xmlns$|URN$|Agency$|@isUniversallyUnique$|Version$)`

// A Table is the flattened form of every fragment of one type. Columns are
// element paths joined with underscores, attributes are prefixed with @ and
// repeated elements are numbered from one.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// Flatten converts every fragment into a row of the table for its type.
// Columns matching drop, and columns with no values, are omitted.
func (l *Loader) Flatten(drop *regexp.Regexp) []*Table {
	type tableBuilder struct {
		columns []string
		known   map[string]bool
		records []map[string]string
	}

	var order []string
	byName := make(map[string]*tableBuilder)

	for _, f := range l.fragments {
		tb, ok := byName[f.Name]
		if !ok {
			tb = &tableBuilder{known: make(map[string]bool)}
			byName[f.Name] = tb
			order = append(order, f.Name)
		}

		rec := make(map[string]string)
		var cols []string
		flattenNode(f, "", rec, &cols)
		for _, c := range cols {
			if !tb.known[c] {
				tb.known[c] = true
				tb.columns = append(tb.columns, c)
			}
		}
		tb.records = append(tb.records, rec)
	}

	tables := make([]*Table, 0, len(order))
	for _, name := range order {
		tb := byName[name]
		t := &Table{Name: name}
		for _, c := range tb.columns {
			if drop != nil && drop.MatchString(c) {
				continue
			}
			for _, rec := range tb.records {
				if rec[c] != "" {
					t.Columns = append(t.Columns, c)
					break
				}
			}
		}
		for _, rec := range tb.records {
			row := make([]string, len(t.Columns))
			for i, c := range t.Columns {
				row[i] = rec[c]
			}
			t.Rows = append(t.Rows, row)
		}
		tables = append(tables, t)
	}
	return tables
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "_" + name
}

func flattenNode(n *Node, prefix string, rec map[string]string, cols *[]string) {
	set := func(k, v string) {
		if _, exists := rec[k]; !exists {
			*cols = append(*cols, k)
		}
		rec[k] = v
	}

	attrs := 0
	for _, a := range n.Attrs {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		attrs++
		set(joinPath(prefix, "@"+a.Name.Local), a.Value)
	}

	counts := make(map[string]int)
	for _, c := range n.Children {
		counts[c.Name]++
	}
	seen := make(map[string]int)
	for _, c := range n.Children {
		key := c.Name
		if counts[c.Name] > 1 {
			seen[c.Name]++
			key += "_" + strconv.Itoa(seen[c.Name])
		}
		flattenNode(c, joinPath(prefix, key), rec, cols)
	}

	t := strings.TrimSpace(n.Text)
	if t == "" {
		return
	}
	if len(n.Children) == 0 && attrs == 0 && prefix != "" {
		set(prefix, t)
		return
	}
	set(joinPath(prefix, "#text"), t)
}

// WriteTables writes each table to a comma separated file named after the
// fragment type.
func WriteTables(dir string, tables []*Table) error {
	for _, t := range tables {
		fname := filepath.Join(dir, t.Name+".csv")
		slog.Info("writing flattened fragments", "filename", fname, "rows", len(t.Rows))
		if err := writeTable(fname, t); err != nil {
			return fmt.Errorf("write %s: %w", t.Name, err)
		}
	}
	return nil
}

func writeTable(fname string, t *Table) error {
	f, err := archivist.CreateFile(fname)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(t.Columns); err != nil {
		return err
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return err
	}
	return f.Close()
}
