// Package bundle normalises the tab separated mapping and linking files of
// Archivist bundles so that each carries its dataset instance and control
// construct scheme columns.
package bundle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gocarina/gocsv"
	"golang.org/x/sync/errgroup"
)

type FileType string

const (
	FileTypeDV        FileType = "dv"        // derived variables
	FileTypeQVMapping FileType = "qvmapping" // question to variable
	FileTypeTVLinking FileType = "tvlinking" // topic to variable
	FileTypeTQLinking FileType = "tqlinking" // topic to question
)

// Columns is the number of columns a complete file of each type has.
var Columns = map[FileType]int{
	FileTypeDV:        4,
	FileTypeQVMapping: 4,
	FileTypeTVLinking: 3,
	FileTypeTQLinking: 3,
}

// SchemeSuffix is appended to the dataset instance name to form the control
// construct scheme.
const SchemeSuffix = "_ccs01"

// ParseFileType returns the type of a bundle file named <prefix>.<type>.txt.
func ParseFileType(fname string) (FileType, bool) {
	parts := strings.Split(filepath.Base(fname), ".")
	if len(parts) < 3 || parts[len(parts)-1] != "txt" {
		return "", false
	}
	ft := FileType(parts[len(parts)-2])
	if _, ok := Columns[ft]; !ok {
		return "", false
	}
	return ft, true
}

type Note struct {
	Path    string `csv:"path"`
	Message string `csv:"message"`
}

const (
	MessageInconsistent = "number of columns are not consistent"
	MessageCorrect      = "already correct"
	MessageEmpty        = "no rows"
)

func splitRows(data []byte) [][]string {
	var rows [][]string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		rows = append(rows, strings.Split(line, "\t"))
	}
	return rows
}

// ColumnCount returns the smallest and largest number of columns in rows.
func ColumnCount(rows [][]string) (int, int) {
	if len(rows) == 0 {
		return 0, 0
	}
	lo, hi := len(rows[0]), len(rows[0])
	for _, r := range rows[1:] {
		lo = min(lo, len(r))
		hi = max(hi, len(r))
	}
	return lo, hi
}

// Expand adds the columns missing from the two column rows of a file of type
// ft belonging to the dataset instance.
func Expand(ft FileType, instance string, rows [][]string) [][]string {
	scheme := instance + SchemeSuffix
	out := make([][]string, len(rows))
	for i, r := range rows {
		switch ft {
		case FileTypeDV:
			out[i] = []string{instance, r[0], instance, r[1]}
		case FileTypeQVMapping:
			out[i] = []string{scheme, r[0], instance, r[1]}
		case FileTypeTVLinking:
			out[i] = []string{instance, r[0], r[1]}
		case FileTypeTQLinking:
			out[i] = []string{scheme, r[0], r[1]}
		}
	}
	return out
}

// NormaliseFile checks the columns of the bundle file fname and rewrites it
// with the full set of columns when it has only two. The dataset instance is
// the name of the directory holding the file.
func NormaliseFile(fname string) (Note, error) {
	note := Note{Path: fname}

	ft, ok := ParseFileType(fname)
	if !ok {
		return note, fmt.Errorf("%s: not a bundle file", fname)
	}
	data, err := os.ReadFile(fname)
	if err != nil {
		return note, err
	}

	rows := splitRows(data)
	lo, hi := ColumnCount(rows)
	want := Columns[ft]

	switch {
	case len(rows) == 0:
		note.Message = MessageEmpty
	case lo != hi:
		note.Message = MessageInconsistent
	case lo == want:
		note.Message = MessageCorrect
	case lo == 2:
		instance := filepath.Base(filepath.Dir(fname))
		if err := writeRows(fname, Expand(ft, instance, rows)); err != nil {
			return note, err
		}
		note.Message = fmt.Sprintf("fixed to %d columns", want)
	default:
		note.Message = fmt.Sprintf("neither 2 nor %d columns", want)
	}

	slog.Debug("checked bundle file", "file", fname, "type", ft, "columns", lo, "note", note.Message)
	return note, nil
}

func writeRows(fname string, rows [][]string) error {
	var buf bytes.Buffer
	for _, r := range rows {
		buf.WriteString(strings.Join(r, "\t"))
		buf.WriteByte('\n')
	}

	info, err := os.Stat(fname)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(fname), "."+filepath.Base(fname)+".*")
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write temporary file: %w", err)
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		tmp.Close()
		return fmt.Errorf("set permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temporary file: %w", err)
	}
	return os.Rename(tmp.Name(), fname)
}

// Files lists the bundle files in each dataset instance directory directly
// below root.
func Files(root string) ([]string, error) {
	dirs, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(root, d.Name()))
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.Type().IsRegular() {
				continue
			}
			if _, ok := ParseFileType(e.Name()); ok {
				files = append(files, filepath.Join(root, d.Name(), e.Name()))
			}
		}
	}
	return files, nil
}

// Normalise processes every bundle file below root, at most limit at a time,
// and returns the notes sorted by path.
func Normalise(ctx context.Context, root string, limit int) ([]Note, error) {
	files, err := Files(root)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	var mu sync.Mutex
	notes := make([]Note, 0, len(files))
	for _, fname := range files {
		fname := fname
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			n, err := NormaliseFile(fname)
			if err != nil {
				return err
			}
			mu.Lock()
			notes = append(notes, n)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(notes, func(i, j int) bool { return notes[i].Path < notes[j].Path })
	return notes, nil
}

// WriteNotes writes one path,message line per note.
func WriteNotes(w io.Writer, notes []Note) error {
	if len(notes) == 0 {
		return nil
	}
	return gocsv.MarshalWithoutHeaders(notes, w)
}
