package xmlclean

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Extension is the file extension of the exports cleaned by CleanDir.
const Extension = ".xml"

// CleanFile repairs and cleans the XML file at fname in place. The cleaned
// document is written to a temporary file in the same directory which then
// replaces fname.
func CleanFile(fname string) error {
	data, err := os.ReadFile(fname)
	if err != nil {
		return err
	}
	info, err := os.Stat(fname)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := Clean(bytes.NewReader(RepairEntities(data)), &buf); err != nil {
		return fmt.Errorf("%s: %w", fname, err)
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

	if err := os.Rename(tmp.Name(), fname); err != nil {
		return fmt.Errorf("replace %s: %w", fname, err)
	}
	slog.Debug("cleaned xml file", "file", fname, "bytes", buf.Len())
	return nil
}

// Files lists the XML files directly inside dir in name order.
func Files(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.EqualFold(filepath.Ext(e.Name()), Extension) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// CleanDir cleans every XML file directly inside dir, at most limit at a time.
// It stops starting new files after the first failure and returns that
// failure along with the number of files cleaned.
func CleanDir(ctx context.Context, dir string, limit int) (int, error) {
	files, err := Files(dir)
	if err != nil {
		return 0, fmt.Errorf("list files: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	done := make([]bool, len(files))
	for i, fname := range files {
		i, fname := i, fname
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := CleanFile(fname); err != nil {
				return err
			}
			done[i] = true
			return nil
		})
	}
	err = g.Wait()

	n := 0
	for _, d := range done {
		if d {
			n++
		}
	}
	return n, err
}
