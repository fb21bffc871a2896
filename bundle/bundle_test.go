package bundle

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseFileType(t *testing.T) {
	testCases := []struct {
		fname string
		want  FileType
		ok    bool
	}{
		{fname: "ncds_04.dv.txt", want: FileTypeDV, ok: true},
		{fname: "bundles/ncds_04/ncds_04.qvmapping.txt", want: FileTypeQVMapping, ok: true},
		{fname: "a.b.tvlinking.txt", want: FileTypeTVLinking, ok: true},
		{fname: "x.tqlinking.txt", want: FileTypeTQLinking, ok: true},
		{fname: "tqlinking.txt", ok: false},
		{fname: "x.dv.csv", ok: false},
		{fname: "x.readme.txt", ok: false},
	}

	for _, tc := range testCases {
		t.Run(tc.fname, func(t *testing.T) {
			got, ok := ParseFileType(tc.fname)
			if ok != tc.ok || got != tc.want {
				t.Errorf("ParseFileType(%q) = %q, %v, want %q, %v", tc.fname, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestExpand(t *testing.T) {
	rows := [][]string{{"a", "b"}}
	testCases := []struct {
		ft   FileType
		want [][]string
	}{
		{ft: FileTypeDV, want: [][]string{{"ncds_04", "a", "ncds_04", "b"}}},
		{ft: FileTypeQVMapping, want: [][]string{{"ncds_04_ccs01", "a", "ncds_04", "b"}}},
		{ft: FileTypeTVLinking, want: [][]string{{"ncds_04", "a", "b"}}},
		{ft: FileTypeTQLinking, want: [][]string{{"ncds_04_ccs01", "a", "b"}}},
	}

	for _, tc := range testCases {
		t.Run(string(tc.ft), func(t *testing.T) {
			got := Expand(tc.ft, "ncds_04", rows)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Expand() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalise(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"ncds_04/ncds_04.dv.txt":        "v1\tv2\r\nv3\tv4\n\n",
		"ncds_04/ncds_04.qvmapping.txt": "ncds_04_ccs01\tqc_a\tncds_04\tv1\n",
		"ncds_04/ncds_04.tqlinking.txt": "qc_a\t101\nqc_b\n",
		"ncds_04/ncds_04.tvlinking.txt": "v1\t101\textra\tmore\n",
		"ncds_04/readme.txt":            "not a bundle file\n",
		"bcs_70/bcs_70.tqlinking.txt":   "qc_x\t7\n",
		"bcs_70/bcs_70.dv.txt":          "",
		"stray.dv.txt":                  "a\tb\n",
	}
	for name, content := range files {
		fname := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(fname), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(fname, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	notes, err := Normalise(context.Background(), root, 2)
	if err != nil {
		t.Fatalf("Normalise: unexpected error: %v", err)
	}

	path := func(name string) string { return filepath.Join(root, name) }
	wantNotes := []Note{
		{Path: path("bcs_70/bcs_70.dv.txt"), Message: MessageEmpty},
		{Path: path("bcs_70/bcs_70.tqlinking.txt"), Message: "fixed to 3 columns"},
		{Path: path("ncds_04/ncds_04.dv.txt"), Message: "fixed to 4 columns"},
		{Path: path("ncds_04/ncds_04.qvmapping.txt"), Message: MessageCorrect},
		{Path: path("ncds_04/ncds_04.tqlinking.txt"), Message: MessageInconsistent},
		{Path: path("ncds_04/ncds_04.tvlinking.txt"), Message: "neither 2 nor 3 columns"},
	}
	if diff := cmp.Diff(wantNotes, notes); diff != "" {
		t.Errorf("notes mismatch (-want +got):\n%s", diff)
	}

	wantFiles := map[string]string{
		"ncds_04/ncds_04.dv.txt":        "ncds_04\tv1\tncds_04\tv2\nncds_04\tv3\tncds_04\tv4\n",
		"ncds_04/ncds_04.qvmapping.txt": "ncds_04_ccs01\tqc_a\tncds_04\tv1\n",
		"ncds_04/ncds_04.tqlinking.txt": "qc_a\t101\nqc_b\n",
		"bcs_70/bcs_70.tqlinking.txt":   "bcs_70_ccs01\tqc_x\t7\n",
		"stray.dv.txt":                  "a\tb\n",
	}
	for name, want := range wantFiles {
		data, err := os.ReadFile(path(name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if diff := cmp.Diff(want, string(data)); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", name, diff)
		}
	}

	var buf bytes.Buffer
	if err := WriteNotes(&buf, notes[:2]); err != nil {
		t.Fatalf("WriteNotes: unexpected error: %v", err)
	}
	wantText := path("bcs_70/bcs_70.dv.txt") + "," + MessageEmpty + "\n" +
		path("bcs_70/bcs_70.tqlinking.txt") + ",fixed to 3 columns\n"
	if diff := cmp.Diff(wantText, buf.String()); diff != "" {
		t.Errorf("notes text mismatch (-want +got):\n%s", diff)
	}
}
