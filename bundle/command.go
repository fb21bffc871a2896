package bundle

import (
	"fmt"
	"runtime"

	"github.com/urfave/cli/v2"

	"github.com/iand/cctables/archivist"
	"github.com/iand/cctables/logging"
)

var Command = &cli.Command{
	Name:   "bundle",
	Usage:  "Add missing dataset instance and control construct scheme columns to Archivist bundle files",
	Action: normalise,
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "Directory holding one folder of bundle files per dataset instance",
			Destination: &bundleopts.root,
		},
		&cli.StringFlag{
			Name:        "notes",
			Usage:       "File in which to record what was done to each bundle file",
			Value:       "notes.txt",
			Destination: &bundleopts.notes,
		},
		&cli.IntFlag{
			Name:        "parallel",
			Usage:       "Maximum number of files to process at the same time",
			Value:       runtime.NumCPU(),
			Destination: &bundleopts.parallel,
		},
	}, logging.Flags...),
}

var bundleopts struct {
	root     string
	notes    string
	parallel int
}

func normalise(cc *cli.Context) error {
	logging.Setup()

	if bundleopts.root == "" {
		return fmt.Errorf("no input directory specified")
	}

	notes, err := Normalise(cc.Context, bundleopts.root, bundleopts.parallel)
	if err != nil {
		return fmt.Errorf("normalise bundle: %w", err)
	}
	logging.Info("checked bundle files", "files", len(notes))

	f, err := archivist.CreateFile(bundleopts.notes)
	if err != nil {
		return fmt.Errorf("notes file: %w", err)
	}
	defer f.Close()

	if err := WriteNotes(f, notes); err != nil {
		return fmt.Errorf("write notes: %w", err)
	}
	return f.Close()
}
