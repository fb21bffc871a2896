package xmlclean

import (
	"fmt"
	"os"
	"runtime"

	"github.com/urfave/cli/v2"

	"github.com/iand/cctables/logging"
)

var Command = &cli.Command{
	Name:   "clean",
	Usage:  "Repair entities and line breaks in Archivist XML exports, rewriting the files in place",
	Action: clean,
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "XML file, or directory of XML files, to clean",
			Destination: &cleanopts.input,
		},
		&cli.IntFlag{
			Name:        "parallel",
			Usage:       "Maximum number of files to clean at the same time",
			Value:       runtime.NumCPU(),
			Destination: &cleanopts.parallel,
		},
	}, logging.Flags...),
}

var cleanopts struct {
	input    string
	parallel int
}

func clean(cc *cli.Context) error {
	logging.Setup()

	if cleanopts.input == "" {
		return fmt.Errorf("no input specified")
	}

	info, err := os.Stat(cleanopts.input)
	if err != nil {
		return fmt.Errorf("input: %w", err)
	}

	if !info.IsDir() {
		if err := CleanFile(cleanopts.input); err != nil {
			return fmt.Errorf("clean: %w", err)
		}
		logging.Info("cleaned xml", "files", 1)
		return nil
	}

	n, err := CleanDir(cc.Context, cleanopts.input, cleanopts.parallel)
	logging.Info("cleaned xml", "files", n)
	if err != nil {
		return fmt.Errorf("clean: %w", err)
	}
	return nil
}
