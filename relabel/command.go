package relabel

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/iand/cctables/archivist"
	"github.com/iand/cctables/logging"
	"github.com/iand/cctables/report"
)

var Command = &cli.Command{
	Name:   "relabel",
	Usage:  "Normalise the construct labels of a set of Archivist tables",
	Action: relabel,
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "Directory containing the Archivist tables",
			Destination: &relabelopts.inputDir,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "Directory in which to write the relabelled tables",
			Destination: &relabelopts.outputDir,
		},
	}, logging.Flags...),
}

var relabelopts struct {
	inputDir  string
	outputDir string
}

func relabel(cc *cli.Context) error {
	logging.Setup()

	if relabelopts.inputDir == "" {
		return fmt.Errorf("no input directory specified")
	}
	if relabelopts.outputDir == "" {
		return fmt.Errorf("no output directory specified")
	}

	in, err := archivist.ReadDir(relabelopts.inputDir)
	if err != nil {
		return fmt.Errorf("read tables: %w", err)
	}

	renames := Relabel(in)
	logging.Info("relabelled constructs", "changed", renames.Count())
	report.LogAnomalies(append(in.Anomalies, report.Check(in)...))

	if err := archivist.WriteDir(relabelopts.outputDir, in); err != nil {
		return fmt.Errorf("write tables: %w", err)
	}
	return nil
}
