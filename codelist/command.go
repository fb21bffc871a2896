package codelist

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/iand/cctables/archivist"
	"github.com/iand/cctables/logging"
	"github.com/iand/cctables/report"
)

var Command = &cli.Command{
	Name:   "codes",
	Usage:  "Share identical code lists between questions in a set of Archivist tables",
	Action: reuse,
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "Directory containing the Archivist tables",
			Destination: &codesopts.inputDir,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "Directory in which to write the updated tables",
			Destination: &codesopts.outputDir,
		},
	}, logging.Flags...),
}

var codesopts struct {
	inputDir  string
	outputDir string
}

func reuse(cc *cli.Context) error {
	logging.Setup()

	if codesopts.inputDir == "" {
		return fmt.Errorf("no input directory specified")
	}
	if codesopts.outputDir == "" {
		return fmt.Errorf("no output directory specified")
	}

	in, err := archivist.ReadDir(codesopts.inputDir)
	if err != nil {
		return fmt.Errorf("read tables: %w", err)
	}

	mapping := Reuse(in)
	logging.Info("reused code lists", "lists", len(mapping), "changed", Changed(mapping))
	report.LogAnomalies(in.Anomalies)

	if err := archivist.WriteDir(codesopts.outputDir, in); err != nil {
		return fmt.Errorf("write tables: %w", err)
	}
	return nil
}
