package order

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/iand/cctables/archivist"
	"github.com/iand/cctables/debug"
	"github.com/iand/cctables/logging"
	"github.com/iand/cctables/report"
	"github.com/iand/cctables/tree"
)

var Command = &cli.Command{
	Name:   "order",
	Usage:  "Build placed Archivist tables from questionnaire worksheets exported as CSV",
	Action: build,
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "Directory containing the worksheet CSV files",
			Destination: &orderopts.inputDir,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "Directory in which to write Archivist tables",
			Destination: &orderopts.outputDir,
		},
		&cli.StringFlag{
			Name:        "study",
			Usage:       "Label of the top level sequence. Defaults to the name of the input directory.",
			Destination: &orderopts.study,
		},
		&cli.Float64Flag{
			Name:        "similarity",
			Usage:       "Label similarity, between 0 and 1, at which consecutive questions share a condition or loop that has no end",
			Value:       tree.DefaultSimilarity,
			Destination: &orderopts.similarity,
		},
		&cli.BoolFlag{
			Name:        "reuse-codes",
			Usage:       "Share identical code lists between questions.",
			Value:       false,
			Destination: &orderopts.reuseCodes,
		},
		&cli.StringFlag{
			Name:        "id",
			Usage:       "Identifier to give this instrument, used to find corrections. Defaults to the input directory name.",
			Destination: &orderopts.id,
		},
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Value:       tree.DefaultConfigDir(),
			Usage:       "Path to the folder where config should be stored.",
			Destination: &orderopts.configDir,
		},
		&cli.StringFlag{
			Name:        "inspect",
			Usage:       "Kind and label of a construct to inspect, using format '{kind}/{label}'. The internal data structure of the construct will be printed to stdout.",
			Destination: &orderopts.inspect,
		},
	}, logging.Flags...),
}

var orderopts struct {
	inputDir   string
	outputDir  string
	study      string
	similarity float64
	reuseCodes bool
	id         string
	configDir  string
	inspect    string
}

func build(cc *cli.Context) error {
	logging.Setup()

	if orderopts.inputDir == "" {
		return fmt.Errorf("no input directory specified")
	}

	id := orderopts.id
	if id == "" {
		id = filepath.Base(filepath.Clean(orderopts.inputDir))
	}

	l := NewLoader(orderopts.inputDir, Options{
		Study:      orderopts.study,
		Similarity: orderopts.similarity,
		ReuseCodes: orderopts.reuseCodes,
	})

	in, err := tree.LoadInstrument(id, orderopts.configDir, l)
	if err != nil {
		return fmt.Errorf("load instrument: %w", err)
	}
	report.LogAnomalies(append(in.Anomalies, report.Check(in)...))

	if orderopts.inspect != "" {
		return debug.Inspect(in, orderopts.inspect, os.Stdout)
	}

	if orderopts.outputDir == "" {
		return fmt.Errorf("no output directory specified")
	}
	if err := archivist.WriteDir(orderopts.outputDir, in); err != nil {
		return fmt.Errorf("write tables: %w", err)
	}
	return nil
}
