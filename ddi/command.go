package ddi

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/iand/cctables/archivist"
	"github.com/iand/cctables/debug"
	"github.com/iand/cctables/logging"
	"github.com/iand/cctables/report"
	"github.com/iand/cctables/tree"
)

var Command = &cli.Command{
	Name:   "ddi",
	Usage:  "Convert a DDI 3.3 instrument file into Archivist tables",
	Action: convert,
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "DDI XML file to read from",
			Destination: &ddiopts.inputFile,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "Directory in which to write Archivist tables",
			Destination: &ddiopts.outputDir,
		},
		&cli.StringFlag{
			Name:        "id",
			Usage:       "Identifier to give this instrument, used to find corrections. Defaults to the input file name.",
			Destination: &ddiopts.id,
		},
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Value:       tree.DefaultConfigDir(),
			Usage:       "Path to the folder where config should be stored.",
			Destination: &ddiopts.configDir,
		},
		&cli.BoolFlag{
			Name:        "keep-missing",
			Usage:       "Keep codes with negative values that represent missing data.",
			Value:       false,
			Destination: &ddiopts.keepMissing,
		},
		&cli.StringFlag{
			Name:        "inspect",
			Usage:       "Kind and label of a construct to inspect. The internal data structure of the construct will be printed to stdout. Use format '{kind}/{label}' where kind is one of 'sequence', 'statement', 'condition', 'loop', 'question', 'grid', 'response' or 'codelist'.",
			Destination: &ddiopts.inspect,
		},
	}, logging.Flags...),
	Subcommands: []*cli.Command{
		flattenCommand,
	},
}

var ddiopts struct {
	inputFile   string
	outputDir   string
	id          string
	configDir   string
	keepMissing bool
	inspect     string
}

func convert(cc *cli.Context) error {
	logging.Setup()

	if ddiopts.inputFile == "" {
		return fmt.Errorf("no input file specified")
	}

	l, err := NewLoader(ddiopts.inputFile)
	if err != nil {
		return fmt.Errorf("load ddi: %w", err)
	}
	l.KeepMissing = ddiopts.keepMissing

	id := ddiopts.id
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(ddiopts.inputFile), filepath.Ext(ddiopts.inputFile))
	}

	in, err := tree.LoadInstrument(id, ddiopts.configDir, l)
	if err != nil {
		return fmt.Errorf("load instrument: %w", err)
	}
	report.LogAnomalies(append(in.Anomalies, report.Check(in)...))

	if ddiopts.inspect != "" {
		return debug.Inspect(in, ddiopts.inspect, os.Stdout)
	}

	if ddiopts.outputDir == "" {
		return fmt.Errorf("no output directory specified")
	}
	if err := archivist.WriteDir(ddiopts.outputDir, in); err != nil {
		return fmt.Errorf("write tables: %w", err)
	}

	return nil
}

var flattenCommand = &cli.Command{
	Name:   "flatten",
	Usage:  "Flatten every fragment of a DDI file into one CSV file per fragment type",
	Action: flatten,
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "DDI XML file to read from",
			Destination: &flattenopts.inputFile,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "Directory in which to write flattened tables",
			Destination: &flattenopts.outputDir,
		},
		&cli.StringFlag{
			Name:        "drop",
			Usage:       "Regular expression matching columns to omit",
			Value:       DefaultDropPattern,
			Destination: &flattenopts.drop,
		},
	}, logging.Flags...),
}

var flattenopts struct {
	inputFile string
	outputDir string
	drop      string
}

func flatten(cc *cli.Context) error {
	logging.Setup()

	if flattenopts.inputFile == "" {
		return fmt.Errorf("no input file specified")
	}
	if flattenopts.outputDir == "" {
		return fmt.Errorf("no output directory specified")
	}

	var drop *regexp.Regexp
	if flattenopts.drop != "" {
		var err error
		drop, err = regexp.Compile(flattenopts.drop)
		if err != nil {
			return fmt.Errorf("drop pattern: %w", err)
		}
	}

	l, err := NewLoader(flattenopts.inputFile)
	if err != nil {
		return fmt.Errorf("load ddi: %w", err)
	}

	if err := WriteTables(flattenopts.outputDir, l.Flatten(drop)); err != nil {
		return fmt.Errorf("write tables: %w", err)
	}
	return nil
}
