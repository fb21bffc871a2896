package report

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/iand/cctables/archivist"
	"github.com/iand/cctables/logging"
)

var Command = &cli.Command{
	Name:  "report",
	Usage: "Report on a set of Archivist tables",
	Subcommands: []*cli.Command{
		checkCommand,
	},
}

var checkCommand = &cli.Command{
	Name:   "check",
	Usage:  "Check the structure of a set of Archivist tables and list any problems found",
	Action: check,
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "Directory containing the Archivist tables",
			Destination: &checkopts.inputDir,
		},
		&cli.BoolFlag{
			Name:        "strict",
			Usage:       "Exit with an error if any problems are found.",
			Value:       false,
			Destination: &checkopts.strict,
		},
	}, logging.Flags...),
}

var checkopts struct {
	inputDir string
	strict   bool
}

func check(cc *cli.Context) error {
	logging.Setup()

	if checkopts.inputDir == "" {
		return fmt.Errorf("no input directory specified")
	}

	in, err := archivist.ReadDir(checkopts.inputDir)
	if err != nil {
		return fmt.Errorf("read tables: %w", err)
	}

	as := Check(in)
	for _, a := range as {
		fmt.Fprintln(os.Stdout, a.String())
	}

	if checkopts.strict && len(as) > 0 {
		return fmt.Errorf("found %d problems", len(as))
	}
	return nil
}
