/*
This is free and unencumbered software released into the public domain. For more
information, see <http://unlicense.org/> or the accompanying UNLICENSE file.
*/

package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/iand/cctables/bundle"
	"github.com/iand/cctables/codelist"
	"github.com/iand/cctables/ddi"
	"github.com/iand/cctables/order"
	"github.com/iand/cctables/questionnaire"
	"github.com/iand/cctables/relabel"
	"github.com/iand/cctables/report"
	"github.com/iand/cctables/xmlclean"
)

func main() {
	app := &cli.App{
		Name:     "cctables",
		HelpName: "cctables",
		Usage:    "Convert questionnaire exports into Archivist tables",
		Commands: []*cli.Command{
			ddi.Command,
			questionnaire.Command,
			order.Command,
			codelist.Command,
			relabel.Command,
			xmlclean.Command,
			bundle.Command,
			report.Command,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}
