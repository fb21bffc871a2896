package questionnaire

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/iand/cctables/archivist"
	"github.com/iand/cctables/debug"
	"github.com/iand/cctables/logging"
	"github.com/iand/cctables/report"
	"github.com/iand/cctables/tree"
)

var Command = &cli.Command{
	Name:   "html",
	Usage:  "Convert a questionnaire exported as HTML into Archivist tables",
	Action: convert,
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "HTML file to read from",
			Destination: &htmlopts.inputFile,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "Directory in which to write Archivist tables",
			Destination: &htmlopts.outputDir,
		},
		&cli.StringFlag{
			Name:        "profile",
			Aliases:     []string{"p"},
			Usage:       "Name of a profile in the config folder, or path to a profile file, describing the markup of the questionnaire",
			Destination: &htmlopts.profile,
		},
		&cli.StringFlag{
			Name:        "charset",
			Usage:       "Character set of the input file, overriding the profile",
			Destination: &htmlopts.charset,
		},
		&cli.StringFlag{
			Name:        "study",
			Usage:       "Label of the top level sequence, overriding the profile and the document title",
			Destination: &htmlopts.study,
		},
		&cli.StringFlag{
			Name:        "id",
			Usage:       "Identifier to give this instrument, used to find corrections. Defaults to the input file name.",
			Destination: &htmlopts.id,
		},
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Value:       tree.DefaultConfigDir(),
			Usage:       "Path to the folder where config should be stored.",
			Destination: &htmlopts.configDir,
		},
		&cli.StringFlag{
			Name:        "save-profile",
			Usage:       "Write the profile in use to the config folder under this name and exit.",
			Destination: &htmlopts.saveProfile,
		},
		&cli.StringFlag{
			Name:        "inspect",
			Usage:       "Kind and label of a construct to inspect, using format '{kind}/{label}'. The internal data structure of the construct will be printed to stdout.",
			Destination: &htmlopts.inspect,
		},
	}, logging.Flags...),
}

var htmlopts struct {
	inputFile   string
	outputDir   string
	profile     string
	charset     string
	study       string
	id          string
	configDir   string
	saveProfile string
	inspect     string
}

func loadProfile() (Profile, error) {
	if htmlopts.profile == "" {
		return DefaultProfile(), nil
	}
	fname := htmlopts.profile
	if _, err := os.Stat(fname); err != nil {
		fname = tree.ProfileFile(htmlopts.configDir, htmlopts.profile)
	}
	return LoadProfile(fname)
}

func convert(cc *cli.Context) error {
	logging.Setup()

	p, err := loadProfile()
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	if htmlopts.charset != "" {
		p.Charset = htmlopts.charset
	}
	if htmlopts.study != "" {
		p.Study = htmlopts.study
	}

	if htmlopts.saveProfile != "" {
		fname := tree.ProfileFile(htmlopts.configDir, htmlopts.saveProfile)
		if err := os.MkdirAll(filepath.Dir(fname), 0o755); err != nil {
			return fmt.Errorf("create profile directory: %w", err)
		}
		if err := SaveProfile(fname, p); err != nil {
			return fmt.Errorf("save profile: %w", err)
		}
		logging.Info("saved profile", "filename", fname)
		return nil
	}

	if htmlopts.inputFile == "" {
		return fmt.Errorf("no input file specified")
	}

	id := htmlopts.id
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(htmlopts.inputFile), filepath.Ext(htmlopts.inputFile))
	}

	in, err := tree.LoadInstrument(id, htmlopts.configDir, NewLoader(htmlopts.inputFile, p))
	if err != nil {
		return fmt.Errorf("load instrument: %w", err)
	}
	report.LogAnomalies(append(in.Anomalies, report.Check(in)...))

	if htmlopts.inspect != "" {
		return debug.Inspect(in, htmlopts.inspect, os.Stdout)
	}

	if htmlopts.outputDir == "" {
		return fmt.Errorf("no output directory specified")
	}
	if err := archivist.WriteDir(htmlopts.outputDir, in); err != nil {
		return fmt.Errorf("write tables: %w", err)
	}
	return nil
}
