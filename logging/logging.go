package logging

import (
	"log/slog"

	"github.com/iand/pontium/hlog"
	"github.com/kortschak/utter"
	"github.com/urfave/cli/v2"
)

var Flags = []cli.Flag{
	&cli.BoolFlag{
		Name:        "verbose",
		Aliases:     []string{"v"},
		Usage:       "Set logging level more verbose to include info level logs",
		Value:       false,
		Destination: &Opts.Verbose,
	},

	&cli.BoolFlag{
		Name:        "veryverbose",
		Aliases:     []string{"vv"},
		Usage:       "Set logging level more verbose to include debug level logs",
		Destination: &Opts.VeryVerbose,
	},

	&cli.BoolFlag{
		Name:        "quiet",
		Aliases:     []string{"q"},
		Usage:       "Only log errors, overrides the verbose flags",
		Destination: &Opts.Quiet,
	},

	&cli.StringSliceFlag{
		Name:        "log-labels",
		Usage:       "Always emit logging for constructs with these labels, comma separated",
		Destination: &Opts.LogLabels,
	},

	&cli.StringSliceFlag{
		Name:        "log-files",
		Usage:       "Always emit logging for these input files when cleaning or checking a directory, comma separated",
		Destination: &Opts.LogFiles,
	},
}

var Opts struct {
	Verbose     bool
	VeryVerbose bool
	Quiet       bool
	LogLabels   cli.StringSlice
	LogFiles    cli.StringSlice
}

func level() slog.Level {
	switch {
	case Opts.Quiet:
		return slog.LevelError
	case Opts.VeryVerbose:
		return slog.LevelDebug
	case Opts.Verbose:
		return slog.LevelInfo
	default:
		return slog.LevelWarn
	}
}

// Setup installs the default slog logger according to the command line options.
// Records carrying a label or file attribute listed in --log-labels or
// --log-files are always emitted.
func Setup() {
	h := new(hlog.Handler)
	h = h.WithLevel(level())
	for _, label := range Opts.LogLabels.Value() {
		h = h.WithAttrLevel(slog.String("label", label), slog.LevelDebug)
	}
	for _, fname := range Opts.LogFiles.Value() {
		h = h.WithAttrLevel(slog.String("file", fname), slog.LevelDebug)
	}

	slog.SetDefault(slog.New(h))
}

var Info = slog.Info

// Sdump returns the internal structure of v formatted for printing.
func Sdump(v any) string {
	return utter.Sdump(v)
}
