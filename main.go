package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"pdf-heft/internal/booklet"
	"pdf-heft/internal/config"
	"pdf-heft/internal/pdfdoc"
	"pdf-heft/internal/pipeline"
)

// Version is set at build time.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	app := newApp(afero.NewOsFs(), logger)
	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.WithError(err).Error("booklet failed")
		os.Exit(exitCode(err))
	}
}

func newApp(fs afero.Fs, logger *logrus.Logger) *cli.App {
	return &cli.App{
		Name:    "pdf-heft",
		Usage:   "lay out a PDF as a duplex booklet, two pages per sheet",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML file with default settings",
				EnvVars: []string{"HEFT_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "in",
				Aliases: []string{"i"},
				Value:   "input.pdf",
				Usage:   "input PDF",
				EnvVars: []string{"HEFT_IN"},
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Value:   "merged.pdf",
				Usage:   "output PDF",
				EnvVars: []string{"HEFT_OUT"},
			},
			&cli.StringFlag{
				Name:    "work",
				Usage:   "directory for intermediate files (default: directory of --out)",
				EnvVars: []string{"HEFT_WORK"},
			},
			&cli.BoolFlag{
				Name:    "keep",
				Usage:   "write intermediate files (odd/even pages and composed halves)",
				EnvVars: []string{"HEFT_KEEP"},
			},
			&cli.Float64Flag{
				Name:    "outer-margin",
				Value:   booklet.DefaultOuterMargin,
				Usage:   "space between sheet edge and pages",
				EnvVars: []string{"HEFT_OUTER_MARGIN"},
			},
			&cli.Float64Flag{
				Name:    "inner-margin",
				Value:   booklet.DefaultInnerMargin,
				Usage:   "gutter between the two pages of a sheet",
				EnvVars: []string{"HEFT_INNER_MARGIN"},
			},
			&cli.Float64Flag{
				Name:    "border-width",
				Value:   booklet.DefaultBorderWidth,
				Usage:   "line width of the page borders, 0 disables them",
				EnvVars: []string{"HEFT_BORDER_WIDTH"},
			},
			&cli.BoolFlag{
				Name:    "strict-size",
				Usage:   "reject inputs whose pages differ in size",
				EnvVars: []string{"HEFT_STRICT_SIZE"},
			},
			&cli.BoolFlag{
				Name:    "parallel",
				Usage:   "compose odd and even halves concurrently",
				EnvVars: []string{"HEFT_PARALLEL"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "debug, info, warn or error",
				EnvVars: []string{"HEFT_LOG_LEVEL"},
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := settings(c, fs)
			if err != nil {
				return err
			}
			if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
				logger.SetLevel(level)
			}

			runner := pipeline.NewRunner(fs, pdfdoc.DefaultConfiguration(), logger)
			res, err := runner.Run(c.Context, cfg.Options())
			if err != nil {
				return err
			}
			report(c.App.Writer, cfg, res)
			return nil
		},
		// main picks the exit code after logging the failure.
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

// settings merges defaults, the optional config file and explicitly set
// flags, in that order.
func settings(c *cli.Context, fs afero.Fs) (config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(fs, path); err != nil {
			return cfg, err
		}
	}

	if c.IsSet("in") || cfg.Input == "" {
		cfg.Input = c.String("in")
	}
	if c.IsSet("out") || cfg.Output == "" {
		cfg.Output = c.String("out")
	}
	if c.IsSet("work") {
		cfg.WorkDir = c.String("work")
	}
	if c.IsSet("keep") {
		cfg.Keep = c.Bool("keep")
	}
	if c.IsSet("outer-margin") {
		cfg.Margins.Outer = c.Float64("outer-margin")
	}
	if c.IsSet("inner-margin") {
		cfg.Margins.Inner = c.Float64("inner-margin")
	}
	if c.IsSet("border-width") {
		cfg.BorderWidth = c.Float64("border-width")
	}
	if c.IsSet("strict-size") {
		cfg.StrictPageSize = c.Bool("strict-size")
	}
	if c.IsSet("parallel") {
		cfg.Parallel = c.Bool("parallel")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, cli.Exit(err.Error(), 2)
	}
	return cfg, nil
}

// report tells the user what the run produced, including when an empty input
// left nothing to write.
func report(w io.Writer, cfg config.Config, res *pipeline.Result) {
	if !res.Written {
		fmt.Fprintf(w, "nothing written: %s has no pages, %s not created\n", cfg.Input, cfg.Output)
		return
	}
	fmt.Fprintf(w, "done: %s (%d sheets from %d pages)\n", cfg.Output, res.OutputPages, res.InputPages)
}

// exitCode maps a pipeline failure to a process exit status.
func exitCode(err error) int {
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}
