// Package pipeline runs the booklet stages in order: split the input by
// parity, compose the odd pages forward and the even pages reversed, then
// interleave both sheet sequences into the final document.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"pdf-heft/internal/booklet"
	"pdf-heft/internal/pdfdoc"
)

// Stage names used in logs and errors.
const (
	StageSplit       = "split"
	StageComposeOdd  = "compose-odd"
	StageComposeEven = "compose-even"
	StageMerge       = "merge"
	StageSave        = "save"
)

// StageError wraps a failure with the stage and file it happened in.
type StageError struct {
	Stage string
	Path  string
	Err   error
}

func (e *StageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Stage, e.Path, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Artifacts names the intermediate documents. They are only written when
// Options.KeepIntermediate is set.
type Artifacts struct {
	OddPages     string `yaml:"odd_pages"`
	EvenPages    string `yaml:"even_pages"`
	ComposedOdd  string `yaml:"merged_odd"`
	ComposedEven string `yaml:"merged_even"`
}

// withDefaults fills unset names from DefaultArtifacts.
func (a Artifacts) withDefaults() Artifacts {
	def := DefaultArtifacts()
	if a.OddPages == "" {
		a.OddPages = def.OddPages
	}
	if a.EvenPages == "" {
		a.EvenPages = def.EvenPages
	}
	if a.ComposedOdd == "" {
		a.ComposedOdd = def.ComposedOdd
	}
	if a.ComposedEven == "" {
		a.ComposedEven = def.ComposedEven
	}
	return a
}

// DefaultArtifacts returns the conventional intermediate file names.
func DefaultArtifacts() Artifacts {
	return Artifacts{
		OddPages:     "odd_pages.pdf",
		EvenPages:    "even_pages.pdf",
		ComposedOdd:  "merged_odd.pdf",
		ComposedEven: "merged_even.pdf",
	}
}

// Options configures one run.
type Options struct {
	Input  string
	Output string

	// WorkDir receives the intermediate artifacts. Empty means the directory
	// of Output.
	WorkDir          string
	KeepIntermediate bool
	Artifacts        Artifacts

	Margins        booklet.Margins
	BorderWidth    float64
	StrictPageSize bool

	// Parallel composes the odd and even documents concurrently.
	Parallel bool
}

// Result summarises a finished run.
type Result struct {
	InputPages  int
	OddPages    int
	EvenPages   int
	OddSheets   int
	EvenSheets  int
	OutputPages int
	// Written is false when the output had no pages and nothing was saved.
	Written  bool
	Duration time.Duration
}

// Runner executes the pipeline against a filesystem.
type Runner struct {
	fs     afero.Fs
	conf   *model.Configuration
	logger *logrus.Logger
}

// NewRunner returns a Runner. A nil conf selects pdfdoc.DefaultConfiguration.
func NewRunner(fs afero.Fs, conf *model.Configuration, logger *logrus.Logger) *Runner {
	if conf == nil {
		conf = pdfdoc.DefaultConfiguration()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Runner{fs: fs, conf: conf, logger: logger}
}

func (o Options) composeOptions(p booklet.Policy) booklet.ComposeOptions {
	return booklet.ComposeOptions{
		Policy:         p,
		Margins:        o.Margins,
		BorderWidth:    o.BorderWidth,
		StrictPageSize: o.StrictPageSize,
	}
}

func (o Options) artifactPath(name string) string {
	dir := o.WorkDir
	if dir == "" {
		dir = filepath.Dir(o.Output)
	}
	return filepath.Join(dir, name)
}

// Run executes split, compose (odd forward, even reversed), merge and save.
// Documents are handed from stage to stage in memory. The context is checked
// between stages.
func (r *Runner) Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	res := &Result{}
	opts.Artifacts = opts.Artifacts.withDefaults()
	log := r.logger.WithFields(logrus.Fields{"input": opts.Input, "output": opts.Output})

	if opts.Input == "" {
		return nil, &StageError{Stage: StageSplit, Err: errors.New("no input file")}
	}
	if opts.Output == "" {
		return nil, &StageError{Stage: StageSave, Err: errors.New("no output file")}
	}
	// Both compose stages share the geometry; reject it before reading input.
	if err := opts.composeOptions(booklet.Forward).Validate(); err != nil {
		return nil, &StageError{Stage: StageComposeOdd, Err: err}
	}

	// 1) split
	src, err := pdfdoc.Open(r.fs, opts.Input, r.conf)
	if err != nil {
		return nil, &StageError{Stage: StageSplit, Path: opts.Input, Err: err}
	}
	odd, even, err := pdfdoc.Split(src, opts.Artifacts.OddPages, opts.Artifacts.EvenPages)
	if err != nil {
		return nil, &StageError{Stage: StageSplit, Path: opts.Input, Err: err}
	}
	res.InputPages, res.OddPages, res.EvenPages = src.PageCount(), odd.PageCount(), even.PageCount()
	log.WithFields(logrus.Fields{
		"pages": res.InputPages,
		"odd":   res.OddPages,
		"even":  res.EvenPages,
	}).Info("split input by parity")

	if err := r.keep(opts, StageSplit, odd, even); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 2) compose both halves
	composedOdd, composedEven, err := r.composeBoth(ctx, opts, odd, even)
	if err != nil {
		return nil, err
	}
	res.OddSheets, res.EvenSheets = composedOdd.PageCount(), composedEven.PageCount()

	if err := r.keep(opts, "compose", composedOdd, composedEven); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 3) interleave
	merged, err := pdfdoc.Merge(composedOdd, composedEven, opts.Output)
	if err != nil {
		return nil, &StageError{Stage: StageMerge, Path: opts.Output, Err: err}
	}
	res.OutputPages = merged.PageCount()
	log.WithField("sheets", res.OutputPages).Info("interleaved sheets")

	// 4) save
	if merged.Empty() {
		log.Warn("input has no pages, nothing written")
	} else {
		if err := merged.Save(r.fs, opts.Output); err != nil {
			return nil, &StageError{Stage: StageSave, Path: opts.Output, Err: err}
		}
		res.Written = true
	}

	res.Duration = time.Since(start)
	log.WithFields(logrus.Fields{
		"sheets":   res.OutputPages,
		"duration": res.Duration.Round(time.Millisecond),
	}).Info("booklet done")
	return res, nil
}

func composeStage(p booklet.Policy) string {
	if p == booklet.Reversed {
		return StageComposeEven
	}
	return StageComposeOdd
}

func (r *Runner) composeBoth(ctx context.Context, opts Options, odd, even *pdfdoc.Document) (*pdfdoc.Document, *pdfdoc.Document, error) {
	var composedOdd, composedEven *pdfdoc.Document

	compose := func(src *pdfdoc.Document, p booklet.Policy, name string, dst **pdfdoc.Document) error {
		out, err := pdfdoc.Compose(src, opts.composeOptions(p), name)
		if err != nil {
			return &StageError{Stage: composeStage(p), Path: src.Name(), Err: err}
		}
		fields := logrus.Fields{
			"stage":  composeStage(p),
			"policy": p.String(),
			"pages":  src.PageCount(),
			"sheets": out.PageCount(),
		}
		if m := out.MismatchedPages(); len(m) > 0 {
			r.logger.WithFields(fields).WithField("mismatched", len(m)).
				Warn("pages differ in size from the first page, scaled to fit")
		}
		r.logger.WithFields(fields).Debug("composed sheets")
		*dst = out
		return nil
	}

	if !opts.Parallel {
		if err := compose(odd, booklet.Forward, opts.Artifacts.ComposedOdd, &composedOdd); err != nil {
			return nil, nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if err := compose(even, booklet.Reversed, opts.Artifacts.ComposedEven, &composedEven); err != nil {
			return nil, nil, err
		}
		return composedOdd, composedEven, nil
	}

	// The two halves share no pdfcpu state.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		return compose(odd, booklet.Forward, opts.Artifacts.ComposedOdd, &composedOdd)
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		return compose(even, booklet.Reversed, opts.Artifacts.ComposedEven, &composedEven)
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return composedOdd, composedEven, nil
}

// keep persists intermediate documents when requested. Empty documents are
// skipped.
func (r *Runner) keep(opts Options, stage string, docs ...*pdfdoc.Document) error {
	if !opts.KeepIntermediate {
		return nil
	}
	for _, d := range docs {
		path := opts.artifactPath(d.Name())
		if d.Empty() {
			r.logger.WithField("artifact", path).Debug("skipping empty intermediate")
			continue
		}
		if err := r.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return &StageError{Stage: stage, Path: path, Err: &booklet.DocumentWriteError{Path: path, Err: err}}
		}
		if err := d.Save(r.fs, path); err != nil {
			return &StageError{Stage: stage, Path: path, Err: err}
		}
		r.logger.WithField("artifact", path).Debug("wrote intermediate")
	}
	return nil
}
