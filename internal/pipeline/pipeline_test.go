package pipeline

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-heft/internal/booklet"
	"pdf-heft/internal/pdfdoc"
	"pdf-heft/internal/testpdf"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func defaultOptions() Options {
	return Options{
		Input:  "/work/input.pdf",
		Output: "/work/merged.pdf",
		Margins: booklet.Margins{
			Outer: booklet.DefaultOuterMargin,
			Inner: booklet.DefaultInnerMargin,
		},
		BorderWidth: booklet.DefaultBorderWidth,
	}
}

func setup(t *testing.T, pages []testpdf.Page) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, testpdf.Write(fs, "/work/input.pdf", pages))
	return fs
}

func widths(t *testing.T, fs afero.Fs, path string) []float64 {
	t.Helper()
	doc, err := pdfdoc.Open(fs, path, nil)
	require.NoError(t, err)
	sizes, err := doc.PageSizes()
	require.NoError(t, err)
	out := make([]float64, len(sizes))
	for i, s := range sizes {
		out[i] = s.Width
	}
	return out
}

// placed maps the slots of every sheet of path to 1-based source page
// numbers, recovered from the 100+i page widths.
func placed(t *testing.T, fs afero.Fs, path string) []map[string]int {
	t.Helper()
	raw, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	sheets, err := testpdf.ReadSlotWidths(raw)
	require.NoError(t, err)

	out := make([]map[string]int, len(sheets))
	for i, slots := range sheets {
		out[i] = map[string]int{}
		for name, w := range slots {
			out[i][name] = int(w-100+0.5) + 1
		}
	}
	return out
}

func TestRun_FivePages(t *testing.T) {
	// Page i is 100+i wide, so the odd half is composed from a 100 wide
	// reference page and the even half from a 101 wide one.
	fs := setup(t, testpdf.Numbered(5, 100, 150))

	res, err := NewRunner(fs, nil, quietLogger()).Run(context.Background(), defaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 5, res.InputPages)
	assert.Equal(t, 3, res.OddPages)
	assert.Equal(t, 2, res.EvenPages)
	assert.Equal(t, 2, res.OddSheets)
	assert.Equal(t, 1, res.EvenSheets)
	assert.Equal(t, 3, res.OutputPages)
	assert.True(t, res.Written)

	oddSheet := 2*100.0 + 2*booklet.DefaultOuterMargin + booklet.DefaultInnerMargin
	evenSheet := 2*101.0 + 2*booklet.DefaultOuterMargin + booklet.DefaultInnerMargin
	assert.Equal(t, []float64{oddSheet, evenSheet, oddSheet}, widths(t, fs, "/work/merged.pdf"))

	// Sheet 1 shows p1|p3, sheet 2 the mirrored p4|p2, sheet 3 p5 alone.
	assert.Equal(t, []map[string]int{
		{"PageA": 1, "PageB": 3},
		{"PageA": 4, "PageB": 2},
		{"PageA": 5},
	}, placed(t, fs, "/work/merged.pdf"))

	// Without --keep only the input and the output exist.
	entries, err := afero.ReadDir(fs, "/work")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRun_EvenPageCount(t *testing.T) {
	fs := setup(t, testpdf.Uniform(8, 200, 300))

	res, err := NewRunner(fs, nil, quietLogger()).Run(context.Background(), defaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, res.OddSheets)
	assert.Equal(t, 2, res.EvenSheets)
	assert.Equal(t, 4, res.OutputPages)
}

func TestRun_KeepIntermediate(t *testing.T) {
	fs := setup(t, testpdf.Uniform(5, 200, 300))

	opts := defaultOptions()
	opts.KeepIntermediate = true
	opts.WorkDir = "/work/tmp"

	_, err := NewRunner(fs, nil, quietLogger()).Run(context.Background(), opts)
	require.NoError(t, err)

	for name, pages := range map[string]int{
		"odd_pages.pdf":   3,
		"even_pages.pdf":  2,
		"merged_odd.pdf":  2,
		"merged_even.pdf": 1,
	} {
		doc, err := pdfdoc.Open(fs, "/work/tmp/"+name, nil)
		require.NoError(t, err, name)
		assert.Equal(t, pages, doc.PageCount(), name)
	}
}

func TestRun_CustomArtifactNames(t *testing.T) {
	fs := setup(t, testpdf.Uniform(2, 200, 300))

	opts := defaultOptions()
	opts.KeepIntermediate = true
	opts.Artifacts = Artifacts{OddPages: "front.pdf"}

	_, err := NewRunner(fs, nil, quietLogger()).Run(context.Background(), opts)
	require.NoError(t, err)

	for _, name := range []string{"front.pdf", "even_pages.pdf", "merged_odd.pdf", "merged_even.pdf"} {
		ok, err := afero.Exists(fs, "/work/"+name)
		require.NoError(t, err)
		assert.True(t, ok, name)
	}
}

func TestRun_ParallelMatchesSequential(t *testing.T) {
	fs := setup(t, testpdf.Numbered(7, 100, 150))

	seq := defaultOptions()
	seq.Output = "/work/seq.pdf"
	par := defaultOptions()
	par.Output = "/work/par.pdf"
	par.Parallel = true

	runner := NewRunner(fs, nil, quietLogger())
	_, err := runner.Run(context.Background(), seq)
	require.NoError(t, err)
	_, err = runner.Run(context.Background(), par)
	require.NoError(t, err)

	assert.Equal(t, widths(t, fs, "/work/seq.pdf"), widths(t, fs, "/work/par.pdf"))
	assert.Equal(t, placed(t, fs, "/work/seq.pdf"), placed(t, fs, "/work/par.pdf"))
	assert.Equal(t, []map[string]int{
		{"PageA": 1, "PageB": 3},
		{"PageA": 4, "PageB": 2},
		{"PageA": 5, "PageB": 7},
		{"PageB": 6},
	}, placed(t, fs, "/work/par.pdf"))
}

func TestRun_Repeatable(t *testing.T) {
	fs := setup(t, testpdf.Numbered(6, 100, 150))
	runner := NewRunner(fs, nil, quietLogger())

	first, err := runner.Run(context.Background(), defaultOptions())
	require.NoError(t, err)
	w1 := widths(t, fs, "/work/merged.pdf")

	second, err := runner.Run(context.Background(), defaultOptions())
	require.NoError(t, err)
	w2 := widths(t, fs, "/work/merged.pdf")

	assert.Equal(t, first.OutputPages, second.OutputPages)
	assert.Equal(t, w1, w2)
}

func TestRun_MissingInput(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := NewRunner(fs, nil, quietLogger()).Run(context.Background(), defaultOptions())
	require.Error(t, err)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageSplit, stageErr.Stage)
	assert.Equal(t, "/work/input.pdf", stageErr.Path)

	var readErr *booklet.DocumentReadError
	assert.True(t, errors.As(err, &readErr))
	assert.Contains(t, err.Error(), "split")
	assert.Contains(t, err.Error(), "/work/input.pdf")
}

func TestRun_InvalidGeometry(t *testing.T) {
	// Geometry is rejected before the (missing) input is touched.
	opts := defaultOptions()
	opts.Margins.Outer = -1

	_, err := NewRunner(afero.NewMemMapFs(), nil, quietLogger()).Run(context.Background(), opts)
	require.Error(t, err)

	var geomErr *booklet.InvalidGeometryError
	require.True(t, errors.As(err, &geomErr))
	assert.Equal(t, "Outer", geomErr.Field)
}

func TestRun_UnwritableOutput(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, testpdf.Write(base, "/work/input.pdf", testpdf.Uniform(2, 200, 300)))

	_, err := NewRunner(afero.NewReadOnlyFs(base), nil, quietLogger()).Run(context.Background(), defaultOptions())
	require.Error(t, err)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageSave, stageErr.Stage)

	var writeErr *booklet.DocumentWriteError
	assert.True(t, errors.As(err, &writeErr))
}

func TestRun_Cancelled(t *testing.T) {
	fs := setup(t, testpdf.Uniform(4, 200, 300))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(fs, nil, quietLogger()).Run(ctx, defaultOptions())
	assert.ErrorIs(t, err, context.Canceled)

	ok, err := afero.Exists(fs, "/work/merged.pdf")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRun_RequiresPaths(t *testing.T) {
	runner := NewRunner(afero.NewMemMapFs(), nil, quietLogger())

	opts := defaultOptions()
	opts.Input = ""
	_, err := runner.Run(context.Background(), opts)
	assert.Error(t, err)

	opts = defaultOptions()
	opts.Output = ""
	_, err = runner.Run(context.Background(), opts)
	assert.Error(t, err)
}
