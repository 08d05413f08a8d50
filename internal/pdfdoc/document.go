// Package pdfdoc adapts pdfcpu contexts to the booklet operations: reading
// and atomically saving documents, splitting by parity, composing sheets and
// interleaving two documents.
package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/spf13/afero"

	"pdf-heft/internal/booklet"
)

// ErrEmptyDocument is returned when a document without pages is serialized.
var ErrEmptyDocument = errors.New("document has no pages")

// Document is an immutable, in-memory PDF. Every operation in this package
// returns a new Document; none modifies its input.
type Document struct {
	name string
	ctx  *model.Context // nil when the document has no pages
	conf *model.Configuration

	mismatched []int

	once   sync.Once
	raw    []byte
	rawErr error
}

// DefaultConfiguration returns the pdfcpu configuration used for reading and
// writing documents.
func DefaultConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Empty returns a document with no pages.
func Empty(name string, conf *model.Configuration) *Document {
	if conf == nil {
		conf = DefaultConfiguration()
	}
	return &Document{name: name, conf: conf}
}

// Open reads and validates the PDF at path.
func Open(fs afero.Fs, path string, conf *model.Configuration) (*Document, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, &booklet.DocumentReadError{Path: path, Err: err}
	}
	defer f.Close()

	return Read(f, path, conf)
}

// Read parses a PDF from rs. name is only used in diagnostics.
func Read(rs io.ReadSeeker, name string, conf *model.Configuration) (*Document, error) {
	if conf == nil {
		conf = DefaultConfiguration()
	}
	ctx, err := api.ReadValidateAndOptimize(rs, conf)
	if err != nil {
		return nil, &booklet.DocumentReadError{Path: name, Err: err}
	}
	return wrap(ctx, name, conf)
}

func wrap(ctx *model.Context, name string, conf *model.Configuration) (*Document, error) {
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, &booklet.DocumentReadError{Path: name, Err: err}
	}
	if ctx.PageCount == 0 {
		return Empty(name, conf), nil
	}
	return &Document{name: name, ctx: ctx, conf: conf}, nil
}

// Name returns the path or label the document was created with.
func (d *Document) Name() string { return d.name }

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	if d.ctx == nil {
		return 0
	}
	return d.ctx.PageCount
}

// Empty reports whether the document has no pages.
func (d *Document) Empty() bool { return d.PageCount() == 0 }

// MismatchedPages lists the 0-based source pages whose size differed from the
// reference page when the document was composed.
func (d *Document) MismatchedPages() []int { return d.mismatched }

// PageSize returns the visible size of page i (0-based): the CropBox if the
// page has one, the MediaBox otherwise.
func (d *Document) PageSize(i int) (booklet.Size, error) {
	if i < 0 || i >= d.PageCount() {
		return booklet.Size{}, fmt.Errorf("page index %d out of range [0,%d)", i, d.PageCount())
	}
	_, _, inh, err := d.ctx.PageDict(i+1, false)
	if err != nil {
		return booklet.Size{}, &booklet.DocumentReadError{Path: d.name, Err: err}
	}
	box := inh.CropBox
	if box == nil {
		box = inh.MediaBox
	}
	if box == nil {
		return booklet.Size{}, &booklet.DocumentReadError{
			Path: d.name,
			Err:  fmt.Errorf("page %d has no media box", i+1),
		}
	}
	return booklet.Size{Width: box.Width(), Height: box.Height()}, nil
}

// PageSizes returns the size of every page in order.
func (d *Document) PageSizes() ([]booklet.Size, error) {
	sizes := make([]booklet.Size, d.PageCount())
	for i := range sizes {
		s, err := d.PageSize(i)
		if err != nil {
			return nil, err
		}
		sizes[i] = s
	}
	return sizes, nil
}

// Select returns a new document made of the given 0-based pages in the given
// order.
func (d *Document) Select(indices []int, name string) (*Document, error) {
	if len(indices) == 0 {
		return Empty(name, d.conf), nil
	}
	pageNrs := make([]int, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= d.PageCount() {
			return nil, &booklet.DocumentReadError{
				Path: d.name,
				Err:  fmt.Errorf("page index %d out of range [0,%d)", idx, d.PageCount()),
			}
		}
		pageNrs[i] = idx + 1
	}
	ctx, err := pdfcpu.ExtractPages(d.ctx, pageNrs, false)
	if err != nil {
		return nil, &booklet.DocumentReadError{Path: d.name, Err: err}
	}
	return wrap(ctx, name, d.conf)
}

// Bytes serializes the document. The result is computed once and cached.
func (d *Document) Bytes() ([]byte, error) {
	if d.Empty() {
		return nil, ErrEmptyDocument
	}
	d.once.Do(func() {
		var buf bytes.Buffer
		d.rawErr = api.WriteContext(d.ctx, &buf)
		d.raw = buf.Bytes()
	})
	return d.raw, d.rawErr
}

// Write serializes the document to w.
func (d *Document) Write(w io.Writer) error {
	raw, err := d.Bytes()
	if err != nil {
		return err
	}
	_, err = w.Write(raw)
	return err
}

// Save writes the document to path. The bytes go to a temporary file in the
// same directory which is synced and renamed over path, so readers never see
// a partially written file.
func (d *Document) Save(fs afero.Fs, path string) error {
	if _, err := d.Bytes(); err != nil {
		return &booklet.DocumentWriteError{Path: path, Err: err}
	}
	return writeAtomic(fs, path, d.Write)
}

func writeAtomic(fs afero.Fs, path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	f, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &booklet.DocumentWriteError{Path: path, Err: err}
	}
	tmp := f.Name()

	fail := func(err error) error {
		if rmErr := fs.Remove(tmp); rmErr != nil && !os.IsNotExist(rmErr) {
			err = multierror.Append(err, fmt.Errorf("remove temp file %s: %w", tmp, rmErr))
		}
		return &booklet.DocumentWriteError{Path: path, Err: err}
	}

	if err := write(f); err != nil {
		_ = f.Close()
		return fail(err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fail(err)
	}
	if err := f.Close(); err != nil {
		return fail(err)
	}
	if err := fs.Rename(tmp, path); err != nil {
		return fail(err)
	}
	return nil
}
