// Package testpdf builds small but well-formed PDF files for tests. Each page
// has its own MediaBox so tests can tell pages apart by size after they have
// been split, composed or merged.
package testpdf

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/spf13/afero"
)

// Page describes one generated page.
type Page struct {
	Width  float64
	Height float64
}

// Numbered returns n pages sized (base+i) x height so that page i can be
// recognised by its width.
func Numbered(n int, base, height float64) []Page {
	pages := make([]Page, n)
	for i := range pages {
		pages[i] = Page{Width: base + float64(i), Height: height}
	}
	return pages
}

// Uniform returns n pages of the same size.
func Uniform(n int, width, height float64) []Page {
	pages := make([]Page, n)
	for i := range pages {
		pages[i] = Page{Width: width, Height: height}
	}
	return pages
}

// Build renders pages into PDF bytes. Every page carries a filled rectangle
// so that its content stream is not empty.
func Build(pages []Page) ([]byte, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("testpdf: no pages")
	}
	ctx, err := pdfcpu.CreateContextWithXRefTable(model.NewDefaultConfiguration(),
		&types.Dim{Width: pages[0].Width, Height: pages[0].Height})
	if err != nil {
		return nil, err
	}

	root, err := ctx.Pages()
	if err != nil {
		return nil, err
	}
	tree, err := ctx.DereferenceDict(*root)
	if err != nil {
		return nil, err
	}

	kids := types.Array{}
	for _, p := range pages {
		content := fmt.Sprintf("q 0.5 g %.2f %.2f %.2f %.2f re f Q", p.Width/4, p.Height/4, p.Width/2, p.Height/2)
		sd, err := ctx.NewStreamDictForBuf([]byte(content))
		if err != nil {
			return nil, err
		}
		if err := sd.Encode(); err != nil {
			return nil, err
		}
		contents, err := ctx.IndRefForNewObject(*sd)
		if err != nil {
			return nil, err
		}

		page := types.Dict{
			"Type":      types.Name("Page"),
			"Parent":    *root,
			"MediaBox":  types.RectForDim(p.Width, p.Height).Array(),
			"Resources": types.NewDict(),
			"Contents":  *contents,
		}
		ref, err := ctx.IndRefForNewObject(page)
		if err != nil {
			return nil, err
		}
		kids = append(kids, *ref)
	}
	tree["Kids"] = kids
	tree["Count"] = types.Integer(len(pages))

	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write stores Build(pages) at path on fs, creating parent directories.
func Write(fs afero.Fs, path string, pages []Page) error {
	raw, err := Build(pages)
	if err != nil {
		return err
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(fs, path, raw, 0o644)
}

// SlotWidths returns, for sheet pageNr (1-based) of ctx, the width of the
// source page behind every placed XObject, keyed by resource name.
func SlotWidths(ctx *model.Context, pageNr int) (map[string]float64, error) {
	d, _, _, err := ctx.PageDict(pageNr, false)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("testpdf: no page %d", pageNr)
	}
	res, err := ctx.DereferenceDict(d["Resources"])
	if err != nil {
		return nil, err
	}
	xobjects, err := ctx.DereferenceDict(res["XObject"])
	if err != nil {
		return nil, err
	}

	widths := map[string]float64{}
	for name, obj := range xobjects {
		sd, _, err := ctx.DereferenceStreamDict(obj)
		if err != nil {
			return nil, err
		}
		if sd == nil {
			return nil, fmt.Errorf("testpdf: page %d: dangling XObject %s", pageNr, name)
		}
		bbox := sd.ArrayEntry("BBox")
		if len(bbox) != 4 {
			return nil, fmt.Errorf("testpdf: page %d: XObject %s has no BBox", pageNr, name)
		}
		llx, err := number(bbox[0])
		if err != nil {
			return nil, err
		}
		urx, err := number(bbox[2])
		if err != nil {
			return nil, err
		}
		widths[name] = urx - llx
	}
	return widths, nil
}

// ReadSlotWidths parses raw and returns SlotWidths for every page.
func ReadSlotWidths(raw []byte) ([]map[string]float64, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(raw), conf)
	if err != nil {
		return nil, err
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, err
	}
	sheets := make([]map[string]float64, ctx.PageCount)
	for i := range sheets {
		if sheets[i], err = SlotWidths(ctx, i+1); err != nil {
			return nil, err
		}
	}
	return sheets, nil
}

func number(o types.Object) (float64, error) {
	switch v := o.(type) {
	case types.Float:
		return float64(v), nil
	case types.Integer:
		return float64(v), nil
	}
	return 0, fmt.Errorf("testpdf: not a number: %v", o)
}
