package pdfdoc

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"pdf-heft/internal/booklet"
)

// Compose lays out the pages of src two per sheet according to opts. Sheet
// size is derived from page 0. Every placed page gets a black border of
// opts.BorderWidth; a width of 0 disables borders.
func Compose(src *Document, opts booklet.ComposeOptions, name string) (*Document, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	n := src.PageCount()
	if n == 0 {
		return Empty(name, src.conf), nil
	}

	sizes, err := src.PageSizes()
	if err != nil {
		return nil, err
	}
	ref := sizes[0]
	var mismatched []int
	for i, s := range sizes {
		if booklet.SameSize(ref, s) {
			continue
		}
		if opts.StrictPageSize {
			return nil, &booklet.InvalidGeometryError{
				Field: "page",
				Reason: fmt.Sprintf("page %d of %s is %.2fx%.2f, expected %.2fx%.2f",
					i+1, src.name, s.Width, s.Height, ref.Width, ref.Height),
			}
		}
		mismatched = append(mismatched, i)
	}

	sheets, err := booklet.Plan(n, ref, opts)
	if err != nil {
		return nil, err
	}

	// Work on a private copy: every source page becomes a form XObject, then
	// the first page of each pair is rewritten into the sheet that shows both.
	pageNrs := make([]int, n)
	for i := range pageNrs {
		pageNrs[i] = i + 1
	}
	work, err := pdfcpu.ExtractPages(src.ctx, pageNrs, false)
	if err != nil {
		return nil, &booklet.DocumentReadError{Path: src.name, Err: err}
	}
	if err := work.EnsurePageCount(); err != nil {
		return nil, &booklet.DocumentReadError{Path: src.name, Err: err}
	}

	forms := make([]form, n)
	for i := range forms {
		if forms[i], err = newForm(work, i+1); err != nil {
			return nil, &booklet.DocumentReadError{Path: src.name, Err: err}
		}
	}

	hosts := make([]int, len(sheets))
	for k, sheet := range sheets {
		hosts[k] = 2*k + 1
		if err := renderSheet(work, hosts[k], sheet, forms, opts.BorderWidth); err != nil {
			return nil, fmt.Errorf("render sheet %d of %s: %w", k+1, name, err)
		}
	}

	out, err := pdfcpu.ExtractPages(work, hosts, false)
	if err != nil {
		return nil, fmt.Errorf("collect sheets of %s: %w", name, err)
	}
	doc, err := wrap(out, name, src.conf)
	if err != nil {
		return nil, err
	}
	doc.mismatched = mismatched
	return doc, nil
}

// form is a source page turned into a reusable form XObject.
type form struct {
	ref *types.IndirectRef
	box *types.Rectangle
}

func newForm(ctx *model.Context, pageNr int) (form, error) {
	d, _, inh, err := ctx.PageDict(pageNr, false)
	if err != nil {
		return form{}, err
	}
	if d == nil {
		return form{}, fmt.Errorf("page %d: missing page dict", pageNr)
	}
	box := inh.CropBox
	if box == nil {
		box = inh.MediaBox
	}
	if box == nil {
		return form{}, fmt.Errorf("page %d: missing media box", pageNr)
	}

	content, err := pageContent(ctx, d)
	if err != nil {
		return form{}, fmt.Errorf("page %d: %w", pageNr, err)
	}

	sd, err := ctx.NewStreamDictForBuf(content)
	if err != nil {
		return form{}, err
	}
	sd.InsertName("Type", "XObject")
	sd.InsertName("Subtype", "Form")
	sd.Insert("BBox", box.Array())
	if inh.Resources != nil {
		sd.Insert("Resources", inh.Resources)
	}
	if err := sd.Encode(); err != nil {
		return form{}, err
	}
	ref, err := ctx.IndRefForNewObject(*sd)
	if err != nil {
		return form{}, err
	}
	return form{ref: ref, box: box}, nil
}

// pageContent concatenates the decoded content streams of page d.
func pageContent(ctx *model.Context, d types.Dict) ([]byte, error) {
	o, found := d.Find("Contents")
	if !found || o == nil {
		return nil, nil
	}
	o, err := ctx.Dereference(o)
	if err != nil || o == nil {
		return nil, err
	}

	var streams types.Array
	switch o := o.(type) {
	case types.StreamDict:
		streams = types.Array{o}
	case types.Array:
		streams = o
	default:
		return nil, fmt.Errorf("unexpected content object %T", o)
	}

	var buf bytes.Buffer
	for _, s := range streams {
		if s == nil {
			continue
		}
		sd, _, err := ctx.DereferenceStreamDict(s)
		if err != nil {
			return nil, err
		}
		if sd == nil {
			continue
		}
		b, err := streamContent(sd)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// streamContent returns the decoded bytes of sd. Streams copied by
// pdfcpu.ExtractPages carry an empty but non-nil filter pipeline, which
// StreamDict.Decode cannot handle; those are unfiltered and used as is.
func streamContent(sd *types.StreamDict) ([]byte, error) {
	if sd.Content != nil {
		return sd.Content, nil
	}
	if len(sd.FilterPipeline) == 0 {
		return sd.Raw, nil
	}
	if err := sd.Decode(); err != nil {
		return nil, err
	}
	return sd.Content, nil
}

// formName is the XObject resource name used for the page in slot s.
func formName(s booklet.Slot) string { return "Page" + s.String() }

func renderSheet(ctx *model.Context, hostNr int, sheet booklet.Sheet, forms []form, border float64) error {
	d, _, _, err := ctx.PageDict(hostNr, false)
	if err != nil {
		return err
	}
	if d == nil {
		return fmt.Errorf("page %d: missing page dict", hostNr)
	}

	xobjects := types.Dict{}
	var content bytes.Buffer
	for _, p := range sheet.Placements {
		f := forms[p.Source]
		res := formName(p.Slot)
		xobjects[res] = *f.ref

		src := booklet.Size{Width: f.box.Width(), Height: f.box.Height()}
		scale, x, y := booklet.Fit(src, p.Region)
		fmt.Fprintf(&content, "q %s 0 0 %s %s %s cm /%s Do Q\n",
			num(scale), num(scale), num(x-f.box.LL.X*scale), num(y-f.box.LL.Y*scale), res)

		if border > 0 {
			r := p.Region
			fmt.Fprintf(&content, "q 0 0 0 RG %s w %s %s %s %s re S Q\n",
				num(border), num(r.X), num(r.Y), num(r.Width), num(r.Height))
		}
	}

	sd, err := ctx.NewStreamDictForBuf(content.Bytes())
	if err != nil {
		return err
	}
	if err := sd.Encode(); err != nil {
		return err
	}
	contents, err := ctx.IndRefForNewObject(*sd)
	if err != nil {
		return err
	}

	box := types.RectForWidthAndHeight(0, 0, sheet.Size.Width, sheet.Size.Height)
	d["MediaBox"] = box.Array()
	d["CropBox"] = box.Array()
	d["Rotate"] = types.Integer(0)
	d["Resources"] = types.Dict{"XObject": xobjects}
	d["Contents"] = *contents
	for _, key := range []string{"TrimBox", "BleedBox", "ArtBox", "Annots", "Thumb", "B"} {
		d.Delete(key)
	}
	return nil
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
