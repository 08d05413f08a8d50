package pdfdoc

import (
	"bytes"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"pdf-heft/internal/booklet"
)

// Merge interleaves a and b page by page: a[0], b[0], a[1], b[1], ... Once the
// shorter document is exhausted the remaining pages of the longer one follow
// in order. The result always has a.PageCount()+b.PageCount() pages.
func Merge(a, b *Document, name string) (*Document, error) {
	na, nb := a.PageCount(), b.PageCount()
	order := booklet.InterleaveIndices(na, nb)

	switch {
	case na == 0 && nb == 0:
		return Empty(name, a.conf), nil
	case na == 0:
		return b.Select(indicesOf(order), name)
	case nb == 0:
		return a.Select(indicesOf(order), name)
	}

	rawA, err := a.Bytes()
	if err != nil {
		return nil, &booklet.DocumentReadError{Path: a.name, Err: err}
	}
	rawB, err := b.Bytes()
	if err != nil {
		return nil, &booklet.DocumentReadError{Path: b.name, Err: err}
	}

	// Concatenate A and B, then pick pages from the joint document: A's pages
	// come first, B's start at index na.
	var joined bytes.Buffer
	rsc := []io.ReadSeeker{bytes.NewReader(rawA), bytes.NewReader(rawB)}
	if err := api.MergeRaw(rsc, &joined, false, DefaultConfiguration()); err != nil {
		return nil, &booklet.DocumentReadError{Path: name, Err: err}
	}
	both, err := Read(bytes.NewReader(joined.Bytes()), name, a.conf)
	if err != nil {
		return nil, err
	}

	indices := make([]int, len(order))
	for i, ref := range order {
		indices[i] = ref.Index
		if ref.Side == booklet.SideB {
			indices[i] += na
		}
	}
	return both.Select(indices, name)
}

// indicesOf drops the side of one-sided orders.
func indicesOf(order []booklet.PageRef) []int {
	indices := make([]int, len(order))
	for i, ref := range order {
		indices[i] = ref.Index
	}
	return indices
}
