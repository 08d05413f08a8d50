package pdfdoc

import "pdf-heft/internal/booklet"

// Split separates src into its odd pages (1, 3, 5, ...) and its even pages
// (2, 4, 6, ...). Both results keep the original relative order. An empty
// source yields two empty documents.
func Split(src *Document, oddName, evenName string) (odd, even *Document, err error) {
	oddIdx, evenIdx := booklet.SplitIndices(src.PageCount())

	if odd, err = src.Select(oddIdx, oddName); err != nil {
		return nil, nil, err
	}
	if even, err = src.Select(evenIdx, evenName); err != nil {
		return nil, nil, err
	}
	return odd, even, nil
}
