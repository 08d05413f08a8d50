package booklet

// SplitIndices partitions the 0-based page indices 0..n-1 by their 1-based
// page number: pages 1, 3, 5, ... go to odd, pages 2, 4, 6, ... go to even.
// Both slices keep the original relative order.
func SplitIndices(n int) (odd, even []int) {
	if n <= 0 {
		return nil, nil
	}
	odd = make([]int, 0, (n+1)/2)
	even = make([]int, 0, n/2)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			odd = append(odd, i) // page i+1 is odd
		} else {
			even = append(even, i)
		}
	}
	return odd, even
}

// Side selects one of the two documents fed into InterleaveIndices.
type Side int

const (
	SideA Side = iota
	SideB
)

// PageRef addresses page Index (0-based) of document Side.
type PageRef struct {
	Side  Side
	Index int
}

// InterleaveIndices returns the merge order for two documents with a and b
// pages. For every index i it takes A[i] (if present) and then B[i] (if
// present), so once the shorter side runs out the longer one continues page
// by page.
func InterleaveIndices(a, b int) []PageRef {
	if a < 0 {
		a = 0
	}
	if b < 0 {
		b = 0
	}
	n := max(a, b)
	order := make([]PageRef, 0, a+b)
	for i := 0; i < n; i++ {
		if i < a {
			order = append(order, PageRef{Side: SideA, Index: i})
		}
		if i < b {
			order = append(order, PageRef{Side: SideB, Index: i})
		}
	}
	return order
}
