package booklet

import (
	"errors"
	"fmt"
	"math"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Policy decides which page of a pair goes into which region of a sheet.
type Policy int

const (
	// Forward puts the first page of a pair left and the second right.
	Forward Policy = iota
	// Reversed puts the second page of a pair left and the first right,
	// mirroring the forward layout for the back side of a duplex print.
	Reversed
)

func (p Policy) String() string {
	switch p {
	case Forward:
		return "forward"
	case Reversed:
		return "reversed"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// Size is a page extent in PDF user space units.
type Size struct {
	Width  float64
	Height float64
}

// Area returns Width*Height.
func (s Size) Area() float64 { return s.Width * s.Height }

// Rect is an axis aligned rectangle with its origin in the lower left corner.
type Rect struct {
	X, Y          float64
	Width, Height float64
}

func (r Rect) String() string {
	return fmt.Sprintf("[%.2f %.2f %.2f %.2f]", r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Margins holds the blank space around and between the two pages of a sheet.
type Margins struct {
	// Outer is the distance from every sheet edge to the nearest placed page.
	Outer float64 `yaml:"outer"`
	// Inner is the gutter between the two placed pages.
	Inner float64 `yaml:"inner"`
}

// Defaults used when no margins or border width are configured.
const (
	// DefaultOuterMargin is the sheet edge to page distance.
	DefaultOuterMargin = 10.0
	// DefaultInnerMargin is the gutter between the two pages.
	DefaultInnerMargin = 5.0
	// DefaultBorderWidth is the line width of the page borders.
	DefaultBorderWidth = 2.0
)

// ComposeOptions configures one composition run.
type ComposeOptions struct {
	Policy      Policy
	Margins     Margins
	BorderWidth float64
	// StrictPageSize rejects inputs whose pages differ in size from page 0.
	StrictPageSize bool
}

// DefaultComposeOptions returns the reference layout for the given policy.
func DefaultComposeOptions(p Policy) ComposeOptions {
	return ComposeOptions{
		Policy: p,
		Margins: Margins{
			Outer: DefaultOuterMargin,
			Inner: DefaultInnerMargin,
		},
		BorderWidth: DefaultBorderWidth,
	}
}

// Validate checks the options independently of any page size.
func (o ComposeOptions) Validate() error {
	err := validation.ValidateStruct(&o,
		validation.Field(&o.Policy, validation.In(Forward, Reversed)),
		validation.Field(&o.BorderWidth, validation.Min(0.0), validation.By(finite)),
	)
	if err == nil {
		err = validation.ValidateStruct(&o.Margins,
			validation.Field(&o.Margins.Outer, validation.Min(0.0), validation.By(finite)),
			validation.Field(&o.Margins.Inner, validation.Min(0.0), validation.By(finite)),
		)
	}
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if errors.As(err, &errs) {
		fields := make([]string, 0, len(errs))
		for field := range errs {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		if len(fields) > 0 {
			return &InvalidGeometryError{Field: fields[0], Reason: errs[fields[0]].Error()}
		}
	}
	return &InvalidGeometryError{Reason: err.Error()}
}

func finite(value interface{}) error {
	f, _ := value.(float64)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return errors.New("must be a finite number")
	}
	return nil
}

// ValidatePageSize rejects reference pages that cannot span a sheet.
func ValidatePageSize(page Size) error {
	if math.IsNaN(page.Area()) || math.IsInf(page.Area(), 0) {
		return &InvalidGeometryError{Field: "page", Reason: "size must be finite"}
	}
	if page.Width <= 0 || page.Height <= 0 {
		return &InvalidGeometryError{
			Field:  "page",
			Reason: fmt.Sprintf("reference page has zero area (%.2f x %.2f)", page.Width, page.Height),
		}
	}
	return nil
}

// SheetSize returns the size of a sheet holding two pages of the given size.
func SheetSize(page Size, m Margins) Size {
	return Size{
		Width:  2*page.Width + 2*m.Outer + m.Inner,
		Height: page.Height + 2*m.Outer,
	}
}

// Regions returns the two fixed page slots of a sheet. Region A starts after
// the outer margin, region B after region A and the gutter. Both are inset by
// the outer margin from the top and bottom edge.
func Regions(page Size, m Margins) (a, b Rect) {
	a = Rect{X: m.Outer, Y: m.Outer, Width: page.Width, Height: page.Height}
	b = Rect{X: m.Outer + page.Width + m.Inner, Y: m.Outer, Width: page.Width, Height: page.Height}
	return a, b
}

// Slot names one of the two fixed regions of a sheet. Slot A is the left
// region, slot B the right one, regardless of policy.
type Slot int

const (
	// SlotA is the left region, starting at the outer margin.
	SlotA Slot = iota
	// SlotB is the right region, past the gutter.
	SlotB
)

func (s Slot) String() string {
	if s == SlotB {
		return "B"
	}
	return "A"
}

// Placement puts source page Source (0-based) into Region.
type Placement struct {
	Slot   Slot
	Source int
	Region Rect
}

// Sheet is one output page carrying up to two placements.
type Sheet struct {
	Size       Size
	Placements []Placement
}

// Plan lays out pageCount pages of the given reference size onto sheets.
// Pair k consumes pages 2k and 2k+1; an odd trailing page leaves one region
// blank. All sheets of a plan share the same size.
func Plan(pageCount int, page Size, opts ComposeOptions) ([]Sheet, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if pageCount <= 0 {
		return nil, nil
	}
	if err := ValidatePageSize(page); err != nil {
		return nil, err
	}

	size := SheetSize(page, opts.Margins)
	regionA, regionB := Regions(page, opts.Margins)

	sheets := make([]Sheet, 0, (pageCount+1)/2)
	for first := 0; first < pageCount; first += 2 {
		srcA, srcB := first, first+1
		if opts.Policy == Reversed {
			srcA, srcB = srcB, srcA
		}
		sheet := Sheet{Size: size, Placements: make([]Placement, 0, 2)}
		if srcA < pageCount {
			sheet.Placements = append(sheet.Placements, Placement{Slot: SlotA, Source: srcA, Region: regionA})
		}
		if srcB < pageCount {
			sheet.Placements = append(sheet.Placements, Placement{Slot: SlotB, Source: srcB, Region: regionB})
		}
		sheets = append(sheets, sheet)
	}
	return sheets, nil
}

// Fit scales content of size src into r, keeping the aspect ratio and
// centring the result. It returns the scale factor and the lower left corner
// of the scaled content.
func Fit(src Size, r Rect) (scale, x, y float64) {
	if src.Width <= 0 || src.Height <= 0 {
		return 1, r.X, r.Y
	}
	scale = math.Min(r.Width/src.Width, r.Height/src.Height)
	x = r.X + (r.Width-src.Width*scale)/2
	y = r.Y + (r.Height-src.Height*scale)/2
	return scale, x, y
}

// SameSize reports whether a and b differ by less than half a point in both
// dimensions.
func SameSize(a, b Size) bool {
	const tolerance = 0.5
	return math.Abs(a.Width-b.Width) < tolerance && math.Abs(a.Height-b.Height) < tolerance
}
