package booklet

import "fmt"

// DocumentReadError reports a document that could not be opened, parsed or
// validated.
type DocumentReadError struct {
	Path string
	Err  error
}

func (e *DocumentReadError) Error() string {
	return fmt.Sprintf("read document %q: %v", e.Path, e.Err)
}

func (e *DocumentReadError) Unwrap() error { return e.Err }

// DocumentWriteError reports a document that could not be persisted.
type DocumentWriteError struct {
	Path string
	Err  error
}

func (e *DocumentWriteError) Error() string {
	return fmt.Sprintf("write document %q: %v", e.Path, e.Err)
}

func (e *DocumentWriteError) Unwrap() error { return e.Err }

// InvalidGeometryError is returned before any layout work starts when the
// margins, border or reference page cannot produce a valid sheet.
type InvalidGeometryError struct {
	Field  string
	Reason string
}

func (e *InvalidGeometryError) Error() string {
	if e.Field == "" {
		return "invalid geometry: " + e.Reason
	}
	return fmt.Sprintf("invalid geometry: %s: %s", e.Field, e.Reason)
}
