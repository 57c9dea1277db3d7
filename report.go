package docfill

import "fmt"

// Skip records a field that a resolver could not apply.
type Skip struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Report lists the fields a resolver wrote and those it skipped. Skipped
// fields are never errors.
type Report struct {
	Filled  []string `json:"filled"`
	Skipped []Skip   `json:"skipped,omitempty"`
}

// MarkFilled records name as written.
func (r *Report) MarkFilled(name string) { r.Filled = append(r.Filled, name) }

// MarkSkipped records name as skipped with a formatted reason.
func (r *Report) MarkSkipped(name, format string, args ...any) {
	r.Skipped = append(r.Skipped, Skip{Field: name, Reason: fmt.Sprintf(format, args...)})
}
