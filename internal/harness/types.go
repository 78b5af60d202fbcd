package harness

import (
	"errors"
	"strings"

	"github.com/jchia/selda/internal/filter"
	"github.com/jchia/selda/internal/queryir"
	"github.com/jchia/selda/internal/schema"
	"github.com/jchia/selda/internal/store"
)

// Step operations recorded in the trace.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
	OpQuery  = "query"
)

// TraceEvent records one executed flow step.
type TraceEvent struct {
	Step     int      `json:"step"`
	Op       string   `json:"op"`
	Table    string   `json:"table"`
	Affected int64    `json:"affected,omitempty"`
	Columns  []string `json:"columns,omitempty"`
	Rows     [][]any  `json:"rows,omitempty"`
	Cached   bool     `json:"cached,omitempty"`

	// Error is the ErrorClass of a failed step.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Errors holds one message per failed expectation.
	Errors []string `json:"errors,omitempty"`

	// State holds the final contents of every table, in key order.
	State map[string][][]any `json:"state,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string][][]any),
	}
}

// AddError records a failed expectation.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// ErrorClass names the category of err the way scenarios spell it in
// expect clauses: "constraint:unique", "schema:bad_row",
// "scope:unknown_column", "filter" or "error".
func ErrorClass(err error) string {
	if err == nil {
		return ""
	}
	var ce *store.ConstraintError
	if errors.As(err, &ce) {
		return "constraint:" + strings.ToLower(string(ce.Kind))
	}
	var ve *schema.ValidationError
	if errors.As(err, &ve) {
		return "schema:" + strings.ToLower(string(ve.Code))
	}
	var se *queryir.ScopeError
	if errors.As(err, &se) {
		return "scope:" + strings.ToLower(string(se.Code))
	}
	var fe *filter.Error
	if errors.As(err, &fe) {
		return "filter"
	}
	return "error"
}

// matchClass reports whether class satisfies want. A want without a
// detail part matches every class in its category.
func matchClass(class, want string) bool {
	return class == want || strings.HasPrefix(class, want+":")
}
