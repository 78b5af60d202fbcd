package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted run against a fresh in-memory database: seed
// rows, a flow of mutations and queries with expected outcomes, and
// assertions on the final state.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Schema lists CUE files declaring the tables. They must share one
	// directory and package. Relative paths are resolved against the
	// scenario file by LoadScenario.
	Schema []string `yaml:"schema"`

	// CacheCapacity sizes the result cache; 0 disables it.
	CacheCapacity int `yaml:"cache_capacity,omitempty"`

	// Setup rows are inserted before the flow and must succeed.
	Setup []InsertStep `yaml:"setup,omitempty"`

	Flow []FlowStep `yaml:"flow"`

	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// InsertStep seeds rows into a table.
type InsertStep struct {
	Table string           `yaml:"table"`
	Rows  []map[string]any `yaml:"rows"`
}

// FlowStep is one operation of the flow. Exactly one of Insert, Update,
// Delete or Query names the table it acts on.
type FlowStep struct {
	Insert string `yaml:"insert,omitempty"`
	Update string `yaml:"update,omitempty"`
	Delete string `yaml:"delete,omitempty"`
	Query  string `yaml:"query,omitempty"`

	// Rows to insert; omitted columns take their default.
	Rows []map[string]any `yaml:"rows,omitempty"`

	// Where filters update, delete and query. Empty matches every row.
	Where string `yaml:"where,omitempty"`

	// Set maps columns to new values for update.
	Set map[string]any `yaml:"set,omitempty"`

	// Order, Columns and Limit shape a query. Limit nil means no cap.
	Order   []string `yaml:"order,omitempty"`
	Columns []string `yaml:"columns,omitempty"`
	Limit   *int64   `yaml:"limit,omitempty"`

	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// Op returns the operation name and table of the step.
func (s FlowStep) Op() (op, table string) {
	switch {
	case s.Insert != "":
		return OpInsert, s.Insert
	case s.Update != "":
		return OpUpdate, s.Update
	case s.Delete != "":
		return OpDelete, s.Delete
	default:
		return OpQuery, s.Query
	}
}

// ExpectClause is the expected outcome of a step. A step without one
// must succeed.
type ExpectClause struct {
	// Error is an ErrorClass, or a category prefix such as "constraint".
	Error string `yaml:"error,omitempty"`

	// Affected is the row count an insert, update or delete reports.
	Affected *int64 `yaml:"affected,omitempty"`

	// Rows are the exact rows a query returns, in order.
	Rows [][]any `yaml:"rows,omitempty"`

	// Count is the number of rows a query returns.
	Count *int `yaml:"count,omitempty"`

	// Cached is whether a query is served from the result cache.
	Cached *bool `yaml:"cached,omitempty"`
}

// Assertion checks the trace, the cache or the final state.
type Assertion struct {
	Type string `yaml:"type"`

	// Table is used by row_count and final_state.
	Table string `yaml:"table,omitempty"`

	// Where narrows row_count and final_state.
	Where string `yaml:"where,omitempty"`

	// Count is the expected total of row_count and trace_count.
	Count *int `yaml:"count,omitempty"`

	// Expect holds the column values every matching row must have
	// (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Op and Error select the trace events counted by trace_count.
	Op    string `yaml:"op,omitempty"`
	Error string `yaml:"error,omitempty"`

	// Hits and Misses are the expected cache counters (cache).
	Hits   *uint64 `yaml:"hits,omitempty"`
	Misses *uint64 `yaml:"misses,omitempty"`
}

// Assertion types.
const (
	AssertRowCount   = "row_count"
	AssertFinalState = "final_state"
	AssertTraceCount = "trace_count"
	AssertCache      = "cache"
)

// LoadScenario reads a scenario file. Unknown fields are rejected and
// schema paths are made relative to the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	for i, p := range scenario.Schema {
		if !filepath.IsAbs(p) {
			scenario.Schema[i] = filepath.Join(dir, p)
		}
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Schema) == 0 {
		return fmt.Errorf("schema is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow is required")
	}
	if s.CacheCapacity < 0 {
		return fmt.Errorf("cache_capacity must not be negative")
	}
	for i, step := range s.Setup {
		if step.Table == "" {
			return fmt.Errorf("setup[%d]: table is required", i)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(s FlowStep) error {
	n := 0
	for _, name := range []string{s.Insert, s.Update, s.Delete, s.Query} {
		if name != "" {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("exactly one of insert, update, delete or query is required")
	}
	op, _ := s.Op()
	switch {
	case op == OpInsert && len(s.Rows) == 0:
		return fmt.Errorf("insert needs rows")
	case op != OpInsert && len(s.Rows) > 0:
		return fmt.Errorf("rows only apply to insert")
	case op == OpUpdate && len(s.Set) == 0:
		return fmt.Errorf("update needs set")
	case op != OpUpdate && len(s.Set) > 0:
		return fmt.Errorf("set only applies to update")
	case op == OpInsert && s.Where != "":
		return fmt.Errorf("where does not apply to insert")
	case op != OpQuery && (len(s.Order) > 0 || len(s.Columns) > 0 || s.Limit != nil):
		return fmt.Errorf("order, columns and limit only apply to query")
	}
	if e := s.Expect; e != nil && op != OpQuery && (e.Rows != nil || e.Count != nil || e.Cached != nil) {
		return fmt.Errorf("rows, count and cached expectations only apply to query")
	}
	if e := s.Expect; e != nil && op == OpQuery && e.Affected != nil {
		return fmt.Errorf("affected does not apply to query")
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertRowCount:
		if a.Table == "" || a.Count == nil {
			return fmt.Errorf("row_count requires table and count")
		}
	case AssertFinalState:
		if a.Table == "" || len(a.Expect) == 0 {
			return fmt.Errorf("final_state requires table and expect")
		}
	case AssertTraceCount:
		if a.Count == nil {
			return fmt.Errorf("trace_count requires count")
		}
	case AssertCache:
		if a.Hits == nil && a.Misses == nil {
			return fmt.Errorf("cache requires hits or misses")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
