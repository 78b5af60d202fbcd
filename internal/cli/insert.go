package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jchia/selda/internal/engine"
	"github.com/jchia/selda/internal/ir"
	"github.com/jchia/selda/internal/schema"
	"github.com/jchia/selda/internal/store"
)

// InsertOptions holds flags for the insert command.
type InsertOptions struct {
	*RootOptions
	ReturnKeys bool
}

// InsertOutput is the JSON payload of insert.
type InsertOutput struct {
	Table    string  `json:"table"`
	Inserted int64   `json:"inserted"`
	Keys     []int64 `json:"keys,omitempty"`
}

// NewInsertCommand creates the insert command.
func NewInsertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InsertOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "insert <table> <rows.yaml|->",
		Short: "Insert rows from a YAML file",
		Long: `Insert rows read from a YAML sequence of mappings, keyed by column name.

Columns left out take their default; optional columns without a default
become NULL. All rows go in one transaction.

Example rows file:
  - name: Link
    age: 125
    pet: horse
  - name: Velvet
    age: 19`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInsert(opts, cmd, args[0], args[1])
		},
	}
	cmd.Flags().BoolVar(&opts.ReturnKeys, "return-keys", false, "report the generated key of each row (auto-key tables only)")
	return cmd
}

func runInsert(opts *InsertOptions, cmd *cobra.Command, tableName, path string) error {
	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	t := s.schema.Table(tableName)
	if t == nil {
		return s.out.Fail(ExitCommandError, ErrCodeUnknownTable, fmt.Sprintf("table %q is not declared", tableName), nil)
	}

	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return s.out.Fail(ExitCommandError, ErrCodeNotFound, "cannot open rows file", err)
		}
		defer f.Close()
		r = f
	}
	rows, err := DecodeRows(t, r)
	if err != nil {
		return s.out.Fail(ExitFailure, ErrCodeBadRows, "malformed rows file", err)
	}
	s.out.VerboseLog("Decoded %d row(s) for %s", len(rows), t.Name())

	out := InsertOutput{Table: t.Name()}
	if opts.ReturnKeys {
		err = s.engine.Transaction(cmd.Context(), func(tx *engine.Tx) error {
			for _, row := range rows {
				key, err := tx.InsertReturningKey(cmd.Context(), t, row)
				if err != nil {
					return err
				}
				out.Keys = append(out.Keys, key)
			}
			return nil
		})
		out.Inserted = int64(len(out.Keys))
	} else {
		out.Inserted, err = s.engine.Insert(cmd.Context(), t, rows...)
	}
	if err != nil {
		return insertFailure(s.out, err)
	}

	if s.out.Format == "json" {
		return s.out.Success(out)
	}
	fmt.Fprintf(s.out.Writer, "✓ inserted %d row%s into %s\n", out.Inserted, plural(int(out.Inserted)), out.Table)
	for _, k := range out.Keys {
		fmt.Fprintf(s.out.Writer, "  key %d\n", k)
	}
	return nil
}

func insertFailure(out *OutputFormatter, err error) error {
	switch {
	case schema.IsValidationError(err):
		return out.Fail(ExitFailure, ErrCodeRowRejected, "row rejected", err)
	case store.IsConstraintError(err):
		return out.Fail(ExitFailure, ErrCodeConstraint, "constraint violated", err)
	case errors.Is(err, engine.ErrNoAutoKey):
		return out.Fail(ExitCommandError, ErrCodeBadQuery, "table has no auto-incrementing key", err)
	default:
		return out.Fail(ExitCommandError, ErrCodeDatabase, "insert failed", err)
	}
}

// DecodeRows reads a YAML sequence of column-keyed mappings into rows in
// t's column order. Unknown columns are rejected. Values are not yet
// checked against column types; the insert does that.
func DecodeRows(t *schema.Table, r io.Reader) ([]ir.Row, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return nil, fmt.Errorf("expected a single YAML document")
	}
	seq := doc.Content[0]
	if seq.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: expected a sequence of rows", seq.Line)
	}

	rows := make([]ir.Row, 0, len(seq.Content))
	for _, item := range seq.Content {
		row, err := decodeRow(t, item)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func decodeRow(t *schema.Table, n *yaml.Node) (ir.Row, error) {
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: row must be a mapping", n.Line)
	}
	values := make(map[string]ir.Value, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		if t.Index(key.Value) < 0 {
			return nil, fmt.Errorf("line %d: table %s has no column %q", key.Line, t.Name(), key.Value)
		}
		if _, dup := values[key.Value]; dup {
			return nil, fmt.Errorf("line %d: column %q given twice", key.Line, key.Value)
		}
		var raw any
		if err := val.Decode(&raw); err != nil {
			return nil, fmt.Errorf("line %d: %w", val.Line, err)
		}
		v, err := ir.FromGo(raw)
		if err != nil {
			return nil, fmt.Errorf("line %d: column %q: %w", val.Line, key.Value, err)
		}
		values[key.Value] = v
	}
	return t.RowFromMap(values)
}
