package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jchia/selda/internal/filter"
	"github.com/jchia/selda/internal/ir"
	"github.com/jchia/selda/internal/queryir"
	"github.com/jchia/selda/internal/querysql"
	"github.com/jchia/selda/internal/schema"
)

// QueryOptions are the flags shared by select, explain and cache.
type QueryOptions struct {
	*RootOptions
	Where    string
	Order    []string // column names; a leading "-" sorts descending
	Columns  []string
	Distinct bool
	Limit    int64 // negative means no limit
	Offset   int64
}

func (o *QueryOptions) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&o.Where, "where", "w", "", "filter, e.g. \"age >= 18 and pet is not null\"")
	f.StringSliceVarP(&o.Order, "order", "o", nil, "sort columns, first is primary; prefix with - for descending")
	f.StringSliceVarP(&o.Columns, "columns", "c", nil, "columns to return (default all)")
	f.BoolVar(&o.Distinct, "distinct", false, "remove duplicate rows")
	f.Int64VarP(&o.Limit, "limit", "n", -1, "maximum rows to return")
	f.Int64Var(&o.Offset, "offset", 0, "rows to skip")
}

// BuildQuery turns the flags into a query over t.
func (o *QueryOptions) BuildQuery(t *schema.Table) (*queryir.Query, error) {
	return filter.Selection{
		Where:    o.Where,
		Order:    o.Order,
		Columns:  o.Columns,
		Distinct: o.Distinct,
		Limit:    o.Limit,
		Offset:   o.Offset,
	}.Query(t)
}

// queryFailure reports a query that could not be built.
func queryFailure(out *OutputFormatter, err error) error {
	var fe *filter.Error
	if errors.As(err, &fe) {
		return out.Fail(ExitFailure, ErrCodeBadFilter, "invalid --where", err)
	}
	return out.Fail(ExitFailure, ErrCodeBadQuery, "invalid query", err)
}

// NewSelectCommand creates the select command.
func NewSelectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "select <table>",
		Short: "Query a table",
		Long: `Query a table with an optional filter, ordering and limit.

Example:
  selda select people --where "age > 18" --order -age --limit 10
  selda select people --columns name,pet --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelect(opts, cmd, args[0])
		},
	}
	opts.bind(cmd)
	return cmd
}

func runSelect(opts *QueryOptions, cmd *cobra.Command, tableName string) error {
	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	t := s.schema.Table(tableName)
	if t == nil {
		return s.out.Fail(ExitCommandError, ErrCodeUnknownTable, fmt.Sprintf("table %q is not declared", tableName), nil)
	}
	q, err := opts.BuildQuery(t)
	if err != nil {
		return queryFailure(s.out, err)
	}
	res, err := s.engine.Query(cmd.Context(), q)
	if err != nil {
		return s.out.Fail(ExitCommandError, ErrCodeDatabase, "query failed", err)
	}
	return s.out.Rows(res.Columns, res.Rows, res.Cached)
}

// ExplainOutput is the JSON payload of explain.
type ExplainOutput struct {
	SQL     string   `json:"sql"`
	Params  []any    `json:"params"`
	Tables  []string `json:"tables"`
	Columns []string `json:"columns"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "explain <table>",
		Short: "Print the SQL a select would run",
		Long: `Compile a query for the configured driver and print the SQL and its
parameters without opening the database.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(opts, cmd, args[0])
		},
	}
	opts.bind(cmd)
	return cmd
}

func runExplain(opts *QueryOptions, cmd *cobra.Command, tableName string) error {
	out := newFormatter(opts.RootOptions, cmd)

	res, err := LoadSchema(opts.Schema)
	if err != nil {
		return loadFailure(out, err)
	}
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	dialect, err := querysql.DialectByName(cfg.Driver)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeConfig, "unsupported driver", err)
	}

	t := res.Table(tableName)
	if t == nil {
		return out.Fail(ExitCommandError, ErrCodeUnknownTable, fmt.Sprintf("table %q is not declared", tableName), nil)
	}
	q, err := opts.BuildQuery(t)
	if err != nil {
		return queryFailure(out, err)
	}
	compiled, err := querysql.NewSQLCompiler(querysql.WithDialect(dialect)).Compile(q)
	if err != nil {
		return queryFailure(out, err)
	}

	expl := ExplainOutput{
		SQL:     compiled.SQL,
		Params:  make([]any, len(compiled.Params)),
		Tables:  compiled.Tables,
		Columns: make([]string, len(compiled.Columns)),
	}
	for i, p := range compiled.Params {
		expl.Params[i] = ir.ToGo(p)
	}
	for i, c := range compiled.Columns {
		expl.Columns[i] = c.Name
	}
	if out.Format == "json" {
		return out.Success(expl)
	}
	fmt.Fprintln(out.Writer, expl.SQL)
	for i, p := range compiled.Params {
		fmt.Fprintf(out.Writer, "  $%d = %s\n", i+1, ir.Format(p))
	}
	return nil
}
