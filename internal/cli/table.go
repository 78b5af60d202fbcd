package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jchia/selda/internal/engine"
	"github.com/jchia/selda/internal/schema"
)

// TableOptions holds flags for create and drop.
type TableOptions struct {
	*RootOptions
	Strict bool // fail when the table already exists (create) or is missing (drop)
}

// TablesOutput is the JSON payload of create and drop.
type TablesOutput struct {
	Tables []string `json:"tables"`
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TableOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "create [table...]",
		Short: "Create tables declared in the schema",
		Long: `Create the named tables, or every declared table, in one transaction.

Existing tables are left alone unless --strict is given.

Example:
  selda create --schema ./schema
  selda create --schema ./schema --strict people addresses`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTables(opts, cmd, args, "created", func(tx *engine.Tx, t *schema.Table) error {
				if opts.Strict {
					return tx.CreateTable(cmd.Context(), t)
				}
				return tx.TryCreateTable(cmd.Context(), t)
			})
		},
	}
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "fail if a table already exists")
	return cmd
}

// NewDropCommand creates the drop command.
func NewDropCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TableOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "drop [table...]",
		Short: "Drop tables declared in the schema",
		Long: `Drop the named tables, or every declared table, in one transaction.

Missing tables are skipped unless --strict is given.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTables(opts, cmd, args, "dropped", func(tx *engine.Tx, t *schema.Table) error {
				if opts.Strict {
					return tx.DropTable(cmd.Context(), t)
				}
				return tx.TryDropTable(cmd.Context(), t)
			})
		},
	}
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "fail if a table does not exist")
	return cmd
}

func runTables(opts *TableOptions, cmd *cobra.Command, names []string, verb string, apply func(*engine.Tx, *schema.Table) error) error {
	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	tables, err := s.schema.Select(names)
	if err != nil {
		return loadFailure(s.out, err)
	}

	err = s.engine.Transaction(cmd.Context(), func(tx *engine.Tx) error {
		for _, t := range tables {
			if err := apply(tx, t); err != nil {
				return fmt.Errorf("table %s: %w", t.Name(), err)
			}
		}
		return nil
	})
	if err != nil {
		return s.out.Fail(ExitCommandError, ErrCodeDatabase, fmt.Sprintf("tables not %s", verb), err)
	}

	out := TablesOutput{Tables: make([]string, len(tables))}
	for i, t := range tables {
		out.Tables[i] = t.Name()
	}
	if s.out.Format == "json" {
		return s.out.Success(out)
	}
	for _, name := range out.Tables {
		fmt.Fprintf(s.out.Writer, "✓ %s %s\n", verb, name)
	}
	return nil
}
