package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jchia/selda/internal/cache"
)

// CacheOptions holds flags for the cache command.
type CacheOptions struct {
	QueryOptions
	Repeat   int
	Capacity int
}

// CacheOutput is the JSON payload of the cache command.
type CacheOutput struct {
	Runs   []bool     `json:"runs"` // whether each run was served from the cache
	Rows   int        `json:"rows"`
	Stats  CacheStats `json:"stats"`
	Config int        `json:"configured_capacity"`
}

// CacheStats mirrors cache.Stats with JSON names.
type CacheStats struct {
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Stores        uint64 `json:"stores"`
	Dropped       uint64 `json:"dropped"`
	Evictions     uint64 `json:"evictions"`
	Invalidations uint64 `json:"invalidations"`
	Size          int    `json:"size"`
	Capacity      int    `json:"capacity"`
}

func newCacheStats(s cache.Stats) CacheStats {
	return CacheStats(s)
}

// NewCacheCommand creates the cache command.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CacheOptions{QueryOptions: QueryOptions{RootOptions: rootOpts}}
	cmd := &cobra.Command{
		Use:   "cache <table>",
		Short: "Run a query repeatedly and report result cache statistics",
		Long: `Run the same query several times in one process and report how the
result cache served it. Accepts the select flags.

The cache lives only as long as the process, so this is mostly useful
for checking that a query is cacheable and sizing cache_capacity.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCache(opts, cmd, args[0])
		},
	}
	opts.bind(cmd)
	cmd.Flags().IntVar(&opts.Repeat, "repeat", 2, "number of runs")
	cmd.Flags().IntVar(&opts.Capacity, "capacity", 0, "cache capacity for this run (default: config cache_capacity, or 16 if that is 0)")
	return cmd
}

func runCache(opts *CacheOptions, cmd *cobra.Command, tableName string) error {
	if opts.Repeat < 1 {
		return newFormatter(opts.RootOptions, cmd).Fail(ExitCommandError, ErrCodeGeneric, "--repeat must be at least 1", nil)
	}
	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = s.cfg.CacheCapacity
	}
	if capacity <= 0 {
		capacity = 16
	}
	s.engine.SetCacheCapacity(capacity)

	t := s.schema.Table(tableName)
	if t == nil {
		return s.out.Fail(ExitCommandError, ErrCodeUnknownTable, fmt.Sprintf("table %q is not declared", tableName), nil)
	}
	q, err := opts.BuildQuery(t)
	if err != nil {
		return queryFailure(s.out, err)
	}

	out := CacheOutput{Config: s.cfg.CacheCapacity}
	for i := 0; i < opts.Repeat; i++ {
		res, err := s.engine.Query(cmd.Context(), q)
		if err != nil {
			return s.out.Fail(ExitCommandError, ErrCodeDatabase, "query failed", err)
		}
		out.Runs = append(out.Runs, res.Cached)
		out.Rows = len(res.Rows)
	}
	out.Stats = newCacheStats(s.engine.CacheStats())

	if s.out.Format == "json" {
		return s.out.Success(out)
	}
	for i, cached := range out.Runs {
		src := "database"
		if cached {
			src = "cache"
		}
		fmt.Fprintf(s.out.Writer, "run %d: %d row%s from %s\n", i+1, out.Rows, plural(out.Rows), src)
	}
	fmt.Fprintln(s.out.Writer)
	tw := tabwriter.NewWriter(s.out.Writer, 0, 4, 2, ' ', 0)
	st := out.Stats
	fmt.Fprintf(tw, "hits\t%d\n", st.Hits)
	fmt.Fprintf(tw, "misses\t%d\n", st.Misses)
	fmt.Fprintf(tw, "stores\t%d\n", st.Stores)
	fmt.Fprintf(tw, "dropped\t%d\n", st.Dropped)
	fmt.Fprintf(tw, "evictions\t%d\n", st.Evictions)
	fmt.Fprintf(tw, "invalidations\t%d\n", st.Invalidations)
	fmt.Fprintf(tw, "size\t%d/%d\n", st.Size, st.Capacity)
	return tw.Flush()
}
