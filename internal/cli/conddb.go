package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/roach88/nutools/internal/conddb"
	"github.com/roach88/nutools/internal/config"
)

// ConddbOptions holds the table flags shared by the conddb subcommands.
type ConddbOptions struct {
	*RootOptions
	Config string
	Schema string
	Table  string
	Type   string
}

// NewConddbCommand creates the conddb command group.
func NewConddbCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConddbOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "conddb",
		Short: "Read, write and tag conditions database tables",
	}

	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "table configuration file (YAML)")
	cmd.PersistentFlags().StringVar(&opts.Schema, "schema", "", "schema name (overrides the file)")
	cmd.PersistentFlags().StringVar(&opts.Table, "table", "", "table name (overrides the file)")
	cmd.PersistentFlags().StringVar(&opts.Type, "type", "", "table type: generic|conditions|hardware|unstructuredConditions")

	cmd.AddCommand(newConddbGetCommand(opts))
	cmd.AddCommand(newConddbLoadCSVCommand(opts))
	cmd.AddCommand(newConddbWriteCommand(opts))
	cmd.AddCommand(newConddbTagCommand(opts))

	return cmd
}

// connection resolves the configuration file, environment and flags.
func (o *ConddbOptions) connection() (config.Connection, error) {
	conn, err := config.Load(o.Config)
	if err != nil {
		return conn, WrapExitError(ExitFailure, "load table configuration", err)
	}
	if o.Schema != "" {
		conn.Schema = o.Schema
	}
	if o.Table != "" {
		conn.Table = o.Table
	}
	if o.Type != "" {
		conn.Type = o.Type
	}
	if conn.Table == "" {
		return conn, NewExitError(ExitFailure, "no table name: set tableName in --config or use --table")
	}
	return conn, nil
}

// openTable builds the table for conn. Tables served over SQL are
// introspected so their columns are known; web tables learn their columns
// from the first load.
func (o *ConddbOptions) openTable(ctx context.Context, cmd *cobra.Command, conn config.Connection) (*conddb.Table, error) {
	typ, err := conddb.ParseTableType(conn.Type)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "table type", err)
	}
	tableOpts := []conddb.Option{
		conddb.WithConnection(conn),
		conddb.WithLogger(o.logger()),
		conddb.WithMetrics(o.Metrics),
		conddb.WithOutput(cmd.OutOrStdout()),
	}
	if typ == conddb.Conditions || typ == conddb.UnstructuredConditions || conn.QueryEngineURL != "" {
		return conddb.New(conn.Schema, conn.Table, typ, tableOpts...), nil
	}
	t, err := conddb.Open(ctx, conn, tableOpts[1:]...)
	if err != nil {
		return nil, tableError(fmt.Sprintf("open %s", conn.QualifiedName()), err)
	}
	return t, nil
}

// getOptions holds flags for conddb get.
type getOptions struct {
	tag        string
	dataType   string
	t0, t1     float64
	recordTime float64
	channels   string
	where      string
	order      []string
	desc       bool
	limit      int
	offset     int
	noCache    bool
	flushCache bool
	csv        bool
}

func newConddbGetCommand(opts *ConddbOptions) *cobra.Command {
	g := &getOptions{}

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Load a table and print its rows",
		Long: `Load a table from the database or web service and print its rows.

Examples:
  nutools conddb get -c pedestals.yaml --t0 1700000000
  nutools conddb get -c pedestals.yaml --tag v2 --channels 0-127 --csv
  nutools conddb get -c crates.yaml --where "ok = true" --order id --limit 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd, opts, g)
		},
	}

	f := cmd.Flags()
	f.StringVar(&g.tag, "tag", "", "tagged snapshot")
	f.StringVar(&g.dataType, "data-type", "", "data, mc or data|mc")
	f.Float64Var(&g.t0, "t0", 0, "validity time, or window start with --t1")
	f.Float64Var(&g.t1, "t1", 0, "validity window end")
	f.Float64Var(&g.recordTime, "rtime", 0, "record time")
	f.StringVar(&g.channels, "channels", "", "channel range lo-hi")
	f.StringVar(&g.where, "where", "", "extra SQL condition")
	f.StringSliceVar(&g.order, "order", nil, "order by columns")
	f.BoolVar(&g.desc, "desc", false, "descending order")
	f.IntVar(&g.limit, "limit", 0, "maximum rows")
	f.IntVar(&g.offset, "offset", 0, "rows to skip")
	f.BoolVar(&g.noCache, "no-cache", false, "bypass the web service cache")
	f.BoolVar(&g.flushCache, "flush-cache", false, "refresh the web service cache")
	f.BoolVar(&g.csv, "csv", false, "print CSV instead of a table")

	return cmd
}

func runGet(cmd *cobra.Command, opts *ConddbOptions, g *getOptions) error {
	ctx := cmd.Context()
	conn, err := opts.connection()
	if err != nil {
		return err
	}
	t, err := opts.openTable(ctx, cmd, conn)
	if err != nil {
		return err
	}
	defer t.Close()

	if err := g.apply(t); err != nil {
		return err
	}
	n, err := t.Load(ctx)
	if err != nil {
		return tableError(fmt.Sprintf("load %s", t.QualifiedName()), err)
	}
	opts.logger().Debug("table loaded", "table", t.QualifiedName(), "rows", n)

	w := cmd.OutOrStdout()
	switch {
	case t.Type() == conddb.UnstructuredConditions:
		_, err = w.Write(t.Blob())
		return err
	case opts.Format == "json":
		f := &OutputFormatter{Format: "json", Writer: w}
		return f.Success(tableJSON(t))
	case g.csv:
		return t.WriteToCSV(w)
	default:
		renderRows(w, t)
		return nil
	}
}

func (g *getOptions) apply(t *conddb.Table) error {
	if g.tag != "" {
		t.SetTag(g.tag)
	}
	if g.dataType != "" {
		mask, err := conddb.ParseDataTypeMask(g.dataType)
		if err != nil {
			return WrapExitError(ExitFailure, "--data-type", err)
		}
		t.SetDataTypeMask(mask)
	}
	if g.t0 != 0 {
		t.SetMinTSVld(g.t0)
	}
	if g.t1 != 0 {
		t.SetMaxTSVld(g.t1)
	}
	if g.recordTime != 0 {
		t.SetRecordTime(g.recordTime)
	}
	if g.channels != "" {
		lo, hi, err := parseChannelRange(g.channels)
		if err != nil {
			return WrapExitError(ExitFailure, "--channels", err)
		}
		t.SetChannelRange(lo, hi)
	}
	if g.where != "" {
		t.SetWhere(g.where)
	}
	for _, col := range g.order {
		t.AddOrderColumn(col)
	}
	if g.desc {
		t.SetOrderDesc()
	}
	t.SetSelectLimit(g.limit)
	t.SetSelectOffset(g.offset)
	t.SetDisableCache(g.noCache)
	t.SetFlushCache(g.flushCache)
	return nil
}

// parseChannelRange parses "lo-hi" or a single channel.
func parseChannelRange(s string) (uint64, uint64, error) {
	loText, hiText, found := strings.Cut(s, "-")
	lo, err := strconv.ParseUint(strings.TrimSpace(loText), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("channel range %q: %w", s, err)
	}
	if !found {
		return lo, lo, nil
	}
	hi, err := strconv.ParseUint(strings.TrimSpace(hiText), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("channel range %q: %w", s, err)
	}
	return lo, hi, nil
}

// rowHeader returns the printed column names.
func rowHeader(t *conddb.Table) []string {
	var header []string
	if t.Type() == conddb.Conditions {
		header = append(header, conddb.FieldChannel, conddb.FieldVldTime)
		if t.HasTvEnd() {
			header = append(header, conddb.FieldVldTimeEnd)
		}
	}
	for _, c := range t.Columns() {
		header = append(header, c.Name)
	}
	return header
}

func rowCells(t *conddb.Table, r *conddb.Row) []string {
	var cells []string
	if t.Type() == conddb.Conditions {
		cells = append(cells,
			strconv.FormatUint(r.Channel, 10),
			strconv.FormatFloat(r.VldTime, 'f', -1, 64))
		if t.HasTvEnd() {
			cells = append(cells, strconv.FormatFloat(r.VldTimeEnd, 'f', -1, 64))
		}
	}
	for i := 0; i < r.Len(); i++ {
		cells = append(cells, r.Col(i).String())
	}
	return cells
}

func renderRows(w io.Writer, t *conddb.Table) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(rowHeader(t))
	tw.SetAutoFormatHeaders(false)
	for _, r := range t.Rows() {
		tw.Append(rowCells(t, r))
	}
	tw.Render()
	fmt.Fprintf(w, "%d rows\n", t.NRow())
}

// tableJSON is the JSON form of a loaded table: a header and one array of
// cells per row.
func tableJSON(t *conddb.Table) map[string]any {
	rows := make([][]string, 0, t.NRow())
	for _, r := range t.Rows() {
		rows = append(rows, rowCells(t, r))
	}
	return map[string]any{
		"table":   t.QualifiedName(),
		"columns": rowHeader(t),
		"rows":    rows,
	}
}

func newConddbLoadCSVCommand(opts *ConddbOptions) *cobra.Command {
	var asCSV bool

	cmd := &cobra.Command{
		Use:   "load-csv <file>",
		Short: "Parse a local CSV override and print its rows",
		Long: `Parse a CSV file the way a local override is read, without contacting
the database. Conditions files may start with a header and a tolerance row.

Example:
  nutools conddb load-csv --table pedestals --type conditions pedestals.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := opts.connection()
			if err != nil {
				return err
			}
			typ, err := conddb.ParseTableType(conn.Type)
			if err != nil {
				return WrapExitError(ExitFailure, "table type", err)
			}
			t := conddb.New(conn.Schema, conn.Table, typ,
				conddb.WithConnection(conn),
				conddb.WithLogger(opts.logger()),
				conddb.WithMetrics(opts.Metrics),
				conddb.WithOutput(cmd.OutOrStdout()),
			)
			if _, err := t.LoadFromCSVFile(args[0]); err != nil {
				return tableError(fmt.Sprintf("load %s", args[0]), err)
			}

			w := cmd.OutOrStdout()
			switch {
			case opts.Format == "json":
				f := &OutputFormatter{Format: "json", Writer: w}
				return f.Success(tableJSON(t))
			case asCSV:
				return t.WriteToCSV(w)
			default:
				renderRows(w, t)
				return nil
			}
		},
	}
	cmd.Flags().BoolVar(&asCSV, "csv", false, "print CSV instead of a table")
	return cmd
}

func newConddbWriteCommand(opts *ConddbOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "write <file>",
		Short: "Insert the rows of a CSV file into a table",
		Long: `Read rows from a CSV file and write them to the table: SQL INSERTs for
generic and hardware tables, a signed PUT for conditions tables.

With --dry-run the statements or request are printed instead of sent.
Failed SQL writes leave their statements in the cache file.

Example:
  nutools conddb write -c pedestals.yaml --dry-run pedestals.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, err := opts.connection()
			if err != nil {
				return err
			}
			t, err := opts.openTable(ctx, cmd, conn)
			if err != nil {
				return err
			}
			defer t.Close()

			n, err := t.LoadFromCSVFile(args[0])
			if err != nil {
				return tableError(fmt.Sprintf("load %s", args[0]), err)
			}
			if err := t.Write(ctx, !dryRun); err != nil {
				return tableError(fmt.Sprintf("write %s", t.QualifiedName()), err)
			}
			if dryRun {
				return nil
			}
			f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			if opts.Format == "json" {
				return f.Success(map[string]any{"table": t.QualifiedName(), "rows": n})
			}
			return f.Success(fmt.Sprintf("wrote %d rows to %s", n, t.QualifiedName()))
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print instead of writing")
	return cmd
}

func newConddbTagCommand(opts *ConddbOptions) *cobra.Command {
	var override bool

	cmd := &cobra.Command{
		Use:   "tag <tag>",
		Short: "Tag the current state of a conditions table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := opts.connection()
			if err != nil {
				return err
			}
			typ, err := conddb.ParseTableType(conn.Type)
			if err != nil {
				return WrapExitError(ExitFailure, "table type", err)
			}
			t := conddb.New(conn.Schema, conn.Table, typ,
				conddb.WithConnection(conn),
				conddb.WithLogger(opts.logger()),
				conddb.WithMetrics(opts.Metrics),
			)
			if err := t.TagInDB(cmd.Context(), args[0], override); err != nil {
				return tableError(fmt.Sprintf("tag %s", t.QualifiedName()), err)
			}
			f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			if opts.Format == "json" {
				return f.Success(map[string]any{"table": t.QualifiedName(), "tag": args[0], "override": override})
			}
			return f.Success(fmt.Sprintf("tagged %s as %s", t.QualifiedName(), args[0]))
		},
	}
	cmd.Flags().BoolVar(&override, "override", false, "move an existing tag")
	return cmd
}
