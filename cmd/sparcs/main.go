// Package main provides the CLI entrypoint for sparcs.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/sparcsviz/internal/aggregate"
	"github.com/verte-zerg/sparcsviz/internal/browseui"
	"github.com/verte-zerg/sparcsviz/internal/charts"
	"github.com/verte-zerg/sparcsviz/internal/chartspec"
	"github.com/verte-zerg/sparcsviz/internal/config"
	apperrors "github.com/verte-zerg/sparcsviz/internal/errors"
	"github.com/verte-zerg/sparcsviz/internal/model"
	"github.com/verte-zerg/sparcsviz/internal/preview"
	"github.com/verte-zerg/sparcsviz/internal/server"
	"github.com/verte-zerg/sparcsviz/internal/store"
	"github.com/verte-zerg/sparcsviz/internal/telemetry"
)

const serviceName = "sparcs"

var (
	flagConfig  string
	flagSource  string
	flagTable   string
	flagDemo    bool
	flagVerbose bool

	serveAddr string

	chartParams  []string
	chartPretty  bool
	chartPreview bool

	tablesLimit int
	tablesBars  string

	exportDir     string
	exportWorkers int
	exportPretty  bool
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 when the source or its aggregations could not be loaded
// and 1 for any other failure.
func exitCode(err error) int {
	if apperrors.CodeOf(err).Fatal() {
		return 2
	}
	return 1
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "sparcs",
		Short:         "Chart documents over SPARCS hospital discharge data",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	defaults := config.Defaults()
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", config.DefaultConfigPath(), "config file")
	rootCmd.PersistentFlags().StringVar(&flagSource, "source", defaults.Source, "source file (.parquet, .csv or .db)")
	rootCmd.PersistentFlags().StringVar(&flagTable, "table", defaults.Table, "source table name")
	rootCmd.PersistentFlags().BoolVar(&flagDemo, "demo", false, "use the built-in demo rows instead of a source file")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "report aggregation queries on stderr")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newKindsCmd())
	rootCmd.AddCommand(newChartCmd())
	rootCmd.AddCommand(newTablesCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newBrowseCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

// loadSettings resolves defaults, the config file and the environment, then
// applies any flag given on the command line.
func loadSettings(cmd *cobra.Command) (config.Settings, error) {
	var env config.EnvConfig
	if err := config.ParseEnv(&env); err != nil {
		return config.Settings{}, err
	}
	path := configPath(cmd, env)
	fileCfg, err := config.LoadConfig(path)
	if err != nil {
		return config.Settings{}, fmt.Errorf("failed to load config: %w", err)
	}
	s, err := config.Resolve(fileCfg, env)
	if err != nil {
		return config.Settings{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	applyFlag(cmd, "source", &s.Source, flagSource)
	applyFlag(cmd, "table", &s.Table, flagTable)
	applyFlag(cmd, "demo", &s.Demo, flagDemo)
	return s, nil
}

func configPath(cmd *cobra.Command, env config.EnvConfig) string {
	if cmd.Flags().Changed("config") {
		return flagConfig
	}
	if env.ConfigPath != nil && *env.ConfigPath != "" {
		return *env.ConfigPath
	}
	return config.DefaultConfigPath()
}

func applyFlag[T any](cmd *cobra.Command, name string, target *T, value T) {
	if !cmd.Flags().Changed(name) {
		return
	}
	*target = value
}

// loadCatalog opens the configured source, runs every aggregation and
// closes the store again. onQuery may be nil.
func loadCatalog(ctx context.Context, s config.Settings, onQuery func(aggregate.QueryStats)) (*aggregate.Catalog, error) {
	var (
		st  *store.Store
		err error
	)
	if s.Demo {
		st, err = store.OpenTable(ctx, aggregate.DemoSource(), store.Options{Table: s.Table})
	} else {
		st, err = store.Open(ctx, s.Source, store.Options{
			Table:       s.Table,
			TextColumns: []string{aggregate.SourceStay},
		})
	}
	if err != nil {
		if !s.Demo {
			logErrf("No source at %s. Use --source <file> or --demo.\n", s.Source)
		}
		return nil, fmt.Errorf("failed to open source: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close source: %v\n", cerr)
		}
	}()

	cat, err := aggregate.Load(ctx, st, aggregate.LoadOptions{OnQuery: onQuery})
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog: %w", err)
	}
	return cat, nil
}

func verboseQueries(q aggregate.QueryStats) {
	if !flagVerbose {
		return
	}
	if q.Err != nil {
		logErrf("query %s failed after %s: %v\n", q.Name, q.Duration, q.Err)
		return
	}
	logErrf("query %s: %d rows in %s\n", q.Name, q.Rows, q.Duration)
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve chart documents over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServeCmd,
	}
	cmd.Flags().StringVar(&serveAddr, "addr", config.Defaults().Addr, "listen address")
	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	applyFlag(cmd, "addr", &s.Addr, serveAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.SetupTracing(ctx, serviceName, s.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	metrics := telemetry.NewMetrics(charts.Kinds())
	cat, err := loadCatalog(ctx, s, func(q aggregate.QueryStats) {
		metrics.ObserveQuery(q)
		if q.Err != nil {
			log.Printf("query %s failed: %v", q.Name, q.Err)
			return
		}
		log.Printf("query %s: %d rows in %s", q.Name, q.Rows, q.Duration)
	})
	if err != nil {
		return err
	}
	metrics.SetCatalog(cat)

	source := s.Source
	if s.Demo {
		source = "demo"
	}
	srv := server.New(server.Config{
		Addr:         s.Addr,
		ReadTimeout:  s.ReadTimeout,
		WriteTimeout: s.WriteTimeout,
		Source:       source,
	}, cat, metrics)
	return srv.ListenAndServe(ctx)
}

func newKindsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List chart kinds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return preview.RenderTable(cmd.OutOrStdout(), kindsTable(), 0)
		},
	}
}

func kindsTable() *model.ResultTable {
	kinds := charts.Describe()
	rows := make([]model.Row, len(kinds))
	for i, k := range kinds {
		rows[i] = model.Row{
			"kind":        k.Name,
			"tables":      strings.Join(k.Tables, ","),
			"params":      strings.Join(k.Params, ","),
			"description": k.Description,
		}
	}
	return model.MustResultTable("chart kinds", []model.Column{
		{Name: "kind", Type: model.Nominal},
		{Name: "params", Type: model.Nominal},
		{Name: "tables", Type: model.Nominal},
		{Name: "description", Type: model.Nominal},
	}, rows)
}

func newChartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chart <kind>",
		Short: "Build one chart document and print it",
		Args:  cobra.ExactArgs(1),
		RunE:  runChartCmd,
	}
	cmd.Flags().StringArrayVarP(&chartParams, "param", "p", nil, "chart param as key=value (repeatable)")
	cmd.Flags().BoolVar(&chartPretty, "pretty", false, "indent the JSON output")
	cmd.Flags().BoolVar(&chartPreview, "preview", false, "draw bar charts as text instead of printing JSON")
	return cmd
}

func runChartCmd(cmd *cobra.Command, args []string) error {
	params, err := parseParams(chartParams)
	if err != nil {
		return err
	}
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	var cat *aggregate.Catalog
	if kind, ok := charts.Lookup(args[0]); ok && len(kind.Tables) > 0 {
		if cat, err = loadCatalog(ctx, s, verboseQueries); err != nil {
			return err
		}
	}
	doc, err := charts.BuildContext(ctx, cat, args[0], params)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeUnknownChartKind {
			logErrf("Run: sparcs kinds\n")
		}
		return err
	}
	out := cmd.OutOrStdout()
	if chartPreview {
		for _, ch := range doc.Charts() {
			if err := preview.RenderChart(out, ch, chartspec.State{}, 0); err == nil {
				return nil
			}
		}
		return fmt.Errorf("chart %s has no bar view to preview", args[0])
	}
	b, err := render(doc, chartPretty)
	if err != nil {
		return err
	}
	if _, err := out.Write(b); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func parseParams(raw []string) (charts.Params, error) {
	params := charts.Params{}
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q (use key=value)", kv)
		}
		params[key] = value
	}
	return params, nil
}

func newTablesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables [name...]",
		Short: "Preview cached result tables",
		RunE:  runTablesCmd,
	}
	cmd.Flags().IntVar(&tablesLimit, "limit", 20, "rows per table (0 for all)")
	cmd.Flags().StringVar(&tablesBars, "bars", "", "draw this numeric column as bars")
	return cmd
}

func runTablesCmd(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cat, err := loadCatalog(ctx, s, verboseQueries)
	if err != nil {
		return err
	}
	tables, err := lookupTables(cat, args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for i, tbl := range tables {
		if i > 0 {
			if _, err := fmt.Fprintln(out); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
		}
		if err := preview.RenderTable(out, tbl, tablesLimit); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		if tablesBars == "" {
			continue
		}
		if err := renderTableBars(cmd, tbl, tablesBars); err != nil {
			return err
		}
	}
	return nil
}

// lookupTables resolves names against cat; no names selects every table.
func lookupTables(cat *aggregate.Catalog, names []string) ([]*model.ResultTable, error) {
	if len(names) == 0 {
		names = cat.Names()
	}
	out := make([]*model.ResultTable, 0, len(names))
	for _, name := range names {
		tbl, ok := cat.Table(name)
		if !ok {
			return nil, apperrors.WithMetadata(apperrors.CodeNotFound, "unknown table", map[string]string{
				"table":     name,
				"available": strings.Join(cat.Names(), ","),
			})
		}
		out = append(out, tbl)
	}
	return out, nil
}

// renderTableBars labels each bar with the row's non-numeric columns.
func renderTableBars(cmd *cobra.Command, tbl *model.ResultTable, column string) error {
	col, ok := tbl.Column(column)
	if !ok || col.Type != model.Quantitative {
		return fmt.Errorf("table %s has no numeric column %q", tbl.Name(), column)
	}
	var labels []string
	for _, c := range tbl.Columns() {
		if c.Name != column && c.Type != model.Quantitative {
			labels = append(labels, c.Name)
		}
	}
	if len(labels) == 0 {
		labels = []string{tbl.Columns()[0].Name}
	}
	bars := make([]preview.Bar, tbl.Len())
	for i := range bars {
		v, _ := model.ToFloat(tbl.Value(i, column))
		label := strings.ReplaceAll(tbl.KeyOf(i, labels), "\x1f", " / ")
		bars[i] = preview.Bar{Label: label, Value: v, Highlight: true}
	}
	out := cmd.OutOrStdout()
	if _, err := fmt.Fprintln(out); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return preview.RenderBars(out, bars, 0)
}

func newBrowseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse tables and charts in the terminal",
		Args:  cobra.NoArgs,
		RunE:  runBrowseCmd,
	}
}

func runBrowseCmd(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	cat, err := loadCatalog(context.Background(), s, verboseQueries)
	if err != nil {
		return err
	}
	program := tea.NewProgram(browseui.NewModel(cat), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run browser: %w", err)
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(cmd *cobra.Command, _ []string) error {
	var env config.EnvConfig
	if err := config.ParseEnv(&env); err != nil {
		return err
	}
	path := configPath(cmd, env)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	edit := exec.Command(parts[0], append(parts[1:], path)...)
	edit.Stdin = os.Stdin
	edit.Stdout = os.Stdout
	edit.Stderr = os.Stderr
	if err := edit.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func defaultConfigTemplate() string {
	d := config.Defaults()
	return fmt.Sprintf(`# sparcs configuration
# Uncomment a value to enable it. SPARCS_* environment variables override
# this file and CLI flags override both.

[source]
# path = %q    # .parquet, .csv or .db file
# table = %q   # Table name queries read from
# demo = false # Use the built-in demo rows

[server]
# addr = %q
# read-timeout = %q
# write-timeout = %q

[export]
# dir = %q     # Output directory for chart documents
# workers = %d # Charts built in parallel
# pretty = %t  # Indent exported JSON
`,
		d.Source,
		d.Table,
		d.Addr,
		d.ReadTimeout.String(),
		d.WriteTimeout.String(),
		d.ExportDir,
		d.Workers,
		d.Pretty,
	)
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
