package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ignite/attribution-monitor/internal/appsflyer"
	"github.com/ignite/attribution-monitor/internal/bootstrap"
	"github.com/ignite/attribution-monitor/internal/inventory"
	"github.com/ignite/attribution-monitor/internal/pkg/logger"
	"github.com/ignite/attribution-monitor/internal/report"
	"github.com/ignite/attribution-monitor/internal/selections"
)

var (
	cfgFile string
	verbose bool
	appIDs  []string
	period  string
	force   bool
	output  string
	compact bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "afreport",
		Short: "Run and inspect cached attribution reports",
		Long: `afreport runs the same stats and fraud reports as the API server,
against the same cache, from the command line.`,
		SilenceUsage:     true,
		PersistentPreRun: setupLogging,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./"+bootstrap.DefaultConfigPath+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	runCmd := &cobra.Command{Use: "run", Short: "Run a report for a set of apps"}
	runCmd.PersistentFlags().StringSliceVarP(&appIDs, "apps", "a", nil, "app IDs (default: every active configured app)")
	runCmd.PersistentFlags().StringVarP(&period, "period", "p", "last10", "report period (last10, mtd, lastmonth, last30)")
	runCmd.PersistentFlags().BoolVarP(&force, "force", "f", false, "bypass the cache")
	runCmd.PersistentFlags().StringVarP(&output, "output", "o", "", "write the payload to a file instead of stdout")
	runCmd.PersistentFlags().BoolVar(&compact, "compact", false, "print the payload without indentation")
	runCmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Daily traffic, conversion and fraud rates per app",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runReport(cmd.Context(), (*report.Service).RunStats)
			},
		},
		&cobra.Command{
			Use:   "fraud",
			Short: "Blocked installs and events per date and media source",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runReport(cmd.Context(), (*report.Service).RunFraud)
			},
		},
	)

	eventsCmd := &cobra.Command{
		Use:   "events <app-id>",
		Short: "List the in-app event names seen recently for an app",
		Args:  cobra.ExactArgs(1),
		RunE:  runEvents,
	}
	eventsCmd.Flags().BoolVarP(&force, "force", "f", false, "bypass the cache")

	clearCmd := &cobra.Command{
		Use:       "clear [stats|fraud|events|all]",
		Short:     "Drop cached report payloads",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"stats", "fraud", "events", "all"},
		RunE:      runClear,
	}

	overviewCmd := &cobra.Command{
		Use:   "overview [period]",
		Short: "Summarize the latest cached stats entry for a period",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runOverview,
	}

	rootCmd.AddCommand(runCmd, eventsCmd, clearCmd, overviewCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging(cmd *cobra.Command, args []string) {
	logger.SetOutput(os.Stderr)
	if verbose {
		logger.SetLevel(logger.DEBUG)
	}
}

func openApp(ctx context.Context) (*bootstrap.App, error) {
	cfg, err := bootstrap.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if verbose {
		logger.SetLevel(logger.DEBUG)
	}
	return app, nil
}

type runMethod func(*report.Service, context.Context, report.RunRequest) (*report.RunResult, error)

func runReport(ctx context.Context, run runMethod) error {
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	apps, err := resolveApps(ctx, app.Inventory, app.Selections, appIDs)
	if err != nil {
		return err
	}
	if len(apps) == 0 {
		return fmt.Errorf("no apps to run: pass --apps or configure apps")
	}
	list, err := app.Selections.List(ctx)
	if err != nil {
		return fmt.Errorf("load event selections: %w", err)
	}

	res, err := run(app.Reports, ctx, report.RunRequest{
		Apps:           apps,
		Period:         period,
		SelectedEvents: selections.SelectedEvents(list),
		Force:          force,
	})
	if err != nil {
		return err
	}

	cacheState := "miss"
	if res.CacheHit {
		cacheState = "hit"
	}
	logger.Info("report ready",
		"kind", res.Kind,
		"key", res.Key,
		"cache", cacheState,
		"cached", res.Cached,
		"run_id", res.RunID,
	)
	for _, s := range res.Skipped {
		logger.Warn("app skipped", "app_id", s.AppID, "reason", s.Reason)
	}
	return writePayload(res.Payload)
}

// resolveApps maps explicit IDs onto configured names, or returns every
// active configured app when ids is empty.
func resolveApps(ctx context.Context, p inventory.Provider, store selections.Store, ids []string) ([]appsflyer.App, error) {
	if len(ids) == 0 {
		return inventory.ActiveApps(ctx, p, store)
	}
	known, err := p.Apps(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(known))
	for _, a := range known {
		names[a.AppID] = a.AppName
	}
	apps := make([]appsflyer.App, 0, len(ids))
	for _, id := range ids {
		name := names[id]
		if name == "" {
			name = id
		}
		apps = append(apps, appsflyer.App{AppID: id, AppName: name})
	}
	return apps, nil
}

func runEvents(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	list, err := app.Reports.Events(ctx, args[0], force)
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, list)
}

func runClear(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	kind := "all"
	if len(args) == 1 {
		kind = args[0]
	}
	n, err := app.Reports.Clear(ctx, kind)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "cleared %d %s entries\n", n, kind)
	return nil
}

func runOverview(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	p := app.Config.Report.OverviewPeriod
	if len(args) == 1 {
		p = args[0]
	}
	ov, err := app.Reports.Overview(ctx, p)
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, ov)
}

func writePayload(payload []byte) error {
	if !compact {
		var buf bytes.Buffer
		if err := json.Indent(&buf, payload, "", "  "); err == nil {
			buf.WriteByte('\n')
			payload = buf.Bytes()
		}
	}
	if output == "" {
		_, err := os.Stdout.Write(payload)
		return err
	}
	if err := os.WriteFile(output, payload, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	logger.Info("payload written", "path", output, "bytes", len(payload))
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
