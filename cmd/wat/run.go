package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/wat/browser"
	"github.com/hazyhaar/wat/capture"
	"github.com/hazyhaar/wat/observability"
	"github.com/hazyhaar/wat/provision"
	"github.com/hazyhaar/wat/scenario"
	"github.com/hazyhaar/wat/suite"
)

var (
	runScenarios []string
	runCompare   bool
	runStrict    bool
	runTraceOut  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the configured scenarios and capture every checkpoint",
	Long: "Run every configured scenario (built-in names or YAML files), one browser session per actor.\n" +
		"A failing scenario does not stop the others; the command exits non-zero when any failed.",
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringSliceVarP(&runScenarios, "scenario", "s", nil, "scenario to run (repeatable); overrides the configuration")
	f.BoolVar(&runCompare, "compare", false, "compare captures with the reference baselines afterwards")
	f.BoolVar(&runStrict, "strict", false, "with --compare, fail when any screenshot is not ok")
	f.StringVar(&runTraceOut, "trace-out", "", "write OpenTelemetry spans as JSON to this file (- for stderr)")
	rootCmd.AddCommand(runCmd)
}

func scenarioOptions() scenario.Options {
	return scenario.Options{
		AppURL:     cfg.AppURL,
		KeepAlive:  cfg.KeepAlive,
		Profile:    cfg.Profile,
		GameName:   cfg.Provision.GameName,
		PlayerName: cfg.Provision.PlayerName,
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if len(runScenarios) > 0 {
		cfg.Scenarios = runScenarios
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var scs []*scenario.Scenario
	for _, name := range cfg.Scenarios {
		sc, err := scenario.Resolve(name, scenarioOptions())
		if err != nil {
			return err
		}
		scs = append(scs, sc)
	}
	if err := suite.CheckCaptures(scs); err != nil {
		return err
	}

	if runTraceOut != "" {
		var w io.Writer = os.Stderr
		if runTraceOut != "-" {
			f, err := os.Create(runTraceOut)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		shutdown, err := observability.SetupTracing(ctx, "wat", w)
		if err != nil {
			return err
		}
		defer shutdown(ctx)
	}

	bcfg, err := cfg.BrowserManager(logger)
	if err != nil {
		return err
	}
	mgr := browser.NewManager(bcfg)
	if err := mgr.Start(ctx); err != nil {
		return err
	}
	defer mgr.Close()

	hist, err := openHistory()
	if err != nil {
		return err
	}
	if hist != nil {
		defer hist.Close()
	}

	driver := &scenario.Driver{
		Opener:   scenario.BrowserOpener(mgr),
		Capturer: &capture.Capturer{Store: store(), Settle: cfg.Capture.Settle, Logger: logger},
		Logger:   logger,
	}
	if cfg.APIURL != "" {
		client, err := provision.New(cfg.APIURL, provision.WithLogger(logger))
		if err != nil {
			return err
		}
		driver.Provisioner = client
	}

	s := comparer(hist)
	s.Driver = driver
	rep, err := s.Run(ctx, scs)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printOutcomes(out, rep)

	if runCompare {
		diffs, err := s.Regress(ctx, rep.RunID)
		if err != nil {
			return err
		}
		rep.Diffs = diffs
		printDiffs(out, diffs)
	}

	var errs []error
	if rep.Failed() {
		n := 0
		for _, o := range rep.Outcomes {
			if o.Err != nil {
				n++
			}
		}
		errs = append(errs, fmt.Errorf("%d of %d scenario(s) failed", n, len(rep.Outcomes)))
	}
	if runCompare && runStrict && rep.Changed() > 0 {
		errs = append(errs, fmt.Errorf("%d screenshot(s) differ from the reference", rep.Changed()))
	}
	return errors.Join(errs...)
}

func printOutcomes(w io.Writer, rep *suite.Report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if rep.RunID != "" {
		fmt.Fprintf(tw, "run\t%s\n", rep.RunID)
	}
	for _, o := range rep.Outcomes {
		status, detail := "passed", ""
		if o.Err != nil {
			status, detail = "FAILED", o.Err.Error()
		}
		var captures int
		if o.Result != nil {
			captures = len(o.Result.Artifacts)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d captures\t%s\n", o.Scenario, status, captures, detail)
	}
	tw.Flush()
}

func printDiffs(w io.Writer, diffs []suite.Diff) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CAPTURE\tSTATUS\tMISMATCHED\tDIFF")
	for _, d := range diffs {
		detail := d.DiffPath
		if d.Err != nil {
			detail = d.Err.Error()
		}
		fmt.Fprintf(tw, "%s/%s\t%s\t%d\t%s\n", d.Actor, d.Tag, d.Status, d.Result.Mismatched, detail)
	}
	tw.Flush()
}
