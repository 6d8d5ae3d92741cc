package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/wat/history"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id|latest]",
	Short: "List recorded runs or show one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		hist, err := openHistory()
		if err != nil {
			return err
		}
		if hist == nil {
			return errors.New("history is disabled")
		}
		defer hist.Close()
		out := cmd.OutOrStdout()

		if len(args) == 0 {
			runs, err := hist.Runs(ctx, historyLimit)
			if err != nil {
				return err
			}
			if historyJSON {
				return json.NewEncoder(out).Encode(runs)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Status, r.StartedAt.Local().Format(time.DateTime), r.AppURL)
			}
			return tw.Flush()
		}

		get := hist.Get
		if args[0] == "latest" {
			get = func(ctx context.Context, _ string) (history.Detail, error) { return hist.Latest(ctx) }
		}
		d, err := get(ctx, args[0])
		if err != nil {
			return err
		}
		if historyJSON {
			return json.NewEncoder(out).Encode(d)
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "run\t%s\t%s\n", d.Run.ID, d.Run.Status)
		for _, s := range d.Scenarios {
			status := "passed"
			if !s.Passed {
				status = "FAILED at " + s.StepID + " (" + s.Actor + "): " + s.Error
			}
			fmt.Fprintf(tw, "scenario\t%s\t%s\n", s.Scenario, status)
		}
		for _, df := range d.Diffs {
			fmt.Fprintf(tw, "capture\t%s/%s\t%s\t%d\n", df.Actor, df.Tag, df.Status, df.Mismatched)
		}
		return tw.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to list")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print JSON")
	rootCmd.AddCommand(historyCmd)
}
