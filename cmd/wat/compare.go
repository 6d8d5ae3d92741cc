package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/wat/capture"
	"github.com/hazyhaar/wat/suite"
	"github.com/hazyhaar/wat/visualdiff"
)

var (
	compareStrict bool
	compareRun    string
)

var compareCmd = &cobra.Command{
	Use:   "compare [actor[/tag]]...",
	Short: "Compare the latest captures with the reference baselines",
	Long: "Compare latest captures with their references and write diff images.\n" +
		"Without arguments every capture is compared.",
	RunE: runCompareCmd,
}

var (
	diffThreshold float64
	diffIncludeAA bool
)

var diffCmd = &cobra.Command{
	Use:   "diff <latest.png> <reference.png> [diff.png]",
	Short: "Compare two image files and print the mismatched pixel count",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runDiffCmd,
}

func init() {
	compareCmd.Flags().BoolVar(&compareStrict, "strict", false, "exit non-zero when any capture is not ok")
	compareCmd.Flags().StringVar(&compareRun, "run", "", "record the results under this run ID")
	rootCmd.AddCommand(compareCmd)

	diffCmd.Flags().Float64Var(&diffThreshold, "threshold", -1, "per-pixel threshold in [0,1] (default from configuration)")
	diffCmd.Flags().BoolVar(&diffIncludeAA, "include-aa", false, "count anti-aliased pixels as mismatches")
	rootCmd.AddCommand(diffCmd)
}

func selected(a capture.Artifact, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		actor, tag, hasTag := strings.Cut(f, "/")
		if a.Actor == actor && (!hasTag || a.Tag == tag) {
			return true
		}
	}
	return false
}

func runCompareCmd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	hist, err := openHistory()
	if err != nil {
		return err
	}
	if hist != nil {
		defer hist.Close()
	}
	s := comparer(hist)

	var diffs []suite.Diff
	if len(args) == 0 {
		if diffs, err = s.Regress(ctx, compareRun); err != nil {
			return err
		}
	} else {
		arts, err := s.Store.List(capture.Latest)
		if err != nil {
			return err
		}
		for _, a := range arts {
			if selected(a, args) {
				diffs = append(diffs, s.Compare(a))
			}
		}
		if len(diffs) == 0 {
			return fmt.Errorf("no latest capture matches %v", args)
		}
	}
	printDiffs(cmd.OutOrStdout(), diffs)

	rep := suite.Report{Diffs: diffs}
	if compareStrict && rep.Changed() > 0 {
		return fmt.Errorf("%d screenshot(s) differ from the reference", rep.Changed())
	}
	return nil
}

func runDiffCmd(cmd *cobra.Command, args []string) error {
	opts := cfg.DiffOptions()
	if diffThreshold >= 0 {
		opts.Threshold = diffThreshold
	}
	if diffIncludeAA {
		opts.IncludeAA = true
	}

	var (
		res visualdiff.Result
		err error
	)
	if len(args) == 3 {
		res, err = visualdiff.CompareFiles(args[0], args[1], args[2], opts)
	} else {
		latest, derr := visualdiff.Decode(args[0])
		if derr != nil {
			return derr
		}
		ref, derr := visualdiff.Decode(args[1])
		if derr != nil {
			return derr
		}
		res, _, err = visualdiff.Compare(latest, ref, opts)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d mismatched of %dx%d (%.4f%%) at threshold %.2f\n",
		res.Mismatched, res.Width, res.Height, res.Ratio()*100, res.Threshold)
	return nil
}
