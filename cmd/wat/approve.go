package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/wat/suite"
)

var approveCmd = &cobra.Command{
	Use:   "approve [actor[/tag]]",
	Short: "Promote latest captures to reference baselines",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var actor, tag string
		if len(args) == 1 {
			actor, tag, _ = strings.Cut(args[0], "/")
		}
		arts, err := suite.Approve(store(), actor, tag)
		if err != nil {
			return err
		}
		for _, a := range arts {
			fmt.Fprintln(cmd.OutOrStdout(), "approved", a.Key())
		}
		logger.Info("wat: approved", "count", len(arts))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(approveCmd)
}
