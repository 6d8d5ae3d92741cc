package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/wat/provision"
)

var (
	provisionGameName   string
	provisionPlayerName string
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Create a game through the setup API and print its codes and join link",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.APIURL == "" {
			return errors.New("api_url is not configured")
		}
		name := cfg.Provision.GameName
		if provisionGameName != "" {
			name = provisionGameName
		}
		player := cfg.Provision.PlayerName
		if provisionPlayerName != "" {
			player = provisionPlayerName
		}

		client, err := provision.New(cfg.APIURL, provision.WithLogger(logger))
		if err != nil {
			return err
		}
		g, err := client.ProvisionGame(cmd.Context(), name)
		if err != nil {
			return err
		}
		link, err := provision.DeepLink(cfg.AppURL, g.GameCode, player)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]string{
			"gameCode": g.GameCode,
			"hostCode": g.HostCode,
			"joinURL":  link,
		})
	},
}

func init() {
	provisionCmd.Flags().StringVar(&provisionGameName, "game-name", "", "game name (default from configuration)")
	provisionCmd.Flags().StringVar(&provisionPlayerName, "player-name", "", "player name in the join link")
	rootCmd.AddCommand(provisionCmd)
}
