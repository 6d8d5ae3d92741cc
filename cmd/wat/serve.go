package main

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/wat/report"
)

var version = "dev"

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the run report, captures and metrics over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, closeFn, err := reportServer()
		if err != nil {
			return err
		}
		defer closeFn()

		addr := cfg.Serve.Addr
		if serveAddr != "" {
			addr = serveAddr
		}
		return srv.ListenAndServe(cmd.Context(), addr)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the wat_compare, wat_history and wat_approve tools over MCP stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, closeFn, err := reportServer()
		if err != nil {
			return err
		}
		defer closeFn()

		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "wat", Version: version}, nil)
		srv.RegisterMCP(mcpSrv)
		logger.Info("wat: mcp serving on stdio")
		return mcpSrv.Run(cmd.Context(), &mcp.StdioTransport{})
	},
}

func reportServer() (*report.Server, func(), error) {
	hist, err := openHistory()
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {}
	if hist != nil {
		closeFn = func() { hist.Close() }
	}
	return &report.Server{
		Store:   store(),
		History: hist,
		Suite:   comparer(hist),
		Logger:  logger,
	}, closeFn, nil
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from configuration)")
	rootCmd.AddCommand(serveCmd, mcpCmd)
}
