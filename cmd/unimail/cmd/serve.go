package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	mcpserver "github.com/unimail/unimail/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"mcp"},
	Short:   "Run MCP server for Claude Desktop integration",
	Long: `Start an MCP (Model Context Protocol) server over stdio.

This lets Claude Desktop (or any MCP client) work with your unified
inbox using tools like get_messages, search, summary, archive_message,
send, and reply.

Add to Claude Desktop config:
  {
    "mcpServers": {
      "unimail": {
        "command": "unimail",
        "args": ["serve"]
      }
    }
  }`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		flow, err := newFlow()
		if err != nil {
			return err
		}
		agg, err := buildAggregator(s)
		if err != nil {
			return err
		}

		logger.Info("starting MCP server on stdio")
		if err := mcpserver.Serve(cmd.Context(), agg, s, flow); err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
