package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/starford/mtvsearch/internal"
	"github.com/starford/mtvsearch/internal/mcpserver"
)

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the catalog search tools over MCP on stdin/stdout",
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			// stdout carries the protocol.
			logger := internal.NewLogger(cfg, os.Stderr)
			slog.SetDefault(logger)

			client := internal.NewBackend(cfg, nil)
			sessions := internal.NewSessions(cfg, client, logger, nil, nil)
			defer sessions.Close()

			return mcpserver.New(sessions, client).ServeStdio()
		},
	}
}
