package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Zereker/storekit/internal/server"
)

type serveCommander struct {
	configFile string
}

const serveLongDesc string = `Serve the storage context over HTTP, MCP stdio or both, as selected by server.mode.
Kafka commands and vector events are enabled through the [kafka] section.`

func newServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the storekit server",
		Long:  serveLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.configFile, "config", "c", "configs/config.toml", "Path to config file")

	return cmd
}

func (c *serveCommander) run(cmd *cobra.Command) error {
	conf, err := server.LoadConfig(c.configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	srv, err := server.NewServer(cmd.Context(), conf)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer func() { _ = srv.Shutdown() }()

	if err = srv.Start(cmd.Context()); err != nil {
		return fmt.Errorf("failed to run server: %w", err)
	}
	return nil
}
