package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Zereker/storekit/internal/server"
	"github.com/Zereker/storekit/pkg/storage"
)

type inspectCommander struct {
	configFile string
	persistDir string
}

func newInspectCmd() *cobra.Command {
	cmder := &inspectCommander{}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print storage counts as JSON",
		Long: `Open a storage context read-only and print its counts.
With --persist-dir the simple backends are loaded from that directory,
otherwise the [storage] section of --config is used.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.configFile, "config", "c", "", "Path to config file")
	cmd.Flags().StringVarP(&cmder.persistDir, "persist-dir", "d", "./storage", "Directory written by a simple storage context")

	return cmd
}

func (c *inspectCommander) storageConfig() (storage.Config, error) {
	if c.configFile == "" {
		return storage.Config{PersistDir: c.persistDir}, nil
	}

	conf, err := server.LoadConfig(c.configFile)
	if err != nil {
		return storage.Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	return conf.Storage, nil
}

func (c *inspectCommander) run(cmd *cobra.Command) error {
	cfg, err := c.storageConfig()
	if err != nil {
		return err
	}

	sc, err := storage.FromDefaults(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer sc.Close()

	stats, err := sc.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to collect stats: %w", err)
	}

	out := json.NewEncoder(cmd.OutOrStdout())
	out.SetIndent("", "  ")
	return out.Encode(struct {
		PersistDir string `json:"persist_dir,omitempty"`
		storage.Stats
	}{PersistDir: cfg.PersistDir, Stats: stats})
}
