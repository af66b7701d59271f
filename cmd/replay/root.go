package main

import (
	"github.com/spf13/cobra"

	"ride-replay/internal/config"
)

func newRootCmd() *cobra.Command {
	var (
		addr    string
		dataDir string
	)
	load := func() (*config.Config, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		if addr != "" {
			cfg.HTTPAddr = addr
		}
		if dataDir != "" {
			cfg.DataSource = config.SourceDir
			cfg.DataDir = dataDir
		}
		return cfg, nil
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Load a simulation run and serve the replay API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides HTTP_ADDR)")

	var at float64
	frameCmd := &cobra.Command{
		Use:   "frame",
		Short: "Print the resolved bundle for one point in time",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return printFrame(cfg, at)
		},
	}
	frameCmd.Flags().Float64Var(&at, "at", 0, "simulation time in minutes")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the run's stats summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return printStats(cfg)
		},
	}

	root := &cobra.Command{
		Use:          "ride-replay",
		Short:        "Replays a ride-dispatch simulation run minute by minute",
		SilenceUsage: true,
		RunE:         serveCmd.RunE,
	}
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "read payloads from this directory (overrides DATA_SOURCE)")
	root.Flags().AddFlagSet(serveCmd.Flags())
	root.AddCommand(serveCmd, frameCmd, statsCmd)
	return root
}
