// Package main implements the finview CLI: an interactive dashboard and
// scriptable commands against the Project Service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/finview/internal/config"
)

var (
	// configPath overrides ~/.config/finview/config.yaml
	configPath string
	// serverURL overrides server.base_url
	serverURL string
	// logLevel overrides logging.level
	logLevel string
	// metricsAddr overrides metrics.addr
	metricsAddr string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "finview",
	Short: "Financial projects from spreadsheets",
	Long: `finview manages financial projects on the Project Service: upload a
spreadsheet, map its columns, replace its file, delete it and read its
analysis. Run without arguments for the interactive dashboard.`,
	Version:      version,
	SilenceUsage: true,
	RunE:         runTUI,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/finview/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Project Service URL (overrides server.base_url)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9464")

	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(devserverCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config file and environment, then applies flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, err
	}
	if serverURL != "" {
		cfg.Server.BaseURL = serverURL
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the finview version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("finview %s\n", version)
	},
}
