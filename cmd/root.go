package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mj1618/web-bridge/internal/config"
	"github.com/mj1618/web-bridge/internal/logging"
	"github.com/mj1618/web-bridge/internal/output"
	"github.com/mj1618/web-bridge/internal/version"
)

var (
	cfg     = config.Default()
	logger  = logging.Discard()
	printer = output.Printer{W: os.Stdout, Format: output.FormatYAML}
)

var rootCmd = &cobra.Command{
	Use:   "web-bridge",
	Short: "Read and operate web pages for AI agents",
	Long: `web-bridge indexes, reads and operates web pages across every frame of a tab.
It answers commands from a bridge connection, an MCP server or a local HTTP API.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version.Version, version.Commit, version.BuildDate)
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Config file (YAML)")
	pf.String("format", "yaml", "Output format: yaml, json")
	pf.Bool("pretty", false, "Indent JSON output")
	pf.String("log-level", "", "Log level: debug, info, warn, error (overrides the config file)")
	rootCmd.PersistentPreRunE = setup
}

func setup(cmd *cobra.Command, _ []string) error {
	pf := rootCmd.PersistentFlags()
	path, _ := pf.GetString("config")
	c, err := config.Load(path)
	if err != nil {
		return err
	}
	if level, _ := pf.GetString("log-level"); level != "" {
		c.Log.Level = level
	}
	cfg = c
	logger = logging.New(logging.Options{Level: c.Log.Level, Format: c.Log.Format})
	slog.SetDefault(logger)

	// Read the root flag directly; screenshot has its own --format.
	name, _ := pf.GetString("format")
	format, err := output.ParseFormat(name)
	if err != nil {
		return err
	}
	pretty, _ := pf.GetBool("pretty")
	printer = output.Printer{W: cmd.OutOrStdout(), Format: format, Pretty: pretty}
	return nil
}
