package cmd

import (
	"github.com/spf13/cobra"

	"github.com/mj1618/web-bridge/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printer.Print(struct {
			Version   string `json:"version"`
			Commit    string `json:"commit"`
			BuildDate string `json:"buildDate"`
		}{version.Version, version.Commit, version.BuildDate})
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
