package cmd

import (
	"fmt"
	"runtime"

	"github.com/andresmejia3/hyperredact/internal/detect"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and the available detection engines",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "hyperredact %s (%s %s/%s)\n", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		fmt.Fprintf(out, "engines: %v\n", detect.Engines())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
