package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/andresmejia3/hyperredact/internal/detect"
	"github.com/andresmejia3/hyperredact/internal/worker"
	"github.com/spf13/cobra"
)

var workerCascade string

// workerCmd runs a pigo detector behind the worker protocol so a detector
// config can isolate it in its own process:
//
//	command: [hyperredact, worker]
var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Serve a pigo detector on stdin and fd 3 (used by the exec engine)",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		p, err := detect.NewPigoPrimitive(workerCascade)
		if err != nil {
			return err
		}
		defer p.Close()

		data := os.NewFile(3, "data")
		if data == nil {
			return errors.New("fd 3 is not open; worker must be started by an exec engine")
		}
		defer data.Close()

		if err := worker.Serve(os.Stdin, data, p.Detect); err != nil {
			return fmt.Errorf("worker stopped: %w", err)
		}
		return nil
	},
}

func init() {
	workerCmd.Flags().StringVar(&workerCascade, "cascade", "", "pigo cascade file (default: built-in facefinder)")
	rootCmd.AddCommand(workerCmd)
}
