package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/hyperredact/internal/hyperframe"
	"github.com/andresmejia3/hyperredact/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetDB          bool
	resetCheckpoints []string
	resetYes         bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset stored state (database tables, hyperframe checkpoints)",
	Long: `Clears stored hyperframes. With no flags it drops the database tables.
Use --checkpoint <videoPath> (repeatable) to delete the <videoPath>-hf.json files as well.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		// If no flags are set, default to clearing the database
		if !resetDB && len(resetCheckpoints) == 0 {
			resetDB = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetDB {
			if resetYes || confirm(reader, os.Stdout, "⚠️  Are you sure you want to DROP all database tables?") {
				fmt.Println("🗑️  Clearing Database...")
				db, err := openStore(cmd.Context())
				if err != nil {
					utils.ShowError("Database unavailable", err, nil)
					return err
				}
				defer db.Close(cmd.Context())
				if err := db.Reset(cmd.Context()); err != nil {
					utils.ShowError("Failed to reset database", err, nil)
					return err
				}
			}
		}

		if len(resetCheckpoints) > 0 {
			if resetYes || confirm(reader, os.Stdout, "⚠️  Are you sure you want to delete the hyperframe checkpoints?") {
				fmt.Println("🗑️  Clearing Checkpoints...")
				for _, video := range resetCheckpoints {
					removeFile(checkpointFor(video))
				}
			}
		}

		fmt.Println("✨ Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "database", false, "Drop the PostgreSQL tables")
	resetCmd.Flags().StringArrayVar(&resetCheckpoints, "checkpoint", nil, "Delete the JSON checkpoint of this video (or the checkpoint file itself)")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

// checkpointFor accepts either a video path or a checkpoint path.
func checkpointFor(path string) string {
	if strings.HasSuffix(filepath.Base(path), "-hf.json") {
		return path
	}
	return hyperframe.CheckpointPath(path)
}

func confirm(r *bufio.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeFile(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
