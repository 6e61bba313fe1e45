package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/hyperredact/internal/store"
	"github.com/andresmejia3/hyperredact/internal/utils"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all videos with a hyperframe checkpoint in the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runList(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(ctx context.Context) error {
	db, err := openStore(ctx)
	if err != nil {
		utils.ShowError("Database unavailable", err, nil)
		return err
	}
	defer db.Close(ctx)

	videos, err := db.ListVideos(ctx)
	if err != nil {
		utils.ShowError("Failed to list videos", err, nil)
		return err
	}
	printVideos(os.Stdout, videos)
	return nil
}

func printVideos(out io.Writer, videos []store.VideoSummary) {
	if len(videos) == 0 {
		fmt.Fprintln(out, "No checkpoints found in database.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tPATH\tFRAMES\tFACES\tINDEXED")
	fmt.Fprintln(w, "--\t----\t------\t-----\t-------")

	for _, v := range videos {
		id := v.ID
		if len(id) > 12 {
			id = id[:12]
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", id, v.Path, v.Frames, v.Faces, v.IndexedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}
