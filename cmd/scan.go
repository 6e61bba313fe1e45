package cmd

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/andresmejia3/hyperredact/internal/config"
	"github.com/andresmejia3/hyperredact/internal/detect"
	"github.com/andresmejia3/hyperredact/internal/hyperframe"
	"github.com/andresmejia3/hyperredact/internal/mux"
	"github.com/andresmejia3/hyperredact/internal/render"
	"github.com/andresmejia3/hyperredact/internal/types"
	"github.com/andresmejia3/hyperredact/internal/utils"
	"github.com/andresmejia3/hyperredact/internal/video"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	scanOpts       Options
	scanCheckpoint string
)

var scanCmd = &cobra.Command{
	Use:   "scan <videoPath>",
	Short: "Detect faces in every frame and write the hyperframe checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scanOpts.InputPath = args[0]
		scanOpts.BlurType = BlurMotion
		scanOpts.ConfigPath = configPath
		if err := validateOptions(&scanOpts); err != nil {
			return err
		}
		cmd.SilenceUsage = true
		_, err := runScan(cmd.Context(), scanOpts, scanCheckpoint)
		return err
	},
}

func init() {
	scanCmd.Flags().IntVarP(&scanOpts.NumEngines, "engines", "e", 1, "Number of parallel detection engines")
	scanCmd.Flags().StringVarP(&scanCheckpoint, "checkpoint", "o", "", "Hyperframe JSON output (default <videoPath>-hf.json)")
	rootCmd.AddCommand(scanCmd)
}

// frameScanner is the per-engine detection stage; *detect.Scanner satisfies it.
type frameScanner interface {
	Scan(frame *image.RGBA) ([]types.Rectangle, error)
}

// scanResult wraps the output from an engine to be sent to the aggregator
type scanResult struct {
	Index int
	Faces []types.FaceBox
	Err   error
}

// runScan opens the video, runs the detection pass and persists the checkpoint
// to checkpoint (or the default path) and, when configured, to Postgres.
func runScan(ctx context.Context, opts Options, checkpoint string) (*hyperframe.Store, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := video.LookPath(); err != nil {
		utils.ShowError("ffmpeg is required", err, nil)
		return nil, err
	}
	src, err := video.OpenSource(ctx, opts.InputPath, log)
	if err != nil {
		utils.ShowError("Failed to open video", err, nil)
		return nil, err
	}
	defer src.Close()

	hf, err := detectVideo(ctx, src, cfg, opts.NumEngines)
	if err != nil {
		utils.ShowError("Detection failed", err, src.Command())
		return nil, err
	}
	if err := persistCheckpoint(ctx, hf, opts.InputPath, checkpoint); err != nil {
		return nil, err
	}
	return hf, nil
}

// detectVideo builds one scanner per engine and runs the detection pass over src.
func detectVideo(ctx context.Context, src video.Source, cfg *config.Config, engines int) (*hyperframe.Store, error) {
	meta := src.Metadata()
	specs := cfg.DetectorSpecs(meta.Bounds())

	fmt.Fprintf(os.Stderr, "⚙️  Spawning %d detection engine(s) with %d detector(s)...\n", engines, len(specs))
	scanners := make([]frameScanner, 0, engines)
	for i := 0; i < engines; i++ {
		s, err := detect.Build(ctx, specs)
		if err != nil {
			return nil, fmt.Errorf("engine %d: %w", i, err)
		}
		defer s.Close()
		scanners = append(scanners, s)
	}

	muxer := mux.New(cfg.Mux.Threshold)
	muxer.Bounds = types.FromImageRect(meta.Bounds())

	bar := newBar(meta.FrameCount, "🔍 Detecting")
	hf, err := scanFrames(ctx, src, scanners, muxer, adjustment(cfg), func() { _ = bar.Add(1) })
	_ = bar.Finish()
	if err != nil {
		return nil, err
	}
	log.Infow("detection complete", "frames", hf.Len(), "faces", hf.FaceCount())
	fmt.Fprintf(os.Stderr, "\n🏁 Detection Complete. %d face boxes across %d frames.\n", hf.FaceCount(), hf.Len())
	return hf, nil
}

// scanFrames reads src to the end, detects and muxes every frame and returns
// the hyperframes in frame order. With more than one scanner, frames fan out
// to a worker per scanner and are re-ordered before they reach the store.
func scanFrames(ctx context.Context, src video.Source, scanners []frameScanner, muxer *mux.Muxer, adjust render.Adjustment, tick func()) (*hyperframe.Store, error) {
	if len(scanners) == 0 {
		return nil, fmt.Errorf("%w: no detection engines", detect.ErrConfiguration)
	}
	if tick == nil {
		tick = func() {}
	}
	if err := src.Rewind(); err != nil {
		return nil, fmt.Errorf("rewind source: %w", err)
	}
	if len(scanners) == 1 {
		return scanSequential(ctx, src, scanners[0], muxer, adjust, tick)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	taskChan := make(chan types.FrameTask, len(scanners))
	resultsChan := make(chan scanResult, len(scanners)*2)
	var wg sync.WaitGroup

	for _, s := range scanners {
		wg.Add(1)
		go func(s frameScanner) {
			defer wg.Done()
			for task := range taskChan {
				raw, err := s.Scan(task.Frame)
				res := scanResult{Index: task.Index, Err: err}
				if err == nil {
					res.Faces = muxer.Mux(raw)
				}
				select {
				case resultsChan <- res:
				case <-ctx.Done():
					return
				}
			}
		}(s)
	}

	// The decoder reuses its frame buffer, so each task carries its own copy.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer close(taskChan)
		for idx := 0; ; idx++ {
			frame, ok := src.Read()
			if !ok {
				return
			}
			select {
			case taskChan <- types.FrameTask{Index: idx, Frame: adjust.Apply(frame)}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	// Buffer for re-ordering frames (engine 2 might finish before engine 1)
	hf := hyperframe.New(1)
	buffer := make(map[int]scanResult)
	next := 0
	var firstErr error
	for res := range resultsChan {
		if firstErr != nil {
			continue
		}
		if res.Err != nil {
			firstErr = fmt.Errorf("frame %d: %w", res.Index, res.Err)
			cancel()
			continue
		}
		buffer[res.Index] = res
		for {
			r, ok := buffer[next]
			if !ok {
				break
			}
			delete(buffer, next)
			if err := hf.Append(next, r.Faces); err != nil {
				firstErr = err
				cancel()
				break
			}
			next++
			tick()
		}
	}
	<-readerDone

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(buffer) > 0 {
		return nil, fmt.Errorf("detection stopped at frame %d with %d frames unordered", next, len(buffer))
	}
	return hf, nil
}

func scanSequential(ctx context.Context, src video.Source, s frameScanner, muxer *mux.Muxer, adjust render.Adjustment, tick func()) (*hyperframe.Store, error) {
	hf := hyperframe.New(1)
	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frame, ok := src.Read()
		if !ok {
			break
		}
		raw, err := s.Scan(adjust.Apply(frame))
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", idx, err)
		}
		if err := hf.Append(idx, muxer.Mux(raw)); err != nil {
			return nil, err
		}
		tick()
	}
	return hf, nil
}

// persistCheckpoint writes the JSON checkpoint and mirrors it to Postgres when configured.
func persistCheckpoint(ctx context.Context, hf *hyperframe.Store, videoPath, checkpoint string) error {
	if checkpoint == "" {
		checkpoint = hyperframe.CheckpointPath(videoPath)
	}
	if err := hf.Save(checkpoint); err != nil {
		utils.ShowError("Failed to write hyperframe checkpoint", err, nil)
		return err
	}
	fmt.Fprintf(os.Stderr, "💾 Hyperframes saved to %s\n", checkpoint)

	if !databaseRequested() {
		return nil
	}
	videoID, err := utils.GenerateVideoID(videoPath)
	if err != nil {
		utils.ShowError("Failed to generate video ID", err, nil)
		return err
	}
	db, err := openStore(ctx)
	if err != nil {
		utils.ShowError("Database unavailable", err, nil)
		return err
	}
	defer db.Close(ctx)

	if err := db.EnsureVideoMetadata(ctx, videoID, videoPath); err != nil {
		utils.ShowError("Failed to register video metadata", err, nil)
		return err
	}
	if err := db.SaveHyperframes(ctx, videoID, hf.All()); err != nil {
		utils.ShowError("Failed to store hyperframes", err, nil)
		return err
	}
	fmt.Fprintf(os.Stderr, "📼 Checkpoint stored for video ID %s\n", videoID[:12])
	return nil
}

// adjustment is the pre-detection correction from the config.
func adjustment(cfg *config.Config) render.Adjustment {
	return render.Adjustment{
		Contrast:   cfg.Adjust.Contrast,
		Brightness: cfg.Adjust.Brightness,
		Gamma:      cfg.Adjust.Gamma,
	}
}

// newBar writes to stderr so stdout stays clean; total <= 0 shows a spinner.
func newBar(total int, description string) *progressbar.ProgressBar {
	n := int64(total)
	if n <= 0 {
		n = -1
	}
	return progressbar.NewOptions64(n,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)
}
