package cmd

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/hyperredact/internal/config"
	"github.com/andresmejia3/hyperredact/internal/event"
	"github.com/andresmejia3/hyperredact/internal/hyperframe"
	"github.com/andresmejia3/hyperredact/internal/render"
	"github.com/andresmejia3/hyperredact/internal/utils"
	"github.com/andresmejia3/hyperredact/internal/video"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var renderOpts Options

var renderCmd = &cobra.Command{
	Use:   "render <videoPath> <blurType>",
	Short: "Render a redacted video from an existing hyperframe checkpoint",
	Long: `render skips detection. Hyperframes come from --import, from --from-db,
or from the default checkpoint <videoPath>-hf.json written by scan.`,
	Args: positionalArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		renderOpts.InputPath, renderOpts.BlurType = args[0], args[1]
		renderOpts.ConfigPath = configPath
		if renderOpts.ImportPath == "" && !renderOpts.FromDB {
			renderOpts.ImportPath = hyperframe.CheckpointPath(renderOpts.InputPath)
		}
		if err := validateOptions(&renderOpts); err != nil {
			return err
		}
		cmd.SilenceUsage = true
		return runRedact(cmd.Context(), renderOpts)
	},
}

func init() {
	addRedactFlags(renderCmd, &renderOpts)
	renderCmd.Flags().BoolVar(&renderOpts.FromDB, "from-db", false, "Load hyperframes from the database")
	rootCmd.AddCommand(renderCmd)
}

// validateOptions ensures all CLI arguments are valid before starting heavy processes.
// Every failure wraps ErrInvalidUsage.
func validateOptions(opts *Options) error {
	info, err := os.Stat(opts.InputPath)
	if err != nil {
		return fmt.Errorf("%w: unable to access input file: %v", ErrInvalidUsage, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: input path %s is a directory, expected a video file", ErrInvalidUsage, opts.InputPath)
	}
	if opts.BlurType != BlurMotion && opts.BlurType != BlurBoxes {
		return fmt.Errorf("%w: blur type must be %q or %q, got %q", ErrInvalidUsage, BlurMotion, BlurBoxes, opts.BlurType)
	}
	if opts.RenderType != "" && opts.RenderType != RenderAdjusted {
		return fmt.Errorf("%w: unknown render type %q", ErrInvalidUsage, opts.RenderType)
	}
	if opts.ImportPath != "" && opts.FromDB {
		return fmt.Errorf("%w: --import and --from-db are mutually exclusive", ErrInvalidUsage)
	}
	if opts.ImportPath != "" && opts.RenderType != RenderAdjusted {
		if _, err := os.Stat(opts.ImportPath); err != nil {
			return fmt.Errorf("%w: hyperframe file: %v", ErrInvalidUsage, err)
		}
	}
	if opts.NumEngines < 1 {
		opts.NumEngines = 1
	}
	if opts.OutputPath == "" {
		opts.OutputPath = defaultOutputPath(*opts)
	}

	// Prevent overwriting the input file, which corrupts both
	inAbs, _ := filepath.Abs(opts.InputPath)
	outAbs, _ := filepath.Abs(opts.OutputPath)
	if inAbs == outAbs {
		return fmt.Errorf("%w: input and output paths must be different", ErrInvalidUsage)
	}
	return nil
}

// defaultOutputPath names the output after the run mode: output-adjusted.mov for
// the adjusted copy, output.mov when hyperframes were supplied, and
// <input without extension>-haar.mov after a fresh detection pass.
func defaultOutputPath(opts Options) string {
	switch {
	case opts.RenderType == RenderAdjusted:
		return "output-adjusted.mov"
	case opts.ImportPath != "" || opts.FromDB:
		return "output.mov"
	default:
		return strings.TrimSuffix(opts.InputPath, filepath.Ext(opts.InputPath)) + "-haar.mov"
	}
}

// runRedact is the whole pipeline: obtain hyperframes, turn them into events and
// render the redacted copy. opts must have passed validateOptions.
func runRedact(ctx context.Context, opts Options) error {
	// Cancelling kills the decoder, the encoder and any detector processes on early return.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		utils.ShowError("Invalid configuration", err, nil)
		return err
	}
	if err := video.LookPath(); err != nil {
		utils.ShowError("ffmpeg is required", err, nil)
		return err
	}

	src, err := video.OpenSource(ctx, opts.InputPath, log)
	if err != nil {
		utils.ShowError("Failed to open video", err, nil)
		return err
	}
	defer src.Close()
	meta := src.Metadata()
	log.Infow("video opened", "path", opts.InputPath, "fps", meta.FPS, "width", meta.Width, "height", meta.Height, "frames", meta.FrameCount)

	if opts.RenderType == RenderAdjusted {
		return runAdjusted(ctx, src, cfg, opts.OutputPath)
	}

	hf, err := loadHyperframes(ctx, src, cfg, opts)
	if err != nil {
		return err
	}

	events := newGenerator(cfg).Generate(hf.All())
	if cfg.Events.Tracker == config.TrackerCentroid {
		reportTracks(os.Stderr, summarizeTracks(events), meta.FPS)
	}
	renderer, err := newRenderer(opts.BlurType, cfg)
	if err != nil {
		return err
	}

	sink, err := video.CreateSink(ctx, opts.OutputPath, cfg.Output.Codec, meta)
	if err != nil {
		utils.ShowError("Failed to start encoder", err, nil)
		return err
	}
	defer sink.Close()

	fmt.Fprintf(os.Stderr, "🎬 Rendering %d frames (%s) to %s\n", len(events), opts.BlurType, opts.OutputPath)
	err = writeOutput(opts.OutputPath, sink, newBar(len(events), "🎨 Rendering"), func(out video.Sink) error {
		return renderer.Render(events, src, out)
	})
	if err != nil {
		switch {
		case errors.Is(err, video.ErrSourceExhausted):
			if rerr := src.Err(); rerr != nil && !errors.Is(rerr, io.EOF) {
				err = fmt.Errorf("%w (decoder: %v)", err, rerr)
			}
			utils.ShowError(fmt.Sprintf("Video ended after %d frames, before the hyperframes did", src.Decoded()), err, src.Command())
		default:
			utils.ShowError(fmt.Sprintf("Render failed after %d frames", sink.Written()), err, sink.Command())
		}
		return err
	}

	fmt.Fprintf(os.Stderr, "\n✅ Redacted video (%d frames) written to %s\n", sink.Written(), opts.OutputPath)
	return nil
}

// outputSink is the encoder end of a render; *video.FFmpegSink satisfies it.
type outputSink interface {
	video.Sink
	Written() int
	Close() error
}

// writeOutput runs draw against sink through a progress bar. When draw fails
// the encoder is aborted and the partial file at path is removed.
func writeOutput(path string, sink outputSink, bar *progressbar.ProgressBar, draw func(video.Sink) error) error {
	err := draw(&progressSink{Sink: sink, bar: bar})
	if bar != nil {
		_ = bar.Finish()
	}
	if err == nil {
		log.Infow("output written", "path", path, "frames", sink.Written())
		return nil
	}
	_ = sink.Close()
	removeFile(path)
	log.Warnw("render failed, partial output removed", "path", path, "frames", sink.Written(), "error", err)
	return err
}

// loadHyperframes returns the hyperframes from --import, --from-db or a fresh
// detection pass, in that order of precedence.
func loadHyperframes(ctx context.Context, src *video.FFmpegSource, cfg *config.Config, opts Options) (*hyperframe.Store, error) {
	switch {
	case opts.ImportPath != "":
		hf, err := hyperframe.Load(opts.ImportPath)
		if err != nil {
			utils.ShowError("Failed to import hyperframes", err, nil)
			return nil, err
		}
		fmt.Fprintf(os.Stderr, "📥 Imported %d hyperframes from %s\n", hf.Len(), opts.ImportPath)
		return hf, checkImported(hf, src.Metadata())

	case opts.FromDB:
		videoID, err := utils.GenerateVideoID(opts.InputPath)
		if err != nil {
			utils.ShowError("Failed to generate video ID", err, nil)
			return nil, err
		}
		db, err := openStore(ctx)
		if err != nil {
			utils.ShowError("Database unavailable", err, nil)
			return nil, err
		}
		defer db.Close(ctx)
		frames, err := db.LoadHyperframes(ctx, videoID)
		if err != nil {
			utils.ShowError("Failed to load hyperframes", err, nil)
			return nil, err
		}
		if len(frames) == 0 {
			err := fmt.Errorf("no checkpoint stored for video ID %s", videoID[:12])
			utils.ShowError("Nothing to render; run scan first", err, nil)
			return nil, err
		}
		fmt.Fprintf(os.Stderr, "📥 Loaded %d hyperframes from the database\n", len(frames))
		hf := hyperframe.FromFrames(frames)
		return hf, checkImported(hf, src.Metadata())

	default:
		hf, err := detectVideo(ctx, src, cfg, opts.NumEngines)
		if err != nil {
			utils.ShowError("Detection failed", err, src.Command())
			return nil, err
		}
		if err := persistCheckpoint(ctx, hf, opts.InputPath, ""); err != nil {
			return nil, err
		}
		return hf, nil
	}
}

// checkImported rejects a persisted sequence whose indices or length disagree
// with the video. A freshly detected store needs no check: it is as long as the
// decoder made it.
func checkImported(hf *hyperframe.Store, meta video.Metadata) error {
	if err := hf.Validate(meta.FrameCount); err != nil {
		utils.ShowError("Hyperframes do not match the video", err, nil)
		return err
	}
	return nil
}

// newRenderer maps the blur type to a configured renderer.
func newRenderer(blurType string, cfg *config.Config) (render.Renderer, error) {
	switch blurType {
	case BlurMotion:
		return render.NewBlurRenderer(cfg.Blur.Passes, cfg.Blur.Sigma), nil
	case BlurBoxes:
		c, err := cfg.BoxColor()
		if err != nil {
			return nil, err
		}
		r := render.NewBoxRenderer(c, cfg.Box.LineWidth, render.SkinPredicate{MinFraction: cfg.Skin.MinFraction})
		r.Labels = cfg.Box.Labels
		return r, nil
	default:
		return nil, fmt.Errorf("%w: unknown blur type %q", ErrInvalidUsage, blurType)
	}
}

// newGenerator picks the event generator named by events.tracker.
func newGenerator(cfg *config.Config) event.Generator {
	if cfg.Events.Tracker == config.TrackerCentroid {
		return event.CentroidTracker{MaxDistance: cfg.Events.MaxDistance}
	}
	return event.Presence{}
}

// runAdjusted writes the contrast-corrected copy of src without redaction.
func runAdjusted(ctx context.Context, src *video.FFmpegSource, cfg *config.Config, out string) error {
	meta := src.Metadata()
	sink, err := video.CreateSink(ctx, out, cfg.Output.Codec, meta)
	if err != nil {
		utils.ShowError("Failed to start encoder", err, nil)
		return err
	}
	defer sink.Close()

	r := &render.AdjustRenderer{Adjustment: adjustment(cfg)}
	var n int
	err = writeOutput(out, sink, newBar(meta.FrameCount, "🎨 Adjusting"), func(dst video.Sink) error {
		var err error
		n, err = r.Render(src, dst)
		return err
	})
	if err != nil {
		utils.ShowError(fmt.Sprintf("Adjusted render failed after %d frames", sink.Written()), err, sink.Command())
		return err
	}
	fmt.Fprintf(os.Stderr, "\n✅ Adjusted video (%d frames) written to %s\n", n, out)
	return nil
}

// progressSink advances a progress bar for every frame the wrapped sink accepts.
type progressSink struct {
	video.Sink
	bar *progressbar.ProgressBar
}

func (p *progressSink) Write(frame *image.RGBA) error {
	if err := p.Sink.Write(frame); err != nil {
		return err
	}
	if p.bar != nil {
		_ = p.bar.Add(1)
	}
	return nil
}
