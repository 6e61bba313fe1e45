package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"

	"github.com/andresmejia3/hyperredact/internal/utils"
	"go.uber.org/zap"
)

// FFmpegSource decodes a video file into raw RGBA frames through an ffmpeg pipe.
// Rewind restarts the decoder.
type FFmpegSource struct {
	ctx  context.Context
	path string
	meta Metadata
	log  *zap.SugaredLogger

	cmd   *utils.SafeCommand
	out   io.ReadCloser
	frame *image.RGBA
	read  int
	err   error
}

var _ Source = (*FFmpegSource)(nil)

// OpenSource probes path and starts decoding from the first frame.
func OpenSource(ctx context.Context, path string, log *zap.SugaredLogger) (*FFmpegSource, error) {
	meta, err := Probe(ctx, path, log)
	if err != nil {
		return nil, err
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	s := &FFmpegSource{
		ctx:   ctx,
		path:  path,
		meta:  meta,
		log:   log,
		frame: image.NewRGBA(meta.Bounds()),
	}
	if err := s.start(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewRawDecoder builds the decoder command: every frame as packed RGBA on stdout.
func NewRawDecoder(ctx context.Context, inputPath string) *utils.SafeCommand {
	return utils.NewSafeCommand(ctx, "ffmpeg", "-hide_banner", "-loglevel", "error",
		"-i", inputPath, "-f", "rawvideo", "-pix_fmt", "rgba", "-")
}

func (s *FFmpegSource) start() error {
	cmd := NewRawDecoder(s.ctx, s.path)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create decoder pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start decoder: %w", err)
	}
	s.log.Debugw("decoder started", "path", s.path, "args", cmd.Args)
	s.cmd, s.out, s.read, s.err = cmd, out, 0, nil
	return nil
}

func (s *FFmpegSource) Read() (*image.RGBA, bool) {
	if s.out == nil || s.err != nil {
		return nil, false
	}
	if _, err := io.ReadFull(s.out, s.frame.Pix); err != nil {
		if !errors.Is(err, io.EOF) {
			s.err = err
			s.log.Warnw("decoder read failed, treating as end of stream", "frame", s.read, "error", err)
		} else {
			s.err = io.EOF
		}
		return nil, false
	}
	s.read++
	return s.frame, true
}

// Err returns the read error that ended the stream, io.EOF on a clean end.
func (s *FFmpegSource) Err() error { return s.err }

// Decoded returns how many frames were read since the last rewind.
func (s *FFmpegSource) Decoded() int { return s.read }

func (s *FFmpegSource) Rewind() error {
	s.stop()
	return s.start()
}

func (s *FFmpegSource) Metadata() Metadata { return s.meta }

// Command exposes the running decoder for error reports.
func (s *FFmpegSource) Command() *utils.SafeCommand { return s.cmd }

// Close stops the decoder.
func (s *FFmpegSource) Close() error {
	s.stop()
	return nil
}

func (s *FFmpegSource) stop() {
	if s.cmd == nil {
		return
	}
	s.out.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	s.cmd, s.out = nil, nil
}

// FFmpegSink encodes raw RGBA frames written to an ffmpeg pipe.
type FFmpegSink struct {
	cmd      *utils.SafeCommand
	in       io.WriteCloser
	bounds   image.Rectangle
	written  int
	released bool
}

var _ Sink = (*FFmpegSink)(nil)

// NewEncoder builds the encoder command reading packed RGBA from stdin.
func NewEncoder(ctx context.Context, outputPath, codec string, meta Metadata) *utils.SafeCommand {
	if codec == "" {
		codec = "mpeg4"
	}
	return utils.NewSafeCommand(ctx, "ffmpeg", "-hide_banner", "-loglevel", "error", "-y",
		"-f", "rawvideo", "-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", meta.Width, meta.Height),
		"-r", strconv.FormatFloat(meta.FPS, 'f', -1, 64),
		"-i", "-",
		"-c:v", codec, "-pix_fmt", "yuv420p", "-q:v", "2",
		outputPath)
}

// CreateSink starts an encoder writing to outputPath sized from meta.
func CreateSink(ctx context.Context, outputPath, codec string, meta Metadata) (*FFmpegSink, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	cmd := NewEncoder(ctx, outputPath, codec, meta)
	in, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start encoder: %w", err)
	}
	return &FFmpegSink{cmd: cmd, in: in, bounds: meta.Bounds()}, nil
}

func (s *FFmpegSink) Write(frame *image.RGBA) error {
	if s.released {
		return errors.New("write after release")
	}
	if err := writeRGBA(s.in, frame, s.bounds); err != nil {
		return fmt.Errorf("write frame %d: %w", s.written, err)
	}
	s.written++
	return nil
}

// Written returns the number of frames accepted so far.
func (s *FFmpegSink) Written() int { return s.written }

func (s *FFmpegSink) Release() error {
	if s.released {
		return nil
	}
	s.released = true
	if err := s.in.Close(); err != nil {
		return err
	}
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("encoder process failed: %w", err)
	}
	return nil
}

// Command exposes the encoder for error reports.
func (s *FFmpegSink) Command() *utils.SafeCommand { return s.cmd }

// Close aborts an unreleased encoder.
func (s *FFmpegSink) Close() error {
	if s.released {
		return nil
	}
	s.released = true
	s.in.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	return nil
}

// writeRGBA writes frame rows as packed RGBA, refusing frames of the wrong size.
func writeRGBA(w io.Writer, frame *image.RGBA, bounds image.Rectangle) error {
	b := frame.Bounds()
	if b.Dx() != bounds.Dx() || b.Dy() != bounds.Dy() {
		return fmt.Errorf("frame is %dx%d, sink expects %dx%d", b.Dx(), b.Dy(), bounds.Dx(), bounds.Dy())
	}
	rowLen := b.Dx() * 4
	if frame.Stride == rowLen {
		start := frame.PixOffset(b.Min.X, b.Min.Y)
		_, err := w.Write(frame.Pix[start : start+rowLen*b.Dy()])
		return err
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := frame.PixOffset(b.Min.X, y)
		if _, err := w.Write(frame.Pix[off : off+rowLen]); err != nil {
			return err
		}
	}
	return nil
}

// LookPath reports whether the ffmpeg binaries are installed.
func LookPath() error {
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%s not found in PATH: %w", bin, err)
		}
	}
	return nil
}
