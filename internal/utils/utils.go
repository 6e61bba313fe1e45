package utils

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (ffmpeg and detector logs)
// so a crashed child leaves its last words behind.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand initializes a command bound to ctx and attaches a buffer to its Stderr pipe.
// It prepares the command for execution but does not start it.
func NewSafeCommand(ctx context.Context, name string, args ...string) *SafeCommand {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// --- 2. Error Reporting ---

// ShowError prints the formatted error box to stderr without exiting.
func ShowError(context string, err error, s *SafeCommand) {
	FprintError(os.Stderr, context, err, s)
}

// FprintError writes the error box to w, including any logs a SafeCommand captured.
func FprintError(w io.Writer, context string, err error, s *SafeCommand) {
	fmt.Fprintf(w, "\n---------------------------------------------------------\n")
	fmt.Fprintf(w, "🚨 HYPERREDACT ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(w, "DETAILS: %v\n", err)
	}

	if s != nil && s.Stderr != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(w, "\nSUBPROCESS LOGS (%s):\n%s\n", s.Path, strings.TrimRight(s.Stderr.String(), "\n"))
	}
	fmt.Fprintf(w, "---------------------------------------------------------\n")
}

// --- 3. Video Helpers ---

// GenerateVideoID creates a deterministic hash for the video file
// based on its path, size, and modification time.
func GenerateVideoID(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	input := fmt.Sprintf("%s-%d-%d", path, info.Size(), info.ModTime().UnixNano())
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:]), nil
}

// FrameTimestamp converts a frame index to a stream position for log lines.
func FrameTimestamp(frame int, fps float64) time.Duration {
	if fps <= 0 || frame < 0 {
		return 0
	}
	return time.Duration(float64(frame) / fps * float64(time.Second)).Round(time.Millisecond)
}

// FormatTimestamp renders d as HH:MM:SS.mmm.
func FormatTimestamp(d time.Duration) string {
	ms := d.Milliseconds()
	h := ms / 3_600_000
	m := (ms / 60_000) % 60
	s := (ms / 1000) % 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms%1000)
}
