package video

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

type ffprobeOutput struct {
	Streams []struct {
		Width         int    `json:"width"`
		Height        int    `json:"height"`
		RFrameRate    string `json:"r_frame_rate"`
		AvgFrameRate  string `json:"avg_frame_rate"`
		NbFrames      string `json:"nb_frames"`
		NbReadPackets string `json:"nb_read_packets"`
		CodecTag      string `json:"codec_tag_string"`
	} `json:"streams"`
}

// Probe reads stream metadata with ffprobe. The frame count comes from the
// container when available; otherwise packets are counted, which reads the file.
func Probe(ctx context.Context, path string, log *zap.SugaredLogger) (Metadata, error) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return Metadata{}, fmt.Errorf("ffprobe not found: %w", err)
	}

	out, err := exec.CommandContext(ctx, "ffprobe", "-v", "error", "-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate,nb_frames,codec_tag_string",
		"-of", "json", path).Output()
	if err != nil {
		return Metadata{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	meta, err := parseProbe(out)
	if err != nil {
		return Metadata{}, err
	}

	if meta.FrameCount <= 0 {
		log.Infow("container has no frame count, counting packets", "path", path)
		out, err := exec.CommandContext(ctx, "ffprobe", "-v", "error", "-select_streams", "v:0", "-count_packets",
			"-show_entries", "stream=nb_read_packets", "-of", "json", path).Output()
		if err != nil {
			log.Warnw("packet count failed", "path", path, "error", err)
		} else if counted, err := parseProbe(out); err == nil {
			meta.FrameCount = counted.FrameCount
		}
	}
	return meta, nil
}

func parseProbe(out []byte) (Metadata, error) {
	var res ffprobeOutput
	if err := json.Unmarshal(out, &res); err != nil {
		return Metadata{}, fmt.Errorf("ffprobe JSON parse error: %w", err)
	}
	if len(res.Streams) == 0 {
		return Metadata{}, fmt.Errorf("no video streams found")
	}
	s := res.Streams[0]

	meta := Metadata{Width: s.Width, Height: s.Height, FourCC: s.CodecTag}
	meta.FPS = parseRate(s.AvgFrameRate)
	if meta.FPS <= 0 {
		meta.FPS = parseRate(s.RFrameRate)
	}
	if n, err := strconv.Atoi(s.NbFrames); err == nil && n > 0 {
		meta.FrameCount = n
	} else if n, err := strconv.Atoi(s.NbReadPackets); err == nil && n > 0 {
		meta.FrameCount = n
	}
	return meta, nil
}

// parseRate parses ffprobe rationals such as "30000/1001" or "25".
func parseRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
