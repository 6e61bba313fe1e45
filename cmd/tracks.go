package cmd

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/andresmejia3/hyperredact/internal/types"
	"github.com/andresmejia3/hyperredact/internal/utils"
)

// trackSpan is the stretch of video one tracked face appears in.
type trackSpan struct {
	ID     int
	First  int
	Last   int
	Frames int
}

// summarizeTracks collects one span per track ID seen in events, ordered by ID.
// Events without track IDs are skipped.
func summarizeTracks(events []types.Event) []trackSpan {
	byID := make(map[int]*trackSpan)
	for _, ev := range events {
		if len(ev.TrackIDs) != len(ev.Faces) {
			continue
		}
		for _, id := range ev.TrackIDs {
			s, ok := byID[id]
			if !ok {
				s = &trackSpan{ID: id, First: ev.FrameIndex}
				byID[id] = s
			}
			s.Last = ev.FrameIndex
			s.Frames++
		}
	}

	spans := make([]trackSpan, 0, len(byID))
	for _, s := range byID {
		spans = append(spans, *s)
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].ID < spans[j].ID })
	return spans
}

// reportTracks prints a table of track spans with stream timestamps.
func reportTracks(w io.Writer, spans []trackSpan, fps float64) {
	if len(spans) == 0 {
		return
	}
	fmt.Fprintf(w, "🧭 %d face track(s):\n", len(spans))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TRACK\tFROM\tTO\tFRAMES")
	for _, s := range spans {
		from := utils.FormatTimestamp(utils.FrameTimestamp(s.First, fps))
		to := utils.FormatTimestamp(utils.FrameTimestamp(s.Last, fps))
		fmt.Fprintf(tw, "#%d\t%s\t%s\t%d\n", s.ID, from, to, s.Frames)
		log.Debugw("face track", "track", s.ID, "first", s.First, "last", s.Last, "frames", s.Frames)
	}
	tw.Flush()
}
