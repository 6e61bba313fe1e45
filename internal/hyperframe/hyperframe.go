// Package hyperframe holds the ordered per-frame face record produced by the
// detection pass and its durable JSON checkpoint.
package hyperframe

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/andresmejia3/hyperredact/internal/types"
)

// ErrStoreMismatch is returned when a record sequence does not line up with the
// video it is about to be rendered against.
var ErrStoreMismatch = errors.New("hyperframe store does not match video")

// Store is an append-only, frame-ordered sequence of Hyperframes.
type Store struct {
	frames []types.Hyperframe
	step   int
}

// New returns an empty store expecting frame indices 0, step, 2*step, ...
func New(step int) *Store {
	if step < 1 {
		step = 1
	}
	return &Store{step: step}
}

// FromFrames builds a store from an already ordered sequence.
func FromFrames(frames []types.Hyperframe) *Store {
	s := New(1)
	s.frames = append(s.frames, frames...)
	return s
}

// Append adds the record for the next frame. Indices must increase by exactly
// the store step; an empty faces list is still a valid record.
func (s *Store) Append(frameIndex int, faces []types.FaceBox) error {
	want := len(s.frames) * s.step
	if frameIndex != want {
		return fmt.Errorf("append frame %d: expected frame %d", frameIndex, want)
	}
	owned := make([]types.FaceBox, len(faces))
	copy(owned, faces)
	s.frames = append(s.frames, types.Hyperframe{FrameIndex: frameIndex, Faces: owned})
	return nil
}

// All returns a copy of the full ordered sequence.
func (s *Store) All() []types.Hyperframe {
	out := make([]types.Hyperframe, len(s.frames))
	copy(out, s.frames)
	return out
}

func (s *Store) Len() int { return len(s.frames) }

func (s *Store) Step() int { return s.step }

// FaceCount returns the total number of boxes across all frames.
func (s *Store) FaceCount() int {
	n := 0
	for _, f := range s.frames {
		n += len(f.Faces)
	}
	return n
}

// Validate checks the stored indices against a video with frameCount frames.
// frameCount <= 0 means unknown and only the index sequence is checked.
func (s *Store) Validate(frameCount int) error {
	for i, f := range s.frames {
		if f.FrameIndex != i*s.step {
			return fmt.Errorf("%w: record %d has frame index %d, expected %d", ErrStoreMismatch, i, f.FrameIndex, i*s.step)
		}
	}
	if frameCount > 0 && len(s.frames) != frameCount {
		return fmt.Errorf("%w: %d records for %d video frames", ErrStoreMismatch, len(s.frames), frameCount)
	}
	return nil
}

// record is the persisted form. frameNumber is read as a float because
// older checkpoints stored capture positions like 12.0.
type record struct {
	FrameNumber float64           `json:"frameNumber"`
	Faces       []json.RawMessage `json:"faces"`
}

// Serialize writes the store as a JSON array of {frameNumber, faces} records.
func (s *Store) Serialize(w io.Writer) error {
	frames := s.frames
	if frames == nil {
		frames = []types.Hyperframe{}
	}
	return json.NewEncoder(w).Encode(frames)
}

// Deserialize reads a store written by Serialize or an older checkpoint.
// Records are sorted by frame index; malformed face entries are dropped.
func Deserialize(r io.Reader) (*Store, error) {
	var recs []record
	if err := json.NewDecoder(r).Decode(&recs); err != nil {
		return nil, fmt.Errorf("decode hyperframes: %w", err)
	}

	frames := make([]types.Hyperframe, 0, len(recs))
	for i, rec := range recs {
		if rec.FrameNumber < 0 || rec.FrameNumber != math.Trunc(rec.FrameNumber) {
			return nil, fmt.Errorf("record %d: invalid frameNumber %v", i, rec.FrameNumber)
		}
		faces := make([]types.FaceBox, 0, len(rec.Faces))
		for _, raw := range rec.Faces {
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			box, err := types.Normalize(v)
			if err != nil {
				continue
			}
			faces = append(faces, box)
		}
		frames = append(frames, types.Hyperframe{FrameIndex: int(rec.FrameNumber), Faces: faces})
	}

	sort.SliceStable(frames, func(i, j int) bool { return frames[i].FrameIndex < frames[j].FrameIndex })
	return FromFrames(frames), nil
}

// CheckpointPath is where the detection pass writes its store for videoPath.
func CheckpointPath(videoPath string) string {
	return videoPath + "-hf.json"
}

// Save writes the store to path.
func (s *Store) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := s.Serialize(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Load reads a store from path.
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Deserialize(f)
}
