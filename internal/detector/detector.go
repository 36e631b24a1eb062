// Package detector abstracts the pose-detection collaborator. The core
// treats it as a black box: given the current video frame's timestamp it
// returns either an empty result (no detection) or a fixed-length ordered
// keypoint list. The core does not initialise, configure, or retry the
// detector.
package detector

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/banshee-data/rep.coach/internal/pose"
)

// Source produces one frame per invocation. Implementations must return
// frames with strictly increasing timestamps. A frame with no keypoints
// means "no detection this frame"; io.EOF means the source is exhausted.
type Source interface {
	Next() (pose.Frame, error)
	Close() error
}

// ReplaySource plays back recorded keypoint frames from a JSONL stream, one
// frame object per line. Used in dev mode so the pipeline can be exercised
// without a live detector, and as the live ingest when a detector process
// pipes frames over stdin.
type ReplaySource struct {
	rc      io.ReadCloser
	scanner *bufio.Scanner
}

// NewReplaySource opens a JSONL fixture file for playback.
func NewReplaySource(path string) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open replay fixture: %w", err)
	}
	return NewStreamSource(f), nil
}

// NewStreamSource wraps an arbitrary JSONL frame stream, such as stdin fed
// by a detector process.
func NewStreamSource(rc io.ReadCloser) *ReplaySource {
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &ReplaySource{rc: rc, scanner: scanner}
}

// Next returns the next recorded frame, or io.EOF at end of fixture.
// Malformed lines are skipped rather than failing the replay.
func (r *ReplaySource) Next() (pose.Frame, error) {
	for r.scanner.Scan() {
		line := r.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var frame pose.Frame
		if err := json.Unmarshal(line, &frame); err != nil {
			continue
		}
		return frame, nil
	}
	if err := r.scanner.Err(); err != nil {
		return pose.Frame{}, fmt.Errorf("replay read failed: %w", err)
	}
	return pose.Frame{}, io.EOF
}

// Close closes the underlying stream.
func (r *ReplaySource) Close() error { return r.rc.Close() }

// SyntheticSource generates an idealised squat trace: a stillness window
// for calibration followed by repeated sinusoidal descents. Used by tests
// and the dev tooling.
type SyntheticSource struct {
	FrameRate   float64 // frames per second
	StillFrames int     // upright stillness frames before the first rep
	RepFrames   int     // frames per descent-and-return cycle
	Reps        int     // cycles to generate
	HipTopY     float64 // standing hip height (normalised)
	HipBottomY  float64 // hip height at the deepest point

	frame int
}

// NewSyntheticSource returns a generator with sensible defaults for a
// 60 Hz trace: 60 stillness frames, then 80-frame reps.
func NewSyntheticSource(reps int) *SyntheticSource {
	return &SyntheticSource{
		FrameRate:   60,
		StillFrames: 60,
		RepFrames:   80,
		Reps:        reps,
		HipTopY:     0.50,
		HipBottomY:  0.72,
	}
}

// hipAt returns the hip height for the given frame index.
func (s *SyntheticSource) hipAt(n int) float64 {
	if n < s.StillFrames {
		return s.HipTopY
	}
	cycle := (n - s.StillFrames) % s.RepFrames
	phase := float64(cycle) / float64(s.RepFrames) // [0,1)
	// Half-sine: down and back up within one cycle.
	return s.HipTopY + (s.HipBottomY-s.HipTopY)*math.Sin(phase*math.Pi)
}

// Next generates the next synthetic frame, or io.EOF once all reps have
// been produced.
func (s *SyntheticSource) Next() (pose.Frame, error) {
	total := s.StillFrames + s.Reps*s.RepFrames
	if s.frame >= total {
		return pose.Frame{}, io.EOF
	}
	n := s.frame
	s.frame++
	hipY := s.hipAt(n)
	return pose.Frame{
		Keypoints: SkeletonAtHip(hipY, s.HipTopY),
		Timestamp: float64(n) / s.FrameRate,
	}, nil
}

// Close is a no-op for the generator.
func (s *SyntheticSource) Close() error { return nil }

// SkeletonAtHip builds a fully visible skeleton whose hip centre sits at
// hipY, with knee flexion consistent with the hip displacement from the
// standing height. Shared by the synthetic source and pipeline tests.
func SkeletonAtHip(hipY, standingHipY float64) []pose.Keypoint {
	kps := make([]pose.Keypoint, pose.NumJoints)
	vis := func(x, y float64) pose.Keypoint {
		return pose.Keypoint{X: x, Y: y, Visibility: 0.95}
	}

	drop := hipY - standingHipY // ≥ 0 while squatting

	kps[pose.Nose] = vis(0.50, hipY-0.42)
	kps[pose.LeftEye] = vis(0.49, hipY-0.43)
	kps[pose.RightEye] = vis(0.51, hipY-0.43)
	kps[pose.LeftEar] = vis(0.48, hipY-0.42)
	kps[pose.RightEar] = vis(0.52, hipY-0.42)

	kps[pose.LeftShoulder] = vis(0.45, hipY-0.30)
	kps[pose.RightShoulder] = vis(0.55, hipY-0.30)
	kps[pose.LeftElbow] = vis(0.43, hipY-0.18)
	kps[pose.RightElbow] = vis(0.57, hipY-0.18)
	kps[pose.LeftWrist] = vis(0.42, hipY-0.08)
	kps[pose.RightWrist] = vis(0.58, hipY-0.08)

	kps[pose.LeftHip] = vis(0.46, hipY)
	kps[pose.RightHip] = vis(0.54, hipY)

	// Knees drift forward as the hips drop, bending the hip-knee-ankle
	// angle away from straight.
	kneeX := 0.46 + drop*0.8
	kps[pose.LeftKnee] = vis(kneeX, standingHipY+0.22)
	kps[pose.RightKnee] = vis(kneeX+0.08, standingHipY+0.22)

	kps[pose.LeftAnkle] = vis(0.46, standingHipY+0.44)
	kps[pose.RightAnkle] = vis(0.54, standingHipY+0.44)
	return kps
}
