// Package pose defines the keypoint data model shared by the coaching
// pipeline. A detector produces one Frame per video frame: a fixed-length,
// ordered list of 2-D joint estimates in normalised image coordinates.
// The index → joint mapping follows the COCO-17 skeleton topology and is
// invariant for a session.
package pose

// Joint identifies one tracked anatomical landmark. Values are indices into
// a Frame's keypoint slice and must match the detector's output order.
type Joint int

const (
	Nose Joint = iota
	LeftEye
	RightEye
	LeftEar
	RightEar
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle

	// NumJoints is the fixed skeleton size. Filter arenas and keypoint
	// slices are allocated at this size once and never grow.
	NumJoints
)

// jointNames is indexed by Joint.
var jointNames = [NumJoints]string{
	"nose", "left_eye", "right_eye", "left_ear", "right_ear",
	"left_shoulder", "right_shoulder", "left_elbow", "right_elbow",
	"left_wrist", "right_wrist", "left_hip", "right_hip",
	"left_knee", "right_knee", "left_ankle", "right_ankle",
}

// String returns the canonical snake_case name for the joint.
func (j Joint) String() string {
	if j < 0 || j >= NumJoints {
		return "unknown"
	}
	return jointNames[j]
}

// Keypoint is one joint's estimated position in normalised image
// coordinates, plus the detector's confidence for that estimate.
type Keypoint struct {
	X          float64 `json:"x"`          // [0,1], left → right
	Y          float64 `json:"y"`          // [0,1], top → bottom
	Visibility float64 `json:"visibility"` // [0,1] detector confidence
}

// Visible reports whether the keypoint's confidence meets the threshold.
func (k Keypoint) Visible(threshold float64) bool {
	return k.Visibility >= threshold
}

// Frame is one skeleton snapshot with its capture timestamp.
// Timestamps are monotonic seconds; callers must supply strictly
// increasing values.
type Frame struct {
	Keypoints []Keypoint `json:"keypoints"`
	Timestamp float64    `json:"timestamp"`
}

// Valid reports whether the frame carries a full skeleton.
// Detectors signal "no detection" with an empty keypoint list.
func (f Frame) Valid() bool {
	return len(f.Keypoints) == int(NumJoints)
}

// Midpoint returns the centre of two keypoints. Visibility of the result is
// the lesser of the two inputs so a half-occluded pair stays untrusted.
func Midpoint(a, b Keypoint) Keypoint {
	vis := a.Visibility
	if b.Visibility < vis {
		vis = b.Visibility
	}
	return Keypoint{
		X:          (a.X + b.X) / 2,
		Y:          (a.Y + b.Y) / 2,
		Visibility: vis,
	}
}

// HipCenter returns the midpoint of the two hip keypoints.
func (f Frame) HipCenter() Keypoint {
	return Midpoint(f.Keypoints[LeftHip], f.Keypoints[RightHip])
}

// ShoulderCenter returns the midpoint of the two shoulder keypoints.
func (f Frame) ShoulderCenter() Keypoint {
	return Midpoint(f.Keypoints[LeftShoulder], f.Keypoints[RightShoulder])
}
