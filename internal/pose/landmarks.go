// Package pose provides pose estimation types and engine interfaces for the
// Natyam frame analysis pipeline.
package pose

// Pose landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
const (
	Nose           = 0
	LeftEyeInner   = 1
	LeftEye        = 2
	LeftEyeOuter   = 3
	RightEyeInner  = 4
	RightEye       = 5
	RightEyeOuter  = 6
	LeftEar        = 7
	RightEar       = 8
	MouthLeft      = 9
	MouthRight     = 10
	LeftShoulder   = 11
	RightShoulder  = 12
	LeftElbow      = 13
	RightElbow     = 14
	LeftWrist      = 15
	RightWrist     = 16
	LeftPinky      = 17
	RightPinky     = 18
	LeftIndex      = 19
	RightIndex     = 20
	LeftThumb      = 21
	RightThumb     = 22
	LeftHip        = 23
	RightHip       = 24
	LeftKnee       = 25
	RightKnee      = 26
	LeftAnkle      = 27
	RightAnkle     = 28
	LeftHeel       = 29
	RightHeel      = 30
	LeftFootIndex  = 31
	RightFootIndex = 32
	NumLandmarks   = 33
)

// landmarkNames maps landmark indices to their MediaPipe names.
var landmarkNames = [NumLandmarks]string{
	"nose", "left_eye_inner", "left_eye", "left_eye_outer",
	"right_eye_inner", "right_eye", "right_eye_outer",
	"left_ear", "right_ear", "mouth_left", "mouth_right",
	"left_shoulder", "right_shoulder", "left_elbow", "right_elbow",
	"left_wrist", "right_wrist", "left_pinky", "right_pinky",
	"left_index", "right_index", "left_thumb", "right_thumb",
	"left_hip", "right_hip", "left_knee", "right_knee",
	"left_ankle", "right_ankle", "left_heel", "right_heel",
	"left_foot_index", "right_foot_index",
}

// LandmarkName returns the canonical name for a landmark index, or "unknown"
// if the index is outside the fixed topology.
func LandmarkName(index int) string {
	if index < 0 || index >= NumLandmarks {
		return "unknown"
	}
	return landmarkNames[index]
}

// Landmark is a single detected anatomical point in normalized [0,1]x[0,1]
// image coordinates with a per-point confidence score.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
	Type       int     `json:"type"`
}

// Connection is an edge between two landmark indices used for skeletal
// visualization.
type Connection struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// skeleton is the fixed anatomical pose topology (MediaPipe convention).
var skeleton = []Connection{
	{Nose, LeftEyeInner}, {LeftEyeInner, LeftEye}, {LeftEye, LeftEyeOuter},
	{LeftEyeOuter, LeftEar}, {Nose, RightEyeInner}, {RightEyeInner, RightEye},
	{RightEye, RightEyeOuter}, {RightEyeOuter, RightEar},
	{MouthLeft, MouthRight},
	{LeftShoulder, RightShoulder},
	{LeftShoulder, LeftElbow}, {LeftElbow, LeftWrist},
	{LeftWrist, LeftPinky}, {LeftWrist, LeftIndex}, {LeftWrist, LeftThumb},
	{LeftPinky, LeftIndex},
	{RightShoulder, RightElbow}, {RightElbow, RightWrist},
	{RightWrist, RightPinky}, {RightWrist, RightIndex}, {RightWrist, RightThumb},
	{RightPinky, RightIndex},
	{LeftShoulder, LeftHip}, {RightShoulder, RightHip}, {LeftHip, RightHip},
	{LeftHip, LeftKnee}, {LeftKnee, LeftAnkle},
	{LeftAnkle, LeftHeel}, {LeftHeel, LeftFootIndex}, {LeftAnkle, LeftFootIndex},
	{RightHip, RightKnee}, {RightKnee, RightAnkle},
	{RightAnkle, RightHeel}, {RightHeel, RightFootIndex}, {RightAnkle, RightFootIndex},
}

// Skeleton returns a copy of the fixed pose connection topology.
func Skeleton() []Connection {
	out := make([]Connection, len(skeleton))
	copy(out, skeleton)
	return out
}

// Result is the immutable outcome of one successful inference: the detected
// landmarks plus the skeleton connections that are valid for them.
type Result struct {
	Landmarks   []Landmark   `json:"landmarks"`
	Connections []Connection `json:"connections"`
	TimestampMs int64        `json:"timestamp_ms"`
}

// NewResult builds a Result from detected landmarks. Connections are derived
// from the fixed skeleton topology; any connection whose endpoint index falls
// outside the landmark sequence is silently omitted.
func NewResult(landmarks []Landmark, timestampMs int64) *Result {
	return newResultWithTopology(landmarks, skeleton, timestampMs)
}

func newResultWithTopology(landmarks []Landmark, topology []Connection, timestampMs int64) *Result {
	n := len(landmarks)
	connections := make([]Connection, 0, len(topology))
	for _, c := range topology {
		if c.Start < 0 || c.Start >= n || c.End < 0 || c.End >= n {
			continue
		}
		connections = append(connections, c)
	}

	return &Result{
		Landmarks:   landmarks,
		Connections: connections,
		TimestampMs: timestampMs,
	}
}
