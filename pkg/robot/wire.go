package robot

// JSON payloads shared by the arm HTTP API and RemoteArm.

// StatusPayload is returned by GET /api/arm/status.
type StatusPayload struct {
	Status string `json:"status"`
	Joints int    `json:"joints"`
}

// JointsPayload is returned by GET /api/arm/joints.
type JointsPayload struct {
	Joints []float64 `json:"joints"`
}

// JointPayload is returned by GET /api/arm/joints/:index.
type JointPayload struct {
	Index int     `json:"index"`
	Angle float64 `json:"angle"`
}

// JointCommand is the body of POST /api/arm/joints/:index.
type JointCommand struct {
	Angle float64 `json:"angle"`
}

// OKPayload reports whether a command was accepted.
type OKPayload struct {
	OK bool `json:"ok"`
}

// LimitsPayload is returned by GET /api/arm/joints/:index/limits. When
// posted, nil fields are left unchanged.
type LimitsPayload struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// CameraPayload is returned by GET /api/arm/camera.
type CameraPayload struct {
	FocalLength float64 `json:"focal_length"`
}
