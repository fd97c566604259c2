package types

import "time"

// Asset is one spritesheet delivered by the generation service. Immutable
// once received; regeneration or post-processing replaces it wholesale.
type Asset struct {
	ID              string
	ImageBytes      []byte
	MimeType        string
	FrameDurationMs int
	FrameCount      int
	Prompt          string
	ReceivedAt      time.Time
}

// FrameRect is one grid cell in spritesheet pixel space.
type FrameRect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DetectionBox is an object box in the normalized [0,1000] space used by the
// detection service, relative to the displayed image rectangle.
type DetectionBox struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Bottom float64 `json:"bottom"`
	Right  float64 `json:"right"`
	Label  string  `json:"label"`
}

// DisplayGeometry maps bitmap pixel space onto the on-screen rectangle of a
// letterboxed image. Recomputed on every layout pass, never cached.
type DisplayGeometry struct {
	OffsetX       float64 `json:"offset_x"`
	OffsetY       float64 `json:"offset_y"`
	DisplayWidth  float64 `json:"display_width"`
	DisplayHeight float64 `json:"display_height"`
	Scale         float64 `json:"scale"`
}

// ScreenRect is a projected rectangle in display pixel space.
type ScreenRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Label  string  `json:"label,omitempty"`
}

// RawMessage is one decoded ingest message. Type is "asset" or "detections".
type RawMessage struct {
	Type  string
	Asset Asset
	Boxes []DetectionBox
}
