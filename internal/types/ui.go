package types

// FramePush is sent to websocket clients as a binary CBOR message each time
// the scheduler selects a new frame.
type FramePush struct {
	Type     string `cbor:"type"`
	Index    int    `cbor:"index"`
	Total    int    `cbor:"total"`
	ViewMode string `cbor:"view_mode"`
	Mime     string `cbor:"mime"`
	PNG      []byte `cbor:"png"`
}

// OverlayUpdate carries projected overlay rectangles for one layout pass.
type OverlayUpdate struct {
	Type     string          `json:"type"`
	Geometry DisplayGeometry `json:"geometry"`
	Cells    []ScreenRect    `json:"cells"`
	Boxes    []ScreenRect    `json:"boxes"`
}

// ProgressUpdate is a human-readable pipeline progress line.
type ProgressUpdate struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
