package export

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Metadata is written next to exported frames for the share flow.
type Metadata struct {
	AssetID         string `json:"asset_id"`
	Prompt          string `json:"prompt,omitempty"`
	FrameCount      int    `json:"frame_count"`
	FrameDurationMs int64  `json:"frame_duration_ms"`
	Interpolated    bool   `json:"interpolated"`
	ExportedAt      string `json:"exported_at"`
}

// WriteGIF encodes the sequence as a looping animated GIF. GIF delays are
// in 10ms units; sub-10ms effective durations round up to one unit.
func WriteGIF(w io.Writer, frames []*image.RGBA, perFrame time.Duration) error {
	if len(frames) == 0 {
		return fmt.Errorf("no frames to export")
	}
	delay := int(perFrame.Milliseconds() / 10)
	if delay < 1 {
		delay = 1
	}

	anim := &gif.GIF{LoopCount: 0}
	for _, frame := range frames {
		paletted := image.NewPaletted(frame.Bounds(), palette.Plan9)
		draw.FloydSteinberg.Draw(paletted, frame.Bounds(), frame, frame.Bounds().Min)
		anim.Image = append(anim.Image, paletted)
		anim.Delay = append(anim.Delay, delay)
	}
	return gif.EncodeAll(w, anim)
}

// WriteFrames dumps each frame as a numbered PNG plus a metadata sidecar
// into a run-timestamped directory and returns that directory.
func WriteFrames(exportDir string, frames []*image.RGBA, meta Metadata) (string, error) {
	dir := filepath.Join(exportDir, Timestamp())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	for i, frame := range frames {
		path := filepath.Join(dir, fmt.Sprintf("frame_%03d.png", i))
		f, err := os.Create(path)
		if err != nil {
			return "", err
		}
		if err := png.Encode(f, frame); err != nil {
			_ = f.Close()
			return "", fmt.Errorf("encode %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return "", err
		}
	}

	meta.ExportedAt = time.Now().Format(time.RFC3339)
	meta.FrameCount = len(frames)
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), data, 0o644); err != nil {
		return "", err
	}
	return dir, nil
}

func Timestamp() string {
	return time.Now().Format("20060102_150405")
}
