package overlay

import (
	"errors"

	"spriteloop-go/internal/types"
)

// ErrGeometryUnavailable means the container or bitmap has no usable size
// yet. Callers skip drawing instead of surfacing this to the user.
var ErrGeometryUnavailable = errors.New("display geometry unavailable")

// The detection service reports boxes normalized to a 0..1000 space.
const normalizedSpan = 1000.0

// ComputeDisplayGeometry fits a bitmap into a container, letterboxing on
// one axis and centering. scale is displayWidth / naturalWidth.
func ComputeDisplayGeometry(naturalW, naturalH, containerW, containerH float64) (types.DisplayGeometry, error) {
	if naturalW <= 0 || naturalH <= 0 || containerW <= 0 || containerH <= 0 {
		return types.DisplayGeometry{}, ErrGeometryUnavailable
	}

	bitmapRatio := naturalW / naturalH
	containerRatio := containerW / containerH

	var g types.DisplayGeometry
	if bitmapRatio > containerRatio {
		// Relatively wider bitmap: fill width, letterbox top and bottom.
		g.DisplayWidth = containerW
		g.DisplayHeight = containerW / bitmapRatio
		g.OffsetY = (containerH - g.DisplayHeight) / 2
	} else {
		g.DisplayHeight = containerH
		g.DisplayWidth = containerH * bitmapRatio
		g.OffsetX = (containerW - g.DisplayWidth) / 2
	}
	g.Scale = g.DisplayWidth / naturalW
	return g, nil
}

// ProjectGridCell maps a spritesheet pixel rect onto the display surface.
func ProjectGridCell(cell types.FrameRect, g types.DisplayGeometry) types.ScreenRect {
	return types.ScreenRect{
		X:      float64(cell.X)*g.Scale + g.OffsetX,
		Y:      float64(cell.Y)*g.Scale + g.OffsetY,
		Width:  float64(cell.Width) * g.Scale,
		Height: float64(cell.Height) * g.Scale,
	}
}

// ProjectDetectionBox maps a normalized box onto the display surface. Boxes
// are relative to the displayed image rectangle, not the bitmap.
func ProjectDetectionBox(box types.DetectionBox, g types.DisplayGeometry) types.ScreenRect {
	return types.ScreenRect{
		X:      box.Left/normalizedSpan*g.DisplayWidth + g.OffsetX,
		Y:      box.Top/normalizedSpan*g.DisplayHeight + g.OffsetY,
		Width:  (box.Right - box.Left) / normalizedSpan * g.DisplayWidth,
		Height: (box.Bottom - box.Top) / normalizedSpan * g.DisplayHeight,
		Label:  box.Label,
	}
}
