package simulator

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"math/rand"
	"time"

	"spriteloop-go/internal/types"
)

// Stream emits synthetic spritesheet assets so the pipeline can run without
// the generation service: each sheet is a square grid of cells with a dot
// orbiting the cell center, one step per frame. A detections message with a
// box around the orbit follows every asset.
func Stream(ctx context.Context, frameCount, sheetSide, frameDurationMs int, assetEvery time.Duration) <-chan types.RawMessage {
	out := make(chan types.RawMessage)
	go func() {
		defer close(out)
		if assetEvery <= 0 {
			assetEvery = 10 * time.Second
		}
		ticker := time.NewTicker(assetEvery)
		defer ticker.Stop()

		emit := func() bool {
			asset := makeAsset(frameCount, sheetSide, frameDurationMs)
			select {
			case <-ctx.Done():
				return false
			case out <- types.RawMessage{Type: "asset", Asset: asset}:
			}
			select {
			case <-ctx.Done():
				return false
			case out <- types.RawMessage{Type: "detections", Boxes: orbitBoxes()}:
			}
			return true
		}

		if !emit() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !emit() {
					return
				}
			}
		}
	}()
	return out
}

func makeAsset(frameCount, sheetSide, frameDurationMs int) types.Asset {
	gridDim := int(math.Sqrt(float64(frameCount)))
	if gridDim < 1 {
		gridDim = 2
		frameCount = 4
	}
	cell := sheetSide / gridDim
	sheet := image.NewRGBA(image.Rect(0, 0, sheetSide, sheetSide))

	background := color.RGBA{
		R: uint8(40 + rand.Intn(60)),
		G: uint8(40 + rand.Intn(60)),
		B: uint8(80 + rand.Intn(100)),
		A: 255,
	}
	dot := color.RGBA{R: 255, G: uint8(120 + rand.Intn(120)), B: 60, A: 255}
	draw.Draw(sheet, sheet.Bounds(), &image.Uniform{background}, image.Point{}, draw.Src)

	radius := float64(cell) / 4
	dotR := cell / 10
	if dotR < 2 {
		dotR = 2
	}
	for i := 0; i < frameCount; i++ {
		col := i % gridDim
		row := i / gridDim
		angle := 2 * math.Pi * float64(i) / float64(frameCount)
		cx := col*cell + cell/2 + int(radius*math.Cos(angle))
		cy := row*cell + cell/2 + int(radius*math.Sin(angle))
		fillCircle(sheet, cx, cy, dotR, dot)
	}

	var buf bytes.Buffer
	_ = png.Encode(&buf, sheet)
	return types.Asset{
		ImageBytes:      buf.Bytes(),
		MimeType:        "image/png",
		FrameDurationMs: frameDurationMs,
		FrameCount:      frameCount,
		Prompt:          "simulated orbit",
		ReceivedAt:      time.Now(),
	}
}

func fillCircle(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			dx := x - cx
			dy := y - cy
			if dx*dx+dy*dy <= r*r && image.Pt(x, y).In(img.Bounds()) {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

// orbitBoxes describes the region the dot moves through, in the detection
// service's normalized 0..1000 space.
func orbitBoxes() []types.DetectionBox {
	return []types.DetectionBox{
		{Top: 250, Left: 250, Bottom: 750, Right: 750, Label: "subject"},
	}
}
