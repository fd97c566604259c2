package interp

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"testing"
)

func solidFrame(c color.RGBA, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{c}, image.Point{}, draw.Src)
	return img
}

// averageInfer stands in for the model: the midpoint of two tensors.
func averageInfer(a, b []float32) ([]float32, error) {
	out := make([]float32, len(a))
	for i := range a {
		out[i] = (a[i] + b[i]) / 2
	}
	return out, nil
}

func TestInterpolateDoublesSequence(t *testing.T) {
	engine := NewEngine(Config{TensorSide: 16})
	engine.infer = averageInfer

	frames := []*image.RGBA{
		solidFrame(color.RGBA{255, 0, 0, 255}, 64, 64),
		solidFrame(color.RGBA{0, 255, 0, 255}, 64, 64),
		solidFrame(color.RGBA{0, 0, 255, 255}, 64, 64),
		solidFrame(color.RGBA{255, 255, 255, 255}, 64, 64),
	}

	var progressCalls []string
	out, err := engine.Interpolate(context.Background(), frames, func(pair, total int) {
		progressCalls = append(progressCalls, fmt.Sprintf("%d/%d", pair, total))
	})
	if err != nil {
		t.Fatalf("Interpolate error: %v", err)
	}

	if len(out) != 2*len(frames)-1 {
		t.Fatalf("sequence length %d, want %d", len(out), 2*len(frames)-1)
	}
	for i := 0; i < len(frames); i++ {
		if out[2*i] != frames[i] {
			t.Fatalf("even index %d is not the original frame", 2*i)
		}
	}
	for i := 1; i < len(out); i += 2 {
		if b := out[i].Bounds(); b.Dx() != 64 || b.Dy() != 64 {
			t.Fatalf("synthetic frame %d not at original resolution: %v", i, b)
		}
		for j := range frames {
			if out[i] == frames[j] {
				t.Fatalf("odd index %d aliases original frame %d", i, j)
			}
		}
	}
	if len(progressCalls) != 3 || progressCalls[0] != "1/3" || progressCalls[2] != "3/3" {
		t.Fatalf("unexpected progress calls: %v", progressCalls)
	}

	// Midpoint of solid red and solid green is yellow-ish at half intensity.
	mid := out[1].RGBAAt(32, 32)
	if mid.R < 120 || mid.R > 135 || mid.G < 120 || mid.G > 135 || mid.B > 8 {
		t.Fatalf("unexpected midpoint color %v", mid)
	}
}

func TestInterpolateSingleFrameIsIdentity(t *testing.T) {
	engine := NewEngine(Config{})
	engine.infer = averageInfer
	frames := []*image.RGBA{solidFrame(color.RGBA{1, 2, 3, 255}, 8, 8)}
	out, err := engine.Interpolate(context.Background(), frames, nil)
	if err != nil {
		t.Fatalf("Interpolate error: %v", err)
	}
	if len(out) != 1 || out[0] != frames[0] {
		t.Fatalf("single-frame sequence changed: %v", out)
	}
}

func TestInterpolateInferenceFailureAborts(t *testing.T) {
	engine := NewEngine(Config{TensorSide: 8})
	calls := 0
	engine.infer = func(a, b []float32) ([]float32, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("backend exploded")
		}
		return averageInfer(a, b)
	}
	frames := []*image.RGBA{
		solidFrame(color.RGBA{10, 0, 0, 255}, 8, 8),
		solidFrame(color.RGBA{20, 0, 0, 255}, 8, 8),
		solidFrame(color.RGBA{30, 0, 0, 255}, 8, 8),
	}
	_, err := engine.Interpolate(context.Background(), frames, nil)
	if !errors.Is(err, ErrInference) {
		t.Fatalf("expected ErrInference, got %v", err)
	}
}

func TestInterpolateWithoutModelPathUnavailable(t *testing.T) {
	engine := NewEngine(Config{})
	frames := []*image.RGBA{
		solidFrame(color.RGBA{}, 8, 8),
		solidFrame(color.RGBA{}, 8, 8),
	}
	_, err := engine.Interpolate(context.Background(), frames, nil)
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestInterpolateHonorsContext(t *testing.T) {
	engine := NewEngine(Config{TensorSide: 8})
	engine.infer = averageInfer
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	frames := []*image.RGBA{
		solidFrame(color.RGBA{}, 8, 8),
		solidFrame(color.RGBA{}, 8, 8),
	}
	if _, err := engine.Interpolate(ctx, frames, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
