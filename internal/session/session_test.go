package session

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"testing"
	"time"

	"spriteloop-go/internal/slicer"
	"spriteloop-go/internal/types"
)

type fakeInterp struct {
	block chan struct{}
	err   error
}

func (f *fakeInterp) Interpolate(ctx context.Context, frames []*image.RGBA, progress func(pair, total int)) ([]*image.RGBA, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*image.RGBA, 0, 2*len(frames)-1)
	for i := 0; i < len(frames)-1; i++ {
		if progress != nil {
			progress(i+1, len(frames)-1)
		}
		synthetic := image.NewRGBA(frames[i].Bounds())
		out = append(out, frames[i], synthetic)
	}
	out = append(out, frames[len(frames)-1])
	return out, nil
}

func sheetAsset(t *testing.T, frameCount, side, durationMs int) types.Asset {
	t.Helper()
	sheet := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(sheet, sheet.Bounds(), &image.Uniform{color.RGBA{80, 10, 120, 255}}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, sheet); err != nil {
		t.Fatalf("encode sheet: %v", err)
	}
	return types.Asset{
		ID:              "asset-1",
		ImageBytes:      buf.Bytes(),
		MimeType:        "image/png",
		FrameDurationMs: durationMs,
		FrameCount:      frameCount,
		ReceivedAt:      time.Now(),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestHandleAssetSlicesAndStartsPlayback(t *testing.T) {
	messages := make(chan any, 64)
	c := New(Config{Workers: 2}, &fakeInterp{}, messages)
	defer c.Stop()

	if err := c.HandleAsset(sheetAsset(t, 9, 900, 150)); err != nil {
		t.Fatalf("HandleAsset error: %v", err)
	}
	frames, duration, err := c.CurrentSequence()
	if err != nil {
		t.Fatalf("CurrentSequence error: %v", err)
	}
	if len(frames) != 9 {
		t.Fatalf("frame count %d, want 9", len(frames))
	}
	if duration != 150*time.Millisecond {
		t.Fatalf("duration %v, want 150ms", duration)
	}
}

func TestHandleAssetRejectsBadFrameCount(t *testing.T) {
	messages := make(chan any, 64)
	c := New(Config{Workers: 1}, &fakeInterp{}, messages)
	defer c.Stop()

	err := c.HandleAsset(sheetAsset(t, 5, 500, 120))
	if !errors.Is(err, slicer.ErrInvalidLayout) {
		t.Fatalf("expected ErrInvalidLayout, got %v", err)
	}
	if _, _, err := c.CurrentSequence(); !errors.Is(err, ErrNoAsset) {
		t.Fatalf("expected empty sequence after bad asset, got %v", err)
	}
}

func TestInterpolationDoublesThenDiscardRestoresOriginal(t *testing.T) {
	messages := make(chan any, 256)
	c := New(Config{Workers: 2}, &fakeInterp{}, messages)
	defer c.Stop()

	if err := c.HandleAsset(sheetAsset(t, 4, 400, 200)); err != nil {
		t.Fatalf("HandleAsset error: %v", err)
	}
	original, _, err := c.CurrentSequence()
	if err != nil {
		t.Fatalf("CurrentSequence error: %v", err)
	}

	c.SetInterpolation(true)
	waitFor(t, func() bool {
		status := c.Status()
		return status["interpolation_active"] == true
	})

	frames, duration, err := c.CurrentSequence()
	if err != nil {
		t.Fatalf("CurrentSequence error: %v", err)
	}
	if len(frames) != 7 {
		t.Fatalf("interpolated length %d, want 7", len(frames))
	}
	if duration != 100*time.Millisecond {
		t.Fatalf("effective duration %v, want 100ms", duration)
	}
	for i := 0; i < 4; i++ {
		if frames[2*i] != original[i] {
			t.Fatalf("even index %d is not the original frame", 2*i)
		}
	}

	c.Reset()
	restored, duration, err := c.CurrentSequence()
	if err != nil {
		t.Fatalf("CurrentSequence error: %v", err)
	}
	if len(restored) != len(original) {
		t.Fatalf("restored length %d, want %d", len(restored), len(original))
	}
	for i := range original {
		if restored[i] != original[i] {
			t.Fatalf("restored frame %d differs from original", i)
		}
	}
	if duration != 200*time.Millisecond {
		t.Fatalf("restored duration %v, want 200ms", duration)
	}
}

func TestStaleInterpolationResultDiscarded(t *testing.T) {
	messages := make(chan any, 256)
	fake := &fakeInterp{block: make(chan struct{})}
	c := New(Config{Workers: 2}, fake, messages)
	defer c.Stop()

	if err := c.HandleAsset(sheetAsset(t, 4, 400, 200)); err != nil {
		t.Fatalf("HandleAsset error: %v", err)
	}
	c.SetInterpolation(true)
	waitFor(t, func() bool { return c.Status()["interpolation_running"] == true })

	// A newer asset supersedes the in-flight run before it completes.
	if err := c.HandleAsset(sheetAsset(t, 9, 900, 100)); err != nil {
		t.Fatalf("HandleAsset error: %v", err)
	}
	close(fake.block)
	waitFor(t, func() bool { return c.Status()["interpolation_running"] == false })

	if c.Status()["interpolation_active"] == true {
		t.Fatal("stale interpolation result was committed")
	}
	frames, _, err := c.CurrentSequence()
	if err != nil {
		t.Fatalf("CurrentSequence error: %v", err)
	}
	if len(frames) != 9 {
		t.Fatalf("active sequence length %d, want 9", len(frames))
	}
}

func TestInterpolationFailureKeepsOriginalPlaying(t *testing.T) {
	messages := make(chan any, 256)
	fake := &fakeInterp{err: errors.New("model exploded")}
	c := New(Config{Workers: 1}, fake, messages)
	defer c.Stop()

	if err := c.HandleAsset(sheetAsset(t, 4, 400, 160)); err != nil {
		t.Fatalf("HandleAsset error: %v", err)
	}
	c.SetInterpolation(true)
	waitFor(t, func() bool {
		status := c.Status()
		return status["interpolation_running"] == false && status["last_error"] != nil
	})

	frames, duration, err := c.CurrentSequence()
	if err != nil {
		t.Fatalf("CurrentSequence error: %v", err)
	}
	if len(frames) != 4 || duration != 160*time.Millisecond {
		t.Fatalf("original sequence disturbed: %d frames at %v", len(frames), duration)
	}
}

func TestProjectOverlayFullBox(t *testing.T) {
	messages := make(chan any, 64)
	c := New(Config{Workers: 1}, &fakeInterp{}, messages)
	defer c.Stop()

	if err := c.HandleAsset(sheetAsset(t, 9, 600, 150)); err != nil {
		t.Fatalf("HandleAsset error: %v", err)
	}
	c.SetDetections([]types.DetectionBox{{Top: 0, Left: 0, Bottom: 1000, Right: 1000, Label: "subject"}})

	update, err := c.ProjectOverlay(800, 400)
	if err != nil {
		t.Fatalf("ProjectOverlay error: %v", err)
	}
	if len(update.Cells) != 9 {
		t.Fatalf("cell count %d, want 9", len(update.Cells))
	}
	if len(update.Boxes) != 1 {
		t.Fatalf("box count %d, want 1", len(update.Boxes))
	}
	box := update.Boxes[0]
	g := update.Geometry
	if box.X != g.OffsetX || box.Y != g.OffsetY || box.Width != g.DisplayWidth || box.Height != g.DisplayHeight {
		t.Fatalf("full box does not cover display rect: %+v vs %+v", box, g)
	}
}

func TestProjectOverlayWithoutAsset(t *testing.T) {
	c := New(Config{Workers: 1}, &fakeInterp{}, nil)
	defer c.Stop()
	if _, err := c.ProjectOverlay(800, 600); !errors.Is(err, ErrNoAsset) {
		t.Fatalf("expected ErrNoAsset, got %v", err)
	}
}
