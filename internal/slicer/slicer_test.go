package slicer

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"
)

func TestLayoutNinePerfectSquare(t *testing.T) {
	rects, err := Layout(image.Rect(0, 0, 1024, 1024), 9)
	if err != nil {
		t.Fatalf("Layout error: %v", err)
	}
	if len(rects) != 9 {
		t.Fatalf("unexpected rect count: %d", len(rects))
	}
	for i, r := range rects {
		if r.Width != 341 || r.Height != 341 {
			t.Fatalf("rect %d: unexpected cell size %dx%d", i, r.Width, r.Height)
		}
		if r.X+r.Width > 1024 || r.Y+r.Height > 1024 {
			t.Fatalf("rect %d exceeds sheet bounds: %+v", i, r)
		}
		if r.X != (i%3)*341 || r.Y != (i/3)*341 {
			t.Fatalf("rect %d not row-major: %+v", i, r)
		}
	}
}

func TestLayoutRejectsNonSquareCount(t *testing.T) {
	_, err := Layout(image.Rect(0, 0, 512, 512), 5)
	if !errors.Is(err, ErrInvalidLayout) {
		t.Fatalf("expected ErrInvalidLayout, got %v", err)
	}
}

func TestLayoutRejectsDegenerateCells(t *testing.T) {
	_, err := Layout(image.Rect(0, 0, 2, 2), 16)
	if !errors.Is(err, ErrInvalidLayout) {
		t.Fatalf("expected ErrInvalidLayout, got %v", err)
	}
}

func TestSliceRowMajorColors(t *testing.T) {
	colors := []color.RGBA{
		{255, 0, 0, 255}, {0, 255, 0, 255},
		{0, 0, 255, 255}, {255, 255, 0, 255},
	}
	sheet := image.NewRGBA(image.Rect(0, 0, 128, 128))
	for i, c := range colors {
		col := i % 2
		row := i / 2
		cell := image.Rect(col*64, row*64, col*64+64, row*64+64)
		draw.Draw(sheet, cell, &image.Uniform{c}, image.Point{}, draw.Src)
	}

	frames, err := Slice(sheet, 4, 2)
	if err != nil {
		t.Fatalf("Slice error: %v", err)
	}
	if len(frames) != 4 {
		t.Fatalf("unexpected frame count: %d", len(frames))
	}
	for i, frame := range frames {
		b := frame.Bounds()
		if b.Dx() != 64 || b.Dy() != 64 {
			t.Fatalf("frame %d: unexpected size %v", i, b)
		}
		got := frame.RGBAAt(32, 32)
		if got != colors[i] {
			t.Fatalf("frame %d: center pixel %v, want %v", i, got, colors[i])
		}
	}
}

func TestSliceDegenerateCellBecomesPlaceholder(t *testing.T) {
	// 4x4 sheet with 4 frames gives 2x2 cells; the 2px inset consumes the
	// whole cell, so every frame falls back to the 1x1 placeholder.
	sheet := image.NewRGBA(image.Rect(0, 0, 4, 4))
	frames, err := Slice(sheet, 4, 1)
	if err != nil {
		t.Fatalf("Slice error: %v", err)
	}
	for i, frame := range frames {
		b := frame.Bounds()
		if b.Dx() != 1 || b.Dy() != 1 {
			t.Fatalf("frame %d: expected 1x1 placeholder, got %v", i, b)
		}
		if frame.RGBAAt(0, 0).A != 0 {
			t.Fatalf("frame %d: placeholder not transparent", i)
		}
	}
}

func TestSliceNonZeroOriginSheet(t *testing.T) {
	sheet := image.NewRGBA(image.Rect(10, 20, 10+90, 20+90))
	draw.Draw(sheet, sheet.Bounds(), &image.Uniform{color.RGBA{9, 9, 9, 255}}, image.Point{}, draw.Src)
	frames, err := Slice(sheet, 9, 3)
	if err != nil {
		t.Fatalf("Slice error: %v", err)
	}
	if len(frames) != 9 {
		t.Fatalf("unexpected frame count: %d", len(frames))
	}
	for i, frame := range frames {
		if frame.Bounds().Dx() != 30 || frame.Bounds().Dy() != 30 {
			t.Fatalf("frame %d: unexpected size %v", i, frame.Bounds())
		}
	}
}
