package slicer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"spriteloop-go/internal/types"
)

// ErrInvalidLayout means the requested frame count does not describe a
// square grid over the sheet, or the global cell size is non-positive.
var ErrInvalidLayout = errors.New("invalid spritesheet layout")

// Generated sheets commonly smear a few pixels across grid lines, so each
// cell is sampled inset by this many pixels per edge and stretched back to
// the full cell size.
const bleedInset = 2

// DecodeSheet decodes spritesheet bytes into a bitmap. PNG, JPEG and WebP
// are registered; anything else fails with the codec's error.
func DecodeSheet(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode spritesheet: %w", err)
	}
	return img, nil
}

// Layout computes the row-major grid rects for a frame count over the given
// sheet bounds. Fails with ErrInvalidLayout before any pixel work when the
// count has no integer square root or a cell dimension is <= 0.
func Layout(bounds image.Rectangle, frameCount int) ([]types.FrameRect, error) {
	gridDim, err := gridDimension(frameCount)
	if err != nil {
		return nil, err
	}
	cellW := bounds.Dx() / gridDim
	cellH := bounds.Dy() / gridDim
	if cellW <= 0 || cellH <= 0 {
		return nil, fmt.Errorf("%w: %dx%d sheet cannot hold a %dx%d grid",
			ErrInvalidLayout, bounds.Dx(), bounds.Dy(), gridDim, gridDim)
	}
	rects := make([]types.FrameRect, frameCount)
	for i := 0; i < frameCount; i++ {
		col := i % gridDim
		row := i / gridDim
		rects[i] = types.FrameRect{
			X:      col * cellW,
			Y:      row * cellH,
			Width:  cellW,
			Height: cellH,
		}
	}
	return rects, nil
}

// Slice extracts frameCount frames from the sheet in row-major order.
// Cells are extracted concurrently over at most workers goroutines and
// joined before the sequence is returned; a failed cell fails the batch.
func Slice(sheet image.Image, frameCount, workers int) ([]*image.RGBA, error) {
	rects, err := Layout(sheet.Bounds(), frameCount)
	if err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}
	if workers > frameCount {
		workers = frameCount
	}

	frames := make([]*image.RGBA, frameCount)
	errs := make([]error, frameCount)
	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				frames[i], errs[i] = extractCell(sheet, rects[i])
			}
		}()
	}
	for i := range rects {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("extract cell %d: %w", i, err)
		}
	}
	return frames, nil
}

// extractCell resamples one inset source rect up to the full cell size. A
// cell too small to survive the inset resolves to a 1x1 transparent
// placeholder so one bad cell does not blank the whole animation.
func extractCell(sheet image.Image, cell types.FrameRect) (*image.RGBA, error) {
	srcW := cell.Width - 2*bleedInset
	srcH := cell.Height - 2*bleedInset
	if srcW <= 0 || srcH <= 0 {
		return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
	}

	origin := sheet.Bounds().Min
	src := image.Rect(
		origin.X+cell.X+bleedInset,
		origin.Y+cell.Y+bleedInset,
		origin.X+cell.X+cell.Width-bleedInset,
		origin.Y+cell.Y+cell.Height-bleedInset,
	)
	if !src.In(sheet.Bounds()) {
		return nil, fmt.Errorf("cell %v outside sheet bounds %v", src, sheet.Bounds())
	}

	dst := image.NewRGBA(image.Rect(0, 0, cell.Width, cell.Height))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), sheet, src, xdraw.Src, nil)
	return dst, nil
}

func gridDimension(frameCount int) (int, error) {
	if frameCount < 1 {
		return 0, fmt.Errorf("%w: frame count %d", ErrInvalidLayout, frameCount)
	}
	root := int(math.Sqrt(float64(frameCount)))
	if root*root != frameCount {
		return 0, fmt.Errorf("%w: frame count %d has no integer square root",
			ErrInvalidLayout, frameCount)
	}
	return root, nil
}
