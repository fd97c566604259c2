package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sync"
	"time"

	"spriteloop-go/internal/overlay"
	"spriteloop-go/internal/playback"
	"spriteloop-go/internal/slicer"
	"spriteloop-go/internal/types"
)

const (
	ViewPlayback = "playback"
	ViewSheet    = "sheet"

	minFrameDurationMs = 80
	maxFrameDurationMs = 2000
)

// ErrNoAsset means no spritesheet has been received yet.
var ErrNoAsset = errors.New("no active asset")

// Interpolator produces the doubled frame sequence. *interp.Engine
// satisfies it; tests substitute a fake.
type Interpolator interface {
	Interpolate(ctx context.Context, frames []*image.RGBA, progress func(pair, total int)) ([]*image.RGBA, error)
}

type Config struct {
	Workers      int
	TickInterval time.Duration
}

// Controller owns the slicing, interpolation and playback of the current
// asset and publishes UI messages for the websocket server.
type Controller struct {
	cfg      Config
	engine   Interpolator
	messages chan<- any
	sched    *playback.Scheduler
	ctx      context.Context
	cancel   context.CancelFunc

	mu            sync.Mutex
	asset         *types.Asset
	sheet         image.Image
	layout        []types.FrameRect
	original      []*image.RGBA
	interpolated  []*image.RGBA
	interpActive  bool
	interpRunning bool
	generation    uint64
	viewMode      string
	boxes         []types.DetectionBox
	pngCache      map[*image.RGBA][]byte
	latestPush    *types.FramePush
	lastError     string
}

func New(cfg Config, engine Interpolator, messages chan<- any, opts ...playback.Option) *Controller {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 16 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:      cfg,
		engine:   engine,
		messages: messages,
		ctx:      ctx,
		cancel:   cancel,
		viewMode: ViewPlayback,
		pngCache: map[*image.RGBA][]byte{},
	}
	schedOpts := append([]playback.Option{playback.WithTickInterval(cfg.TickInterval)}, opts...)
	c.sched = playback.New(c.paint, schedOpts...)
	return c
}

// HandleAsset replaces the whole playback state with a freshly sliced
// sequence. Any in-flight interpolation result for the previous asset is
// invalidated by the generation bump.
func (c *Controller) HandleAsset(asset types.Asset) error {
	sheet, err := slicer.DecodeSheet(asset.ImageBytes)
	if err != nil {
		c.failPlayback(fmt.Sprintf("spritesheet decode failed: %v", err))
		return err
	}
	frames, err := slicer.Slice(sheet, asset.FrameCount, c.cfg.Workers)
	if err != nil {
		c.failPlayback(fmt.Sprintf("spritesheet slicing failed: %v", err))
		return err
	}
	layout, err := slicer.Layout(sheet.Bounds(), asset.FrameCount)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.generation++
	c.asset = &asset
	c.sheet = sheet
	c.layout = layout
	c.original = frames
	c.interpolated = nil
	c.interpActive = false
	c.boxes = nil
	c.pngCache = map[*image.RGBA][]byte{}
	c.latestPush = nil
	c.lastError = ""
	duration := c.effectiveDurationLocked()
	viewMode := c.viewMode
	c.mu.Unlock()

	if viewMode == ViewPlayback {
		c.sched.Start(frames, duration)
	} else {
		c.sched.Stop()
		c.pushSheet()
	}
	c.publish(c.ConfigMessage())
	return nil
}

// SetDetections stores the detection boxes for the overlay; clients ask for
// a projection with their current container size.
func (c *Controller) SetDetections(boxes []types.DetectionBox) {
	c.mu.Lock()
	c.boxes = boxes
	c.mu.Unlock()
	c.publish(map[string]any{"type": "detections", "count": len(boxes)})
}

// SetViewMode switches between playback and raw-sheet inspection. Leaving
// playback stops the repaint loop and cancels its pending tick.
func (c *Controller) SetViewMode(mode string) error {
	if mode != ViewPlayback && mode != ViewSheet {
		return fmt.Errorf("unknown view mode %q", mode)
	}
	c.mu.Lock()
	c.viewMode = mode
	frames := c.activeLocked()
	duration := c.effectiveDurationLocked()
	c.mu.Unlock()

	if mode == ViewPlayback {
		if len(frames) > 0 {
			c.sched.Start(frames, duration)
		}
	} else {
		c.sched.Stop()
		c.pushSheet()
	}
	c.publish(c.ConfigMessage())
	return nil
}

// SetInterpolation enables or disables the smoothed sequence. Enabling runs
// the engine in the background; the result is committed only if the session
// generation is unchanged when it lands, so a superseded asset's frames are
// discarded silently. Disabling restores the exact original sequence.
func (c *Controller) SetInterpolation(enable bool) {
	c.mu.Lock()
	if !enable {
		c.interpActive = false
		c.interpolated = nil
		frames := c.original
		duration := c.effectiveDurationLocked()
		viewMode := c.viewMode
		c.mu.Unlock()
		if viewMode == ViewPlayback && len(frames) > 0 {
			c.sched.Swap(frames, duration)
		}
		c.publish(c.ConfigMessage())
		return
	}

	if c.interpActive || c.interpRunning || len(c.original) < 2 {
		c.mu.Unlock()
		return
	}
	if c.interpolated != nil {
		c.interpActive = true
		frames := c.interpolated
		duration := c.effectiveDurationLocked()
		viewMode := c.viewMode
		c.mu.Unlock()
		if viewMode == ViewPlayback {
			c.sched.Swap(frames, duration)
		}
		c.publish(c.ConfigMessage())
		return
	}

	gen := c.generation
	frames := c.original
	c.interpRunning = true
	c.mu.Unlock()

	go c.runInterpolation(gen, frames)
}

func (c *Controller) runInterpolation(gen uint64, frames []*image.RGBA) {
	out, err := c.engine.Interpolate(c.ctx, frames, func(pair, total int) {
		c.publish(types.ProgressUpdate{
			Type: "progress",
			Text: fmt.Sprintf("Interpolating frame %d/%d...", pair, total),
		})
	})

	c.mu.Lock()
	c.interpRunning = false
	if gen != c.generation {
		// A newer asset arrived while inference ran; drop the result.
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.lastError = err.Error()
		c.mu.Unlock()
		c.publish(map[string]any{"type": "error", "message": err.Error()})
		return
	}
	c.interpolated = out
	c.interpActive = true
	duration := c.effectiveDurationLocked()
	viewMode := c.viewMode
	c.mu.Unlock()

	if viewMode == ViewPlayback {
		c.sched.Swap(out, duration)
	}
	c.publish(c.ConfigMessage())
}

// Reset discards the interpolated sequence and restores the original.
func (c *Controller) Reset() {
	c.SetInterpolation(false)
}

// ProjectOverlay computes grid-cell and detection-box screen rects for the
// given container. Geometry is derived fresh on every call.
func (c *Controller) ProjectOverlay(containerW, containerH float64) (types.OverlayUpdate, error) {
	c.mu.Lock()
	sheet := c.sheet
	layout := append([]types.FrameRect(nil), c.layout...)
	boxes := append([]types.DetectionBox(nil), c.boxes...)
	c.mu.Unlock()

	if sheet == nil {
		return types.OverlayUpdate{}, ErrNoAsset
	}
	bounds := sheet.Bounds()
	g, err := overlay.ComputeDisplayGeometry(
		float64(bounds.Dx()), float64(bounds.Dy()), containerW, containerH)
	if err != nil {
		return types.OverlayUpdate{}, err
	}

	update := types.OverlayUpdate{Type: "overlay", Geometry: g}
	for _, cell := range layout {
		update.Cells = append(update.Cells, overlay.ProjectGridCell(cell, g))
	}
	for _, box := range boxes {
		update.Boxes = append(update.Boxes, overlay.ProjectDetectionBox(box, g))
	}
	return update, nil
}

// CurrentSequence returns the active frames and effective per-frame
// duration, for export.
func (c *Controller) CurrentSequence() ([]*image.RGBA, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	frames := c.activeLocked()
	if len(frames) == 0 {
		return nil, 0, ErrNoAsset
	}
	return frames, c.effectiveDurationLocked(), nil
}

// ConfigMessage is the hello/config payload sent to websocket clients.
func (c *Controller) ConfigMessage() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := map[string]any{
		"type":              "config",
		"view_mode":         c.viewMode,
		"interpolated":      c.interpActive,
		"frame_count":       len(c.activeLocked()),
		"frame_duration_ms": c.effectiveDurationLocked().Milliseconds(),
	}
	if c.asset != nil {
		msg["asset_id"] = c.asset.ID
		msg["mime_type"] = c.asset.MimeType
	}
	return msg
}

// Status reports session state for the HTTP status endpoint.
func (c *Controller) Status() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	status := map[string]any{
		"view_mode":             c.viewMode,
		"interpolation_active":  c.interpActive,
		"interpolation_running": c.interpRunning,
		"original_frames":       len(c.original),
		"active_frames":         len(c.activeLocked()),
	}
	if c.asset != nil {
		status["asset_id"] = c.asset.ID
		status["asset_received_at"] = c.asset.ReceivedAt.Format(time.RFC3339)
	}
	if c.lastError != "" {
		status["last_error"] = c.lastError
	}
	return status
}

// LatestFrame returns the most recently painted push, for snapshot
// requests from newly connected clients.
func (c *Controller) LatestFrame() *types.FramePush {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latestPush
}

// Stop shuts the scheduler down and cancels any in-flight interpolation's
// commit.
func (c *Controller) Stop() {
	c.sched.Stop()
	c.cancel()
}

func (c *Controller) activeLocked() []*image.RGBA {
	if c.interpActive && c.interpolated != nil {
		return c.interpolated
	}
	return c.original
}

// effectiveDurationLocked halves the declared duration while the doubled
// sequence is active so the wall-clock loop duration stays stable.
func (c *Controller) effectiveDurationLocked() time.Duration {
	ms := minFrameDurationMs
	if c.asset != nil {
		ms = c.asset.FrameDurationMs
		if ms < minFrameDurationMs {
			ms = minFrameDurationMs
		}
		if ms > maxFrameDurationMs {
			ms = maxFrameDurationMs
		}
	}
	d := time.Duration(ms) * time.Millisecond
	if c.interpActive && c.interpolated != nil {
		d /= 2
	}
	return d
}

func (c *Controller) failPlayback(message string) {
	c.sched.Stop()
	c.mu.Lock()
	c.generation++
	c.asset = nil
	c.sheet = nil
	c.layout = nil
	c.original = nil
	c.interpolated = nil
	c.interpActive = false
	c.latestPush = nil
	c.lastError = message
	c.mu.Unlock()
	c.publish(map[string]any{"type": "error", "message": message})
}

// paint runs on the scheduler goroutine whenever the displayed index
// changes.
func (c *Controller) paint(index int, frame *image.RGBA) {
	c.mu.Lock()
	total := len(c.activeLocked())
	viewMode := c.viewMode
	encoded, ok := c.pngCache[frame]
	c.mu.Unlock()

	if !ok {
		var buf bytes.Buffer
		if err := png.Encode(&buf, frame); err != nil {
			return
		}
		encoded = buf.Bytes()
		c.mu.Lock()
		c.pngCache[frame] = encoded
		c.mu.Unlock()
	}

	push := types.FramePush{
		Type:     "frame",
		Index:    index,
		Total:    total,
		ViewMode: viewMode,
		Mime:     "image/png",
		PNG:      encoded,
	}
	c.mu.Lock()
	c.latestPush = &push
	c.mu.Unlock()
	c.publish(push)
}

// pushSheet publishes the whole spritesheet as a single frame for the
// inspection view.
func (c *Controller) pushSheet() {
	c.mu.Lock()
	asset := c.asset
	c.mu.Unlock()
	if asset == nil {
		return
	}
	push := types.FramePush{
		Type:     "frame",
		Index:    0,
		Total:    1,
		ViewMode: ViewSheet,
		Mime:     asset.MimeType,
		PNG:      asset.ImageBytes,
	}
	c.mu.Lock()
	c.latestPush = &push
	c.mu.Unlock()
	c.publish(push)
}

// publish never blocks; frame pushes are droppable under backpressure.
func (c *Controller) publish(message any) {
	if c.messages == nil {
		return
	}
	select {
	case c.messages <- message:
	default:
	}
}
