package playback

import (
	"context"
	"image"
	"sync"
	"time"
)

// Ticker abstracts the repaint callback primitive: the scheduler re-arms it
// only after the current tick has been painted, so slow paints never stack.
type Ticker interface {
	C() <-chan time.Time
	Reset(d time.Duration)
	Stop()
}

type timerTicker struct {
	t *time.Timer
}

func newTimerTicker(d time.Duration) Ticker {
	return &timerTicker{t: time.NewTimer(d)}
}

func (t *timerTicker) C() <-chan time.Time   { return t.t.C }
func (t *timerTicker) Reset(d time.Duration) { t.t.Reset(d) }
func (t *timerTicker) Stop()                 { t.t.Stop() }

// PaintFunc receives the selected frame whenever the displayed index
// changes. It runs on the scheduler goroutine.
type PaintFunc func(index int, frame *image.RGBA)

// Scheduler drives a continuous repaint loop, selecting the frame to show
// from elapsed wall-clock time rather than a frame counter.
type Scheduler struct {
	paint     PaintFunc
	interval  time.Duration
	newTicker func(time.Duration) Ticker

	mu            sync.Mutex
	frames        []*image.RGBA
	frameDuration time.Duration
	origin        time.Time
	hasOrigin     bool
	lastIndex     int
	painted       bool
	cancel        context.CancelFunc
}

type Option func(*Scheduler)

// WithTickInterval sets how often the loop wakes up to reselect a frame.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

// WithTicker replaces the tick source; tests inject a manual ticker.
func WithTicker(fn func(time.Duration) Ticker) Option {
	return func(s *Scheduler) { s.newTicker = fn }
}

func New(paint PaintFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		paint:     paint,
		interval:  16 * time.Millisecond,
		newTicker: newTimerTicker,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start replaces any running loop with a fresh one over the given sequence.
// The elapsed-time origin is captured on the first tick, never carried over
// from a previous sequence.
func (s *Scheduler) Start(frames []*image.RGBA, frameDuration time.Duration) {
	s.Stop()

	s.mu.Lock()
	s.frames = frames
	s.frameDuration = frameDuration
	s.hasOrigin = false
	s.painted = false
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(ctx)
}

// Swap atomically replaces the active sequence mid-loop and resets the
// timing origin to the next tick. The loop keeps running.
func (s *Scheduler) Swap(frames []*image.RGBA, frameDuration time.Duration) {
	s.mu.Lock()
	s.frames = frames
	s.frameDuration = frameDuration
	s.hasOrigin = false
	s.painted = false
	s.mu.Unlock()
}

// Stop cancels the loop and any pending repaint.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) run(ctx context.Context) {
	ticker := s.newTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			s.tick(now)
			ticker.Reset(s.interval)
		}
	}
}

func (s *Scheduler) tick(now time.Time) {
	s.mu.Lock()
	frames := s.frames
	d := s.frameDuration
	if len(frames) == 0 || d <= 0 {
		s.mu.Unlock()
		return
	}
	if !s.hasOrigin {
		s.origin = now
		s.hasOrigin = true
	}
	index := IndexAt(now.Sub(s.origin), d, len(frames))
	repaint := !s.painted || index != s.lastIndex
	s.lastIndex = index
	s.painted = true
	frame := frames[index]
	s.mu.Unlock()

	if repaint && s.paint != nil {
		s.paint(index, frame)
	}
}

// IndexAt selects the frame for an elapsed duration: the loop is periodic
// over frameCount*frameDuration and the index is elapsed/frameDuration.
func IndexAt(elapsed, frameDuration time.Duration, frameCount int) int {
	if frameCount <= 0 || frameDuration <= 0 {
		return 0
	}
	loop := frameDuration * time.Duration(frameCount)
	elapsed %= loop
	if elapsed < 0 {
		elapsed += loop
	}
	index := int(elapsed / frameDuration)
	if index >= frameCount {
		index = frameCount - 1
	}
	return index
}
