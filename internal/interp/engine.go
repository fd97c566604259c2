package interp

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	// ErrModelUnavailable means the inference backend is not ready. The
	// caller may retry; no state is corrupted.
	ErrModelUnavailable = errors.New("interpolation model unavailable")

	// ErrInference means a pairwise inference call failed. The attempt is
	// aborted; the original sequence stays valid.
	ErrInference = errors.New("interpolation inference failed")
)

// Config describes the pretrained frame-interpolation model. Input and
// output names follow the exported graph; defaults fit a FILM-style export.
type Config struct {
	ModelPath   string
	LibraryPath string
	TensorSide  int
	InputA      string
	InputB      string
	Output      string
}

// Engine runs pairwise midpoint inference over a frame sequence. It owns a
// single lazily created session handle, cached across calls.
type Engine struct {
	cfg Config

	mu       sync.Mutex
	session  *ort.DynamicAdvancedSession
	envReady bool

	// infer overrides the session call in tests.
	infer func(a, b []float32) ([]float32, error)
}

func NewEngine(cfg Config) *Engine {
	if cfg.TensorSide < 1 {
		cfg.TensorSide = 256
	}
	if cfg.InputA == "" {
		cfg.InputA = "frame0"
	}
	if cfg.InputB == "" {
		cfg.InputB = "frame1"
	}
	if cfg.Output == "" {
		cfg.Output = "midpoint"
	}
	return &Engine{cfg: cfg}
}

// Interpolate emits one synthetic in-between frame per adjacent pair,
// returning a sequence of length 2*len(frames)-1 with the originals at even
// indices. Input frames are never mutated, so discarding the result always
// restores the original sequence. progress is called once per pair.
func (e *Engine) Interpolate(ctx context.Context, frames []*image.RGBA, progress func(pair, total int)) ([]*image.RGBA, error) {
	if len(frames) < 2 {
		return append([]*image.RGBA(nil), frames...), nil
	}

	infer := e.infer
	if infer == nil {
		if err := e.ensureSession(); err != nil {
			return nil, err
		}
		infer = e.runInference
	}

	side := e.cfg.TensorSide
	pairs := len(frames) - 1
	out := make([]*image.RGBA, 0, 2*len(frames)-1)
	for i := 0; i < pairs; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if progress != nil {
			progress(i+1, pairs)
		}

		a := imageToTensor(frames[i], side)
		b := imageToTensor(frames[i+1], side)
		mid, err := infer(a, b)
		if err != nil {
			return nil, fmt.Errorf("%w: pair %d/%d: %v", ErrInference, i+1, pairs, err)
		}

		bounds := frames[i].Bounds()
		synthetic, err := tensorToImage(mid, side, bounds.Dx(), bounds.Dy())
		if err != nil {
			return nil, fmt.Errorf("%w: pair %d/%d: %v", ErrInference, i+1, pairs, err)
		}
		out = append(out, frames[i], synthetic)
	}
	out = append(out, frames[len(frames)-1])
	return out, nil
}

// ensureSession initializes the runtime and loads the model on first use.
// Failures are returned without being cached, so a retry after installing
// the model or the runtime library can succeed.
func (e *Engine) ensureSession() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		return nil
	}
	if e.cfg.ModelPath == "" {
		return fmt.Errorf("%w: no model path configured", ErrModelUnavailable)
	}
	if !e.envReady {
		if e.cfg.LibraryPath != "" {
			ort.SetSharedLibraryPath(e.cfg.LibraryPath)
		}
		if !ort.IsInitialized() {
			if err := ort.InitializeEnvironment(); err != nil {
				return fmt.Errorf("%w: initialize onnxruntime: %v", ErrModelUnavailable, err)
			}
		}
		e.envReady = true
	}
	session, err := ort.NewDynamicAdvancedSession(
		e.cfg.ModelPath,
		[]string{e.cfg.InputA, e.cfg.InputB},
		[]string{e.cfg.Output},
		nil,
	)
	if err != nil {
		return fmt.Errorf("%w: load %s: %v", ErrModelUnavailable, e.cfg.ModelPath, err)
	}
	e.session = session
	return nil
}

func (e *Engine) runInference(a, b []float32) ([]float32, error) {
	e.mu.Lock()
	session := e.session
	e.mu.Unlock()
	if session == nil {
		return nil, ErrModelUnavailable
	}

	side := int64(e.cfg.TensorSide)
	shape := ort.NewShape(1, 3, side, side)
	inputA, err := ort.NewTensor(shape, a)
	if err != nil {
		return nil, fmt.Errorf("input tensor: %w", err)
	}
	defer inputA.Destroy()
	inputB, err := ort.NewTensor(shape, b)
	if err != nil {
		return nil, fmt.Errorf("input tensor: %w", err)
	}
	defer inputB.Destroy()
	output, err := ort.NewEmptyTensor[float32](shape)
	if err != nil {
		return nil, fmt.Errorf("output tensor: %w", err)
	}
	defer output.Destroy()

	if err := session.Run([]ort.Value{inputA, inputB}, []ort.Value{output}); err != nil {
		return nil, err
	}
	data := output.GetData()
	result := make([]float32, len(data))
	copy(result, data)
	return result, nil
}

// Close releases the session and the runtime environment.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.envReady {
		if destroyErr := ort.DestroyEnvironment(); err == nil {
			err = destroyErr
		}
		e.envReady = false
	}
	return err
}
