package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"spriteloop-go/internal/config"
	"spriteloop-go/internal/export"
	"spriteloop-go/internal/ingest"
	"spriteloop-go/internal/interp"
	"spriteloop-go/internal/server"
	"spriteloop-go/internal/session"
	"spriteloop-go/internal/simulator"
	"spriteloop-go/internal/store"
	"spriteloop-go/internal/types"
)

type metrics struct {
	rawMessages       atomic.Uint64
	assetMessages     atomic.Uint64
	detectionMessages atomic.Uint64
	assetErrors       atomic.Uint64
	storeErrors       atomic.Uint64
	exportsOK         atomic.Uint64
	exportsErr        atomic.Uint64
}

func (m *metrics) snapshot() map[string]any {
	return map[string]any{
		"raw_messages_total":       m.rawMessages.Load(),
		"asset_messages_total":     m.assetMessages.Load(),
		"detection_messages_total": m.detectionMessages.Load(),
		"asset_errors_total":       m.assetErrors.Load(),
		"store_errors_total":       m.storeErrors.Load(),
		"exports_ok_total":         m.exportsOK.Load(),
		"exports_err_total":        m.exportsErr.Load(),
	}
}

func main() {
	var (
		configPath      = flag.String("config", "", "Optional TOML config file")
		port            = flag.Int("port", 8888, "HTTP port for the web UI")
		endpoint        = flag.String("endpoint", "tcp://localhost:31001", "ZMQ endpoint for incoming assets")
		workers         = flag.Int("workers", 4, "Number of slicing workers")
		frameCount      = flag.Int("frame-count", 9, "Frames per spritesheet when the sender does not say (4, 9 or 16)")
		tickInterval    = flag.Duration("tick-interval", 16*time.Millisecond, "Playback repaint check interval")
		debug           = flag.Bool("debug", false, "Run with simulated spritesheets")
		debugAssetEvery = flag.Duration("debug-asset-every", 10*time.Second, "Interval between simulated assets")
		modelPath       = flag.String("model", "", "Path to the frame interpolation ONNX model")
		ortLibrary      = flag.String("ort-lib", "", "Path to the onnxruntime shared library")
		tensorSide      = flag.Int("tensor-side", 256, "Square tensor side used for model input")
		storePath       = flag.String("store", "", "SQLite history database path (empty disables history)")
		exportDir       = flag.String("export-dir", "exports", "Directory for frame exports")
		ingestLogEvery  = flag.Int("ingest-log-every", 100, "Log every Nth ingest decode error")
		ingestFallback  = flag.Bool("ingest-fallback", true, "Fall back to the simulator when ingest fails")
	)
	flag.Parse()

	cfg := config.Defaults()
	if err := config.Load(*configPath, &cfg); err != nil {
		log.Fatalf("config: %v", err)
	}
	// Explicit flags win over the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "endpoint":
			cfg.Endpoint = *endpoint
		case "workers":
			cfg.Workers = *workers
		case "frame-count":
			cfg.FrameCount = *frameCount
		case "tick-interval":
			cfg.TickInterval = *tickInterval
		case "debug":
			cfg.Debug = *debug
		case "debug-asset-every":
			cfg.DebugAssetEvery = *debugAssetEvery
		case "model":
			cfg.ModelPath = *modelPath
		case "ort-lib":
			cfg.OrtLibraryPath = *ortLibrary
		case "tensor-side":
			cfg.TensorSide = *tensorSide
		case "store":
			cfg.StorePath = *storePath
		case "export-dir":
			cfg.ExportDir = *exportDir
		case "ingest-log-every":
			cfg.IngestLogEvery = *ingestLogEvery
		case "ingest-fallback":
			cfg.IngestFallback = *ingestFallback
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := interp.NewEngine(interp.Config{
		ModelPath:   cfg.ModelPath,
		LibraryPath: cfg.OrtLibraryPath,
		TensorSide:  cfg.TensorSide,
		InputA:      cfg.ModelInputA,
		InputB:      cfg.ModelInputB,
		Output:      cfg.ModelOutput,
	})
	defer func() {
		if err := engine.Close(); err != nil {
			log.Printf("engine close failed: %v", err)
		}
	}()

	uiMessages := make(chan any, 16)
	controller := session.New(session.Config{
		Workers:      cfg.Workers,
		TickInterval: cfg.TickInterval,
	}, engine, uiMessages)
	defer controller.Stop()

	var history *store.Store
	if cfg.StorePath != "" {
		var err error
		history, err = store.Open(cfg.StorePath)
		if err != nil {
			log.Fatalf("open history store: %v", err)
		}
		defer history.Close()
	}

	var rawMessages <-chan types.RawMessage
	if cfg.Debug {
		rawMessages = simulator.Stream(ctx, cfg.FrameCount, 1024, 150, cfg.DebugAssetEvery)
	} else {
		out := make(chan types.RawMessage, 16)
		rawMessages = out
		go func() {
			defer close(out)
			var ingestCh <-chan types.RawMessage
			startIngest := func() {
				frames, err := ingest.StreamWithLogEvery(ctx, cfg.Endpoint, cfg.IngestLogEvery)
				if err != nil {
					if cfg.IngestFallback {
						log.Printf("failed to start ingest: %v; falling back to simulator", err)
						ingestCh = simulator.Stream(ctx, cfg.FrameCount, 1024, 150, cfg.DebugAssetEvery)
					} else {
						log.Fatalf("failed to start ingest: %v", err)
					}
				} else {
					ingestCh = frames
				}
			}
			startIngest()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-ingestCh:
					if !ok {
						startIngest()
						continue
					}
					select {
					case <-ctx.Done():
						return
					case out <- msg:
					}
				}
			}
		}()
	}

	var stats metrics

	go func() {
		for msg := range rawMessages {
			stats.rawMessages.Add(1)
			switch msg.Type {
			case "asset":
				stats.assetMessages.Add(1)
				asset := msg.Asset
				if asset.ID == "" {
					asset.ID = uuid.NewString()
				}
				if asset.ReceivedAt.IsZero() {
					asset.ReceivedAt = time.Now()
				}
				if asset.FrameCount == 0 {
					asset.FrameCount = cfg.FrameCount
				}
				if history != nil {
					if err := history.RecordAsset(asset); err != nil {
						stats.storeErrors.Add(1)
						log.Printf("record asset failed: %v", err)
					}
				}
				if err := controller.HandleAsset(asset); err != nil {
					stats.assetErrors.Add(1)
					log.Printf("asset %s rejected: %v", asset.ID, err)
					continue
				}
				log.Printf("asset %s: %d frames at %dms", asset.ID, asset.FrameCount, asset.FrameDurationMs)
			case "detections":
				stats.detectionMessages.Add(1)
				controller.SetDetections(msg.Boxes)
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snapshot := stats.snapshot()
				log.Printf("ingest stats: raw=%v assets=%v detections=%v decode_failures=%v",
					snapshot["raw_messages_total"],
					snapshot["asset_messages_total"],
					snapshot["detection_messages_total"],
					ingest.DecodeFailures(),
				)
			}
		}
	}()

	statusFn := func() map[string]any {
		status := controller.Status()
		payload := stats.snapshot()
		payload["ingest_decode_failures_total"] = ingest.DecodeFailures()
		decodeCount, decodeNanos := ingest.DecodeTiming()
		payload["ingest_decode_total"] = decodeCount
		payload["ingest_decode_nanos_total"] = decodeNanos
		status["metrics"] = payload
		if history != nil {
			if assets, exports, err := history.Counts(); err == nil {
				status["assets_recorded"] = assets
				status["exports_recorded"] = exports
			}
		}
		return status
	}

	exportFn := func(w http.ResponseWriter) error {
		frames, perFrame, err := controller.CurrentSequence()
		if err != nil {
			stats.exportsErr.Add(1)
			return err
		}
		if err := export.WriteGIF(w, frames, perFrame); err != nil {
			stats.exportsErr.Add(1)
			return err
		}
		stats.exportsOK.Add(1)
		if history != nil {
			assetID, _ := controller.ConfigMessage()["asset_id"].(string)
			if err := history.RecordExport(assetID, "gif", "download"); err != nil {
				stats.storeErrors.Add(1)
				log.Printf("record export failed: %v", err)
			}
		}
		return nil
	}

	hooks := server.Hooks{
		ConfigFn:      controller.ConfigMessage,
		StatusFn:      statusFn,
		SnapshotFn:    controller.LatestFrame,
		ViewModeFn:    controller.SetViewMode,
		InterpolateFn: controller.SetInterpolation,
		ResetFn:       controller.Reset,
		LayoutFn:      controller.ProjectOverlay,
		ExportGIFFn:   exportFn,
	}

	log.Printf("Starting web UI at http://localhost:%d\n", cfg.Port)
	if err := server.Run(ctx, cfg, uiMessages, hooks); err != nil {
		log.Printf("server stopped: %v", err)
	}
}
