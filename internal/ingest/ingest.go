package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pebbe/zmq4"

	"spriteloop-go/internal/types"
)

// Stream returns a channel of decoded generation-service messages. Expects
// CBOR maps shaped like the generation worker's output:
//
//	{ "type": "asset", "image": <bytes>, "mime_type": <string>,
//	  "frame_duration_ms": <int>, "frame_count": <int>, "prompt": <string> }
//	{ "type": "detections", "boxes": [ { "box_2d": [yMin,xMin,yMax,xMax], "label": <string> } ] }
func Stream(ctx context.Context, endpoint string) (<-chan types.RawMessage, error) {
	return streamWithConfig(ctx, endpoint, 1)
}

func StreamWithLogEvery(ctx context.Context, endpoint string, logEvery int) (<-chan types.RawMessage, error) {
	if logEvery < 1 {
		logEvery = 1
	}
	return streamWithConfig(ctx, endpoint, logEvery)
}

func streamWithConfig(ctx context.Context, endpoint string, logEvery int) (<-chan types.RawMessage, error) {
	socket, err := zmq4.NewSocket(zmq4.PULL)
	if err != nil {
		return nil, err
	}
	if err := socket.Connect(endpoint); err != nil {
		_ = socket.Close()
		return nil, err
	}

	out := make(chan types.RawMessage, 16)
	go func() {
		defer close(out)
		defer socket.Close()

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			payload, err := socket.RecvBytes(0)
			if err != nil {
				logEveryN(logEvery, "ingest recv error: %v", err)
				continue
			}

			msg, ok := decodeMessage(payload, logEvery)
			if !ok {
				continue
			}

			select {
			case <-ctx.Done():
				return
			case out <- msg:
			}
		}
	}()

	return out, nil
}

var (
	decodeFailures atomic.Uint64
	decodeCount    atomic.Uint64
	decodeNanos    atomic.Uint64
)

// DecodeFailures reports how many ingest payloads failed to decode.
func DecodeFailures() uint64 { return decodeFailures.Load() }

// DecodeTiming reports total decode calls and nanoseconds spent decoding.
func DecodeTiming() (uint64, uint64) { return decodeCount.Load(), decodeNanos.Load() }

func decodeMessage(payload []byte, logEvery int) (types.RawMessage, bool) {
	start := time.Now()
	defer func() {
		decodeCount.Add(1)
		decodeNanos.Add(uint64(time.Since(start).Nanoseconds()))
	}()

	var decoded map[string]any
	if err := cbor.Unmarshal(payload, &decoded); err != nil {
		decodeFailures.Add(1)
		logEveryN(logEvery, "ingest CBOR decode error: %v", err)
		return types.RawMessage{}, false
	}

	msgType, _ := decoded["type"].(string)
	switch msgType {
	case "asset":
		asset, err := decodeAsset(decoded)
		if err != nil {
			decodeFailures.Add(1)
			logEveryN(logEvery, "ingest invalid asset: %v", err)
			return types.RawMessage{}, false
		}
		return types.RawMessage{Type: "asset", Asset: asset}, true
	case "detections":
		boxes, err := decodeDetections(decoded)
		if err != nil {
			decodeFailures.Add(1)
			logEveryN(logEvery, "ingest invalid detections: %v", err)
			return types.RawMessage{}, false
		}
		return types.RawMessage{Type: "detections", Boxes: boxes}, true
	default:
		logEveryN(logEvery, "ingest ignoring message type %q", msgType)
		return types.RawMessage{}, false
	}
}

func decodeAsset(decoded map[string]any) (types.Asset, error) {
	imageBytes, ok := decoded["image"].([]byte)
	if !ok || len(imageBytes) == 0 {
		return types.Asset{}, errors.New("missing image bytes")
	}
	mimeType, _ := decoded["mime_type"].(string)
	if mimeType == "" {
		mimeType = "image/png"
	}
	frameDuration, err := toInt(decoded["frame_duration_ms"])
	if err != nil {
		return types.Asset{}, fmt.Errorf("invalid frame_duration_ms: %w", err)
	}
	frameCount, err := toInt(decoded["frame_count"])
	if err != nil {
		return types.Asset{}, fmt.Errorf("invalid frame_count: %w", err)
	}
	prompt, _ := decoded["prompt"].(string)

	return types.Asset{
		ImageBytes:      imageBytes,
		MimeType:        mimeType,
		FrameDurationMs: frameDuration,
		FrameCount:      frameCount,
		Prompt:          prompt,
		ReceivedAt:      time.Now(),
	}, nil
}

func decodeDetections(decoded map[string]any) ([]types.DetectionBox, error) {
	raw, ok := decoded["boxes"].([]any)
	if !ok {
		return nil, errors.New("missing boxes field")
	}
	boxes := make([]types.DetectionBox, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[any]any)
		if !ok {
			if m, isStr := item.(map[string]any); isStr {
				entry = map[any]any{}
				for k, v := range m {
					entry[k] = v
				}
			} else {
				continue
			}
		}
		coords, ok := entry["box_2d"].([]any)
		if !ok || len(coords) != 4 {
			continue
		}
		yMin, err1 := toFloat(coords[0])
		xMin, err2 := toFloat(coords[1])
		yMax, err3 := toFloat(coords[2])
		xMax, err4 := toFloat(coords[3])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		label, _ := entry["label"].(string)
		boxes = append(boxes, types.DetectionBox{
			Top:    yMin,
			Left:   xMin,
			Bottom: yMax,
			Right:  xMax,
			Label:  label,
		})
	}
	return boxes, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case uint32:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("unsupported int type %T", v)
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("unsupported float type %T", v)
	}
}

var logCounter int

func logEveryN(n int, format string, args ...any) {
	logCounter++
	if n < 1 || logCounter%n == 0 {
		log.Printf(format, args...)
	}
}
