package ingest

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
)

func TestDecodeMessageAsset(t *testing.T) {
	msg := map[string]any{
		"type":              "asset",
		"image":             []byte{0x89, 0x50, 0x4e, 0x47},
		"mime_type":         "image/png",
		"frame_duration_ms": 150,
		"frame_count":       9,
		"prompt":            "a cat doing a backflip",
	}
	payload, err := cbor.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	raw, ok := decodeMessage(payload, 1)
	if !ok {
		t.Fatal("decodeMessage returned ok=false")
	}
	if raw.Type != "asset" {
		t.Fatalf("unexpected type: %q", raw.Type)
	}
	if raw.Asset.FrameDurationMs != 150 {
		t.Fatalf("unexpected frame duration: %d", raw.Asset.FrameDurationMs)
	}
	if raw.Asset.FrameCount != 9 {
		t.Fatalf("unexpected frame count: %d", raw.Asset.FrameCount)
	}
	if len(raw.Asset.ImageBytes) != 4 {
		t.Fatalf("unexpected image bytes: %v", raw.Asset.ImageBytes)
	}
	if raw.Asset.Prompt != "a cat doing a backflip" {
		t.Fatalf("unexpected prompt: %q", raw.Asset.Prompt)
	}
}

func TestDecodeMessageDetections(t *testing.T) {
	msg := map[string]any{
		"type": "detections",
		"boxes": []any{
			map[string]any{
				"box_2d": []any{100, 200, 800, 900},
				"label":  "cat",
			},
		},
	}
	payload, err := cbor.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	raw, ok := decodeMessage(payload, 1)
	if !ok {
		t.Fatal("decodeMessage returned ok=false")
	}
	if len(raw.Boxes) != 1 {
		t.Fatalf("unexpected box count: %d", len(raw.Boxes))
	}
	box := raw.Boxes[0]
	if box.Top != 100 || box.Left != 200 || box.Bottom != 800 || box.Right != 900 {
		t.Fatalf("unexpected box: %+v", box)
	}
	if box.Label != "cat" {
		t.Fatalf("unexpected label: %q", box.Label)
	}
}

func TestDecodeMessageMissingImageRejected(t *testing.T) {
	payload, err := cbor.Marshal(map[string]any{
		"type":              "asset",
		"frame_duration_ms": 150,
		"frame_count":       4,
	})
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	if _, ok := decodeMessage(payload, 1); ok {
		t.Fatal("expected asset without image bytes to be rejected")
	}
}

func TestDecodeMessageUnknownTypeIgnored(t *testing.T) {
	payload, err := cbor.Marshal(map[string]any{"type": "telemetry"})
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	if _, ok := decodeMessage(payload, 1); ok {
		t.Fatal("expected unknown message type to be ignored")
	}
}
