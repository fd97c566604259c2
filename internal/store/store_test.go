package store

import (
	"path/filepath"
	"testing"
	"time"

	"spriteloop-go/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndListAssets(t *testing.T) {
	s := openTestStore(t)

	first := types.Asset{
		ID:              "a1",
		ImageBytes:      make([]byte, 1024),
		MimeType:        "image/png",
		FrameCount:      9,
		FrameDurationMs: 150,
		Prompt:          "pixel cat",
		ReceivedAt:      time.Now().Add(-time.Minute),
	}
	second := first
	second.ID = "a2"
	second.ReceivedAt = time.Now()

	if err := s.RecordAsset(first); err != nil {
		t.Fatalf("RecordAsset error: %v", err)
	}
	if err := s.RecordAsset(second); err != nil {
		t.Fatalf("RecordAsset error: %v", err)
	}

	records, err := s.RecentAssets(5)
	if err != nil {
		t.Fatalf("RecentAssets error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("record count %d, want 2", len(records))
	}
	if records[0].ID != "a2" {
		t.Fatalf("newest first expected, got %q", records[0].ID)
	}
	if records[0].ByteSize != 1024 || records[0].FrameCount != 9 {
		t.Fatalf("unexpected record: %+v", records[0])
	}
}

func TestRecordExportAndCounts(t *testing.T) {
	s := openTestStore(t)

	asset := types.Asset{ID: "a1", MimeType: "image/png", FrameCount: 4, FrameDurationMs: 200, ReceivedAt: time.Now()}
	if err := s.RecordAsset(asset); err != nil {
		t.Fatalf("RecordAsset error: %v", err)
	}
	if err := s.RecordExport("a1", "gif", "/tmp/out.gif"); err != nil {
		t.Fatalf("RecordExport error: %v", err)
	}

	assets, exports, err := s.Counts()
	if err != nil {
		t.Fatalf("Counts error: %v", err)
	}
	if assets != 1 || exports != 1 {
		t.Fatalf("counts %d/%d, want 1/1", assets, exports)
	}
}
