package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"spriteloop-go/internal/export"
	"spriteloop-go/internal/slicer"
)

func main() {
	path := flag.String("path", "", "Path to a spritesheet image (PNG, JPEG or WebP)")
	frameCount := flag.Int("frame-count", 9, "Frames in the sheet (4, 9 or 16)")
	workers := flag.Int("workers", 4, "Number of slicing workers")
	outDir := flag.String("out", "exports", "Directory for the extracted frames")
	flag.Parse()

	if *path == "" {
		log.Fatal("missing -path")
	}

	data, err := os.ReadFile(*path)
	if err != nil {
		log.Fatalf("read %s: %v", *path, err)
	}
	sheet, err := slicer.DecodeSheet(data)
	if err != nil {
		log.Fatalf("decode %s: %v", *path, err)
	}

	frames, err := slicer.Slice(sheet, *frameCount, *workers)
	if err != nil {
		log.Fatalf("slice %s: %v", *path, err)
	}

	dir, err := export.WriteFrames(*outDir, frames, export.Metadata{
		AssetID: strings.TrimSuffix(filepath.Base(*path), filepath.Ext(*path)),
	})
	if err != nil {
		log.Fatalf("write frames: %v", err)
	}

	bounds := sheet.Bounds()
	fmt.Printf("sheet: %dx%d\n", bounds.Dx(), bounds.Dy())
	for i, frame := range frames {
		b := frame.Bounds()
		fmt.Printf("frame %d: %dx%d\n", i, b.Dx(), b.Dy())
	}
	fmt.Printf("wrote %d frames to %s\n", len(frames), dir)
}
