package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"spriteloop-go/internal/export"
	"spriteloop-go/internal/slicer"
)

func main() {
	path := flag.String("path", "", "Path to a spritesheet image (PNG, JPEG or WebP)")
	frameCount := flag.Int("frame-count", 9, "Frames in the sheet (4, 9 or 16)")
	durationMs := flag.Int("frame-duration-ms", 150, "Per-frame duration in milliseconds")
	workers := flag.Int("workers", 4, "Number of slicing workers")
	out := flag.String("out", "", "Output GIF path (defaults to <path>.gif)")
	flag.Parse()

	if *path == "" {
		log.Fatal("missing -path")
	}
	target := *out
	if target == "" {
		target = *path + ".gif"
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

	f, err := os.Create(target)
	if err != nil {
		log.Fatalf("create %s: %v", target, err)
	}
	perFrame := time.Duration(*durationMs) * time.Millisecond
	if err := export.WriteGIF(f, frames, perFrame); err != nil {
		_ = f.Close()
		log.Fatalf("encode gif: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("close %s: %v", target, err)
	}

	fmt.Printf("wrote %d frames at %dms to %s\n", len(frames), *durationMs, target)
}
