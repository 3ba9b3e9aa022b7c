package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/example/frameview/internal/frame"
	"github.com/example/frameview/internal/recorder"
)

func main() {
	var (
		path    = flag.String("path", "", "Path to a raw message log")
		limit   = flag.Int("limit", 0, "Number of records to dump, 0 for all")
		extract = flag.String("extract", "", "Write each image payload into this directory")
	)
	flag.Parse()

	if *path == "" {
		log.Fatal("path is required")
	}

	f, err := os.Open(*path)
	if err != nil {
		log.Fatalf("open log: %v", err)
	}
	defer f.Close()

	r, err := recorder.NewReader(f)
	if err != nil {
		log.Fatal(err)
	}
	if *extract != "" {
		if err := os.MkdirAll(*extract, 0o755); err != nil {
			log.Fatalf("extract dir: %v", err)
		}
	}

	count := 0
	for *limit <= 0 || count < *limit {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Fatalf("record %d: %v", count, err)
		}

		fr, err := frame.Decode(rec.Payload)
		if err != nil {
			fmt.Printf("%d\t%s\tsize=%d\t%v\n", count, rec.Time.Format(time.RFC3339Nano), len(rec.Payload), err)
			count++
			continue
		}

		kind := http.DetectContentType(fr.Image)
		dims := "?"
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(fr.Image)); err == nil {
			dims = fmt.Sprintf("%dx%d", cfg.Width, cfg.Height)
		}
		fmt.Printf("%d\t%s\tts=%.3f\tfps=%.2f\tsize=%d\t%s\t%s\n",
			count, rec.Time.Format(time.RFC3339Nano), fr.Timestamp, fr.ServerFPS, len(fr.Image), kind, dims)

		if *extract != "" {
			name := filepath.Join(*extract, fmt.Sprintf("frame-%06d%s", count, extFor(kind)))
			if err := os.WriteFile(name, fr.Image, 0o644); err != nil {
				log.Fatalf("write %s: %v", name, err)
			}
		}
		count++
	}
	log.Printf("%d records", count)
}

func extFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return ".bin"
}
