package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/example/frameview/internal/feed"
	"github.com/example/frameview/internal/logging"
)

var videoExts = map[string]bool{
	".webm": true,
	".mp4":  true,
	".mkv":  true,
	".mov":  true,
	".avi":  true,
}

func main() {
	addr := flag.String("addr", ":8080", "Listen address")
	fps := flag.Int("fps", 30, "Frames per second")
	width := flag.Int("width", 640, "Frame width for synthetic and video sources")
	height := flag.Int("height", 360, "Frame height for the synthetic source")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, "  send-frames [flags]              synthetic test pattern")
		fmt.Fprintln(os.Stderr, "  send-frames [flags] image.jpg    repeat one image")
		fmt.Fprintln(os.Stderr, "  send-frames [flags] frames/      loop over a directory of images")
		fmt.Fprintln(os.Stderr, "  send-frames [flags] video.webm   frames extracted with ffmpeg")
		fmt.Fprintln(os.Stderr, "")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *fps <= 0 {
		logging.Fatalf("fps must be positive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, cleanup, err := openSource(ctx, flag.Arg(0), *fps, *width, *height)
	if err != nil {
		logging.Fatalf("Source: %v", err)
	}
	defer cleanup()

	s := feed.NewServer()
	if err := s.Start(*addr); err != nil {
		logging.Fatalf("%v", err)
	}
	defer s.Stop()

	logging.Infof("Sending %d fps", *fps)
	if err := s.Run(ctx, src, float64(*fps)); err != nil && err != context.Canceled {
		logging.Errorf("Feed stopped: %v", err)
	}

	st := s.Stats()
	logging.Infof("Done: %d frames broadcast, %d sent, %d dropped", st.Broadcast, st.Sent, st.Dropped)
}

func openSource(ctx context.Context, path string, fps, width, height int) (feed.Source, func(), error) {
	noop := func() {}
	if path == "" {
		logging.Infof("Source: synthetic %dx%d", width, height)
		return feed.NewSyntheticSource(width, height), noop, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, err
	}
	if info.IsDir() {
		src, err := feed.NewDirSource(path)
		if err != nil {
			return nil, nil, err
		}
		logging.Infof("Source: %d images in %s", src.Len(), path)
		return src, noop, nil
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case videoExts[ext]:
		dir, cleanup, err := feed.ExtractVideo(ctx, path, fps, width)
		if err != nil {
			return nil, nil, fmt.Errorf("%w (is ffmpeg installed?)", err)
		}
		src, err := feed.NewDirSource(dir)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		logging.Infof("Source: %d frames from %s", src.Len(), path)
		return src, cleanup, nil
	case feed.IsImageFile(path):
		src, err := feed.NewFileSource(path)
		if err != nil {
			return nil, nil, err
		}
		logging.Infof("Source: image %s", path)
		return src, noop, nil
	}
	return nil, nil, fmt.Errorf("unsupported format: %s", ext)
}
