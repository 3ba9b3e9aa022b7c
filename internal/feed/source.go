package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/example/frameview/internal/logging"
)

// Source yields encoded image payloads, one per frame.
type Source interface {
	Next() ([]byte, error)
}

var ErrNoFrames = errors.New("feed: no image files found")

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// IsImageFile reports whether path has an image extension the viewer decodes.
func IsImageFile(path string) bool {
	return imageExts[strings.ToLower(filepath.Ext(path))]
}

// FileSource repeats one image.
type FileSource struct {
	data []byte
}

func NewFileSource(path string) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("feed: read image: %w", err)
	}
	return &FileSource{data: data}, nil
}

func (s *FileSource) Next() ([]byte, error) {
	return s.data, nil
}

// DirSource loops over the images of a directory in name order.
type DirSource struct {
	paths []string
	next  int
}

func NewDirSource(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("feed: read dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !IsImageFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFrames, dir)
	}
	return &DirSource{paths: paths}, nil
}

func (s *DirSource) Len() int { return len(s.paths) }

func (s *DirSource) Next() ([]byte, error) {
	path := s.paths[s.next]
	s.next = (s.next + 1) % len(s.paths)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("feed: read frame: %w", err)
	}
	return data, nil
}

// ExtractVideo runs ffmpeg to split a video into JPEG frames at fps, scaled
// to width. The returned cleanup removes the frames.
func ExtractVideo(ctx context.Context, videoPath string, fps, width int) (string, func(), error) {
	tmpDir, err := os.MkdirTemp("", "frameview-frames-")
	if err != nil {
		return "", nil, fmt.Errorf("feed: temp dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(tmpDir) }

	logging.Infof("Extracting frames from %s at %d fps into %s", videoPath, fps, tmpDir)

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-loglevel", "error",
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:-1", fps, width),
		"-q:v", "3",
		filepath.Join(tmpDir, "frame-%05d.jpg"),
	)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("feed: ffmpeg: %w", err)
	}
	return tmpDir, cleanup, nil
}

// SyntheticSource draws a moving test pattern.
type SyntheticSource struct {
	width, height int
	quality       int
	n             int
	img           *image.RGBA
	buf           bytes.Buffer
}

func NewSyntheticSource(width, height int) *SyntheticSource {
	return &SyntheticSource{
		width:   width,
		height:  height,
		quality: 80,
		img:     image.NewRGBA(image.Rect(0, 0, width, height)),
	}
}

func (s *SyntheticSource) Next() ([]byte, error) {
	s.n++
	shift := s.n * 4
	bar := s.n % s.width
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			c := color.RGBA{
				R: uint8((x + shift) * 255 / (s.width + 1)),
				G: uint8(y * 255 / (s.height + 1)),
				B: uint8(s.n),
				A: 0xff,
			}
			if x >= bar && x < bar+8 {
				c = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
			}
			s.img.SetRGBA(x, y, c)
		}
	}

	s.buf.Reset()
	if err := jpeg.Encode(&s.buf, s.img, &jpeg.Options{Quality: s.quality}); err != nil {
		return nil, fmt.Errorf("feed: encode synthetic frame: %w", err)
	}
	out := make([]byte, s.buf.Len())
	copy(out, s.buf.Bytes())
	return out, nil
}
