// Package recorder appends raw stream messages to a log file and reads them
// back. The file starts with an 8-byte magic followed by records of
// [unix nanos int64 LE][length uint32 LE][payload].
package recorder

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const Magic = "FVRAWLG1"

const recordHeaderSize = 12

var (
	ErrBadMagic     = errors.New("recorder: not a raw message log")
	ErrWriterClosed = errors.New("recorder: writer is closed")
)

type Writer struct {
	mu  sync.Mutex
	f   *os.File
	w   *bufio.Writer
	now func() time.Time
	n   uint64
}

// Create truncates or creates path, making parent directories as needed.
func Create(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := bufio.NewWriterSize(f, 1024*1024)
	if _, err := w.WriteString(Magic); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f, w: w, now: time.Now}, nil
}

// Record appends payload stamped with the current time.
func (r *Writer) Record(payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return ErrWriterClosed
	}
	var header [recordHeaderSize]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(r.now().UnixNano()))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(payload)))
	if _, err := r.w.Write(header[:]); err != nil {
		return err
	}
	if _, err := r.w.Write(payload); err != nil {
		return err
	}
	r.n++
	return r.w.Flush()
}

// Count is the number of records written.
func (r *Writer) Count() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

func (r *Writer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return nil
	}
	if err := r.w.Flush(); err != nil {
		_ = r.f.Close()
		r.w = nil
		return err
	}
	err := r.f.Close()
	r.w = nil
	return err
}

// Record is one logged message.
type Record struct {
	Time    time.Time
	Payload []byte
}

type Reader struct {
	r io.Reader
}

// NewReader checks the magic and positions r at the first record.
func NewReader(r io.Reader) (*Reader, error) {
	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("recorder: read magic: %w", err)
	}
	if string(magic) != Magic {
		return nil, fmt.Errorf("%w: magic %q", ErrBadMagic, magic)
	}
	return &Reader{r: bufio.NewReader(r)}, nil
}

// Next returns the next record, or io.EOF after the last complete one.
// A record cut short by the end of the file is reported as
// io.ErrUnexpectedEOF.
func (r *Reader) Next() (Record, error) {
	var meta [recordHeaderSize]byte
	if _, err := io.ReadFull(r.r, meta[:]); err != nil {
		return Record{}, err
	}
	ts := int64(binary.LittleEndian.Uint64(meta[:8]))
	size := binary.LittleEndian.Uint32(meta[8:12])

	payload := make([]byte, size)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Record{}, err
	}
	return Record{Time: time.Unix(0, ts), Payload: payload}, nil
}
