package blob

import (
	"errors"
	"strings"
	"testing"
)

func TestCreateResolveRelease(t *testing.T) {
	s := NewStore()

	h := s.Create([]byte("jpeg"), "image/jpeg")
	if !strings.HasPrefix(string(h), "blob:") {
		t.Errorf("handle %q missing blob: prefix", h)
	}
	if s.Live() != 1 {
		t.Errorf("Live = %d, want 1", s.Live())
	}

	data, mime, err := s.Resolve(h)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if string(data) != "jpeg" || mime != "image/jpeg" {
		t.Errorf("Resolve = (%q, %q), want (jpeg, image/jpeg)", data, mime)
	}

	if err := s.Release(h); err != nil {
		t.Fatalf("Release error: %v", err)
	}
	if s.Live() != 0 {
		t.Errorf("Live = %d, want 0", s.Live())
	}
	if _, _, err := s.Resolve(h); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("Resolve after release error = %v, want ErrUnknownHandle", err)
	}
}

func TestDoubleRelease(t *testing.T) {
	s := NewStore()
	h := s.Create(nil, "image/jpeg")

	if err := s.Release(h); err != nil {
		t.Fatalf("first Release error: %v", err)
	}
	if err := s.Release(h); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("second Release error = %v, want ErrUnknownHandle", err)
	}

	st := s.Stats()
	if st.Created != 1 || st.Released != 1 || st.Live != 0 {
		t.Errorf("Stats = %+v, want created=1 released=1 live=0", st)
	}
}

func TestHandlesAreUnique(t *testing.T) {
	s := NewStore()
	seen := make(map[Handle]bool)
	for i := 0; i < 100; i++ {
		h := s.Create(nil, "image/jpeg")
		if seen[h] {
			t.Fatalf("duplicate handle %q", h)
		}
		seen[h] = true
	}
}
