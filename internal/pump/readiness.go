package pump

import "sync"

// Phase is the load lifecycle of the rendering surface.
type Phase int

const (
	// PhaseIdle: nothing assigned since start or the last close.
	PhaseIdle Phase = iota
	// PhaseLoading: a source was assigned and has not finished loading.
	PhaseLoading
	// PhaseReady: the last assigned source finished loading.
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Readiness tracks the surface phase together with the two flags exposed to
// callers: initted (some image has loaded at least once) and loading.
//
// The loading flag is not a pure function of the phase. It starts true, is
// set true again on close, and is cleared optimistically on assignment once
// an image has loaded before, so a reconnecting stream drops its loading
// state at the first frame rather than at the first completed load. It may
// therefore be cleared twice for one frame.
type Readiness struct {
	mu      sync.Mutex
	phase   Phase
	initted bool
	loading bool
}

func NewReadiness() *Readiness {
	return &Readiness{phase: PhaseIdle, loading: true}
}

// Assigned records that a new source was handed to the surface.
func (r *Readiness) Assigned() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.phase = PhaseLoading
	if r.initted && r.loading {
		r.loading = false
	}
}

// Loaded records a load completion. Completions while idle belong to a
// closed stream and are ignored.
func (r *Readiness) Loaded() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase == PhaseIdle {
		return
	}
	r.phase = PhaseReady
	r.loading = false
	r.initted = true
}

// Closed returns to idle and raises the loading flag.
func (r *Readiness) Closed() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.phase = PhaseIdle
	r.loading = true
}

func (r *Readiness) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

func (r *Readiness) Initted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initted
}

func (r *Readiness) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}
