package fatigue

// EarWindow is a fixed-capacity FIFO of EAR samples backed by a ring buffer.
// Pushing into a full window evicts the oldest sample.
type EarWindow struct {
	buf    []float64
	head   int // index of the oldest sample
	size   int
	thresh float64
	closed int // samples below thresh currently in the window
}

// NewEarWindow creates a window holding at most capacity samples.
// closedBelow is the EAR under which a sample counts as eyes closed.
func NewEarWindow(capacity int, closedBelow float64) *EarWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &EarWindow{
		buf:    make([]float64, capacity),
		thresh: closedBelow,
	}
}

// Push appends a sample, evicting the oldest one when the window is full.
func (w *EarWindow) Push(ear float64) {
	if w.size == len(w.buf) {
		if w.buf[w.head] < w.thresh {
			w.closed--
		}
		w.buf[w.head] = ear
		w.head = (w.head + 1) % len(w.buf)
	} else {
		w.buf[(w.head+w.size)%len(w.buf)] = ear
		w.size++
	}
	if ear < w.thresh {
		w.closed++
	}
}

// Len returns the number of samples held.
func (w *EarWindow) Len() int { return w.size }

// Cap returns the window capacity.
func (w *EarWindow) Cap() int { return len(w.buf) }

// closedCount returns how many held samples are below the closure threshold.
func (w *EarWindow) closedCount() int { return w.closed }

// Mean returns the arithmetic mean of the held samples, or 0 when empty.
func (w *EarWindow) Mean() float64 {
	if w.size == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < w.size; i++ {
		sum += w.buf[(w.head+i)%len(w.buf)]
	}
	return sum / float64(w.size)
}

// PERCLOS returns the fraction of held samples below the closure threshold.
func (w *EarWindow) PERCLOS() float64 {
	if w.size == 0 {
		return 0
	}
	return float64(w.closed) / float64(w.size)
}

// values returns the held samples, oldest first.
func (w *EarWindow) values() []float64 {
	out := make([]float64, w.size)
	for i := range out {
		out[i] = w.buf[(w.head+i)%len(w.buf)]
	}
	return out
}
