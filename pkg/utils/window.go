package utils

// rollingWindow is a fixed-capacity FIFO of float samples. Pushing into a
// full window evicts the oldest sample.
type rollingWindow struct {
	buf  []float64
	head int
	n    int
}

func newRollingWindow(capacity int) *rollingWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &rollingWindow{buf: make([]float64, capacity)}
}

func (w *rollingWindow) push(v float64) {
	if w.n < len(w.buf) {
		w.buf[(w.head+w.n)%len(w.buf)] = v
		w.n++
		return
	}
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
}

func (w *rollingWindow) len() int { return w.n }

func (w *rollingWindow) capacity() int { return len(w.buf) }

// values returns the samples oldest first.
func (w *rollingWindow) values() []float64 {
	out := make([]float64, w.n)
	for i := range w.n {
		out[i] = w.buf[(w.head+i)%len(w.buf)]
	}
	return out
}

func (w *rollingWindow) mean() float64 {
	if w.n == 0 {
		return 0
	}
	var sum float64
	for _, v := range w.values() {
		sum += v
	}
	return sum / float64(w.n)
}
