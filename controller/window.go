package controller

import (
	"container/ring"
	"math"

	"github.com/eclesh/welford"
)

// slidingWindow is a fixed-size ring buffer of float64 samples, used for
// inter-arrival jitter measurement (spec §4.C.1) and doll epoch
// arrival-time variance (spec §4.C.3). Adapted from the teacher's
// ring-buffer sliding window idiom; the running statistics over the
// window are delegated to welford (see mean/stddev below).
type slidingWindow struct {
	size        int
	currentSize int
	samples     *ring.Ring
}

func newSlidingWindow(size int) *slidingWindow {
	if size < 1 {
		size = 1
	}
	w := &slidingWindow{size: size, samples: ring.New(size)}
	for i := 0; i < size; i++ {
		w.samples.Value = math.NaN()
		w.samples = w.samples.Next()
	}
	return w
}

func (w *slidingWindow) add(sample float64) {
	w.samples = w.samples.Next()
	if w.currentSize < w.size {
		w.currentSize++
	}
	w.samples.Value = sample
}

// values returns the samples currently held, newest first. The ring buffer
// stays responsible for eviction; the running statistics over whatever it
// currently holds are delegated to welford (see mean/stddev below), the
// way the teacher's mean()/variance()/stddev() helpers do
// (fbclock/daemon/math.go, ptp/c4u/clock/math.go: a fresh welford.New()
// per call, Add() over the sample set).
func (w *slidingWindow) values() []float64 {
	out := make([]float64, 0, w.currentSize)
	r := w.samples
	for i := 0; i < w.size && len(out) < w.currentSize; i++ {
		if v, ok := r.Value.(float64); ok && !math.IsNaN(v) {
			out = append(out, v)
		}
		r = r.Prev()
	}
	return out
}

func (w *slidingWindow) mean() float64 {
	if w.currentSize == 0 {
		return 0
	}
	s := welford.New()
	for _, v := range w.values() {
		s.Add(v)
	}
	return s.Mean()
}

// stddev returns the population standard deviation of the samples
// currently held, used to derive net_poorness (spec §4.C.1).
func (w *slidingWindow) stddev() float64 {
	if w.currentSize == 0 {
		return 0
	}
	s := welford.New()
	for _, v := range w.values() {
		s.Add(v)
	}
	return s.Stddev()
}
