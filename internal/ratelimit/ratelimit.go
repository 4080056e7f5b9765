// Package ratelimit throttles transfer payloads with a token bucket.
//
// The bucket holds one second worth of bytes, so a transfer may burst up to
// the configured rate and then settles to it on average.
package ratelimit

import (
	"context"
	"io"
	"math"

	"golang.org/x/time/rate"
)

const (
	maxReadChunk  = 8 * 1024
	maxWriteChunk = 64 * 1024
)

// Limiter limits throughput to a number of bytes per second.
// A nil *Limiter means unlimited.
type Limiter struct {
	bucket *rate.Limiter
	burst  int
}

// New returns a limiter for bytesPerSecond, or nil when the rate is zero or
// negative.
func New(bytesPerSecond int64) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}

	burst := int(min(bytesPerSecond, math.MaxInt32))

	return &Limiter{
		bucket: rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
		burst:  burst,
	}
}

// Rate returns the configured bytes per second.
func (l *Limiter) Rate() float64 {
	if l == nil {
		return 0
	}
	return float64(l.bucket.Limit())
}

// take blocks until n bytes may pass. n never exceeds the burst.
func (l *Limiter) take(n int) {
	if l == nil || n <= 0 {
		return
	}
	// WaitN only fails for n > burst or a done context, neither of which
	// can happen here.
	_ = l.bucket.WaitN(context.Background(), n)
}

func (l *Limiter) chunk(n, limit int) int {
	if n > limit {
		n = limit
	}
	if n > l.burst {
		n = l.burst
	}
	return n
}

type reader struct {
	r       io.Reader
	limiter *Limiter
}

// NewReader returns r throttled by limiter, or r itself when limiter is nil.
func NewReader(r io.Reader, limiter *Limiter) io.Reader {
	if limiter == nil {
		return r
	}
	return &reader{r: r, limiter: limiter}
}

func (r *reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	size := r.limiter.chunk(len(p), maxReadChunk)
	r.limiter.take(size)
	return r.r.Read(p[:size])
}

type writer struct {
	w       io.Writer
	limiter *Limiter
}

// NewWriter returns w throttled by limiter, or w itself when limiter is nil.
func NewWriter(w io.Writer, limiter *Limiter) io.Writer {
	if limiter == nil {
		return w
	}
	return &writer{w: w, limiter: limiter}
}

func (w *writer) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		size := w.limiter.chunk(len(p)-written, maxWriteChunk)
		w.limiter.take(size)

		n, err := w.w.Write(p[written : written+size])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
