package metrics

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Sampler periodically refreshes the ambient gauges that nothing in the
// round path updates: Go heap and goroutine counts, and the on-disk size of
// the machine store. The round counters themselves are pushed by
// RecordRound; this only covers what has to be polled.
type Sampler struct {
	metrics   *Metrics
	interval  time.Duration
	storePath string
	stop      chan struct{}
	done      chan struct{}
}

// NewSampler creates a sampler for m. storePath may be empty to skip the
// store-size gauge; interval <= 0 defaults to 15s.
func NewSampler(m *Metrics, interval time.Duration, storePath string) *Sampler {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Sampler{
		metrics:   m,
		interval:  interval,
		storePath: storePath,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// SampleOnce refreshes every gauge immediately.
func (s *Sampler) SampleOnce() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s.metrics.HeapBytes.SetUint64(ms.HeapInuse)
	s.metrics.Goroutines.Set(int64(runtime.NumGoroutine()))

	if s.storePath != "" {
		if size := dirSize(s.storePath); size >= 0 {
			s.metrics.StoreSizeBytes.Set(size)
		}
	}
}

// Start samples once immediately, then on every interval tick until ctx is
// cancelled or Stop is called.
func (s *Sampler) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		s.SampleOnce()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				s.SampleOnce()
			}
		}
	}()
}

// Stop halts the sampling loop and waits for it to exit.
func (s *Sampler) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done
}

// dirSize walks path summing file sizes, returning -1 if the root is
// unreadable. Per-file errors are skipped; a half-populated badger dir mid-
// compaction is normal.
func dirSize(path string) int64 {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	if err != nil {
		return -1
	}
	return size
}
