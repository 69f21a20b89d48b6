package common

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Metrics tallies a batch run: finished jobs out of the planned total, plus
// the elements and bytes they moved. It is safe for concurrent use.
type Metrics struct {
	mu        sync.Mutex
	started   time.Time
	stopped   time.Time
	totalJobs int
	done      JobTally
}

// JobTally is the accumulated outcome of finished jobs.
type JobTally struct {
	Jobs     int
	Failures int
	Elements int
	Bytes    int64
}

// NewMetrics prepares a tally for totalJobs jobs.
func NewMetrics(totalJobs int) *Metrics {
	return &Metrics{totalJobs: totalJobs}
}

// Start stamps the beginning of the run; later calls are ignored.
func (m *Metrics) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started.IsZero() {
		m.started = time.Now()
	}
}

// Stop freezes the elapsed time.
func (m *Metrics) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started.IsZero() && m.stopped.IsZero() {
		m.stopped = time.Now()
	}
}

// JobDone records one finished job.
func (m *Metrics) JobDone(elements int, bytes int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done.Jobs++
	if err != nil {
		m.done.Failures++
		return
	}
	m.done.Elements += elements
	m.done.Bytes += bytes
}

// Snapshot is a point-in-time copy of the tally.
type Snapshot struct {
	JobTally
	TotalJobs int
	Elapsed   time.Duration
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{JobTally: m.done, TotalJobs: m.totalJobs}
	switch {
	case m.started.IsZero():
	case m.stopped.IsZero():
		s.Elapsed = time.Since(m.started)
	default:
		s.Elapsed = m.stopped.Sub(m.started)
	}
	return s
}

// String renders the snapshot as a single progress line.
func (s Snapshot) String() string {
	line := fmt.Sprintf("jobs %d/%d, %d element(s), %s", s.Jobs, s.TotalJobs, s.Elements, FormatBytes(s.Bytes))
	if s.Failures > 0 {
		line += fmt.Sprintf(", %d failed", s.Failures)
	}
	return line
}

// FormatBytes renders n with a binary unit, e.g. "3.00 MiB".
func FormatBytes(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	v := float64(n)
	unit := ""
	for _, u := range []string{"KiB", "MiB", "GiB", "TiB", "PiB", "EiB"} {
		v /= 1024
		unit = u
		if v < 1024 {
			break
		}
	}
	return fmt.Sprintf("%.2f %s", v, unit)
}

// ReportProgress rewrites a progress line on w every interval until the
// returned func is called, which clears the line.
func ReportProgress(w io.Writer, m *Metrics, interval time.Duration) func() {
	if interval <= 0 {
		interval = time.Second
	}
	quit := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		width := 0
		for {
			select {
			case <-ticker.C:
				line := m.Snapshot().String()
				fmt.Fprintf(w, "\r%-*s", width, line)
				width = max(width, len(line))
			case <-quit:
				if width > 0 {
					fmt.Fprintf(w, "\r%s\r", strings.Repeat(" ", width))
				}
				return
			}
		}
	}()
	return func() {
		close(quit)
		<-finished
	}
}
