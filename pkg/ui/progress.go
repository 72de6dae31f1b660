package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
)

// StatusTracker keeps track of download progress
type StatusTracker struct {
	mu         sync.Mutex
	Total      int
	Downloaded int
	Skipped    int
	Failed     int
	StartTime  time.Time
}

// NewStatusTracker creates a tracker for total tasks
func NewStatusTracker(total int) *StatusTracker {
	return &StatusTracker{
		Total:     total,
		StartTime: time.Now(),
	}
}

// RecordDownloaded counts a fetched and saved file
func (st *StatusTracker) RecordDownloaded() {
	st.mu.Lock()
	st.Downloaded++
	st.mu.Unlock()
}

// RecordSkipped counts a task whose file already existed
func (st *StatusTracker) RecordSkipped() {
	st.mu.Lock()
	st.Skipped++
	st.mu.Unlock()
}

// RecordFailed counts a task that ended in error
func (st *StatusTracker) RecordFailed() {
	st.mu.Lock()
	st.Failed++
	st.mu.Unlock()
}

// Done returns the number of finished tasks
func (st *StatusTracker) Done() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.Downloaded + st.Skipped + st.Failed
}

// GetProgressBar returns a formatted progress bar over all tasks
func (st *StatusTracker) GetProgressBar() string {
	const width = 20
	done := st.Done()

	filled := width
	if st.Total > 0 {
		filled = done * width / st.Total
	}
	if filled > width {
		filled = width
	}

	bar := strings.Repeat(ProgressBar, filled) +
		strings.Repeat(ProgressEmpty, width-filled)

	return fmt.Sprintf("[%s] %d/%d", bar, done, st.Total)
}

// GetElapsedTime returns the elapsed time since tracking started
func (st *StatusTracker) GetElapsedTime() time.Duration {
	return time.Since(st.StartTime)
}

// GetDownloadRate returns the average download rate (files per minute)
func (st *StatusTracker) GetDownloadRate() float64 {
	elapsed := st.GetElapsedTime().Minutes()
	if elapsed == 0 {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return float64(st.Downloaded) / elapsed
}

// PrintProgress rewrites the current progress line
func (st *StatusTracker) PrintProgress(c *Console) {
	if c.quiet {
		return
	}
	fmt.Fprintf(c.out, "\r%s %s", c.paint(Green, "[DOWNLOADING]"), st.GetProgressBar())
	if st.Done() == st.Total {
		fmt.Fprintln(c.out)
	}
}
