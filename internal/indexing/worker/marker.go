package worker

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Marker is the file holding the unix time of the last successful submission.
// Writes replace the whole file, readers tolerate a stale value.
type Marker struct {
	path string
}

func NewMarker(path string) *Marker {
	return &Marker{path: path}
}

// Path returns the marker file location.
func (m *Marker) Path() string {
	return m.path
}

// Write stores t truncated to seconds.
func (m *Marker) Write(t time.Time) error {
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatInt(t.Unix(), 10)), 0o644); err != nil {
		return fmt.Errorf("failed to write marker: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("failed to replace marker: %w", err)
	}
	return nil
}

// Read returns the recorded time. A missing or garbled file is an error.
func (m *Marker) Read() (time.Time, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read marker: %w", err)
	}
	sec, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid marker content %q: %w", data, err)
	}
	return time.Unix(int64(sec), 0), nil
}
