// Package recorder writes a rotating JSONL trace of tab actions for
// post-hoc debugging of automation runs.
package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	MaxRotatedFiles = 3
	TraceDir        = "data/traces"
)

// Event is a single recorded tab action.
type Event struct {
	Timestamp time.Time   `json:"ts"`
	Type      string      `json:"type"`
	TenantID  string      `json:"tenant_id,omitempty"`
	TabID     string      `json:"tab_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// Recorder appends events to a trace file, rotating old traces away. A nil
// Recorder is valid and records nothing.
type Recorder struct {
	mu       sync.Mutex
	file     *os.File
	encoder  *json.Encoder
	basePath string
}

// New creates a recorder writing under basePath, ensuring the directory
// exists.
func New(basePath string) (*Recorder, error) {
	if basePath == "" {
		basePath = TraceDir
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, err
	}
	return &Recorder{basePath: basePath}, nil
}

// Start opens a fresh trace file, rotating old ones so only the newest few
// survive.
func (r *Recorder) Start() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
	}

	if err := r.rotate(); err != nil {
		return fmt.Errorf("rotate traces: %w", err)
	}

	path := filepath.Join(r.basePath, fmt.Sprintf("trace_%d.jsonl", time.Now().UnixMilli()))
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	r.file = f
	r.encoder = json.NewEncoder(f)
	return nil
}

// Record writes one action event. Dropped silently when no trace is open;
// tracing must never fail a request.
func (r *Recorder) Record(eventType, tenantID, tabID string, data interface{}) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoder == nil {
		return
	}

	_ = r.encoder.Encode(Event{
		Timestamp: time.Now(),
		Type:      eventType,
		TenantID:  tenantID,
		TabID:     tabID,
		Data:      data,
	})
}

// rotate keeps only the newest MaxRotatedFiles traces.
func (r *Recorder) rotate() error {
	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		return err
	}

	var traces []struct {
		Name string
		Time time.Time
	}

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		traces = append(traces, struct {
			Name string
			Time time.Time
		}{e.Name(), info.ModTime()})
	}

	// Newest first.
	sort.Slice(traces, func(i, j int) bool {
		return traces[i].Time.After(traces[j].Time)
	})

	if len(traces) >= MaxRotatedFiles {
		// Keep N-1 to make room for the new one.
		keep := MaxRotatedFiles - 1
		for i := keep; i < len(traces); i++ {
			_ = os.Remove(filepath.Join(r.basePath, traces[i].Name))
		}
	}
	return nil
}

// Close finishes the current trace.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		r.encoder = nil
		return err
	}
	return nil
}
