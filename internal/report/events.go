package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventRun       EventType = "run"
	EventPhase     EventType = "phase"
	EventLoad      EventType = "load"
	EventMalformed EventType = "malformed"
	EventStage     EventType = "stage"
	EventWrite     EventType = "write"
	EventRead      EventType = "read"
	EventError     EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// Event represents a single event in a pipeline run
type Event struct {
	Timestamp time.Time         `json:"ts"`
	Level     EventLevel        `json:"level"`
	Event     EventType         `json:"event"`
	RunID     string            `json:"run_id,omitempty"`
	Dataset   string            `json:"dataset,omitempty"`
	Table     string            `json:"table,omitempty"`
	Stage     string            `json:"stage,omitempty"`
	Path      string            `json:"path,omitempty"`
	RowsIn    int64             `json:"rows_in,omitempty"`
	RowsOut   int64             `json:"rows_out,omitempty"`
	Bytes     int64             `json:"bytes,omitempty"`
	Duration  int64             `json:"duration_ms,omitempty"` // in milliseconds
	Status    string            `json:"status,omitempty"`
	Error     string            `json:"error,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	runID    string
	minLevel EventLevel
}

// NewEventLogger creates a new event logger with a minimum log level
// minLevel determines which events are written (e.g., LevelInfo skips LevelDebug)
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("events-%s.jsonl", timestamp)
	path := filepath.Join(outputDir, filename)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		minLevel: minLevel,
	}, nil
}

// SetRunID stamps every following event with the given run id
func (l *EventLogger) SetRunID(runID string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runID = runID
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.RunID == "" {
		event.RunID = l.runID
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return nil
}

// LogRun logs the start or end of a run
func (l *EventLogger) LogRun(status, input, output string, duration time.Duration, err error) error {
	level := LevelInfo
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:    level,
		Event:    EventRun,
		Status:   status,
		Duration: duration.Milliseconds(),
		Error:    errMsg,
		Extra: map[string]string{
			"input":  input,
			"output": output,
		},
	})
}

// LogPhase logs the completion of a pipeline phase
func (l *EventLogger) LogPhase(phase, status string, duration time.Duration) error {
	return l.Log(&Event{
		Level:    LevelInfo,
		Event:    EventPhase,
		Stage:    phase,
		Status:   status,
		Duration: duration.Milliseconds(),
	})
}

// LogLoad logs one input file having been read
func (l *EventLogger) LogLoad(dataset, path string, records, malformed int, bytes int64) error {
	level := LevelDebug
	if malformed > 0 {
		level = LevelWarning
	}

	return l.Log(&Event{
		Level:   level,
		Event:   EventLoad,
		Dataset: dataset,
		Path:    path,
		RowsOut: int64(records),
		Bytes:   bytes,
		Extra: map[string]string{
			"malformed": fmt.Sprintf("%d", malformed),
		},
	})
}

// LogMalformed logs an input line that was dropped because it is not a JSON object
func (l *EventLogger) LogMalformed(dataset, path string, line int, err error) error {
	return l.Log(&Event{
		Level:   LevelDebug,
		Event:   EventMalformed,
		Dataset: dataset,
		Path:    path,
		Error:   err.Error(),
		Extra: map[string]string{
			"line": fmt.Sprintf("%d", line),
		},
	})
}

// LogStage logs a transform step with its input and output row counts.
// For filters and inner joins the difference is the number of dropped rows.
func (l *EventLogger) LogStage(stage string, rowsIn, rowsOut int) error {
	level := LevelInfo
	if rowsOut < rowsIn {
		level = LevelWarning
	}

	return l.Log(&Event{
		Level:   level,
		Event:   EventStage,
		Stage:   stage,
		RowsIn:  int64(rowsIn),
		RowsOut: int64(rowsOut),
	})
}

// LogWrite logs a completed table write
func (l *EventLogger) LogWrite(table, path string, rows int64, files int, bytes int64, duration time.Duration) error {
	return l.Log(&Event{
		Level:    LevelInfo,
		Event:    EventWrite,
		Table:    table,
		Path:     path,
		RowsOut:  rows,
		Bytes:    bytes,
		Duration: duration.Milliseconds(),
		Extra: map[string]string{
			"files": fmt.Sprintf("%d", files),
		},
	})
}

// LogRead logs a table read back from the output root
func (l *EventLogger) LogRead(table, path string, rows int) error {
	return l.Log(&Event{
		Level:   LevelInfo,
		Event:   EventRead,
		Table:   table,
		Path:    path,
		RowsOut: int64(rows),
	})
}

// LogError logs an error event
func (l *EventLogger) LogError(stage string, err error) error {
	return l.Log(&Event{
		Level: LevelError,
		Event: EventError,
		Stage: stage,
		Error: err.Error(),
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}
