package reel

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileRunLogger is an implementation of RunLogger that logs to a file. A
// file is created per run, formatted as newline-delimited JSON.
type FileRunLogger struct {
	directory string
}

func NewFileRunLogger(directory string) *FileRunLogger {
	return &FileRunLogger{directory: directory}
}

func (l *FileRunLogger) runLogPath(runID string) string {
	return filepath.Join(l.directory, fmt.Sprintf("%s.jsonl", runID))
}

// History reads back every event logged for a run, in order.
func (l *FileRunLogger) History(ctx context.Context, runID string) ([]*RunEvent, error) {
	data, err := os.ReadFile(l.runLogPath(runID))
	if err != nil {
		return nil, err
	}
	var events []*RunEvent
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		var event RunEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			return nil, err
		}
		events = append(events, &event)
	}
	return events, nil
}

func (l *FileRunLogger) LogEvent(ctx context.Context, event *RunEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	filePath := l.runLogPath(event.RunID)
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write([]byte(string(data) + "\n")); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	return nil
}
