package reel

import "context"

// NullRunLogger is a no-op implementation of RunLogger.
type NullRunLogger struct{}

func NewNullRunLogger() *NullRunLogger {
	return &NullRunLogger{}
}

func (l *NullRunLogger) LogEvent(ctx context.Context, event *RunEvent) error {
	return nil
}

func (l *NullRunLogger) History(ctx context.Context, runID string) ([]*RunEvent, error) {
	return nil, nil
}
