package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Result values recorded on activities.
const (
	ResultSucceed = "succeed"
	ResultFailed  = "failed"
	ResultDenied  = "denied"
)

// Event is one activity row: who did what, from where, and how it ended.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	UserID    int64             `json:"user_id,omitempty"`
	UID       string            `json:"uid,omitempty"`
	TargetUID string            `json:"target_uid,omitempty"`
	Category  string            `json:"category"`
	Topic     string            `json:"topic,omitempty"`
	Action    string            `json:"action"`
	Result    string            `json:"result"`
	IP        string            `json:"user_ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
}

// Writer persists batches of events. Implementations must be safe to call
// from the dispatcher goroutine only; they are never called concurrently.
type Writer interface {
	WriteBatch(ctx context.Context, events []Event) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(ctx context.Context, events []Event) error

func (f WriterFunc) WriteBatch(ctx context.Context, events []Event) error { return f(ctx, events) }

// NoOpWriter drops events.
type NoOpWriter struct{}

func (NoOpWriter) WriteBatch(context.Context, []Event) error { return nil }

// JSONLinesWriter writes one JSON object per event.
type JSONLinesWriter struct {
	mu     sync.Mutex
	writer io.Writer
}

func NewJSONLinesWriter(w io.Writer) *JSONLinesWriter {
	return &JSONLinesWriter{writer: w}
}

func (s *JSONLinesWriter) WriteBatch(_ context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	enc := json.NewEncoder(s.writer)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}
