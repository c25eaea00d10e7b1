package executor

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/getpup/streamcoord"
	"github.com/goccy/go-json"
)

// record is the JSON line written for every signal.
type record struct {
	Time     time.Time                `json:"time"`
	Pipeline streamcoord.PipelineName `json:"pipeline,omitempty"`
	Element  string                   `json:"element,omitempty"`
	Kind     SignalKind               `json:"kind"`
	Payload  map[string]string        `json:"payload,omitempty"`
}

// WriterChannel is a SignalChannel that appends each signal as one JSON line
// to an io.Writer. It lets the coordinator run without a cluster transport,
// with an external agent tailing the output.
type WriterChannel struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewWriterChannel creates a WriterChannel writing to w.
func NewWriterChannel(w io.Writer) *WriterChannel {
	return &WriterChannel{w: w, now: time.Now}
}

// Send implements SignalChannel. Write errors are returned as is and
// therefore retried.
func (c *WriterChannel) Send(ctx context.Context, signal Signal) error {
	if err := ctx.Err(); err != nil {
		return Permanent(err)
	}

	line, err := json.Marshal(record{
		Time:     c.now().UTC(),
		Pipeline: signal.Pipeline,
		Element:  signal.Element,
		Kind:     signal.Kind,
		Payload:  signal.Payload,
	})
	if err != nil {
		return Permanent(fmt.Errorf("failed to encode signal: %w", err))
	}
	line = append(line, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.w.Write(line); err != nil {
		return fmt.Errorf("failed to write signal: %w", err)
	}
	return nil
}
