package runner

import (
	"bufio"
	"fmt"
	"io"
)

// SinkFunc adapts a function to a Sink.
type SinkFunc func(res *Result) error

func (f SinkFunc) Write(res *Result) error { return f(res) }

// WriterSink appends the records of every replicate to w, one tab-separated
// line per record.
type WriterSink struct {
	w *bufio.Writer
}

// NewWriterSink returns a sink writing to w. Call Flush when the pool is
// done.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: bufio.NewWriter(w)}
}

func (s *WriterSink) Write(res *Result) error {
	if _, err := res.Log.WriteTo(s.w); err != nil {
		return fmt.Errorf("write replicate %d: %w", res.Replicate, err)
	}
	return nil
}

// Flush writes any buffered records.
func (s *WriterSink) Flush() error {
	return s.w.Flush()
}
