package observer

import (
	"fmt"
	"io"
	"sync"

	"notifier/log"
)

var (
	_ Observer = (*Reader)(nil)
	_ Observer = (*LogReader)(nil)
)

// Reader prints every message it receives to a writer.
type Reader struct {
	name string

	mu sync.Mutex
	w  io.Writer
}

func NewReader(name string, w io.Writer) *Reader {
	return &Reader{name: name, w: w}
}

func (r *Reader) Name() string {
	return r.name
}

func (r *Reader) Update(subject Subject) {
	msg := subject.Message()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := fmt.Fprintf(r.w, "%s receive %s\n", r.name, msg); err != nil {
		log.Log.Errorf("reader %s write error, err:%s", r.name, err)
	}
}

// LogReader emits every message it receives to the structured log.
type LogReader struct {
	name string
}

func NewLogReader(name string) *LogReader {
	return &LogReader{name: name}
}

func (r *LogReader) Name() string {
	return r.name
}

func (r *LogReader) Update(subject Subject) {
	log.Log.Infow("receive message", "observer", r.name, "message", subject.Message())
}
