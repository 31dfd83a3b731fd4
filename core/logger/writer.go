package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

const sinkQueue = 512

// lineSink writes log lines from a single goroutine. Lines are buffered and
// flushed whenever the queue runs empty, so bursts cost one write per sink.
type lineSink struct {
	lines   chan []byte
	flushes chan chan error
	done    chan struct{}

	out *bufio.Writer

	// state guards closed against sends on a closed queue.
	state  sync.RWMutex
	closed bool

	mu  sync.Mutex
	err error
}

func newLineSink(bufSize int, outputs ...io.Writer) *lineSink {
	var ws []io.Writer
	for _, w := range outputs {
		if w != nil {
			ws = append(ws, w)
		}
	}
	if bufSize <= 0 {
		bufSize = 64 << 10
	}
	s := &lineSink{
		lines:   make(chan []byte, sinkQueue),
		flushes: make(chan chan error),
		done:    make(chan struct{}),
		out:     bufio.NewWriterSize(io.MultiWriter(ws...), bufSize),
	}
	go s.run()
	return s
}

func (s *lineSink) run() {
	defer close(s.done)
	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				s.fail(s.out.Flush())
				return
			}
			_, err := s.out.Write(line)
			s.fail(err)
			if len(s.lines) == 0 {
				s.fail(s.out.Flush())
			}
		case ack := <-s.flushes:
			s.drain()
			ack <- s.out.Flush()
		}
	}
}

// drain writes the lines queued so far without waiting for more.
func (s *lineSink) drain() {
	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				return
			}
			_, err := s.out.Write(line)
			s.fail(err)
		default:
			return
		}
	}
}

// errSinkClosed is returned by Write after Close.
var errSinkClosed = errors.New("logger: sink closed")

// Write queues a copy of line. It blocks while the queue is full rather than
// dropping records.
func (s *lineSink) Write(line []byte) error {
	if err := s.Err(); err != nil {
		return err
	}
	if len(line) == 0 {
		return nil
	}
	s.state.RLock()
	defer s.state.RUnlock()
	if s.closed {
		return errSinkClosed
	}
	s.lines <- append([]byte(nil), line...)
	return nil
}

// Flush waits until everything written so far reached the outputs.
func (s *lineSink) Flush() error {
	ack := make(chan error, 1)
	select {
	case s.flushes <- ack:
		return errors.Join(<-ack, s.Err())
	case <-s.done:
		return s.Err()
	}
}

// Close drains the queue and returns the first write error.
func (s *lineSink) Close() error {
	s.state.Lock()
	if !s.closed {
		s.closed = true
		close(s.lines)
	}
	s.state.Unlock()
	<-s.done
	return s.Err()
}

// Err returns the first write error seen.
func (s *lineSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *lineSink) fail(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}
