package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

var errSinkClosed = errors.New("logger: sink closed")

// sink serializes lines from many goroutines onto the outputs through one
// background goroutine. Output is flushed whenever the queue runs empty.
type sink struct {
	lines   chan []byte
	syncs   chan chan error
	closing chan struct{}
	stopped chan struct{}
	once    sync.Once
	out     *bufio.Writer

	mu  sync.Mutex
	err error
}

func newSink(outputs []io.Writer, queue int) *sink {
	if queue <= 0 {
		queue = 256
	}
	s := &sink{
		lines:   make(chan []byte, queue),
		syncs:   make(chan chan error),
		closing: make(chan struct{}),
		stopped: make(chan struct{}),
		out:     bufio.NewWriterSize(io.MultiWriter(outputs...), 64<<10),
	}
	go s.run()
	return s
}

func (s *sink) run() {
	defer close(s.stopped)
	for {
		select {
		case line := <-s.lines:
			s.put(line)
		case ack := <-s.syncs:
			s.drain()
			ack <- s.out.Flush()
		case <-s.closing:
			s.drain()
			s.fail(s.out.Flush())
			return
		}
	}
}

func (s *sink) drain() {
	for {
		select {
		case line := <-s.lines:
			s.put(line)
		default:
			return
		}
	}
}

func (s *sink) put(line []byte) {
	if _, err := s.out.Write(line); err != nil {
		s.fail(err)
		return
	}
	if len(s.lines) == 0 {
		s.fail(s.out.Flush())
	}
}

// write queues a copy of line. It blocks while the queue is full.
func (s *sink) write(line []byte) error {
	if err := s.firstErr(); err != nil {
		return err
	}
	if len(line) == 0 {
		return nil
	}
	line = append([]byte(nil), line...)
	select {
	case <-s.closing:
		return errSinkClosed
	case s.lines <- line:
		return nil
	}
}

// sync waits until everything queued so far reached the outputs.
func (s *sink) sync() error {
	ack := make(chan error, 1)
	select {
	case s.syncs <- ack:
		return <-ack
	case <-s.stopped:
		return s.firstErr()
	}
}

// close drains the queue and reports the first output error.
func (s *sink) close() error {
	s.once.Do(func() { close(s.closing) })
	<-s.stopped
	return s.firstErr()
}

func (s *sink) firstErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *sink) fail(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}
