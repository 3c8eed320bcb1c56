// Package logstream buffers command output and error text for one run and
// appends it to the task log on a fixed cadence.
package logstream

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"tasksched/domain/task"

	log "github.com/sirupsen/logrus"
)

var ErrStreamClosed = errors.New("log stream closed")

const DefaultFlushInterval = 5 * time.Second

type Options struct {
	FlushInterval time.Duration
	Logger        *log.Entry
}

// Stream collects stdout and stderr of a single run. A single goroutine
// performs every append, so chunks reach the store in write order.
type Stream struct {
	appender task.LogAppender
	runID    string
	interval time.Duration
	logger   *log.Entry
	ctx      context.Context

	mu     sync.Mutex
	out    []byte
	err    []byte
	closed bool

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// New starts the periodic flusher. ctx bounds the periodic appends; the
// final flush uses the context given to Close.
func New(ctx context.Context, appender task.LogAppender, runID string, opts Options) *Stream {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.Logger == nil {
		opts.Logger = log.NewEntry(log.StandardLogger())
	}

	s := &Stream{
		appender: appender,
		runID:    runID,
		interval: opts.FlushInterval,
		logger:   opts.Logger.WithField("run_id", runID),
		ctx:      ctx,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Stream) Stdout() io.Writer {
	return bufferWriter{s: s}
}

func (s *Stream) Stderr() io.Writer {
	return bufferWriter{s: s, stderr: true}
}

// Close stops the flusher and appends whatever is still buffered.
func (s *Stream) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		close(s.stop)
		<-s.done

		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.closeErr = s.flush(ctx, true)
	})
	return s.closeErr
}

func (s *Stream) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.flush(s.ctx, false); err != nil {
				s.logger.WithError(err).Warn("failed to flush task log, retrying next interval")
			}
		}
	}
}

func (s *Stream) flush(ctx context.Context, final bool) error {
	out, errText := s.take(final)
	if out == "" && errText == "" {
		return nil
	}

	if err := s.appender.AppendLog(ctx, s.runID, out, errText); err != nil {
		s.restore(out, errText)
		return err
	}
	return nil
}

// take empties both buffers. Unless final, an incomplete trailing UTF-8
// sequence stays buffered for the next chunk.
func (s *Stream) take(final bool) (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out, errText []byte
	if final {
		out, errText = s.out, s.err
		s.out, s.err = nil, nil
	} else {
		out, s.out = splitComplete(s.out)
		errText, s.err = splitComplete(s.err)
	}
	return sanitize(out), sanitize(errText)
}

func (s *Stream) restore(out, errText string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.out = append([]byte(out), s.out...)
	s.err = append([]byte(errText), s.err...)
}

type bufferWriter struct {
	s      *Stream
	stderr bool
}

func (w bufferWriter) Write(p []byte) (int, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()

	if w.s.closed {
		return 0, ErrStreamClosed
	}
	if w.stderr {
		w.s.err = append(w.s.err, p...)
	} else {
		w.s.out = append(w.s.out, p...)
	}
	return len(p), nil
}

// splitComplete returns b up to the last complete rune and a copy of the
// remainder.
func splitComplete(b []byte) ([]byte, []byte) {
	n := len(b)
	for i := n - 1; i >= 0 && i > n-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			break
		}
		rest := make([]byte, n-i)
		copy(rest, b[i:])
		return b[:i], rest
	}
	return b, nil
}

// sanitize drops NUL bytes and replaces invalid UTF-8, neither of which a
// postgres text column accepts.
func sanitize(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return strings.ToValidUTF8(strings.ReplaceAll(string(b), "\x00", ""), "�")
}
