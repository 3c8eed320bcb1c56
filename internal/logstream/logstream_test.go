package logstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type appendCall struct {
	output string
	errors string
}

type fakeAppender struct {
	mu       sync.Mutex
	calls    []appendCall
	failures int
}

func (f *fakeAppender) AppendLog(ctx context.Context, runID, output, errText string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failures > 0 {
		f.failures--
		return errors.New("store unavailable")
	}
	f.calls = append(f.calls, appendCall{output: output, errors: errText})
	return nil
}

func (f *fakeAppender) snapshot() []appendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]appendCall(nil), f.calls...)
}

func (f *fakeAppender) joined() (string, string) {
	var out, errText strings.Builder
	for _, c := range f.snapshot() {
		out.WriteString(c.output)
		errText.WriteString(c.errors)
	}
	return out.String(), errText.String()
}

// TestStream_FlushesPeriodically - output reaches the store before Close
func TestStream_FlushesPeriodically(t *testing.T) {
	app := &fakeAppender{}
	s := New(context.Background(), app, "run-1", Options{FlushInterval: 10 * time.Millisecond})

	io.WriteString(s.Stdout(), "A")
	assert.Eventually(t, func() bool { return len(app.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	io.WriteString(s.Stdout(), "B")
	io.WriteString(s.Stderr(), "E")
	require.NoError(t, s.Close(context.Background()))

	out, errText := app.joined()
	assert.Equal(t, "AB", out)
	assert.Equal(t, "E", errText)
}

// TestStream_SkipsEmptyFlush - no append happens when nothing was written
func TestStream_SkipsEmptyFlush(t *testing.T) {
	app := &fakeAppender{}
	s := New(context.Background(), app, "run-1", Options{FlushInterval: 5 * time.Millisecond})

	time.Sleep(40 * time.Millisecond)
	require.NoError(t, s.Close(context.Background()))

	assert.Empty(t, app.snapshot())
}

// TestStream_CloseDrainsBuffers - final flush sends everything at once
func TestStream_CloseDrainsBuffers(t *testing.T) {
	app := &fakeAppender{}
	s := New(context.Background(), app, "run-1", Options{FlushInterval: time.Hour})

	io.WriteString(s.Stdout(), "hello ")
	io.WriteString(s.Stdout(), "world")
	io.WriteString(s.Stderr(), "warn")
	require.NoError(t, s.Close(context.Background()))

	assert.Equal(t, []appendCall{{output: "hello world", errors: "warn"}}, app.snapshot())
}

// TestStream_CloseIsIdempotent - second Close is a no-op and writes fail
func TestStream_CloseIsIdempotent(t *testing.T) {
	app := &fakeAppender{}
	s := New(context.Background(), app, "run-1", Options{FlushInterval: time.Hour})
	io.WriteString(s.Stdout(), "x")

	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))

	_, err := s.Stdout().Write([]byte("late"))
	assert.ErrorIs(t, err, ErrStreamClosed)
	assert.Len(t, app.snapshot(), 1)
}

// TestStream_RetriesFailedFlush - a failed append keeps its text for the next tick
func TestStream_RetriesFailedFlush(t *testing.T) {
	app := &fakeAppender{failures: 2}
	s := New(context.Background(), app, "run-1", Options{FlushInterval: 5 * time.Millisecond})

	io.WriteString(s.Stdout(), "first ")
	assert.Eventually(t, func() bool { return len(app.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	io.WriteString(s.Stdout(), "second")
	require.NoError(t, s.Close(context.Background()))

	out, _ := app.joined()
	assert.Equal(t, "first second", out)
}

// TestStream_CloseReportsFinalFailure - final flush error is returned
func TestStream_CloseReportsFinalFailure(t *testing.T) {
	app := &fakeAppender{failures: 1}
	s := New(context.Background(), app, "run-1", Options{FlushInterval: time.Hour})
	io.WriteString(s.Stderr(), "boom")

	err := s.Close(context.Background())

	assert.Error(t, err)
}

// TestStream_ConcurrentWriters - no bytes are lost across writers
func TestStream_ConcurrentWriters(t *testing.T) {
	app := &fakeAppender{}
	s := New(context.Background(), app, "run-1", Options{FlushInterval: time.Millisecond})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				fmt.Fprintf(s.Stdout(), "<%d:%d>", i, j)
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, s.Close(context.Background()))

	out, _ := app.joined()
	for i := 0; i < 10; i++ {
		for j := 0; j < 100; j++ {
			assert.Equal(t, 1, strings.Count(out, fmt.Sprintf("<%d:%d>", i, j)))
		}
	}
}

// TestStream_HoldsPartialRune - a split multi-byte rune is not emitted half way
func TestStream_HoldsPartialRune(t *testing.T) {
	s := New(context.Background(), &fakeAppender{}, "run-1", Options{FlushInterval: time.Hour})
	defer s.Close(context.Background())

	euro := []byte("€")
	s.Stdout().Write(append([]byte("price "), euro[:2]...))

	out, _ := s.take(false)
	assert.Equal(t, "price ", out)

	s.Stdout().Write(euro[2:])
	out, _ = s.take(false)
	assert.Equal(t, "€", out)
}

func TestSplitComplete(t *testing.T) {
	tests := []struct {
		name  string
		in    []byte
		ready string
		rest  []byte
	}{
		{"ascii", []byte("abc"), "abc", nil},
		{"complete multibyte", []byte("a€"), "a€", nil},
		{"one byte of three", []byte{'a', 0xE2}, "a", []byte{0xE2}},
		{"two bytes of three", []byte{'a', 0xE2, 0x82}, "a", []byte{0xE2, 0x82}},
		{"empty", nil, "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ready, rest := splitComplete(tt.in)
			assert.Equal(t, tt.ready, string(ready))
			assert.Equal(t, tt.rest, rest)
		})
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "ab", sanitize([]byte("a\x00b")))
	assert.Equal(t, "a�", sanitize([]byte{'a', 0xFF}))
	assert.Equal(t, "", sanitize(nil))
}
