package transcribe

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// fakeCapture serves frames from a channel; closing it ends the capture.
type fakeCapture struct {
	frames   chan []float32
	closed   chan struct{}
	once     sync.Once
	closeErr error
	closes   int
	mu       sync.Mutex
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{frames: make(chan []float32, 16), closed: make(chan struct{})}
}

func (c *fakeCapture) ReadFrame() ([]float32, error) {
	select {
	case f, ok := <-c.frames:
		if !ok {
			return nil, io.EOF
		}
		return f, nil
	case <-c.closed:
		return nil, fmt.Errorf("capture closed")
	}
}

func (c *fakeCapture) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	c.once.Do(func() { close(c.closed) })
	return c.closeErr
}

func (c *fakeCapture) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

type fakeSource struct {
	capture *fakeCapture
	err     error
}

func (s *fakeSource) Acquire(context.Context) (Capture, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.capture, nil
}

// fakeLive records uploads and replays events pushed by the test.
type fakeLive struct {
	mu       sync.Mutex
	sent     [][]byte
	sentCh   chan []byte
	events   chan Event
	errs     chan error
	closed   chan struct{}
	once     sync.Once
	closeErr error
	closes   int
}

func newFakeLive() *fakeLive {
	return &fakeLive{
		sentCh: make(chan []byte, 64),
		events: make(chan Event, 16),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (l *fakeLive) SendAudio(pcm []byte) error {
	l.mu.Lock()
	l.sent = append(l.sent, pcm)
	l.mu.Unlock()
	l.sentCh <- pcm
	return nil
}

func (l *fakeLive) Receive() (Event, error) {
	select {
	case ev, ok := <-l.events:
		if !ok {
			return Event{}, io.EOF
		}
		return ev, nil
	case err := <-l.errs:
		return Event{}, err
	case <-l.closed:
		return Event{}, fmt.Errorf("use of closed connection")
	}
}

func (l *fakeLive) Close() error {
	l.mu.Lock()
	l.closes++
	l.mu.Unlock()
	l.once.Do(func() { close(l.closed) })
	return l.closeErr
}

func (l *fakeLive) closeCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closes
}

type fakeDialer struct {
	live  *fakeLive
	err   error
	dials int
}

func (d *fakeDialer) Dial(context.Context) (LiveSession, error) {
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	return d.live, nil
}

// gate holds a call until the test releases it.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) wait() {
	close(g.entered)
	<-g.release
}

type gatedSource struct {
	gate *gate
	fakeSource
}

func (s *gatedSource) Acquire(ctx context.Context) (Capture, error) {
	s.gate.wait()
	return s.fakeSource.Acquire(ctx)
}

type gatedDialer struct {
	gate *gate
	*fakeDialer
}

func (d *gatedDialer) Dial(ctx context.Context) (LiveSession, error) {
	d.gate.wait()
	return d.fakeDialer.Dial(ctx)
}
