package transcribe

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// FrameSamples is the number of samples per captured frame (256 ms at 16 kHz).
const FrameSamples = 4096

// ErrSourceBusy is returned when a source is acquired twice.
var ErrSourceBusy = stderrors.New("audio source already in use")

// Source is an exclusive audio input.
type Source interface {
	// Acquire opens the input. Only one Capture may be open at a time.
	Acquire(ctx context.Context) (Capture, error)
}

// Capture yields frames in capture order until io.EOF.
type Capture interface {
	ReadFrame() ([]float32, error)
	Close() error
}

// lease guards the exclusive use of a source.
type lease struct {
	mu    sync.Mutex
	inUse bool
}

func (l *lease) take() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inUse {
		return ErrSourceBusy
	}
	l.inUse = true
	return nil
}

func (l *lease) release() {
	l.mu.Lock()
	l.inUse = false
	l.mu.Unlock()
}

// ReaderSource reads raw 16-bit little-endian mono PCM from an io.Reader,
// such as a file or stdin. Readers implementing io.Closer are closed when
// the capture is released, so a source can only be captured once.
type ReaderSource struct {
	R io.Reader

	lease lease
}

func NewReaderSource(r io.Reader) *ReaderSource {
	return &ReaderSource{R: r}
}

func (s *ReaderSource) Acquire(_ context.Context) (Capture, error) {
	if s.R == nil {
		return nil, fmt.Errorf("no audio input")
	}
	if err := s.lease.take(); err != nil {
		return nil, err
	}
	c := &readerCapture{r: s.R, release: s.lease.release}
	// Closing the reader unblocks a pending read on stop.
	if closer, ok := s.R.(io.Closer); ok {
		c.closer = closer
	}
	return c, nil
}

type readerCapture struct {
	r       io.Reader
	buf     [FrameSamples * 2]byte
	once    sync.Once
	release func()
	closer  io.Closer
}

func (c *readerCapture) ReadFrame() ([]float32, error) {
	n, err := io.ReadFull(c.r, c.buf[:])
	if n > 0 && (err == nil || stderrors.Is(err, io.ErrUnexpectedEOF)) {
		return DecodePCM16(c.buf[:n]), nil
	}
	if err == nil || stderrors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return nil, err
}

func (c *readerCapture) Close() error {
	var err error
	c.once.Do(func() {
		if c.closer != nil {
			err = c.closer.Close()
		}
		c.release()
	})
	return err
}

// CommandSource spawns a capture program that writes raw PCM to stdout,
// for example `arecord -q -f S16_LE -r 16000 -c 1 -t raw`.
type CommandSource struct {
	Args []string

	lease lease
}

func NewCommandSource(args []string) *CommandSource {
	return &CommandSource{Args: args}
}

func (s *CommandSource) Acquire(ctx context.Context) (Capture, error) {
	if len(s.Args) == 0 {
		return nil, fmt.Errorf("no capture command configured")
	}
	if err := s.lease.take(); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, s.Args[0], s.Args[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.lease.release()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		s.lease.release()
		return nil, fmt.Errorf("start %s: %w", s.Args[0], err)
	}

	return &readerCapture{
		r:       stdout,
		release: s.lease.release,
		closer:  &processCloser{cmd: cmd},
	}, nil
}

type processCloser struct {
	cmd *exec.Cmd
}

// Close kills the capture program and reaps it. A killed process is the
// expected outcome and not reported.
func (p *processCloser) Close() error {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		return nil
	}
	return err
}
