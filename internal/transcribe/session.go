package transcribe

import (
	"context"
	stderrors "errors"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/sav-assist/internal/calllog"
	"github.com/hpungsan/sav-assist/internal/errors"
	"github.com/hpungsan/sav-assist/internal/logger"
)

// State is the lifecycle position of a Session.
type State string

const (
	StateIdle      State = "idle"
	StateOpening   State = "opening"
	StateStreaming State = "streaming"
	StateClosed    State = "closed"
)

// Config wires a Session to its collaborators.
type Config struct {
	Source Source
	Dialer Dialer

	Thresholds      Thresholds
	QualityInterval time.Duration

	// OnTranscript receives each fragment as it arrives.
	OnTranscript func(fragment string)
	// OnQuality receives the classification whenever it changes.
	OnQuality func(q Quality)

	// DrainGrace is how long to keep receiving transcripts after the audio
	// source runs out before the run stops on its own.
	DrainGrace time.Duration

	Logger *logger.Logger

	now func() time.Time
}

// Session streams one audio source to a live endpoint at a time.
// Start may be called again after the session returns to idle.
type Session struct {
	cfg Config
	log *logger.Logger

	mu           sync.Mutex
	state        State
	notes        string
	quality      Quality
	lastActivity time.Time
	run          *run

	// opening is closed when an open attempt either streams or gives up.
	// stopPending asks that attempt to give up.
	opening     chan struct{}
	stopPending bool
}

// run is the set of resources held while streaming.
type run struct {
	id      string
	capture Capture
	live    LiveSession
	meter   *Meter

	events  chan runEvent
	stop    chan struct{}
	halt    chan struct{} // closed when the pump must stop forwarding
	done    chan struct{} // closed once teardown completes
	workers sync.WaitGroup

	stopOnce sync.Once
	err      error // teardown failures, set before done is closed
}

type runEvent struct {
	transcript string
	err        error
	closed     bool // remote side closed
	drained    bool // audio source exhausted
}

func NewSession(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	if cfg.QualityInterval <= 0 {
		cfg.QualityInterval = 800 * time.Millisecond
	}
	if cfg.DrainGrace <= 0 {
		cfg.DrainGrace = 3 * time.Second
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return &Session{
		cfg:     cfg,
		log:     cfg.Logger.Component("transcribe"),
		state:   StateIdle,
		quality: QualityOptimal,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Notes returns everything dictated so far.
func (s *Session) Notes() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notes
}

// SetNotes seeds the notes that dictated fragments are appended to.
func (s *Session) SetNotes(notes string) {
	s.mu.Lock()
	s.notes = notes
	s.mu.Unlock()
}

// Quality returns the last signal classification.
func (s *Session) Quality() Quality {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quality
}

// Level returns the current loudness, 0 when not streaming.
func (s *Session) Level() float64 {
	s.mu.Lock()
	r := s.run
	s.mu.Unlock()
	if r == nil {
		return 0
	}
	return r.meter.Level()
}

// Start acquires the audio source and opens the live session. It returns
// once streaming has begun or opening has failed.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		return errors.NewInvalidRequest("dictation session is closed")
	case StateOpening, StateStreaming:
		s.mu.Unlock()
		return errors.NewBusy("dictation")
	}
	s.state = StateOpening
	s.stopPending = false
	s.opening = make(chan struct{})
	s.mu.Unlock()

	ready := make(chan error, 1)
	go s.own(ctx, ready)
	return <-ready
}

// own is the single goroutine that drives a run from opening to teardown.
func (s *Session) own(ctx context.Context, ready chan<- error) {
	capture, err := s.cfg.Source.Acquire(ctx)
	if err != nil {
		s.log.WithError(err).Warn("microphone unavailable")
		s.abandonOpening()
		ready <- errors.NewMicUnavailable(err)
		return
	}

	live, err := s.cfg.Dialer.Dial(ctx)
	if err != nil {
		s.log.WithError(err).Error("live session failed to open")
		if cerr := capture.Close(); cerr != nil {
			s.log.WithError(cerr).Warn("audio release failed")
		}
		s.abandonOpening()
		if ctx.Err() != nil {
			ready <- errors.NewCancelled("dictation")
		} else {
			ready <- errors.NewRemoteFailure(err)
		}
		return
	}

	r := &run{
		id:      ulid.Make().String(),
		capture: capture,
		live:    live,
		meter:   &Meter{},
		events:  make(chan runEvent),
		stop:    make(chan struct{}),
		halt:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	log := s.log.WithField("session", r.id)

	s.mu.Lock()
	if s.stopPending || s.state != StateOpening {
		s.mu.Unlock()
		log.Info("dictation stopped while opening")
		var errs []error
		if err := capture.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := live.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := stderrors.Join(errs...); err != nil {
			log.WithError(err).Warn("teardown incomplete")
		}
		s.abandonOpening()
		ready <- errors.NewCancelled("dictation")
		return
	}
	s.run = r
	s.state = StateStreaming
	s.quality = QualityOptimal
	s.lastActivity = s.cfg.now()
	s.endOpening()
	s.mu.Unlock()
	log.Info("dictation started")
	ready <- nil

	r.workers.Add(2)
	go s.pump(r)
	go s.receive(r)

	ticker := time.NewTicker(s.cfg.QualityInterval)
	defer ticker.Stop()

	var drain <-chan time.Time
loop:
	for {
		select {
		case ev := <-r.events:
			switch {
			case ev.err != nil:
				log.WithError(ev.err).Error("live session error")
				break loop
			case ev.closed:
				log.Info("live session closed by remote")
				break loop
			case ev.drained:
				log.Debug("audio source exhausted")
				drain = time.After(s.cfg.DrainGrace)
			case ev.transcript != "":
				s.appendTranscript(ev.transcript)
			}
		case <-ticker.C:
			s.checkQuality(r)
		case <-drain:
			break loop
		case <-r.stop:
			break loop
		case <-ctx.Done():
			break loop
		}
	}

	r.err = s.teardown(r)
	if r.err != nil {
		log.WithError(r.err).Warn("teardown incomplete")
	}

	s.mu.Lock()
	if s.run == r {
		s.run = nil
	}
	if s.state == StateStreaming {
		s.state = StateIdle
	}
	s.mu.Unlock()
	close(r.done)
	log.Info("dictation stopped")
}

// pump forwards captured frames in order until the capture ends or the run halts.
func (s *Session) pump(r *run) {
	defer r.workers.Done()
	for {
		frame, err := r.capture.ReadFrame()
		if err != nil {
			if stderrors.Is(err, io.EOF) {
				s.emit(r, runEvent{drained: true})
			} else {
				s.emit(r, runEvent{err: err})
			}
			return
		}
		select {
		case <-r.halt:
			return
		default:
		}
		r.meter.Observe(frame)
		if err := r.live.SendAudio(EncodePCM16(frame)); err != nil {
			s.emit(r, runEvent{err: err})
			return
		}
	}
}

func (s *Session) receive(r *run) {
	defer r.workers.Done()
	for {
		ev, err := r.live.Receive()
		if err != nil {
			if stderrors.Is(err, io.EOF) {
				s.emit(r, runEvent{closed: true})
			} else {
				s.emit(r, runEvent{err: err})
			}
			return
		}
		if ev.Transcript != "" {
			if !s.emit(r, runEvent{transcript: ev.Transcript}) {
				return
			}
		}
	}
}

// emit hands an event to the owner. It reports false once the run has halted.
func (s *Session) emit(r *run, ev runEvent) bool {
	select {
	case r.events <- ev:
		return true
	case <-r.halt:
		return false
	}
}

func (s *Session) appendTranscript(fragment string) {
	s.mu.Lock()
	s.notes = calllog.AppendFragment(s.notes, fragment)
	s.lastActivity = s.cfg.now()
	s.mu.Unlock()
	if s.cfg.OnTranscript != nil {
		s.cfg.OnTranscript(fragment)
	}
}

func (s *Session) checkQuality(r *run) {
	level := r.meter.Level()
	s.mu.Lock()
	q := Classify(level, s.cfg.now().Sub(s.lastActivity), s.cfg.Thresholds)
	changed := q != s.quality
	s.quality = q
	s.mu.Unlock()
	if changed && s.cfg.OnQuality != nil {
		s.cfg.OnQuality(q)
	}
}

// teardown releases the pump, the audio source, the meter and the live
// session. Each step runs regardless of the others.
func (s *Session) teardown(r *run) error {
	var errs []error

	close(r.halt)
	if err := r.capture.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := r.meter.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := r.live.Close(); err != nil {
		errs = append(errs, err)
	}
	r.workers.Wait()

	return stderrors.Join(errs...)
}

// Stop ends the current run and waits for teardown. It is safe to call
// at any time and any number of times. The returned error joins any
// release failures; every release is attempted regardless.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state == StateOpening && s.opening != nil {
		s.stopPending = true
		wait := s.opening
		s.mu.Unlock()
		<-wait
		s.mu.Lock()
	}
	r := s.run
	s.mu.Unlock()
	if r == nil {
		return nil
	}
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
	return r.err
}

// Done returns a channel closed when the current run ends. When idle the
// channel is already closed.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	r := s.run
	s.mu.Unlock()
	if r == nil {
		c := make(chan struct{})
		close(c)
		return c
	}
	return r.done
}

// Close stops any run and makes the session unusable.
func (s *Session) Close() error {
	err := s.Stop()
	s.setState(StateClosed)
	return err
}

// abandonOpening ends an open attempt that never streamed. A session
// closed in the meantime stays closed.
func (s *Session) abandonOpening() {
	s.mu.Lock()
	if s.state == StateOpening {
		s.state = StateIdle
	}
	s.endOpening()
	s.mu.Unlock()
}

// endOpening must be called with mu held.
func (s *Session) endOpening() {
	if s.opening != nil {
		close(s.opening)
		s.opening = nil
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}
