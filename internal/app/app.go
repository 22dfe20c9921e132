// Package app owns the in-memory call collection and the active technician.
// Every mutation goes through State and is written back to the store.
package app

import (
	"context"
	"strings"
	"sync"

	"github.com/hpungsan/sav-assist/internal/calllog"
	"github.com/hpungsan/sav-assist/internal/errors"
	"github.com/hpungsan/sav-assist/internal/logger"
	"github.com/hpungsan/sav-assist/internal/store"
)

// DefaultTechnicianFallback is stamped on logs saved without an active technician.
const DefaultTechnicianFallback = "Expert Anonyme"

// Persister is the storage behind a State. UpdateCollection must apply fn
// to the stored collection atomically with respect to other writers.
type Persister interface {
	Load(ctx context.Context) (store.Snapshot, error)
	UpdateCollection(ctx context.Context, fn func([]calllog.CallLog) ([]calllog.CallLog, error)) ([]calllog.CallLog, error)
	SaveTechnician(ctx context.Context, name string) error
}

// State is the single owner of the collection and technician.
type State struct {
	mu       sync.RWMutex
	logs     []calllog.CallLog
	tech     string
	fallback string
	store    Persister
	log      *logger.Logger
}

// Options configures a State.
type Options struct {
	// Fallback replaces an empty technician when stamping logs.
	Fallback string
	Logger   *logger.Logger
}

// New builds a State from a loaded snapshot.
func New(snap store.Snapshot, p Persister, opts Options) *State {
	if opts.Fallback == "" {
		opts.Fallback = DefaultTechnicianFallback
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	return &State{
		logs:     calllog.Clone(snap.Logs),
		tech:     snap.Technician,
		fallback: opts.Fallback,
		store:    p,
		log:      opts.Logger.Component("app"),
	}
}

// Open loads the snapshot from s and returns a State persisting to it.
func Open(ctx context.Context, s *store.Store, opts Options) (*State, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return New(snap, s, opts), nil
}

// Logs returns a copy of the collection in storage order.
func (st *State) Logs() []calllog.CallLog {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return calllog.Clone(st.logs)
}

// Technician returns the active technician name, possibly empty.
func (st *State) Technician() string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.tech
}

// Find returns the log with the given id.
func (st *State) Find(id string) (calllog.CallLog, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	for _, l := range st.logs {
		if l.ID == id {
			return l, true
		}
	}
	return calllog.CallLog{}, false
}

// Refresh reloads the collection and technician from storage so changes
// written by other processes become visible. On failure the cached values
// are kept and the error is returned.
func (st *State) Refresh(ctx context.Context) error {
	snap, err := st.store.Load(ctx)
	if err != nil {
		st.log.WithError(err).Warn("reload failed, keeping cached calls")
		return err
	}
	st.mu.Lock()
	st.logs = calllog.Clone(snap.Logs)
	st.tech = snap.Technician
	st.mu.Unlock()
	return nil
}

// Append stamps the technician on entry and prepends it. The returned log
// is what was stored.
func (st *State) Append(ctx context.Context, entry calllog.CallLog) (calllog.CallLog, error) {
	if entry.ID == "" {
		return entry, errors.NewInvalidRequest("call log id is required")
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	entry.TechnicianName = st.tech
	if strings.TrimSpace(entry.TechnicianName) == "" {
		entry.TechnicianName = st.fallback
	}

	err := st.update(ctx, func(logs []calllog.CallLog) ([]calllog.CallLog, error) {
		for _, l := range logs {
			if l.ID == entry.ID {
				return nil, errors.NewInvalidRequest("duplicate call log id: " + entry.ID)
			}
		}
		return append([]calllog.CallLog{entry}, logs...), nil
	})
	if err != nil && errors.Is(err, errors.ErrInvalidRequest) {
		return entry, err
	}
	st.log.WithField("id", entry.ID).Info("call saved")
	return entry, err
}

// Delete removes exactly one log by id.
func (st *State) Delete(ctx context.Context, id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	err := st.update(ctx, func(logs []calllog.CallLog) ([]calllog.CallLog, error) {
		idx := -1
		for i, l := range logs {
			if l.ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, errors.NewNotFound(id)
		}
		next := make([]calllog.CallLog, 0, len(logs)-1)
		next = append(next, logs[:idx]...)
		return append(next, logs[idx+1:]...), nil
	})
	if err != nil && errors.Is(err, errors.ErrNotFound) {
		return err
	}
	st.log.WithField("id", id).Info("call deleted")
	return err
}

// Merge prepends incoming logs whose id is unknown in storage. Nothing is
// written when no log is added.
func (st *State) Merge(ctx context.Context, incoming []calllog.CallLog) (int, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	added := 0
	err := st.update(ctx, func(logs []calllog.CallLog) ([]calllog.CallLog, error) {
		merged, n := calllog.MergeNew(logs, incoming)
		added = n
		if n == 0 {
			return nil, nil
		}
		return merged, nil
	})
	if added > 0 {
		st.log.WithField("added", added).Info("calls merged")
	}
	return added, err
}

// SetTechnician replaces the active technician name.
func (st *State) SetTechnician(ctx context.Context, name string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.tech = name
	if err := st.store.SaveTechnician(ctx, name); err != nil {
		st.log.WithError(err).Error("technician not persisted")
		return err
	}
	return nil
}

// update runs fn against the stored collection and adopts the result.
// Errors returned by fn are passed through untouched. When storage itself
// fails, fn is applied to the cached collection so the change lives on in
// this process, and the storage error is returned. Must be called with mu
// held.
func (st *State) update(ctx context.Context, fn func([]calllog.CallLog) ([]calllog.CallLog, error)) error {
	var rejected error
	next, err := st.store.UpdateCollection(ctx, func(logs []calllog.CallLog) ([]calllog.CallLog, error) {
		out, ferr := fn(logs)
		rejected = ferr
		return out, ferr
	})
	if rejected != nil {
		return rejected
	}
	if err == nil {
		st.logs = next
		return nil
	}

	st.log.WithError(err).Error("collection not persisted")
	out, ferr := fn(calllog.Clone(st.logs))
	if ferr != nil {
		return ferr
	}
	if out != nil {
		st.logs = out
	}
	return err
}
