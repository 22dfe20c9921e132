// Package history filters, orders and inspects the stored calls.
package history

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/hpungsan/sav-assist/internal/calllog"
	"github.com/hpungsan/sav-assist/internal/errors"
)

// Collection is the read and delete surface of the app state.
type Collection interface {
	Logs() []calllog.CallLog
	Find(id string) (calllog.CallLog, bool)
	Delete(ctx context.Context, id string) error
}

// Filter keeps logs matching term. Customer and technician names match
// case-insensitively; phone and ticket numbers match as plain substrings.
// An empty term matches everything.
func Filter(logs []calllog.CallLog, term string) []calllog.CallLog {
	out := make([]calllog.CallLog, 0, len(logs))
	lower := strings.ToLower(term)
	for _, l := range logs {
		if matches(l, term, lower) {
			out = append(out, l)
		}
	}
	return out
}

func matches(l calllog.CallLog, term, lower string) bool {
	return strings.Contains(l.PhoneNumber, term) ||
		strings.Contains(strings.ToLower(l.CustomerName), lower) ||
		strings.Contains(strings.ToLower(l.TechnicianName), lower) ||
		(l.TicketNumber != "" && strings.Contains(l.TicketNumber, term))
}

// SortNewestFirst orders logs by timestamp descending in place. Ties keep
// their relative order.
func SortNewestFirst(logs []calllog.CallLog) {
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].Timestamp > logs[j].Timestamp
	})
}

// Browser tracks at most one selected call over a collection.
type Browser struct {
	coll Collection

	mu       sync.Mutex
	selected string
}

func NewBrowser(coll Collection) *Browser {
	return &Browser{coll: coll}
}

// List returns the matching calls, newest first.
func (b *Browser) List(term string) []calllog.CallLog {
	logs := Filter(b.coll.Logs(), term)
	SortNewestFirst(logs)
	return logs
}

// Select marks id as the inspected call.
func (b *Browser) Select(id string) (calllog.CallLog, error) {
	l, ok := b.coll.Find(id)
	if !ok {
		return calllog.CallLog{}, errors.NewNotFound(id)
	}
	b.mu.Lock()
	b.selected = id
	b.mu.Unlock()
	return l, nil
}

// Selected returns the inspected call, if any still exists.
func (b *Browser) Selected() (calllog.CallLog, bool) {
	b.mu.Lock()
	id := b.selected
	b.mu.Unlock()
	if id == "" {
		return calllog.CallLog{}, false
	}
	return b.coll.Find(id)
}

// Clear drops the selection.
func (b *Browser) Clear() {
	b.mu.Lock()
	b.selected = ""
	b.mu.Unlock()
}

// Delete removes one call. The caller must pass confirmed=true once the
// user has agreed; otherwise nothing happens.
func (b *Browser) Delete(ctx context.Context, id string, confirmed bool) error {
	if !confirmed {
		return errors.NewInvalidRequest("Supprimer définitivement cet appel de votre historique ? (confirmation requise)")
	}
	if err := b.coll.Delete(ctx, id); err != nil {
		return err
	}
	b.mu.Lock()
	if b.selected == id {
		b.selected = ""
	}
	b.mu.Unlock()
	return nil
}
