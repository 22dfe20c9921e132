package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/hpungsan/sav-assist/internal/calllog"
	"github.com/hpungsan/sav-assist/internal/db"
	"github.com/hpungsan/sav-assist/internal/errors"
	"github.com/hpungsan/sav-assist/internal/logger"
)

// Storage keys. The names match the browser edition's localStorage keys.
const (
	KeyCollection = "sav_assist_cloud_v1"
	KeyTechnician = "sav_assist_active_tech"
)

// Snapshot is what Load returns: the full collection and the active technician.
type Snapshot struct {
	Logs       []calllog.CallLog
	Technician string
}

// Store persists the call collection and active technician as two whole
// values. There is no atomicity across the two keys.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// New wraps an initialized database. A nil logger discards output.
func New(database *sql.DB, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Discard()
	}
	return &Store{db: database, log: log.Component("store")}
}

// Load reads both keys. Missing keys yield an empty collection and an empty
// name. A collection that fails to parse is logged and treated as empty.
func (s *Store) Load(ctx context.Context) (Snapshot, error) {
	logs, err := s.loadCollection(ctx, s.db)
	if err != nil {
		return Snapshot{Logs: []calllog.CallLog{}}, err
	}
	tech, _, err := db.GetValue(ctx, s.db, KeyTechnician)
	if err != nil {
		return Snapshot{Logs: logs}, err
	}
	return Snapshot{Logs: logs, Technician: tech}, nil
}

func (s *Store) loadCollection(ctx context.Context, q db.Querier) ([]calllog.CallLog, error) {
	raw, ok, err := db.GetValue(ctx, q, KeyCollection)
	if err != nil {
		return []calllog.CallLog{}, err
	}
	if !ok {
		return []calllog.CallLog{}, nil
	}
	var logs []calllog.CallLog
	if err := json.Unmarshal([]byte(raw), &logs); err != nil {
		s.log.WithError(err).Warn("stored collection is unreadable, starting empty")
		return []calllog.CallLog{}, nil
	}
	if logs == nil {
		logs = []calllog.CallLog{}
	}
	return logs, nil
}

func (s *Store) saveCollection(ctx context.Context, q db.Querier, logs []calllog.CallLog) error {
	if logs == nil {
		logs = []calllog.CallLog{}
	}
	data, err := json.Marshal(logs)
	if err != nil {
		return errors.NewInternal(err)
	}
	if err := db.SetValue(ctx, q, KeyCollection, string(data)); err != nil {
		s.log.WithError(err).Error("failed to save collection")
		return err
	}
	return nil
}

// SaveCollection rewrites the whole collection.
func (s *Store) SaveCollection(ctx context.Context, logs []calllog.CallLog) error {
	return s.saveCollection(ctx, s.db, logs)
}

// UpdateCollection reads the stored collection, passes it to fn and writes
// the result back, all inside one write transaction, so concurrent
// processes sharing the file never overwrite each other's changes. A nil
// result from fn writes nothing; an error from fn is returned unchanged.
// The collection as stored after the call is returned.
func (s *Store) UpdateCollection(ctx context.Context, fn func([]calllog.CallLog) ([]calllog.CallLog, error)) ([]calllog.CallLog, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer conn.Close()

	// IMMEDIATE takes the write lock up front; busy_timeout makes other
	// writers wait for it instead of failing.
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return nil, errors.NewInternal(err)
	}
	done := false
	defer func() {
		if done {
			return
		}
		if _, err := conn.ExecContext(context.Background(), "ROLLBACK"); err != nil {
			s.log.WithError(err).Warn("rollback failed")
		}
	}()

	current, err := s.loadCollection(ctx, conn)
	if err != nil {
		return nil, err
	}
	next, err := fn(calllog.Clone(current))
	if err != nil {
		return nil, err
	}
	if next == nil {
		next = current
	} else if err := s.saveCollection(ctx, conn, next); err != nil {
		return nil, err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return nil, errors.NewInternal(err)
	}
	done = true
	return next, nil
}

// SaveTechnician rewrites the active technician name.
func (s *Store) SaveTechnician(ctx context.Context, name string) error {
	if err := db.SetValue(ctx, s.db, KeyTechnician, name); err != nil {
		s.log.WithError(err).Error("failed to save technician")
		return err
	}
	return nil
}
