package prefs

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/ventilator/internal/errors"
	"codeberg.org/mutker/ventilator/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

// Store is a Source backed by SQLite. Every write commits with
// synchronous=FULL so another process reading right after Write returns
// sees the value.
type Store struct {
	db     *sql.DB
	scope  Scope
	logger logger.Logger
	mu     sync.Mutex
	closed bool
}

func NewStore(ctx context.Context, cfg Config, scope Scope, log logger.Logger) (*Store, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if scope.Domain == "" || scope.User == "" || scope.Host == "" {
		return nil, errFactory.WithData(ErrInvalidScope, scope)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := fmt.Sprintf("%s?_journal=WAL&_sync=FULL&_busy_timeout=%d", cfg.DBPath, busyTimeoutMS)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := ValidateAndUpdateSchema(ctx, db, cfg.DBPath, log); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	log.Debug().
		Str("path", cfg.DBPath).
		Str("domain", scope.Domain).
		Str("host", scope.Host).
		Msg("Preferences store opened")

	return &Store{
		db:     db,
		scope:  scope,
		logger: log,
	}, nil
}

// Scope returns the scope the store addresses.
func (s *Store) Scope() Scope {
	return s.scope
}

func (s *Store) Read(ctx context.Context, key string) (any, bool, error) {
	errFactory := errors.New()

	var (
		k   string
		raw any
	)
	err := s.db.QueryRowContext(ctx, selectPreferenceSQL,
		s.scope.Domain, s.scope.User, s.scope.Host, key).Scan(&k, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errFactory.Wrap(ErrStorageAccess, err)
	}

	value, err := decode(kind(k), raw)
	if err != nil {
		return nil, false, err
	}

	return value, true, nil
}

func (s *Store) ReadInt(ctx context.Context, key string) (int, bool, error) {
	value, ok, err := s.Read(ctx, key)
	if err != nil || !ok {
		return 0, ok, err
	}

	n, err := toInt(value)
	if err != nil {
		return 0, false, err
	}

	return n, true, nil
}

func (s *Store) Write(ctx context.Context, key string, value any) error {
	errFactory := errors.New()

	if key == "" {
		return errFactory.WithData(errors.ErrInvalidArgument, "empty preference key")
	}

	k, stored, err := encode(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, upsertPreferenceSQL,
		s.scope.Domain, s.scope.User, s.scope.Host, key,
		string(k), stored, time.Now().Unix(),
	); err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	s.logger.Debug().
		Str("key", key).
		Str("kind", string(k)).
		Msg("Preference written")

	return nil
}

func (s *Store) Sync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(FULL)"); err != nil {
		return errors.New().Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (s *Store) All(ctx context.Context) (map[string]any, error) {
	errFactory := errors.New()

	rows, err := s.db.QueryContext(ctx, selectScopeSQL, s.scope.Domain, s.scope.User, s.scope.Host)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	out := make(map[string]any)
	for rows.Next() {
		var (
			key string
			k   string
			raw any
		)
		if err := rows.Scan(&key, &k, &raw); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		value, err := decode(kind(k), raw)
		if err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Skipping undecodable preference")
			continue
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return out, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to checkpoint WAL")
	}

	if err := s.db.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}

	return nil
}
