package dao

import (
	"errors"
	"fmt"
	"sync"

	"github.com/courierd/courier"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned for lookups of unknown ids, and by ClaimKeyQuota
// when no credential of the application has quota left.
var ErrNotFound = errors.New("not found")

type DAO interface {
	// email keys
	AddKey(key *courier.Credential) error
	GetKey(id int64) (*courier.Credential, error)
	ListKeys() ([]courier.Credential, error)
	ListKeysByApp(app string) ([]courier.Credential, error)
	UpdateKey(id int64, patch courier.CredentialPatch) (*courier.Credential, error)
	DeleteKey(id int64) error
	ClaimKeyQuota(app, today string) (*courier.Credential, error)
	ReleaseKeyQuota(id int64) error
	ResetKeyQuotas(today string) (int64, error)
	KeySummary() (courier.KeyStatistics, error)

	// templates
	AddTemplate(t *courier.Template) error
	GetTemplate(id int64) (*courier.Template, error)
	ListTemplates() ([]courier.Template, error)
	UpdateTemplate(id int64, patch courier.TemplatePatch) (*courier.Template, error)
	DeleteTemplate(id int64) error
	CountTemplates() (int, error)

	// spool
	AddJob(job *Job) error
	GetJob(id string) (*Job, error)
	NextPending(limit int) ([]Job, error)
	ClaimJob(id string) error
	RequeueJob(id string) error
	MarkJobSent(id string, keyID int64) error
	MarkJobFailed(id, reason string) error
	RequeueProcessing() (int64, error)
	SpoolCounts() (courier.QueueStats, error)

	// statistics
	IncrementStat(app, date string, outcome Outcome) error
	StatRange(app, start, end string) ([]StatRecord, error)

	Close() error
}

func NewSQLite(path string) (DAO, error) {
	lite := &sqlite{path: path}
	err := lite.ensureSchema()
	return lite, err
}

type sqlite struct {
	mu   sync.Mutex
	db   *sqlx.DB
	path string
}

func (s *sqlite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlite) tune() error {
	q := `pragma journal_mode = WAL;
		  pragma synchronous = normal;
		  pragma foreign_keys = on;
		  pragma busy_timeout = 5000;
		  pragma temp_store = memory;`
	if s.db == nil {
		return errors.New("db must be instantiated")
	}
	_, err := s.db.Exec(q)
	return err
}

// getDB reconnects under the lock so two callers racing through a failed
// ping cannot both rebind s.db and leak a connection.
func (s *sqlite) getDB() (*sqlx.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	for s.db == nil || s.db.Ping() != nil {
		if s.db != nil {
			_ = s.db.Close()
			s.db = nil
		}
		s.db, err = sqlx.Connect("sqlite3", s.path)
		if err != nil {
			return nil, fmt.Errorf("could not connect to %s: %w", s.path, err)
		}
		if err = s.tune(); err != nil {
			return nil, fmt.Errorf("could not tune db instance: %w", err)
		}
	}
	return s.db, nil
}

func (s *sqlite) getTX() (*sqlx.Tx, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	return db.Beginx()
}

// finish commits the transaction when *err is nil, otherwise rolls back.
// Meant to be deferred with a named return error.
func finish(tx *sqlx.Tx, err *error) {
	if *err == nil {
		*err = tx.Commit()
		return
	}
	_ = tx.Rollback()
}

func (s *sqlite) ensureSchema() error {
	db, err := s.getDB()
	if err != nil {
		return fmt.Errorf("could not get db: %w", err)
	}

	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS email_key (
	    id              INTEGER PRIMARY KEY AUTOINCREMENT,
	    user            TEXT NOT NULL,
	    pass            TEXT NOT NULL,
	    app             TEXT NOT NULL,
	    email_company   TEXT NOT NULL,
	    limit_count     INTEGER NOT NULL,
	    sent_count      INTEGER NOT NULL DEFAULT 0,
	    last_reset_date TEXT NOT NULL,

	    created_at DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now')),
	    updated_at DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now')),

	    CHECK (limit_count > 0),
	    CHECK (sent_count >= 0 AND sent_count <= limit_count)
	);
	CREATE INDEX IF NOT EXISTS idx_email_key_app ON email_key(app);

	CREATE TABLE IF NOT EXISTS email_template (
	    id      INTEGER PRIMARY KEY AUTOINCREMENT,
	    name    TEXT NOT NULL,
	    subject TEXT NOT NULL,
	    content TEXT NOT NULL,
	    type    TEXT NOT NULL DEFAULT 'html', -- html, text

	    created_at DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now')),
	    updated_at DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now'))
	);

	CREATE TABLE IF NOT EXISTS spool (
	    id             TEXT PRIMARY KEY,
	    message_id     TEXT NOT NULL,
	    app            TEXT NOT NULL,
	    template_id    INTEGER NOT NULL,
	    template_data  TEXT NOT NULL DEFAULT '{}',
	    recipient      TEXT NOT NULL,
	    recipient_name TEXT NOT NULL DEFAULT '',
	    cc             TEXT NOT NULL DEFAULT '[]',
	    bcc            TEXT NOT NULL DEFAULT '[]',

	    status   TEXT NOT NULL DEFAULT 'pending', -- pending, processing, sent, failed
	    reason   TEXT NOT NULL DEFAULT '',
	    attempts INTEGER NOT NULL DEFAULT 0,
	    key_id   INTEGER,

	    enqueued_at DATETIME NOT NULL,
	    created_at  DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now')),
	    updated_at  DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now'))
	);
	CREATE INDEX IF NOT EXISTS idx_spool_pending ON spool(enqueued_at) WHERE status = 'pending';

	CREATE TABLE IF NOT EXISTS stat (
	    app    TEXT NOT NULL,
	    date   TEXT NOT NULL,
	    sent   INTEGER NOT NULL DEFAULT 0,
	    failed INTEGER NOT NULL DEFAULT 0,
	    PRIMARY KEY (app, date)
	);
	`)
	if err != nil {
		return fmt.Errorf("could not upsert schema: %w", err)
	}
	return nil
}
