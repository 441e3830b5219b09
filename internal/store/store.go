package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows a single writer; one pooled connection makes
	// concurrent writers queue here instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.CleanupExpiredSessions(); err != nil {
		return nil, fmt.Errorf("purge expired sessions: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'teacher',
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS exams (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id INTEGER NOT NULL,
		subject TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 1,
		planned_questions INTEGER NOT NULL,
		time_minutes INTEGER NOT NULL,
		reference TEXT NOT NULL DEFAULT '',
		dist_multiple_choice INTEGER,
		dist_true_false INTEGER,
		dist_open_analysis INTEGER,
		dist_open_exercise INTEGER,
		question_count INTEGER NOT NULL DEFAULT 0,
		count_multiple_choice INTEGER NOT NULL DEFAULT 0,
		count_true_false INTEGER NOT NULL DEFAULT 0,
		count_open_analysis INTEGER NOT NULL DEFAULT 0,
		count_open_exercise INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		approved_at DATETIME,
		FOREIGN KEY (owner_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS exam_questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		exam_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		text TEXT NOT NULL,
		ord INTEGER NOT NULL,
		options TEXT,
		correct_option_index INTEGER,
		correct_boolean BOOLEAN,
		expected_answer TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		FOREIGN KEY (exam_id) REFERENCES exams(id)
	);

	CREATE INDEX IF NOT EXISTS idx_exam_questions_exam_ord
		ON exam_questions(exam_id, ord);
	`
	_, err := s.db.Exec(schema)
	return err
}
