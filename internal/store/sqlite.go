//go:build sqlite
// +build sqlite

package store

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteBackend stores subscriptions and statistics in two tables with the
// preference tree and language histogram kept as JSON columns. Saves replace
// the full snapshot inside one transaction, matching the backend contract.
type sqliteBackend struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS subscriptions (
	repo_key        TEXT NOT NULL,
	chat_id         INTEGER NOT NULL,
	thread_id       INTEGER NOT NULL DEFAULT 0,
	events          TEXT NOT NULL,
	last_commit_sha TEXT NOT NULL DEFAULT '',
	last_star_count INTEGER NOT NULL DEFAULT 0,
	github_token    TEXT NOT NULL DEFAULT '',
	added_at        TEXT NOT NULL,
	PRIMARY KEY (repo_key, chat_id)
);
CREATE TABLE IF NOT EXISTS statistics (
	repo_key   TEXT PRIMARY KEY,
	stats      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

func openSQLite(path string) (backend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteBackend{db: db}, nil
}

func (s *sqliteBackend) load() (*Snapshot, error) {
	snap := emptySnapshot()

	rows, err := s.db.Query(`SELECT repo_key, chat_id, thread_id, events, last_commit_sha, last_star_count, github_token, added_at FROM subscriptions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			sub     Subscription
			events  string
			addedAt string
		)
		if err := rows.Scan(&sub.RepoKey, &sub.ChatID, &sub.ThreadID, &events, &sub.LastCommitSHA, &sub.LastStarCount, &sub.GitHubToken, &addedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(events), &sub.Events); err != nil {
			return nil, err
		}
		sub.AddedAt, _ = time.Parse(time.RFC3339Nano, addedAt)
		snap.Subscriptions[sub.Key()] = &sub
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	srows, err := s.db.Query(`SELECT repo_key, stats FROM statistics`)
	if err != nil {
		return nil, err
	}
	defer srows.Close()
	for srows.Next() {
		var repoKey, raw string
		if err := srows.Scan(&repoKey, &raw); err != nil {
			return nil, err
		}
		var st RepositoryStatistics
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			return nil, err
		}
		snap.Statistics[repoKey] = &st
	}
	return snap, srows.Err()
}

func (s *sqliteBackend) save(snap *Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM subscriptions`); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM statistics`); err != nil {
		return err
	}

	for _, sub := range snap.Subscriptions {
		events, err := json.Marshal(sub.Events)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			`INSERT INTO subscriptions(repo_key, chat_id, thread_id, events, last_commit_sha, last_star_count, github_token, added_at)
			 VALUES(?,?,?,?,?,?,?,?)`,
			sub.RepoKey, sub.ChatID, sub.ThreadID, string(events),
			sub.LastCommitSHA, sub.LastStarCount, sub.GitHubToken,
			sub.AddedAt.Format(time.RFC3339Nano),
		); err != nil {
			return err
		}
	}
	for repoKey, st := range snap.Statistics {
		raw, err := json.Marshal(st)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			`INSERT INTO statistics(repo_key, stats, updated_at) VALUES(?,?,?)`,
			repoKey, string(raw), st.UpdatedAt.Format(time.RFC3339Nano),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteBackend) close() error { return s.db.Close() }
