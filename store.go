/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	gameIDLength   = 8
	gameIDAttempts = 5
	migrationTable = "schema_migrations"
)

// Player is a participant as recorded for one game.
type Player struct {
	ID         string    `json:"id"`
	GameID     string    `json:"gameId"`
	Name       string    `json:"name"`
	JoinedAt   time.Time `json:"joinedAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// Store persists games and their players in SQLite.
type Store struct {
	db *sql.DB
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func openStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}

	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := applyMigrations(db, migrations, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// applyMigrations runs each embedded .sql file under root once, in name order.
func applyMigrations(db *sql.DB, migrationFS fs.FS, root string) error {
	entries, err := fs.ReadDir(migrationFS, root)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
		name TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range files {
		var found int
		err := db.QueryRow(`SELECT 1 FROM `+migrationTable+` WHERE name = ?`, file).Scan(&found)
		switch {
		case err == nil:
			continue
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("check migration %s: %w", file, err)
		}

		content, err := fs.ReadFile(migrationFS, root+"/"+file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}

		up := upMigration(string(content))
		if strings.TrimSpace(up) == "" {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file, err)
		}

		if _, err := tx.Exec(up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}

		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO `+migrationTable+` (name, applied_at) VALUES (?, ?)`,
			file,
			toMillis(time.Now()),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}

	return nil
}

// upMigration returns the SQL between the Up and Down markers.
func upMigration(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"

	i := strings.Index(content, up)
	if i == -1 {
		return content
	}
	content = content[i+len(up):]

	if j := strings.Index(content, down); j != -1 {
		content = content[:j]
	}
	return content
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}

// newGameID generates a crypto-random game ID. Collisions are caught by the
// primary key when the game is inserted.
func newGameID() (string, error) {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	buf := make([]byte, gameIDLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	out := make([]byte, gameIDLength)
	for i := range out {
		out[i] = letters[int(buf[i])%len(letters)]
	}
	return string(out), nil
}

// AddGame stores g under a fresh ID and records its creator as the first
// player, so the game shows up in the creator's recent list.
func (s *Store) AddGame(ctx context.Context, g Game) (string, error) {
	cards, err := json.Marshal(g.Cards)
	if err != nil {
		return "", fmt.Errorf("encode cards: %w", err)
	}

	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}

	for range gameIDAttempts {
		id, err := newGameID()
		if err != nil {
			return "", fmt.Errorf("generate game id: %w", err)
		}

		err = s.insertGame(ctx, id, g, cards)
		if isUniqueViolation(err) {
			continue
		}
		if err != nil {
			return "", err
		}

		return id, nil
	}

	return "", fmt.Errorf("generate game id: %d collisions in a row", gameIDAttempts)
}

func (s *Store) insertGame(ctx context.Context, id string, g Game, cards []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create game: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	created := toMillis(g.CreatedAt)

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO games (
		   id,
		   name,
		   created_by,
		   created_by_id,
		   scale_type,
		   allow_members_to_manage,
		   cards,
		   created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		g.Name,
		g.CreatedBy,
		g.CreatedByID,
		string(g.ScaleType),
		g.AllowMembersToManage,
		string(cards),
		created,
	); err != nil {
		if isUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("create game: %w", err)
	}

	if g.CreatedByID != "" {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO players (game_id, player_id, name, joined_at, last_seen_at) VALUES (?, ?, ?, ?, ?)`,
			id, g.CreatedByID, g.CreatedBy, created, created,
		); err != nil {
			return fmt.Errorf("add creator: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create game: %w", err)
	}
	return nil
}

func (s *Store) GetGame(ctx context.Context, id string) (Game, error) {
	var (
		g       Game
		scale   string
		cards   string
		created int64
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_by, created_by_id, scale_type, allow_members_to_manage, cards, created_at
		   FROM games WHERE id = ?`,
		id,
	).Scan(&g.ID, &g.Name, &g.CreatedBy, &g.CreatedByID, &scale, &g.AllowMembersToManage, &cards, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Game{}, ErrGameNotFound
	}
	if err != nil {
		return Game{}, fmt.Errorf("get game %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(cards), &g.Cards); err != nil {
		return Game{}, fmt.Errorf("decode cards for %s: %w", id, err)
	}
	g.ScaleType = ScaleType(scale)
	g.CreatedAt = fromMillis(created)

	return g, nil
}

// RemoveGame deletes a game together with all of its players.
func (s *Store) RemoveGame(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove game: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM players WHERE game_id = ?`, id); err != nil {
		return fmt.Errorf("remove players of %s: %w", id, err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM games WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove game %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove game %s: %w", id, err)
	}
	if n == 0 {
		return ErrGameNotFound
	}

	return tx.Commit()
}

// AddPlayer records playerID as a member of gameID, renaming them if they
// already joined before.
func (s *Store) AddPlayer(ctx context.Context, gameID, playerID, name string) error {
	now := toMillis(time.Now())

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO players (game_id, player_id, name, joined_at, last_seen_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (game_id, player_id) DO UPDATE SET
		   name = excluded.name,
		   last_seen_at = excluded.last_seen_at`,
		gameID, playerID, name, now, now,
	)
	if err != nil {
		var sqliteErr *msqlite.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY {
			return ErrGameNotFound
		}
		return fmt.Errorf("add player to %s: %w", gameID, err)
	}

	return nil
}

func (s *Store) RemovePlayer(ctx context.Context, gameID, playerID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM players WHERE game_id = ? AND player_id = ?`,
		gameID, playerID,
	); err != nil {
		return fmt.Errorf("remove player from %s: %w", gameID, err)
	}
	return nil
}

func (s *Store) Players(ctx context.Context, gameID string) ([]Player, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT player_id, game_id, name, joined_at, last_seen_at
		   FROM players WHERE game_id = ? ORDER BY joined_at, player_id`,
		gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("list players of %s: %w", gameID, err)
	}
	defer rows.Close()

	var players []Player
	for rows.Next() {
		var (
			p              Player
			joined, seenAt int64
		)
		if err := rows.Scan(&p.ID, &p.GameID, &p.Name, &joined, &seenAt); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		p.JoinedAt = fromMillis(joined)
		p.LastSeenAt = fromMillis(seenAt)
		players = append(players, p)
	}

	return players, rows.Err()
}

// RecentGames returns the games playerID created or joined, most recently
// active first.
func (s *Store) RecentGames(ctx context.Context, playerID string, limit int) ([]RecentGame, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT g.id, g.name, g.created_by, g.created_by_id, g.allow_members_to_manage
		   FROM players p
		   JOIN games g ON g.id = p.game_id
		  WHERE p.player_id = ?
		  ORDER BY p.last_seen_at DESC, g.created_at DESC
		  LIMIT ?`,
		playerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent games: %w", err)
	}
	defer rows.Close()

	games := []RecentGame{}
	for rows.Next() {
		var g RecentGame
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedBy, &g.CreatedByID, &g.AllowMembersToManage); err != nil {
			return nil, fmt.Errorf("scan recent game: %w", err)
		}
		games = append(games, g)
	}

	return games, rows.Err()
}
