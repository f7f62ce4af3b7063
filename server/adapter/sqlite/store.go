// Package adaptersqlite は終了したゲームの記録をSQLiteに保存します。
package adaptersqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"portofmars/server/adapter/sqlite/migrations"
	"portofmars/server/domain"
)

// ErrNotFound は指定したルームの記録が無い場合に返されるエラーです。
var ErrNotFound = errors.New("archive: game not found")

// Store はdomain.Archiverの実装です。
type Store struct {
	db *sql.DB
}

var _ domain.Archiver = (*Store)(nil)

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// Open はpathのデータベースを開き、マイグレーションを適用します。
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("archive path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), db, migrations.FS); err != nil {
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

// Archive は1ゲーム分の記録を1トランザクションで書き込みます。同じルームの記録が既にあれば置き換えます。
func (s *Store) Archive(ctx context.Context, record domain.ArchiveRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record.RoomID.IsEmpty() {
		return fmt.Errorf("room id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM games WHERE room_id = ?`, record.RoomID.String()); err != nil {
		return fmt.Errorf("replace game: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO games (room_id, status, round, system_health, created_at, finalized_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		record.RoomID.String(),
		record.Status,
		record.Round,
		record.SystemHealth,
		toMillis(record.CreatedAt),
		toMillis(record.FinalizedAt),
	)
	if err != nil {
		return fmt.Errorf("insert game: %w", err)
	}
	gameID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("game id: %w", err)
	}

	for _, p := range record.Players {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO players (game_id, role, user_id, username, is_bot, victory_points)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			gameID, p.Role, p.UserID, p.Username, p.IsBot, p.VictoryPoints,
		); err != nil {
			return fmt.Errorf("insert player %s: %w", p.Role, err)
		}
	}
	for i, ev := range record.Events {
		payload := string(ev.Payload)
		if payload == "" {
			payload = "null"
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO game_events (game_id, idx, round, phase, kind, role, payload, at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			gameID, i, ev.Round, ev.Phase, ev.Kind, ev.Role, payload, toMillis(ev.At),
		); err != nil {
			return fmt.Errorf("insert event %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive: %w", err)
	}
	return nil
}

// FindByRoomID はルームの記録をプレイヤー付きで返します。イベントは含みません。
func (s *Store) FindByRoomID(ctx context.Context, roomID domain.RoomID) (domain.ArchiveRecord, error) {
	var (
		rec                    domain.ArchiveRecord
		gameID                 int64
		createdAt, finalizedAt int64
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, round, system_health, created_at, finalized_at
		 FROM games WHERE room_id = ?`, roomID.String())
	if err := row.Scan(&gameID, &rec.Status, &rec.Round, &rec.SystemHealth, &createdAt, &finalizedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ArchiveRecord{}, ErrNotFound
		}
		return domain.ArchiveRecord{}, fmt.Errorf("find game: %w", err)
	}
	rec.RoomID = roomID
	rec.CreatedAt = fromMillis(createdAt)
	rec.FinalizedAt = fromMillis(finalizedAt)

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, user_id, username, is_bot, victory_points
		 FROM players WHERE game_id = ? ORDER BY role`, gameID)
	if err != nil {
		return domain.ArchiveRecord{}, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p domain.PlayerRecord
		if err := rows.Scan(&p.Role, &p.UserID, &p.Username, &p.IsBot, &p.VictoryPoints); err != nil {
			return domain.ArchiveRecord{}, fmt.Errorf("scan player: %w", err)
		}
		rec.Players = append(rec.Players, p)
	}
	if err := rows.Err(); err != nil {
		return domain.ArchiveRecord{}, fmt.Errorf("list players: %w", err)
	}
	return rec, nil
}

// CountCompleted はstatusで終了したゲームの数を返します。statusが空なら全件です。
func (s *Store) CountCompleted(ctx context.Context, status string) (int, error) {
	query := `SELECT COUNT(*) FROM games`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count games: %w", err)
	}
	return n, nil
}

// EventsByGame はルームのイベントを記録順に返します。
func (s *Store) EventsByGame(ctx context.Context, roomID domain.RoomID) ([]domain.GameEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.round, e.phase, e.kind, e.role, e.payload, e.at
		 FROM game_events e JOIN games g ON g.id = e.game_id
		 WHERE g.room_id = ? ORDER BY e.idx`, roomID.String())
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.GameEvent
	for rows.Next() {
		var (
			ev      domain.GameEvent
			payload string
			at      int64
		)
		if err := rows.Scan(&ev.Round, &ev.Phase, &ev.Kind, &ev.Role, &payload, &at); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Payload = json.RawMessage(payload)
		ev.At = fromMillis(at)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}
