package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the party_members table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS party_members (
    id           TEXT PRIMARY KEY,
    game_id      TEXT NOT NULL DEFAULT '',
    name         TEXT NOT NULL,
    nickname     TEXT NOT NULL DEFAULT '',
    voice_id     TEXT NOT NULL DEFAULT '',
    role         TEXT NOT NULL DEFAULT '',
    traits       JSONB NOT NULL DEFAULT '[]',
    age          TEXT NOT NULL DEFAULT '',
    appearance   TEXT NOT NULL DEFAULT '',
    relationship TEXT NOT NULL DEFAULT '',
    position     BIGSERIAL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_party_members_game ON party_members(game_id);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL. Traits are serialised as
// JSONB; insertion order is preserved via a serial position column.
type PostgresStore struct {
	db     DB
	gameID string
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] scoped to gameID using the
// given connection or pool. Call [PostgresStore.Migrate] before issuing
// queries against a fresh database.
func NewPostgresStore(db DB, gameID string) *PostgresStore {
	return &PostgresStore{db: db, gameID: gameID}
}

// Migrate executes the [Schema] DDL, creating the party_members table and
// index if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("roster: migrate: %w", err)
	}
	return nil
}

// Add implements [Store.Add].
func (s *PostgresStore) Add(ctx context.Context, m Member) error {
	traitsJSON, err := json.Marshal(emptySlice(m.Traits))
	if err != nil {
		return fmt.Errorf("roster: marshal traits: %w", err)
	}

	const query = `
		INSERT INTO party_members (
			id, game_id, name, nickname, voice_id,
			role, traits, age, appearance, relationship
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	_, err = s.db.Exec(ctx, query,
		m.ID, s.gameID, m.Name, m.Nickname, m.VoiceID,
		m.Role, traitsJSON, m.Age, m.Appearance, m.Relationship,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("roster: add %q: %w", m.ID, err)
	}
	return nil
}

// Get implements [Store.Get].
func (s *PostgresStore) Get(ctx context.Context, id string) (Member, error) {
	const query = `
		SELECT id, name, nickname, voice_id, role, traits, age, appearance, relationship
		FROM party_members
		WHERE id = $1 AND game_id = $2`

	m, err := scanMember(s.db.QueryRow(ctx, query, id, s.gameID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Member{}, ErrNotFound
		}
		return Member{}, fmt.Errorf("roster: get %q: %w", id, err)
	}
	return m, nil
}

// List implements [Store.List]. Members are returned in insertion order.
func (s *PostgresStore) List(ctx context.Context) ([]Member, error) {
	const query = `
		SELECT id, name, nickname, voice_id, role, traits, age, appearance, relationship
		FROM party_members
		WHERE game_id = $1
		ORDER BY position`

	rows, err := s.db.Query(ctx, query, s.gameID)
	if err != nil {
		return nil, fmt.Errorf("roster: list: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("roster: scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roster: list rows: %w", err)
	}
	return members, nil
}

// Remove implements [Store.Remove].
func (s *PostgresStore) Remove(ctx context.Context, id string) error {
	const query = `DELETE FROM party_members WHERE id = $1 AND game_id = $2`
	if _, err := s.db.Exec(ctx, query, id, s.gameID); err != nil {
		return fmt.Errorf("roster: remove %q: %w", id, err)
	}
	return nil
}

// scanMember reads one member row. The row must select the columns in the
// order used by Get and List.
func scanMember(row pgx.Row) (Member, error) {
	var m Member
	var traitsJSON []byte
	err := row.Scan(
		&m.ID, &m.Name, &m.Nickname, &m.VoiceID,
		&m.Role, &traitsJSON, &m.Age, &m.Appearance, &m.Relationship,
	)
	if err != nil {
		return Member{}, err
	}
	if len(traitsJSON) > 0 {
		if err := json.Unmarshal(traitsJSON, &m.Traits); err != nil {
			return Member{}, fmt.Errorf("unmarshal traits: %w", err)
		}
	}
	return m, nil
}

// isDuplicateKeyError reports whether err is a PostgreSQL unique-violation
// error (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// emptySlice normalises nil to an empty slice so JSONB columns store []
// instead of null.
func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
