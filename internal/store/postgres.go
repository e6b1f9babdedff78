package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PostgresStore implements Store on PostgreSQL. Credential and
// known-identity removal happens in one transaction, so MarkLogout is
// atomic here rather than best-effort.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to databaseURL, runs pending migrations, and
// returns the store.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		db.Close()
		return nil, err
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) PutCredentials(ctx context.Context, identity string, creds, keys json.RawMessage) error {
	query := `
		INSERT INTO credentials (identity, creds, keys, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (identity)
		DO UPDATE SET creds = EXCLUDED.creds, keys = EXCLUDED.keys, updated_at = now()
	`
	if _, err := s.db.ExecContext(ctx, query, identity, []byte(creds), nullableJSON(keys)); err != nil {
		return fmt.Errorf("put credentials for %s: %w", identity, err)
	}
	return nil
}

func (s *PostgresStore) GetCredentials(ctx context.Context, identity string) (*CredentialRecord, error) {
	query := `SELECT creds, keys, updated_at FROM credentials WHERE identity = $1`

	rec := CredentialRecord{Identity: identity}
	var creds, keys []byte
	err := s.db.QueryRowContext(ctx, query, identity).Scan(&creds, &keys, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credentials for %s: %w", identity, err)
	}
	rec.Creds = json.RawMessage(creds)
	if keys != nil {
		rec.Keys = json.RawMessage(keys)
	}
	return &rec, nil
}

func (s *PostgresStore) AddKnownIdentity(ctx context.Context, identity string) error {
	query := `
		INSERT INTO numbers (identity, added_at)
		VALUES ($1, now())
		ON CONFLICT (identity) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, identity); err != nil {
		return fmt.Errorf("add known identity %s: %w", identity, err)
	}
	return nil
}

func (s *PostgresStore) ListKnownIdentities(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT identity FROM numbers ORDER BY added_at`)
	if err != nil {
		return nil, fmt.Errorf("list known identities: %w", err)
	}
	defer rows.Close()

	var identities []string
	for rows.Next() {
		var identity string
		if err := rows.Scan(&identity); err != nil {
			return nil, err
		}
		identities = append(identities, identity)
	}
	return identities, rows.Err()
}

func (s *PostgresStore) MarkLogout(ctx context.Context, identity string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin logout tx for %s: %w", identity, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM numbers WHERE identity = $1`, identity); err != nil {
		return fmt.Errorf("remove known identity %s: %w", identity, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM credentials WHERE identity = $1`, identity); err != nil {
		return fmt.Errorf("remove credentials for %s: %w", identity, err)
	}
	return tx.Commit()
}

func (s *PostgresStore) PutGroupSettings(ctx context.Context, settings *GroupSettings) error {
	query := `
		INSERT INTO group_settings (group_id, welcome, anti_link)
		VALUES ($1, $2, $3)
		ON CONFLICT (group_id)
		DO UPDATE SET welcome = EXCLUDED.welcome, anti_link = EXCLUDED.anti_link
	`
	if _, err := s.db.ExecContext(ctx, query, settings.GroupID, settings.Welcome, settings.AntiLink); err != nil {
		return fmt.Errorf("put group settings for %s: %w", settings.GroupID, err)
	}
	return nil
}

func (s *PostgresStore) GetGroupSettings(ctx context.Context, groupID string) (*GroupSettings, error) {
	query := `SELECT welcome, anti_link FROM group_settings WHERE group_id = $1`

	settings := GroupSettings{GroupID: groupID}
	err := s.db.QueryRowContext(ctx, query, groupID).Scan(&settings.Welcome, &settings.AntiLink)
	if errors.Is(err, sql.ErrNoRows) {
		return &GroupSettings{GroupID: groupID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get group settings for %s: %w", groupID, err)
	}
	return &settings, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

// nullableJSON maps an empty raw message to SQL NULL.
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
