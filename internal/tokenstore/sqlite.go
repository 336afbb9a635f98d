package tokenstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStorage is a durable, single-row-per-instance Storage backend.
// Each auth provider instance that wants persistence across restarts
// opens its own *SQLiteStorage over a shared *sql.DB with a distinct
// key, mirroring internal/store/sqlite/sqlite.go's connection shape
// (WAL mode, single writer) but scoped to one token slot.
type SQLiteStorage struct {
	db  *sql.DB
	key string
	enc *AgeEncryptor // optional; nil means store plaintext (e.g. tests)
}

// OpenSQLiteDB opens (creating if needed) the sqlite database used for
// token persistence and ensures its schema exists.
func OpenSQLiteDB(ctx context.Context, path string) (*sql.DB, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	const schema = `CREATE TABLE IF NOT EXISTS tokens (
		key TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate tokens table: %w", err)
	}
	return db, nil
}

// NewSQLiteStorage creates a Storage backed by a row in the shared
// tokens table, keyed by an opaque identifier (typically the auth
// provider's configuration hash). enc may be nil to store plaintext.
func NewSQLiteStorage(db *sql.DB, key string, enc *AgeEncryptor) *SQLiteStorage {
	return &SQLiteStorage{db: db, key: key, enc: enc}
}

type tokenRow struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scope        string    `json:"scope,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
}

func (s *SQLiteStorage) Load(ctx context.Context) (*TokenData, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM tokens WHERE key = ?`, s.key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load token row: %w", err)
	}

	plaintext := blob
	if s.enc != nil {
		plaintext, err = s.enc.Decrypt(blob)
		if err != nil {
			return nil, fmt.Errorf("decrypt token row: %w", err)
		}
	}

	var row tokenRow
	if err := json.Unmarshal(plaintext, &row); err != nil {
		return nil, fmt.Errorf("unmarshal token row: %w", err)
	}
	return &TokenData{
		AccessToken:  row.AccessToken,
		TokenType:    row.TokenType,
		ExpiresAt:    row.ExpiresAt,
		Scope:        row.Scope,
		RefreshToken: row.RefreshToken,
	}, nil
}

func (s *SQLiteStorage) Save(ctx context.Context, tok TokenData) error {
	row := tokenRow{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    tok.ExpiresAt,
		Scope:        tok.Scope,
		RefreshToken: tok.RefreshToken,
	}
	plaintext, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshal token row: %w", err)
	}

	blob := plaintext
	if s.enc != nil {
		blob, err = s.enc.Encrypt(plaintext)
		if err != nil {
			return fmt.Errorf("encrypt token row: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tokens (key, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, s.key, blob, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save token row: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Delete(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE key = ?`, s.key)
	if err != nil {
		return fmt.Errorf("delete token row: %w", err)
	}
	return nil
}
