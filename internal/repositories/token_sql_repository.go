package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"amoflow/internal/models"
)

const tokenSchema = `
CREATE TABLE IF NOT EXISTS amocrm_tokens (
	id            TEXT PRIMARY KEY,
	access_token  TEXT NOT NULL,
	refresh_token TEXT NOT NULL,
	token_type    TEXT NOT NULL,
	expires_at    BIGINT NOT NULL
)`

type sqlTokenRepository struct {
	db     *sql.DB
	driver string
	id     string
}

// NewSQLTokenRepository работает и с postgres (lib/pq), и с sqlite (modernc):
// запросы пишутся с $N, для sqlite плейсхолдеры переписываются в ?N.
func NewSQLTokenRepository(db *sql.DB, driver, id string) TokenRepository {
	return &sqlTokenRepository{db: db, driver: driver, id: id}
}

// EnsureTokenSchema creates the amocrm_tokens table when missing.
func EnsureTokenSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, tokenSchema)
	return err
}

func (r *sqlTokenRepository) q(query string) string {
	if r.driver == "sqlite" {
		return strings.ReplaceAll(query, "$", "?")
	}
	return query
}

func (r *sqlTokenRepository) Get(ctx context.Context) (*models.Token, error) {
	var t models.Token
	err := r.db.QueryRowContext(ctx, r.q(`
		SELECT access_token, refresh_token, token_type, expires_at
		FROM amocrm_tokens WHERE id = $1`), r.id,
	).Scan(&t.AccessToken, &t.RefreshToken, &t.TokenType, &t.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *sqlTokenRepository) Save(ctx context.Context, token *models.Token) error {
	if token == nil {
		return errors.New("nil token")
	}
	_, err := r.db.ExecContext(ctx, r.q(`
		INSERT INTO amocrm_tokens (id, access_token, refresh_token, token_type, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			expires_at = excluded.expires_at`),
		r.id, token.AccessToken, token.RefreshToken, token.TokenType, token.Expiry().Unix(),
	)
	return err
}
