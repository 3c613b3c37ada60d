package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"amoflow/internal/models"
)

type fileTokenRepository struct {
	path string
}

// NewFileTokenRepository — токен в JSON-файле (по умолчанию TOKEN.txt рядом с бинарником).
func NewFileTokenRepository(path string) TokenRepository {
	return &fileTokenRepository{path: path}
}

func (r *fileTokenRepository) Get(_ context.Context) (*models.Token, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("read token file: %w", err)
	}
	var t models.Token
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode token file %s: %w", r.path, err)
	}
	if t.AccessToken == "" && t.RefreshToken == "" {
		return nil, ErrTokenNotFound
	}
	return &t, nil
}

func (r *fileTokenRepository) Save(_ context.Context, token *models.Token) error {
	if token == nil {
		return errors.New("nil token")
	}
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create token dir: %w", err)
		}
	}
	return os.WriteFile(r.path, data, 0o600)
}
