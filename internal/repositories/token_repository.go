package repositories

import (
	"context"
	"errors"

	"amoflow/internal/models"
)

var ErrTokenNotFound = errors.New("amocrm token not found")

// TokenRepository хранит единственный OAuth2-токен интеграции.
// Save перезаписывает запись целиком, истории нет.
type TokenRepository interface {
	Get(ctx context.Context) (*models.Token, error)
	Save(ctx context.Context, token *models.Token) error
}
