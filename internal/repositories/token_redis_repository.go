package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"amoflow/internal/models"
)

type redisTokenRepository struct {
	client *redis.Client
	key    string
}

// NewRedisTokenRepository хранит токен под ключом amoflow:token:<name>, без TTL:
// refresh-токен живёт дольше access-токена.
func NewRedisTokenRepository(client *redis.Client, name string) TokenRepository {
	return &redisTokenRepository{client: client, key: tokenKey(name)}
}

func tokenKey(name string) string {
	return fmt.Sprintf("amoflow:token:%s", name)
}

func (r *redisTokenRepository) Get(ctx context.Context) (*models.Token, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", r.key, err)
	}
	var t models.Token
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", r.key, err)
	}
	return &t, nil
}

func (r *redisTokenRepository) Save(ctx context.Context, token *models.Token) error {
	if token == nil {
		return errors.New("nil token")
	}
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key, data, 0).Err()
}
