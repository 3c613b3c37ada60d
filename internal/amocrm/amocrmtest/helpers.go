package amocrmtest

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"amoflow/internal/amocrm"
	"amoflow/internal/config"
	"amoflow/internal/models"
	"amoflow/internal/repositories"
	"amoflow/internal/throttle"
)

// TokenStore — TokenRepository в памяти.
type TokenStore struct {
	mu    sync.Mutex
	token *models.Token
	saves int
}

func NewTokenStore(t *models.Token) *TokenStore {
	return &TokenStore{token: t}
}

func (s *TokenStore) Get(context.Context) (*models.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return nil, repositories.ErrTokenNotFound
	}
	cp := *s.token
	return &cp, nil
}

func (s *TokenStore) Save(_ context.Context, t *models.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.token = &cp
	s.saves++
	return nil
}

// Saves returns how many times Save was called.
func (s *TokenStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// ValidToken is accepted by Server and expires in an hour.
func ValidToken() *models.Token {
	return &models.Token{
		AccessToken:  AccessToken,
		RefreshToken: "refresh-0",
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
	}
}

// Config points an amocrm client at the fake server.
func (s *Server) Config() config.AmoCRMConfig {
	return config.AmoCRMConfig{
		SubDomain:         "test",
		ClientID:          "client-id",
		ClientSecret:      "client-secret",
		AuthorizationCode: "auth-code",
		RedirectURL:       "https://example.com/callback",
		BaseURL:           s.URL,
		Timeout:           5 * time.Second,
	}
}

// QuietLogger discards output.
func QuietLogger() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

// NewClient builds a client against s with a valid stored token, no pauses and no rate limit.
func NewClient(t testing.TB, s *Server, opts ...amocrm.Option) *amocrm.Client {
	t.Helper()
	base := []amocrm.Option{
		amocrm.WithPacer(throttle.NoopPacer{}),
		amocrm.WithLimiter(nil),
		amocrm.WithLogger(QuietLogger()),
	}
	c, err := amocrm.NewClient(context.Background(), s.Config(), NewTokenStore(ValidToken()), append(base, opts...)...)
	if err != nil {
		t.Fatalf("amocrm.NewClient: %v", err)
	}
	return c
}
